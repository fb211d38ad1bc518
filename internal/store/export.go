package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/recall/internal/model"
)

// ExportAll returns every unit, archived ones included, in insertion order.
func (s *SQLiteStore) ExportAll(ctx context.Context) ([]model.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	units := make([]model.Unit, 0, len(s.order))
	for _, u := range s.order {
		units = append(units, u.Clone())
	}
	return units, nil
}

// ImportResult reports what an import did.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Import stores units from an export, keeping their ids, timestamps and
// provenance. Units whose id already exists are skipped. The batch commits
// in one transaction; a bad unit rejects the whole batch.
func (s *SQLiteStore) Import(ctx context.Context, units []model.Unit) (*ImportResult, error) {
	for _, u := range units {
		if u.ID == "" {
			return nil, fmt.Errorf("import: unit without id")
		}
		if strings.TrimSpace(u.Content) == "" {
			return nil, fmt.Errorf("import %s: %w", u.ID, ErrEmptyContent)
		}
		if err := s.checkEmbedding(u.Embedding); err != nil {
			return nil, fmt.Errorf("import %s: %w", u.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := &ImportResult{}
	var fresh []*model.Unit
	batch := make(map[string]bool)
	for _, u := range units {
		if _, ok := s.units[u.ID]; ok || batch[u.ID] {
			res.Skipped++
			continue
		}
		batch[u.ID] = true
		c := u.Clone()
		c.Tags = dedupeTags(c.Tags)
		c.Importance = clamp01(c.Importance)
		c.EmotionalWeight = clamp01(c.EmotionalWeight)
		fresh = append(fresh, &c)
	}

	if err := s.checkImportProvenance(fresh); err != nil {
		return nil, err
	}

	if len(fresh) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	seqs := make([]int64, len(fresh))
	for i, u := range fresh {
		seq, err := insertUnit(ctx, tx, u)
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", u.ID, err)
		}
		seqs[i] = seq
	}
	for _, u := range fresh {
		if err := insertSources(ctx, tx, u.ID, u.ConsolidatedFrom); err != nil {
			return nil, fmt.Errorf("import %s: %w", u.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for i, u := range fresh {
		u.Seq = seqs[i]
		s.add(u)
	}
	res.Imported = len(fresh)

	s.metrics.SetActiveUnits(s.activeCount())
	s.log.Info().Int("imported", res.Imported).Int("skipped", res.Skipped).Msg("units imported")

	return res, nil
}

// checkImportProvenance rejects batches that would leave a summary with an
// active source, or an archived unit without the summary that holds it.
// Callers hold s.mu.
func (s *SQLiteStore) checkImportProvenance(fresh []*model.Unit) error {
	incoming := make(map[string]*model.Unit, len(fresh))
	for _, u := range fresh {
		incoming[u.ID] = u
	}
	lookup := func(id string) (*model.Unit, bool) {
		if u, ok := incoming[id]; ok {
			return u, true
		}
		u, ok := s.units[id]
		return u, ok
	}

	for _, u := range fresh {
		if !u.IsSummary() {
			continue
		}
		if len(uniqueIDs(u.ConsolidatedFrom)) != len(u.ConsolidatedFrom) || len(u.ConsolidatedFrom) < 2 {
			return fmt.Errorf("import %s: %w", u.ID, ErrTooFewSources)
		}
		for _, id := range u.ConsolidatedFrom {
			src, ok := lookup(id)
			if !ok {
				return fmt.Errorf("import %s: source %w: %s", u.ID, ErrNotFound, id)
			}
			if src.Active() {
				return fmt.Errorf("import %s: source %s is still active: %w", u.ID, id, ErrBrokenProvenance)
			}
			if src.ConsolidatedInto != u.ID {
				return fmt.Errorf("import %s: source %s into %q: %w", u.ID, id, src.ConsolidatedInto, ErrAlreadyConsolidated)
			}
		}
	}

	for _, u := range fresh {
		if u.Active() {
			if u.ConsolidatedInto != "" {
				return fmt.Errorf("import %s: active unit names summary %s: %w", u.ID, u.ConsolidatedInto, ErrBrokenProvenance)
			}
			continue
		}
		sum, ok := lookup(u.ConsolidatedInto)
		if u.ConsolidatedInto == "" || !ok {
			return fmt.Errorf("import %s: archived without summary %q: %w", u.ID, u.ConsolidatedInto, ErrBrokenProvenance)
		}
		if !containsID(sum.ConsolidatedFrom, u.ID) {
			return fmt.Errorf("import %s: summary %s does not list it: %w", u.ID, sum.ID, ErrBrokenProvenance)
		}
	}
	return nil
}

func containsID(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
