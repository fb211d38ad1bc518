package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rcliao/recall/internal/model"
)

// Consolidate folds two or more active units into a new summary unit. The
// summary records its sources in the order given; each source is archived
// and points back at the summary. Either all of it commits or none of it.
func (s *SQLiteStore) Consolidate(ctx context.Context, p ConsolidateParams) (*model.Unit, error) {
	if strings.TrimSpace(p.Content) == "" {
		return nil, ErrEmptyContent
	}
	if err := s.checkEmbedding(p.Embedding); err != nil {
		return nil, err
	}

	ids := uniqueIDs(p.SourceIDs)
	if len(ids) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewSources, len(ids))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sources := make([]*model.Unit, 0, len(ids))
	for _, id := range ids {
		u, ok := s.units[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if !u.Active() {
			return nil, fmt.Errorf("%w: %s into %s", ErrAlreadyConsolidated, id, u.ConsolidatedInto)
		}
		sources = append(sources, u)
	}

	now := s.now()
	summary := &model.Unit{
		ID:               s.newID(now),
		Content:          p.Content,
		Embedding:        append([]float32(nil), p.Embedding...),
		CreatedAt:        now,
		LastAccessedAt:   now,
		ConsolidatedFrom: ids,
	}
	var tags []string
	for _, src := range sources {
		if src.Importance > summary.Importance {
			summary.Importance = src.Importance
		}
		if src.EmotionalWeight > summary.EmotionalWeight {
			summary.EmotionalWeight = src.EmotionalWeight
		}
		tags = append(tags, src.Tags...)
	}
	summary.Tags = dedupeTags(tags)
	sort.Strings(summary.Tags)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	seq, err := insertUnit(ctx, tx, summary)
	if err != nil {
		return nil, fmt.Errorf("insert summary: %w", err)
	}
	if err := insertSources(ctx, tx, summary.ID, ids); err != nil {
		return nil, err
	}
	stamp := formatTime(now)
	for _, src := range sources {
		if _, err := tx.ExecContext(ctx,
			`UPDATE units SET archived_at = ?, consolidated_into = ? WHERE id = ?`,
			stamp, summary.ID, src.ID); err != nil {
			return nil, fmt.Errorf("archive %s: %w", src.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	summary.Seq = seq
	s.add(summary)
	for _, src := range sources {
		t := now
		src.ArchivedAt = &t
		src.ConsolidatedInto = summary.ID
	}

	s.metrics.RecordConsolidation()
	s.metrics.SetActiveUnits(s.activeCount())
	s.log.Info().Str("id", summary.ID).Strs("sources", ids).Msg("units consolidated")

	out := summary.Clone()
	return &out, nil
}

// Provenance returns a unit together with the units it was consolidated
// from and the summary it was folded into, if any.
func (s *SQLiteStore) Provenance(ctx context.Context, id string) (*Provenance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.units[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	p := &Provenance{Unit: u.Clone()}
	for _, srcID := range u.ConsolidatedFrom {
		if src, ok := s.units[srcID]; ok {
			p.Sources = append(p.Sources, src.Clone())
		}
	}
	if u.ConsolidatedInto != "" {
		if sum, ok := s.units[u.ConsolidatedInto]; ok {
			c := sum.Clone()
			p.ConsolidatedInto = &c
		}
	}
	return p, nil
}

// uniqueIDs drops blanks and repeats, keeping caller order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
