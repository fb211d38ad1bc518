package store

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rcliao/recall/internal/embedding"
	"github.com/rcliao/recall/internal/model"
)

// Rank scores active units against the query without touching them.
func (s *SQLiteStore) Rank(ctx context.Context, p RetrieveParams) ([]model.Scored, error) {
	if err := s.checkEmbedding(p.Embedding); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ranked := s.rank(p)
	out := make([]model.Scored, len(ranked))
	for i, r := range ranked {
		out[i] = r.scored(r.unit.Clone())
	}
	return out, nil
}

// Retrieve ranks active units and reinforces the ones it returns: their
// last access moves to now and their importance grows by the configured
// increment, capped at 1. Calling it twice is therefore not idempotent.
func (s *SQLiteStore) Retrieve(ctx context.Context, p RetrieveParams) ([]model.Scored, error) {
	if err := s.checkEmbedding(p.Embedding); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ranked := s.rank(p)
	if len(ranked) == 0 {
		s.metrics.RecordRetrieve(0)
		return []model.Scored{}, nil
	}

	now := s.now()
	type update struct {
		importance float64
		emotion    float64
	}
	updates := make([]update, len(ranked))
	for i, r := range ranked {
		up := update{
			importance: math.Min(1, r.unit.Importance+s.opts.Ranking.ImportanceIncrement),
			emotion:    r.unit.EmotionalWeight,
		}
		if len(p.Emphasis) > 0 && r.unit.HasAnyTag(p.Emphasis) {
			up.emotion = math.Min(1, up.emotion+s.opts.Ranking.EmotionAmplify)
		}
		updates[i] = up
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for i, r := range ranked {
		if _, err := tx.ExecContext(ctx,
			`UPDATE units SET importance = ?, emotional_weight = ?, last_accessed_at = ? WHERE id = ?`,
			updates[i].importance, updates[i].emotion, formatTime(now), r.unit.ID); err != nil {
			return nil, fmt.Errorf("reinforce %s: %w", r.unit.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	out := make([]model.Scored, len(ranked))
	for i, r := range ranked {
		r.unit.Importance = updates[i].importance
		r.unit.EmotionalWeight = updates[i].emotion
		r.unit.LastAccessedAt = now
		out[i] = r.scored(r.unit.Clone())
	}

	s.metrics.RecordRetrieve(len(out))
	s.log.Debug().Int("k", len(out)).Float64("top_score", out[0].Score).Msg("retrieved")

	return out, nil
}

// ranked is a candidate with the score components used to order it.
type ranked struct {
	unit       *model.Unit
	score      float64
	similarity float64
	importance float64
	emotion    float64
}

func (r ranked) scored(u model.Unit) model.Scored {
	return model.Scored{
		Unit:       u,
		Score:      r.score,
		Similarity: r.similarity,
		Importance: r.importance,
		Emotion:    r.emotion,
	}
}

// rank filters eligible units, scores them and returns the top K in order:
// score descending, then most recent access, then earliest insertion.
// Callers hold s.mu.
func (s *SQLiteStore) rank(p RetrieveParams) []ranked {
	k := p.K
	if k <= 0 {
		k = s.opts.Ranking.DefaultK
	}
	w := s.opts.Ranking

	var candidates []ranked
	for _, u := range s.order {
		if !u.Active() || u.Importance < p.MinImportance {
			continue
		}
		if len(p.Tags) > 0 && !u.HasAnyTag(p.Tags) {
			continue
		}
		sim := embedding.CosineSimilarity(p.Embedding, u.Embedding)
		candidates = append(candidates, ranked{
			unit:       u,
			similarity: sim,
			importance: u.Importance,
			emotion:    u.EmotionalWeight,
			score:      sim*w.WeightSimilarity + u.Importance*w.WeightImportance + u.EmotionalWeight*w.WeightEmotion,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.unit.LastAccessedAt.Equal(b.unit.LastAccessedAt) {
			return a.unit.LastAccessedAt.After(b.unit.LastAccessedAt)
		}
		return a.unit.Seq < b.unit.Seq
	})

	if k < len(candidates) {
		candidates = candidates[:k]
	}
	return candidates
}
