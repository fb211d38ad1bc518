// Package model defines the core memory data types.
package model

import "time"

// Unit represents a stored memory unit.
type Unit struct {
	ID               string     `json:"id"`
	Seq              int64      `json:"seq"`
	Content          string     `json:"content"`
	Embedding        []float32  `json:"embedding"`
	Importance       float64    `json:"importance"`
	EmotionalWeight  float64    `json:"emotional_weight"`
	Tags             []string   `json:"tags,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	LastAccessedAt   time.Time  `json:"last_accessed_at"`
	DecayedAt        *time.Time `json:"decayed_at,omitempty"`
	ConsolidatedFrom []string   `json:"consolidated_from,omitempty"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty"`
	ConsolidatedInto string     `json:"consolidated_into,omitempty"`
}

// Active reports whether the unit takes part in retrieval.
func (u *Unit) Active() bool {
	return u.ArchivedAt == nil
}

// IsSummary reports whether the unit was produced by consolidation.
func (u *Unit) IsSummary() bool {
	return len(u.ConsolidatedFrom) > 0
}

// HasAnyTag reports whether the unit carries at least one of tags.
func (u *Unit) HasAnyTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range u.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy so callers never alias store state.
func (u Unit) Clone() Unit {
	c := u
	if u.Embedding != nil {
		c.Embedding = append([]float32(nil), u.Embedding...)
	}
	if u.Tags != nil {
		c.Tags = append([]string(nil), u.Tags...)
	}
	if u.ConsolidatedFrom != nil {
		c.ConsolidatedFrom = append([]string(nil), u.ConsolidatedFrom...)
	}
	if u.DecayedAt != nil {
		t := *u.DecayedAt
		c.DecayedAt = &t
	}
	if u.ArchivedAt != nil {
		t := *u.ArchivedAt
		c.ArchivedAt = &t
	}
	return c
}

// Scored is a unit together with the composite score that ranked it.
type Scored struct {
	Unit       Unit    `json:"unit"`
	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
	Importance float64 `json:"importance"`
	Emotion    float64 `json:"emotion"`
}
