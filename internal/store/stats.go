package store

import (
	"context"
	"os"
	"sort"
)

// Stats holds store statistics.
type Stats struct {
	DBPath         string     `json:"db_path"`
	DBSizeBytes    int64      `json:"db_size_bytes"`
	Dimension      int        `json:"dimension"`
	TotalUnits     int        `json:"total_units"`
	ActiveUnits    int        `json:"active_units"`
	ArchivedUnits  int        `json:"archived_units"`
	SummaryUnits   int        `json:"summary_units"`
	MeanImportance float64    `json:"mean_importance"`
	Tags           []TagStats `json:"tags"`
}

// TagStats holds per-tag counts over active units.
type TagStats struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Stats returns store statistics computed from the in-memory index.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path, Dimension: s.opts.Dimension}

	// DB file size
	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	var sum float64
	for _, u := range s.order {
		st.TotalUnits++
		if u.IsSummary() {
			st.SummaryUnits++
		}
		if !u.Active() {
			st.ArchivedUnits++
			continue
		}
		st.ActiveUnits++
		sum += u.Importance
		for _, t := range u.Tags {
			counts[t]++
		}
	}
	if st.ActiveUnits > 0 {
		st.MeanImportance = sum / float64(st.ActiveUnits)
	}

	for tag, n := range counts {
		st.Tags = append(st.Tags, TagStats{Tag: tag, Count: n})
	}
	sort.Slice(st.Tags, func(i, j int) bool {
		if st.Tags[i].Count != st.Tags[j].Count {
			return st.Tags[i].Count > st.Tags[j].Count
		}
		return st.Tags[i].Tag < st.Tags[j].Tag
	})

	return st, nil
}
