package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rcliao/recall/internal/model"
)

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, clock := newTestStore(t)

	a := mustInsert(t, src, "a", []float32{1, 0, 0}, 0.2, "creative")
	b := mustInsert(t, src, "b", []float32{0, 1, 0}, 0.4, "relational")
	mustInsert(t, src, "c", []float32{0, 0, 1}, 0)
	sum, err := src.Consolidate(ctx, ConsolidateParams{SourceIDs: []string{a, b}, Content: "ab", Embedding: []float32{1, 1, 0}})
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}

	units, err := src.ExportAll(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(units) != 4 {
		t.Fatalf("expected 4 exported units, got %d", len(units))
	}

	dst := openTestStore(t, filepath.Join(t.TempDir(), "dst.db"), testOptions(clock))
	res, err := dst.Import(ctx, units)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Imported != 4 || res.Skipped != 0 {
		t.Errorf("expected 4 imported, got %+v", res)
	}

	got, err := dst.Get(ctx, sum.ID)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if !reflect.DeepEqual(got.ConsolidatedFrom, []string{a, b}) {
		t.Errorf("provenance lost: %v", got.ConsolidatedFrom)
	}
	ga, _ := dst.Get(ctx, a)
	if ga.Active() || ga.ConsolidatedInto != sum.ID {
		t.Errorf("archive state lost: %+v", ga)
	}

	again, err := dst.Import(ctx, units)
	if err != nil {
		t.Fatalf("reimport: %v", err)
	}
	if again.Imported != 0 || again.Skipped != 4 {
		t.Errorf("expected all skipped on reimport, got %+v", again)
	}
}

func TestImportRejectsBadBatch(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Import(ctx, []model.Unit{
		{ID: "ok", Content: "fine", Embedding: []float32{1, 0, 0}},
		{ID: "bad", Content: "wrong size", Embedding: []float32{1, 0}},
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}

	_, err = s.Import(ctx, []model.Unit{
		{ID: "sum", Content: "summary", Embedding: []float32{1, 0, 0}, ConsolidatedFrom: []string{"x", "y"}},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for dangling source, got %v", err)
	}

	units, _ := s.ExportAll(ctx)
	if len(units) != 0 {
		t.Errorf("rejected batches must not leave units behind, have %d", len(units))
	}
}

func TestImportRejectsBrokenProvenance(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	a := mustInsert(t, s, "a", []float32{1, 0, 0}, 0)
	b := mustInsert(t, s, "b", []float32{0, 1, 0}, 0)
	now := clock.Now()
	vec := []float32{1, 1, 0}

	tests := []struct {
		name  string
		units []model.Unit
		want  error
	}{
		{
			name:  "summary over active units",
			units: []model.Unit{{ID: "sum", Content: "ab", Embedding: vec, ConsolidatedFrom: []string{a, b}}},
			want:  ErrBrokenProvenance,
		},
		{
			name: "source archived into another summary",
			units: []model.Unit{
				{ID: "x", Content: "x", Embedding: vec, ArchivedAt: &now, ConsolidatedInto: "other"},
				{ID: "y", Content: "y", Embedding: vec, ArchivedAt: &now, ConsolidatedInto: "sum"},
				{ID: "other", Content: "o", Embedding: vec, ConsolidatedFrom: []string{"x", "z"}},
				{ID: "z", Content: "z", Embedding: vec, ArchivedAt: &now, ConsolidatedInto: "other"},
				{ID: "sum", Content: "xy", Embedding: vec, ConsolidatedFrom: []string{"x", "y"}},
			},
			want: ErrAlreadyConsolidated,
		},
		{
			name:  "archived without summary",
			units: []model.Unit{{ID: "orphan", Content: "o", Embedding: vec, ArchivedAt: &now}},
			want:  ErrBrokenProvenance,
		},
		{
			name: "summary does not list archived unit",
			units: []model.Unit{
				{ID: "x", Content: "x", Embedding: vec, ArchivedAt: &now, ConsolidatedInto: "sum"},
				{ID: "y", Content: "y", Embedding: vec, ArchivedAt: &now, ConsolidatedInto: "sum"},
				{ID: "w", Content: "w", Embedding: vec, ArchivedAt: &now, ConsolidatedInto: "sum"},
				{ID: "sum", Content: "xy", Embedding: vec, ConsolidatedFrom: []string{"x", "y"}},
			},
			want: ErrBrokenProvenance,
		},
		{
			name:  "active unit pointing at a summary",
			units: []model.Unit{{ID: "p", Content: "p", Embedding: vec, ConsolidatedInto: a}},
			want:  ErrBrokenProvenance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Import(ctx, tt.units)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	units, _ := s.ExportAll(ctx)
	if len(units) != 2 {
		t.Fatalf("rejected batches must not leave units behind, have %d", len(units))
	}

	// the sources are untouched and still consolidate normally
	if _, err := s.Consolidate(ctx, ConsolidateParams{SourceIDs: []string{a, b}, Content: "ab", Embedding: vec}); err != nil {
		t.Fatalf("consolidate after rejected import: %v", err)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	a := mustInsert(t, s, "a", []float32{1, 0, 0}, 0, "creative")
	b := mustInsert(t, s, "b", []float32{0, 1, 0}, 0, "creative", "relational")
	mustInsert(t, s, "c", []float32{0, 0, 1}, 0, "relational")
	if _, err := s.Consolidate(ctx, ConsolidateParams{SourceIDs: []string{a, b}, Content: "ab", Embedding: []float32{1, 1, 0}}); err != nil {
		t.Fatalf("consolidate: %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalUnits != 4 || st.ActiveUnits != 2 || st.ArchivedUnits != 2 || st.SummaryUnits != 1 {
		t.Errorf("unexpected counts: %+v", st)
	}
	if !approx(st.MeanImportance, 0.5) {
		t.Errorf("expected mean importance 0.5, got %f", st.MeanImportance)
	}
	if st.Dimension != testDim {
		t.Errorf("expected dimension %d, got %d", testDim, st.Dimension)
	}
	// summary carries {creative, relational}; c carries relational
	want := []TagStats{{Tag: "relational", Count: 2}, {Tag: "creative", Count: 1}}
	if !reflect.DeepEqual(st.Tags, want) {
		t.Errorf("expected %v, got %v", want, st.Tags)
	}
}
