package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/rcliao/recall/internal/config"
)

const testDim = 3

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testOptions(clock *fakeClock) Options {
	cfg := config.DefaultConfig()
	return Options{
		Dimension: testDim,
		Ranking:   cfg.Ranking,
		Decay:     cfg.Decay,
		Now:       clock.Now,
	}
}

func newTestStore(t *testing.T) (*SQLiteStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := openTestStore(t, filepath.Join(t.TempDir(), "test.db"), testOptions(clock))
	return s, clock
}

func openTestStore(t *testing.T, path string, opts Options) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(path, opts)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustInsert(t *testing.T, s *SQLiteStore, content string, vec []float32, emotion float64, tags ...string) string {
	t.Helper()
	u, err := s.Insert(context.Background(), InsertParams{
		Content: content, Embedding: vec, EmotionalWeight: emotion, Tags: tags,
	})
	if err != nil {
		t.Fatalf("insert %q: %v", content, err)
	}
	return u.ID
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestInsertAndGet(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	vec := []float32{0.25, -0.5, 0.125}
	u, err := s.Insert(ctx, InsertParams{
		Content: "walked along the river", Embedding: vec, EmotionalWeight: 0.4,
		Tags: []string{"reflective", "practical"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if u.ID == "" {
		t.Error("expected non-empty ID")
	}
	if u.Importance != 0.5 {
		t.Errorf("expected initial importance 0.5, got %f", u.Importance)
	}
	if !u.CreatedAt.Equal(clock.Now()) || !u.LastAccessedAt.Equal(clock.Now()) {
		t.Errorf("expected timestamps at clock time, got %v / %v", u.CreatedAt, u.LastAccessedAt)
	}

	got, err := s.Get(ctx, u.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "walked along the river" {
		t.Errorf("content mismatch: %q", got.Content)
	}
	if !reflect.DeepEqual(got.Embedding, vec) {
		t.Errorf("embedding mismatch: %v", got.Embedding)
	}
	if !reflect.DeepEqual(got.Tags, []string{"reflective", "practical"}) {
		t.Errorf("tags mismatch: %v", got.Tags)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	id := mustInsert(t, s, "a", []float32{1, 0, 0}, 0, "creative")
	got, _ := s.Get(ctx, id)
	got.Embedding[0] = 42
	got.Tags[0] = "changed"

	again, _ := s.Get(ctx, id)
	if again.Embedding[0] != 1 || again.Tags[0] != "creative" {
		t.Errorf("store state leaked through Get: %+v", again)
	}
}

func TestInsertValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Insert(ctx, InsertParams{Content: "x", Embedding: []float32{1, 0}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}

	nan := float32(math.NaN())
	_, err = s.Insert(ctx, InsertParams{Content: "x", Embedding: []float32{nan, 0, 0}})
	if !errors.Is(err, ErrInvalidEmbedding) {
		t.Errorf("expected ErrInvalidEmbedding, got %v", err)
	}

	_, err = s.Insert(ctx, InsertParams{Content: "  ", Embedding: []float32{1, 0, 0}})
	if !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
}

func TestInsertNormalisesTagsAndEmotion(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	u, err := s.Insert(ctx, InsertParams{
		Content: "x", Embedding: []float32{1, 0, 0}, EmotionalWeight: 3,
		Tags: []string{" creative", "creative", "", "relational"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if u.EmotionalWeight != 1 {
		t.Errorf("expected emotional weight clamped to 1, got %f", u.EmotionalWeight)
	}
	if !reflect.DeepEqual(u.Tags, []string{"creative", "relational"}) {
		t.Errorf("unexpected tags: %v", u.Tags)
	}
}

func TestGetNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUniqueIDs(t *testing.T) {
	s, _ := newTestStore(t)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := mustInsert(t, s, "same instant", []float32{1, 0, 0}, 0)
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	a := mustInsert(t, s, "a", []float32{1, 0, 0}, 0, "creative")
	b := mustInsert(t, s, "b", []float32{0, 1, 0}, 0, "relational")
	mustInsert(t, s, "c", []float32{0, 0, 1}, 0, "creative")

	all, _ := s.List(ctx, ListParams{})
	if len(all) != 3 || all[0].ID != a || all[1].ID != b {
		t.Fatalf("expected insertion order, got %d units", len(all))
	}

	creative, _ := s.List(ctx, ListParams{Tags: []string{"creative"}})
	if len(creative) != 2 {
		t.Errorf("expected 2 creative units, got %d", len(creative))
	}

	limited, _ := s.List(ctx, ListParams{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("expected limit 1, got %d", len(limited))
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	path := filepath.Join(t.TempDir(), "persist.db")

	s, err := NewSQLiteStore(path, testOptions(clock))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	a := mustInsert(t, s, "a", []float32{1, 0, 0}, 0.2, "creative")
	b := mustInsert(t, s, "b", []float32{0, 1, 0}, 0.3, "relational")
	sum, err := s.Consolidate(ctx, ConsolidateParams{
		SourceIDs: []string{b, a}, Content: "a and b", Embedding: []float32{0.5, 0.5, 0},
	})
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	s.Close()

	s2 := openTestStore(t, path, testOptions(clock))
	got, err := s2.Get(ctx, sum.ID)
	if err != nil {
		t.Fatalf("get summary after reopen: %v", err)
	}
	if !reflect.DeepEqual(got.ConsolidatedFrom, []string{b, a}) {
		t.Errorf("expected sources [b a], got %v", got.ConsolidatedFrom)
	}
	archived, err := s2.Get(ctx, a)
	if err != nil {
		t.Fatalf("get archived after reopen: %v", err)
	}
	if archived.Active() || archived.ConsolidatedInto != sum.ID {
		t.Errorf("expected archived into %s, got %+v", sum.ID, archived)
	}
	if !reflect.DeepEqual(archived.Embedding, []float32{1, 0, 0}) {
		t.Errorf("embedding not restored: %v", archived.Embedding)
	}

	next := mustInsert(t, s2, "c", []float32{0, 0, 1}, 0)
	c, _ := s2.Get(ctx, next)
	if c.Seq <= got.Seq {
		t.Errorf("expected seq to keep growing, got %d after %d", c.Seq, got.Seq)
	}
}

func TestDimensionMismatchOnReopen(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	path := filepath.Join(t.TempDir(), "dim.db")

	s, err := NewSQLiteStore(path, testOptions(clock))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Close()

	opts := testOptions(clock)
	opts.Dimension = 4
	_, err = NewSQLiteStore(path, opts)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestInvalidDimension(t *testing.T) {
	opts := testOptions(&fakeClock{})
	opts.Dimension = 0
	_, err := NewSQLiteStore(filepath.Join(t.TempDir(), "x.db"), opts)
	if !errors.Is(err, config.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestVectorCodec(t *testing.T) {
	in := []float32{0, 1.5, -2.25, float32(math.SmallestNonzeroFloat32)}
	out, err := decodeVector(encodeVector(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("expected %v, got %v", in, out)
	}
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestOpenRejectsCorruptRows(t *testing.T) {
	tests := []struct {
		name   string
		update string
	}{
		{"created_at", `UPDATE units SET created_at = 'yesterday-ish'`},
		{"last_accessed_at", `UPDATE units SET last_accessed_at = ''`},
		{"decayed_at", `UPDATE units SET decayed_at = '2025-13-40'`},
		{"archived_at", `UPDATE units SET archived_at = 'soon'`},
		{"tags", `UPDATE units SET tags = '["creative"'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clock := newTestStore(t)
			mustInsert(t, s, "will be damaged", []float32{1, 0, 0}, 0, "creative")
			path := s.Path()
			s.Close()

			db, err := sql.Open("sqlite", path)
			if err != nil {
				t.Fatalf("open raw db: %v", err)
			}
			if _, err := db.Exec(tt.update); err != nil {
				t.Fatalf("corrupt row: %v", err)
			}
			db.Close()

			reopened, err := NewSQLiteStore(path, testOptions(clock))
			if err == nil {
				reopened.Close()
				t.Fatalf("expected open to fail on corrupt %s", tt.name)
			}
		})
	}
}
