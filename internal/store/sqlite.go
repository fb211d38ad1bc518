package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/rcliao/recall/internal/config"
	"github.com/rcliao/recall/internal/embedding"
	"github.com/rcliao/recall/internal/logging"
	"github.com/rcliao/recall/internal/metrics"
	"github.com/rcliao/recall/internal/model"
)

// Options configures a SQLiteStore.
type Options struct {
	Dimension int
	Ranking   config.RankingConfig
	Decay     config.DecayConfig

	// Now is the clock. Defaults to time.Now.
	Now     func() time.Time
	Logger  zerolog.Logger
	Metrics *metrics.Manager
}

// OptionsFromConfig builds store options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Dimension: cfg.Store.Dimension,
		Ranking:   cfg.Ranking,
		Decay:     cfg.Decay,
	}
}

// SQLiteStore implements Store using SQLite for durability and an in-memory
// index of every unit for ranking.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	opts    Options
	log     zerolog.Logger
	metrics *metrics.Manager
	entropy *ulid.MonotonicEntropy

	// mu guards the index and serialises every write. Ranking-only reads
	// share it; sweeps and consolidation exclude them.
	mu    sync.RWMutex
	units map[string]*model.Unit
	order []*model.Unit // by seq
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string, opts Options) (*SQLiteStore, error) {
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", config.ErrConfiguration, opts.Dimension)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoOpManager()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		path:    dbPath,
		opts:    opts,
		log:     logging.Component(opts.Logger, "store"),
		metrics: opts.Metrics,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		units:   make(map[string]*model.Unit),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.checkDimension(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.load(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("load units: %w", err)
	}

	s.metrics.SetActiveUnits(s.activeCount())
	s.log.Debug().Str("path", dbPath).Int("units", len(s.order)).Int("dimension", opts.Dimension).Msg("store opened")

	return s, nil
}

func (s *SQLiteStore) newID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

func (s *SQLiteStore) now() time.Time {
	return s.opts.Now().UTC()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS units (
		seq               INTEGER PRIMARY KEY AUTOINCREMENT,
		id                TEXT NOT NULL UNIQUE,
		content           TEXT NOT NULL,
		embedding         BLOB NOT NULL,
		importance        REAL NOT NULL,
		emotional_weight  REAL NOT NULL,
		tags              TEXT,
		created_at        TEXT NOT NULL,
		last_accessed_at  TEXT NOT NULL,
		decayed_at        TEXT,
		archived_at       TEXT,
		consolidated_into TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_units_archived ON units(archived_at);

	CREATE TABLE IF NOT EXISTS unit_sources (
		unit_id   TEXT NOT NULL REFERENCES units(id),
		source_id TEXT NOT NULL REFERENCES units(id),
		position  INTEGER NOT NULL,
		PRIMARY KEY (unit_id, position)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unit_sources_source ON unit_sources(source_id);

	CREATE TABLE IF NOT EXISTS store_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// checkDimension records the dimension on first open and rejects a
// different one afterwards.
func (s *SQLiteStore) checkDimension() error {
	var stored string
	err := s.db.QueryRow(`SELECT value FROM store_meta WHERE key = 'dimension'`).Scan(&stored)
	if err == sql.ErrNoRows {
		_, err = s.db.Exec(`INSERT INTO store_meta (key, value) VALUES ('dimension', ?)`, strconv.Itoa(s.opts.Dimension))
		return err
	}
	if err != nil {
		return fmt.Errorf("read dimension: %w", err)
	}
	dim, _ := strconv.Atoi(stored)
	if dim != s.opts.Dimension {
		return fmt.Errorf("%w: store holds %d, configured %d", ErrDimensionMismatch, dim, s.opts.Dimension)
	}
	return nil
}

const unitColumns = `seq, id, content, embedding, importance, emotional_weight, tags,
	created_at, last_accessed_at, decayed_at, archived_at, consolidated_into`

func (s *SQLiteStore) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+unitColumns+` FROM units ORDER BY seq`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return err
		}
		s.add(&u)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	src, err := s.db.QueryContext(ctx, `SELECT unit_id, source_id FROM unit_sources ORDER BY unit_id, position`)
	if err != nil {
		return err
	}
	defer src.Close()

	for src.Next() {
		var unitID, sourceID string
		if err := src.Scan(&unitID, &sourceID); err != nil {
			return err
		}
		if u, ok := s.units[unitID]; ok {
			u.ConsolidatedFrom = append(u.ConsolidatedFrom, sourceID)
		}
	}
	return src.Err()
}

func (s *SQLiteStore) add(u *model.Unit) {
	s.units[u.ID] = u
	s.order = append(s.order, u)
}

func (s *SQLiteStore) activeCount() int {
	n := 0
	for _, u := range s.order {
		if u.Active() {
			n++
		}
	}
	return n
}

// checkEmbedding validates a vector against the configured dimension.
func (s *SQLiteStore) checkEmbedding(v []float32) error {
	if len(v) != s.opts.Dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, s.opts.Dimension, len(v))
	}
	if !embedding.Finite(v) {
		return ErrInvalidEmbedding
	}
	return nil
}

// Insert stores a new memory unit.
func (s *SQLiteStore) Insert(ctx context.Context, p InsertParams) (*model.Unit, error) {
	if strings.TrimSpace(p.Content) == "" {
		return nil, ErrEmptyContent
	}
	if err := s.checkEmbedding(p.Embedding); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	u := &model.Unit{
		ID:              s.newID(now),
		Content:         p.Content,
		Embedding:       append([]float32(nil), p.Embedding...),
		Importance:      s.opts.Ranking.InitialImportance,
		EmotionalWeight: clamp01(p.EmotionalWeight),
		Tags:            dedupeTags(p.Tags),
		CreatedAt:       now,
		LastAccessedAt:  now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	seq, err := insertUnit(ctx, tx, u)
	if err != nil {
		return nil, fmt.Errorf("insert unit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	u.Seq = seq
	s.add(u)
	s.metrics.RecordInsert()
	s.metrics.SetActiveUnits(s.activeCount())
	s.log.Debug().Str("id", u.ID).Strs("tags", u.Tags).Msg("unit inserted")

	out := u.Clone()
	return &out, nil
}

// Get returns a unit by id, including archived units.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.units[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := u.Clone()
	return &out, nil
}

// List returns units in insertion order.
func (s *SQLiteStore) List(ctx context.Context, p ListParams) ([]model.Unit, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var units []model.Unit
	for _, u := range s.order {
		if len(units) >= limit {
			break
		}
		if !p.IncludeArchived && !u.Active() {
			continue
		}
		if len(p.Tags) > 0 && !u.HasAnyTag(p.Tags) {
			continue
		}
		units = append(units, u.Clone())
	}
	return units, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// insertUnit writes a unit row and its source list, returning the new seq.
func insertUnit(ctx context.Context, tx execer, u *model.Unit) (int64, error) {
	var tagsJSON *string
	if len(u.Tags) > 0 {
		b, _ := json.Marshal(u.Tags)
		t := string(b)
		tagsJSON = &t
	}

	var into *string
	if u.ConsolidatedInto != "" {
		into = &u.ConsolidatedInto
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO units (id, content, embedding, importance, emotional_weight, tags,
		                    created_at, last_accessed_at, decayed_at, archived_at, consolidated_into)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Content, encodeVector(u.Embedding), u.Importance, u.EmotionalWeight, tagsJSON,
		formatTime(u.CreatedAt), formatTime(u.LastAccessedAt), formatTimePtr(u.DecayedAt),
		formatTimePtr(u.ArchivedAt), into)
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

// insertSources writes the ordered consolidation sources of a summary unit.
func insertSources(ctx context.Context, tx execer, unitID string, sources []string) error {
	for i, src := range sources {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO unit_sources (unit_id, source_id, position) VALUES (?, ?, ?)`,
			unitID, src, i); err != nil {
			return fmt.Errorf("insert source %s: %w", src, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUnit(row scanner) (model.Unit, error) {
	var u model.Unit
	var blob []byte
	var tagsJSON, decayedAt, archivedAt, into sql.NullString
	var createdAt, lastAccessed string

	err := row.Scan(
		&u.Seq, &u.ID, &u.Content, &blob, &u.Importance, &u.EmotionalWeight, &tagsJSON,
		&createdAt, &lastAccessed, &decayedAt, &archivedAt, &into,
	)
	if err != nil {
		return u, err
	}

	u.Embedding, err = decodeVector(blob)
	if err != nil {
		return u, fmt.Errorf("unit %s: %w", u.ID, err)
	}
	if u.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return u, fmt.Errorf("unit %s: created_at: %w", u.ID, err)
	}
	if u.LastAccessedAt, err = time.Parse(time.RFC3339Nano, lastAccessed); err != nil {
		return u, fmt.Errorf("unit %s: last_accessed_at: %w", u.ID, err)
	}
	if u.DecayedAt, err = parseTimePtr(decayedAt); err != nil {
		return u, fmt.Errorf("unit %s: decayed_at: %w", u.ID, err)
	}
	if u.ArchivedAt, err = parseTimePtr(archivedAt); err != nil {
		return u, fmt.Errorf("unit %s: archived_at: %w", u.ID, err)
	}
	if into.Valid {
		u.ConsolidatedInto = into.String
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &u.Tags); err != nil {
			return u, fmt.Errorf("unit %s: tags: %w", u.ID, err)
		}
	}

	return u, nil
}

func parseTimePtr(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// encodeVector packs a vector as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("corrupt embedding blob of %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}

// dedupeTags trims tags and drops empties and repeats, keeping first-seen order.
func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
