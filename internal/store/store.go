// Package store provides the memory unit store and its SQLite implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rcliao/recall/internal/model"
)

// Sentinel errors. Callers match them with errors.Is; returned errors wrap
// them with the offending id or sizes.
var (
	ErrDimensionMismatch   = errors.New("store: embedding dimension mismatch")
	ErrInvalidEmbedding    = errors.New("store: embedding contains non-finite values")
	ErrEmptyContent        = errors.New("store: content is empty")
	ErrNotFound            = errors.New("store: unit not found")
	ErrAlreadyConsolidated = errors.New("store: unit already consolidated")
	ErrTooFewSources       = errors.New("store: consolidation needs at least two distinct units")
	ErrBrokenProvenance    = errors.New("store: consolidation provenance is inconsistent")
)

// InsertParams holds parameters for storing a memory unit.
type InsertParams struct {
	Content         string
	Embedding       []float32
	EmotionalWeight float64
	Tags            []string
}

// RetrieveParams holds parameters for ranking and retrieving units.
type RetrieveParams struct {
	Embedding     []float32
	K             int     // 0 means the configured default
	MinImportance float64 // units below this are not candidates
	Tags          []string
	Emphasis      []string // returned units carrying one of these tags get emotional weight amplified
}

// ConsolidateParams holds parameters for folding units into a summary.
type ConsolidateParams struct {
	SourceIDs []string
	Content   string
	Embedding []float32
}

// ListParams holds parameters for listing units.
type ListParams struct {
	Tags            []string
	IncludeArchived bool
	Limit           int
}

// SweepResult reports what a decay sweep changed.
type SweepResult struct {
	At      time.Time `json:"at"`
	Scanned int       `json:"scanned"`
	Decayed int       `json:"decayed"`
	Floored int       `json:"floored"`
}

// Provenance is the consolidation lineage of a unit.
type Provenance struct {
	Unit             model.Unit   `json:"unit"`
	Sources          []model.Unit `json:"sources,omitempty"`
	ConsolidatedInto *model.Unit  `json:"consolidated_into,omitempty"`
}

// Store defines the memory store interface.
type Store interface {
	// Insert stores a new unit and returns it.
	Insert(ctx context.Context, p InsertParams) (*model.Unit, error)

	// Retrieve ranks active units against the query embedding, returns at
	// most K of them and reinforces every returned unit.
	Retrieve(ctx context.Context, p RetrieveParams) ([]model.Scored, error)

	// Rank is Retrieve without the reinforcement.
	Rank(ctx context.Context, p RetrieveParams) ([]model.Scored, error)

	// DecaySweep lowers importance by elapsed time since last access.
	DecaySweep(ctx context.Context, now time.Time) (*SweepResult, error)

	// Consolidate creates a summary unit and archives its sources atomically.
	Consolidate(ctx context.Context, p ConsolidateParams) (*model.Unit, error)

	// Get returns a unit by id, archived or not.
	Get(ctx context.Context, id string) (*model.Unit, error)

	// Provenance returns a unit with its sources and summary.
	Provenance(ctx context.Context, id string) (*Provenance, error)

	// List lists units in insertion order.
	List(ctx context.Context, p ListParams) ([]model.Unit, error)

	// Close closes the store.
	Close() error
}
