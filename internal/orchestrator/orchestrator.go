// Package orchestrator answers queries by composing the memory store, the
// echo filter and the dispatcher. Every call carries its own request
// context; nothing is kept between calls.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcliao/recall/internal/dispatch"
	"github.com/rcliao/recall/internal/echo"
	"github.com/rcliao/recall/internal/embedding"
	"github.com/rcliao/recall/internal/logging"
	"github.com/rcliao/recall/internal/metrics"
	"github.com/rcliao/recall/internal/model"
	"github.com/rcliao/recall/internal/store"
)

var (
	ErrEmptyQuery  = errors.New("orchestrator: query is empty")
	ErrNoGenerator = errors.New("orchestrator: no generator configured")
)

// Retriever is the part of the store the orchestrator reads from.
type Retriever interface {
	Retrieve(ctx context.Context, p store.RetrieveParams) ([]model.Scored, error)
	Rank(ctx context.Context, p store.RetrieveParams) ([]model.Scored, error)
}

// Generator turns a strategy and its context into text. Implementations
// live outside this module.
type Generator interface {
	Generate(ctx context.Context, strategyID string, items []ContextItem) (string, error)
}

// Request is one query with its per-call context.
type Request struct {
	SessionID     string   `json:"session_id,omitempty"`
	Query         string   `json:"query"`
	K             int      `json:"k,omitempty"`
	MinImportance float64  `json:"min_importance,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Emphasis      []string `json:"emphasis,omitempty"`

	// Preview ranks without reinforcing the returned units.
	Preview bool `json:"preview,omitempty"`
}

// ContextItem is one retrieved unit after echo filtering.
type ContextItem struct {
	UnitID      string          `json:"unit_id"`
	Content     string          `json:"content"`
	Score       float64         `json:"score"`
	Tags        []string        `json:"tags,omitempty"`
	Echo        echo.Assessment `json:"echo"`
	Substituted bool            `json:"substituted"`
}

// Response is the strategy chosen for a query and its filtered context in
// rank order.
type Response struct {
	SessionID  string        `json:"session_id,omitempty"`
	StrategyID string        `json:"strategy_id"`
	RuleID     string        `json:"rule_id,omitempty"`
	Matched    []string      `json:"matched,omitempty"`
	Items      []ContextItem `json:"items"`
	Text       string        `json:"text,omitempty"`
}

// Deps are the collaborators of an Orchestrator. Generator, Logger and
// Metrics are optional.
type Deps struct {
	Store     Retriever
	Embedder  embedding.Embedder
	Filter    *echo.Filter
	Rules     *dispatch.RuleSet
	Generator Generator
	Logger    zerolog.Logger
	Metrics   *metrics.Manager
}

// Orchestrator wires the components together.
type Orchestrator struct {
	store    Retriever
	embedder embedding.Embedder
	filter   *echo.Filter
	rules    *dispatch.RuleSet
	gen      Generator
	log      zerolog.Logger
	metrics  *metrics.Manager
}

// New creates an orchestrator.
func New(d Deps) (*Orchestrator, error) {
	switch {
	case d.Store == nil:
		return nil, fmt.Errorf("orchestrator: store is required")
	case d.Embedder == nil:
		return nil, fmt.Errorf("orchestrator: embedder is required")
	case d.Filter == nil:
		return nil, fmt.Errorf("orchestrator: echo filter is required")
	case d.Rules == nil:
		return nil, fmt.Errorf("orchestrator: rule set is required")
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NoOpManager()
	}
	return &Orchestrator{
		store:    d.Store,
		embedder: d.Embedder,
		filter:   d.Filter,
		rules:    d.Rules,
		gen:      d.Generator,
		log:      logging.Component(d.Logger, "orchestrator"),
		metrics:  d.Metrics,
	}, nil
}

// Handle retrieves context for the query, filters echoes out of it and
// picks a strategy. Retrieval reinforces the returned units unless the
// request is a preview. Failures are returned, never papered over.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	defer func() {
		o.metrics.ObserveHandle(time.Since(start), err)
	}()

	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	log := o.log.With().Str("session", req.SessionID).Logger()

	vec, err := o.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	params := store.RetrieveParams{
		Embedding:     vec,
		K:             req.K,
		MinImportance: req.MinImportance,
		Tags:          req.Tags,
		Emphasis:      req.Emphasis,
	}
	var scored []model.Scored
	if req.Preview {
		scored, err = o.store.Rank(ctx, params)
	} else {
		scored, err = o.store.Retrieve(ctx, params)
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	log.Debug().Int("retrieved", len(scored)).Bool("preview", req.Preview).Msg("context retrieved")

	items := make([]ContextItem, 0, len(scored))
	for _, s := range scored {
		r := o.filter.Apply(req.Query, s.Unit.Content)
		o.metrics.RecordEcho(r.Outcome.String())
		if r.Substituted {
			log.Debug().Str("unit", s.Unit.ID).Stringer("echo", r.Outcome).Float64("ratio", r.Ratio).Msg("echo substituted")
		}
		items = append(items, ContextItem{
			UnitID:      s.Unit.ID,
			Content:     r.Text,
			Score:       s.Score,
			Tags:        s.Unit.Tags,
			Echo:        r.Assessment,
			Substituted: r.Substituted,
		})
	}

	d := o.rules.Dispatch(req.Query)
	o.metrics.RecordDispatch(d.StrategyID, d.Fallback())
	log.Info().Str("strategy", d.StrategyID).Str("rule", d.RuleID).Int("items", len(items)).Msg("query handled")

	return &Response{
		SessionID:  req.SessionID,
		StrategyID: d.StrategyID,
		RuleID:     d.RuleID,
		Matched:    d.Matched,
		Items:      items,
	}, nil
}

// Respond handles the query and hands the result to the generator.
func (o *Orchestrator) Respond(ctx context.Context, req Request) (*Response, error) {
	if o.gen == nil {
		return nil, ErrNoGenerator
	}
	resp, err := o.Handle(ctx, req)
	if err != nil {
		return nil, err
	}
	text, err := o.gen.Generate(ctx, resp.StrategyID, resp.Items)
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", resp.StrategyID, err)
	}
	resp.Text = text
	return resp, nil
}

// Dispatch routes a query without touching the store.
func (o *Orchestrator) Dispatch(query string) dispatch.Decision {
	return o.rules.Dispatch(query)
}

// Rules returns the active rule set.
func (o *Orchestrator) Rules() *dispatch.RuleSet {
	return o.rules
}
