package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/rcliao/recall/internal/embedding"
	"github.com/rcliao/recall/internal/logging"
	"github.com/rcliao/recall/internal/orchestrator"
	"github.com/rcliao/recall/internal/store"
)

// Handler serves the API endpoints.
type Handler struct {
	store    store.Store
	embedder embedding.Embedder
	orch     *orchestrator.Orchestrator
	log      zerolog.Logger
	now      func() time.Time
}

// NewHandler creates a handler.
func NewHandler(s store.Store, emb embedding.Embedder, orch *orchestrator.Orchestrator, log zerolog.Logger) *Handler {
	return &Handler{
		store:    s,
		embedder: emb,
		orch:     orch,
		log:      logging.Component(log, "api"),
		now:      time.Now,
	}
}

// --- Request types ---

type insertRequest struct {
	Content         string    `json:"content"`
	Embedding       []float32 `json:"embedding,omitempty"`
	EmotionalWeight float64   `json:"emotional_weight"`
	Tags            []string  `json:"tags,omitempty"`
}

type retrieveRequest struct {
	Query         string    `json:"query,omitempty"`
	Embedding     []float32 `json:"embedding,omitempty"`
	K             int       `json:"k,omitempty"`
	MinImportance float64   `json:"min_importance,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Emphasis      []string  `json:"emphasis,omitempty"`
	Preview       bool      `json:"preview,omitempty"`
}

type consolidateRequest struct {
	SourceIDs []string  `json:"source_ids"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
}

type decayRequest struct {
	Now *time.Time `json:"now,omitempty"`
}

type dispatchRequest struct {
	Query string `json:"query"`
}

// InsertUnit handles POST /api/v1/units
func (h *Handler) InsertUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req insertRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, "content is required", middleware.GetReqID(ctx))
		return
	}

	vec, ok := h.vector(w, r, req.Embedding, req.Content)
	if !ok {
		return
	}
	u, err := h.store.Insert(ctx, store.InsertParams{
		Content:         req.Content,
		Embedding:       vec,
		EmotionalWeight: req.EmotionalWeight,
		Tags:            req.Tags,
	})
	if err != nil {
		h.fail(w, r, "insert unit", err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// GetUnit handles GET /api/v1/units/{id}
func (h *Handler) GetUnit(w http.ResponseWriter, r *http.Request) {
	u, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "get unit", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// GetProvenance handles GET /api/v1/units/{id}/provenance
func (h *Handler) GetProvenance(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Provenance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "get provenance", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListUnits handles GET /api/v1/units
func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := store.ListParams{
		Tags:            q["tag"],
		IncludeArchived: q.Get("archived") == "true",
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Limit = n
		}
	}

	units, err := h.store.List(r.Context(), p)
	if err != nil {
		h.fail(w, r, "list units", err)
		return
	}
	writeJSON(w, http.StatusOK, units)
}

// Retrieve handles POST /api/v1/retrieve
func (h *Handler) Retrieve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req retrieveRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" && len(req.Embedding) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, "query or embedding is required", middleware.GetReqID(ctx))
		return
	}

	vec, ok := h.vector(w, r, req.Embedding, req.Query)
	if !ok {
		return
	}
	params := store.RetrieveParams{
		Embedding:     vec,
		K:             req.K,
		MinImportance: req.MinImportance,
		Tags:          req.Tags,
		Emphasis:      req.Emphasis,
	}

	retrieve := h.store.Retrieve
	if req.Preview {
		retrieve = h.store.Rank
	}
	results, err := retrieve(ctx, params)
	if err != nil {
		h.fail(w, r, "retrieve", err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// Consolidate handles POST /api/v1/consolidate
func (h *Handler) Consolidate(w http.ResponseWriter, r *http.Request) {
	var req consolidateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, "content is required", middleware.GetReqID(r.Context()))
		return
	}

	vec, ok := h.vector(w, r, req.Embedding, req.Content)
	if !ok {
		return
	}
	u, err := h.store.Consolidate(r.Context(), store.ConsolidateParams{
		SourceIDs: req.SourceIDs,
		Content:   req.Content,
		Embedding: vec,
	})
	if err != nil {
		h.fail(w, r, "consolidate", err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// Decay handles POST /api/v1/decay
func (h *Handler) Decay(w http.ResponseWriter, r *http.Request) {
	var req decayRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	now := h.now()
	if req.Now != nil {
		now = *req.Now
	}

	res, err := h.store.DecaySweep(r.Context(), now)
	if err != nil {
		h.fail(w, r, "decay sweep", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Handle handles POST /api/v1/handle
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.orch.Handle(r.Context(), req)
	if err != nil {
		h.fail(w, r, "handle", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Dispatch handles POST /api/v1/dispatch
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.orch.Dispatch(req.Query))
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body", middleware.GetReqID(r.Context()))
		return false
	}
	return true
}

// vector returns the given embedding, or embeds text when none was sent.
func (h *Handler) vector(w http.ResponseWriter, r *http.Request, given []float32, text string) ([]float32, bool) {
	if len(given) > 0 {
		return given, true
	}
	vec, err := h.embedder.Embed(r.Context(), text)
	if err != nil {
		h.fail(w, r, "embed", err)
		return nil, false
	}
	return vec, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusFromError(err)
	reqID := middleware.GetReqID(r.Context())
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("op", op).Str("request_id", reqID).Msg("request failed")
	} else {
		h.log.Debug().Err(err).Str("op", op).Str("request_id", reqID).Msg("request rejected")
	}
	writeError(w, status, code, op+": "+err.Error(), reqID)
}
