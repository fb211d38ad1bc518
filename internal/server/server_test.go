package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/recall/internal/config"
	"github.com/rcliao/recall/internal/dispatch"
	"github.com/rcliao/recall/internal/echo"
	"github.com/rcliao/recall/internal/embedding"
	"github.com/rcliao/recall/internal/metrics"
	"github.com/rcliao/recall/internal/model"
	"github.com/rcliao/recall/internal/orchestrator"
	"github.com/rcliao/recall/internal/store"
)

const dims = 32

func setupRouter(t *testing.T) chi.Router {
	t.Helper()

	cfg := config.DefaultConfig()
	opts := store.OptionsFromConfig(cfg)
	opts.Dimension = dims
	m := metrics.NewManager(true)
	opts.Metrics = m
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	emb := embedding.NewHashEmbedder(dims)
	orch, err := orchestrator.New(orchestrator.Deps{
		Store:    s,
		Embedder: emb,
		Filter:   echo.Default(),
		Rules:    dispatch.Default(),
		Logger:   zerolog.Nop(),
		Metrics:  m,
	})
	require.NoError(t, err)

	h := NewHandler(s, emb, orch, zerolog.Nop())
	return NewRouter(h, m, "/metrics", zerolog.Nop())
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func insertUnit(t *testing.T, r http.Handler, content string, tags ...string) model.Unit {
	t.Helper()
	body, _ := json.Marshal(map[string]interface{}{"content": content, "tags": tags, "emotional_weight": 0.3})
	w := do(t, r, http.MethodPost, "/api/v1/units", string(body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var u model.Unit
	decodeBody(t, w, &u)
	return u
}

func TestInsertAndGetUnit(t *testing.T) {
	r := setupRouter(t)

	u := insertUnit(t, r, "dinner with my sister", "relational")
	assert.NotEmpty(t, u.ID)
	assert.Len(t, u.Embedding, dims)

	w := do(t, r, http.MethodGet, "/api/v1/units/"+u.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got model.Unit
	decodeBody(t, w, &got)
	assert.Equal(t, "dinner with my sister", got.Content)
	assert.Equal(t, []string{"relational"}, got.Tags)

	w = do(t, r, http.MethodGet, "/api/v1/units?tag=relational", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.Unit
	decodeBody(t, w, &list)
	assert.Len(t, list, 1)
}

func TestInsertErrors(t *testing.T) {
	r := setupRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/units", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/units", `{"content":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/units", `{"content":"x","embedding":[1,2,3]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var e ErrorResponse
	decodeBody(t, w, &e)
	assert.Equal(t, ErrCodeUnprocessable, e.Error.Code)
	assert.NotEmpty(t, e.Error.RequestID)
}

func TestGetUnitNotFound(t *testing.T) {
	r := setupRouter(t)
	w := do(t, r, http.MethodGet, "/api/v1/units/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/units/nope/provenance", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRetrieve(t *testing.T) {
	r := setupRouter(t)
	a := insertUnit(t, r, "sailing on the lake at dawn", "creative")
	insertUnit(t, r, "quarterly tax paperwork", "practical")

	w := do(t, r, http.MethodPost, "/api/v1/retrieve", `{"query":"sailing on the lake","k":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res []model.Scored
	decodeBody(t, w, &res)
	require.Len(t, res, 1)
	assert.Equal(t, a.ID, res[0].Unit.ID)
	assert.InDelta(t, 0.6, res[0].Unit.Importance, 1e-9)

	w = do(t, r, http.MethodPost, "/api/v1/retrieve", `{"query":"sailing on the lake","k":1,"preview":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &res)
	assert.InDelta(t, 0.6, res[0].Unit.Importance, 1e-9, "preview does not reinforce")

	w = do(t, r, http.MethodPost, "/api/v1/retrieve", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConsolidateAndProvenance(t *testing.T) {
	r := setupRouter(t)
	a := insertUnit(t, r, "hiked the ridge", "practical")
	b := insertUnit(t, r, "camped by the lake", "creative")

	body := `{"source_ids":["` + a.ID + `","` + b.ID + `"],"content":"a weekend outdoors"}`
	w := do(t, r, http.MethodPost, "/api/v1/consolidate", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sum model.Unit
	decodeBody(t, w, &sum)
	assert.Equal(t, []string{a.ID, b.ID}, sum.ConsolidatedFrom)

	w = do(t, r, http.MethodGet, "/api/v1/units/"+a.ID+"/provenance", "")
	require.Equal(t, http.StatusOK, w.Code)
	var p store.Provenance
	decodeBody(t, w, &p)
	require.NotNil(t, p.ConsolidatedInto)
	assert.Equal(t, sum.ID, p.ConsolidatedInto.ID)

	w = do(t, r, http.MethodPost, "/api/v1/consolidate", body)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/consolidate", `{"source_ids":["`+sum.ID+`"],"content":"alone"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecay(t *testing.T) {
	r := setupRouter(t)
	insertUnit(t, r, "something old")

	w := do(t, r, http.MethodPost, "/api/v1/decay", `{"now":"2999-01-01T00:00:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res store.SweepResult
	decodeBody(t, w, &res)
	assert.Equal(t, 1, res.Scanned)
	assert.Equal(t, 1, res.Floored)

	w = do(t, r, http.MethodPost, "/api/v1/decay", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleEndpoint(t *testing.T) {
	r := setupRouter(t)
	insertUnit(t, r, "help me write a poem about the sea", "creative")

	w := do(t, r, http.MethodPost, "/api/v1/handle", `{"session_id":"abc","query":"help me write a poem about the sea"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp orchestrator.Response
	decodeBody(t, w, &resp)
	assert.Equal(t, "abc", resp.SessionID)
	assert.Equal(t, "creative_expression", resp.StrategyID)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, echo.Verbatim, resp.Items[0].Echo.Outcome)
	assert.True(t, resp.Items[0].Substituted)

	w = do(t, r, http.MethodPost, "/api/v1/handle", `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDispatchEndpoint(t *testing.T) {
	r := setupRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/dispatch", `{"query":"based on my career and values"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var d dispatch.Decision
	decodeBody(t, w, &d)
	assert.Equal(t, "values_reflection", d.StrategyID)
	assert.Equal(t, "career_values", d.RuleID)
}

func TestHealthAndMetrics(t *testing.T) {
	r := setupRouter(t)

	w := do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	insertUnit(t, r, "counted")
	w = do(t, r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "recall_store_inserts_total 1"))
}
