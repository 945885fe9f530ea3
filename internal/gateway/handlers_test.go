package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookbench/hookbench/internal/broadcast"
	"github.com/hookbench/hookbench/internal/classifier"
	"github.com/hookbench/hookbench/internal/config"
	"github.com/hookbench/hookbench/internal/domain"
	"github.com/hookbench/hookbench/internal/engine"
	"github.com/hookbench/hookbench/internal/executor"
	"github.com/hookbench/hookbench/internal/ingress"
	"github.com/hookbench/hookbench/internal/logging"
	"github.com/hookbench/hookbench/internal/planner"
	"github.com/hookbench/hookbench/internal/store"
)

type gatewayHarness struct {
	server *Server
	mux    *http.ServeMux
	runner *engine.Runner
	exec   *executor.MockExecutor
}

func newGatewayHarness(t *testing.T, mutate func(*config.Config)) *gatewayHarness {
	t.Helper()
	t.Setenv("HOOKBENCH_GATEWAY_TOKEN", "")

	cfg := config.Defaults()
	cfg.Metrics.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}

	log := logging.New(nil, "silent", "")
	events := store.NewMemoryEventStore()
	runs := store.NewMemoryRunStore()
	sessions := store.NewSessionManager(
		store.NewMemorySessionStore(), events, runs, time.Hour, log)
	hub := broadcast.NewHub(events, nil, log)
	exec := executor.NewMockExecutor()
	runner := engine.NewRunner(engine.Config{
		Events:      events,
		Runs:        runs,
		Executor:    exec,
		Notify:      hub,
		Log:         log,
		StepTimeout: 5 * time.Second,
		RunTimeout:  10 * time.Second,
		RetryDelay:  time.Minute,
	})

	srv := New(cfg, Deps{
		Sessions:   sessions,
		Events:     events,
		Runs:       runs,
		Ingestor:   ingress.New(sessions, events, hub, nil, log),
		Hub:        hub,
		Runner:     runner,
		Planner:    planner.New(nil, time.Second, log),
		Classifier: classifier.New(nil, time.Second, log),
	}, log)

	mux := http.NewServeMux()
	srv.registerHTTPRoutes(mux)

	return &gatewayHarness{server: srv, mux: mux, runner: runner, exec: exec}
}

func (h *gatewayHarness) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	for k, vs := range header {
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	h.mux.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func (h *gatewayHarness) createSession(t *testing.T) SessionResponse {
	t.Helper()
	w := h.do(t, http.MethodPost, "/sessions", nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	return decode[SessionResponse](t, w)
}

// --- Health and routing tests ---

func TestHandleHealth(t *testing.T) {
	h := newGatewayHarness(t, nil)

	w := h.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, w).Status)
}

func TestUnknownRoute(t *testing.T) {
	h := newGatewayHarness(t, nil)

	w := h.do(t, http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- Session endpoint tests ---

func TestSessionCreate_ReturnsSecretAndHookURL(t *testing.T) {
	h := newGatewayHarness(t, nil)

	sess := h.createSession(t)
	assert.NotEmpty(t, sess.Token)
	assert.NotEmpty(t, sess.Secret)
	assert.Contains(t, sess.HookURL, "/hooks/"+sess.Token)
	assert.True(t, sess.ExpiresAt.After(time.Now()))
}

func TestSessionCreate_PublicURLUsedInHookURL(t *testing.T) {
	h := newGatewayHarness(t, func(cfg *config.Config) {
		cfg.Gateway.PublicURL = "https://hooks.example.com/"
	})

	sess := h.createSession(t)
	assert.Equal(t, "https://hooks.example.com/hooks/"+sess.Token, sess.HookURL)
}

func TestSessionList_OmitsSecrets(t *testing.T) {
	h := newGatewayHarness(t, nil)
	h.createSession(t)
	h.createSession(t)

	w := h.do(t, http.MethodGet, "/sessions", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	out := decode[map[string][]SessionResponse](t, w)
	require.Len(t, out["sessions"], 2)
	for _, s := range out["sessions"] {
		assert.Empty(t, s.Secret)
		assert.Empty(t, s.HookURL)
	}
}

func TestSessionDelete_CascadesToHooks(t *testing.T) {
	h := newGatewayHarness(t, nil)
	sess := h.createSession(t)

	w := h.do(t, http.MethodDelete, "/sessions/"+sess.Token, nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(t, http.MethodPost, "/hooks/"+sess.Token, map[string]any{"x": 1}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestControlSurface_RequiresTokenWhenConfigured(t *testing.T) {
	h := newGatewayHarness(t, func(cfg *config.Config) {
		cfg.Gateway.Auth.Token = "control-secret"
	})

	w := h.do(t, http.MethodPost, "/sessions", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer control-secret")
	w = h.do(t, http.MethodPost, "/sessions", nil, hdr)
	assert.Equal(t, http.StatusCreated, w.Code)
}

// --- Delivery endpoint tests ---

func TestHandleHook_RecordsDelivery(t *testing.T) {
	h := newGatewayHarness(t, nil)
	sess := h.createSession(t)

	w := h.do(t, http.MethodPost, "/hooks/"+sess.Token, map[string]any{"action": "opened"}, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	out := decode[map[string]any](t, w)
	assert.NotEmpty(t, out["eventId"])
	assert.Equal(t, float64(1), out["seq"])
	assert.Nil(t, out["duplicate"])
}

func TestHandleHook_DuplicateMarked(t *testing.T) {
	h := newGatewayHarness(t, nil)
	sess := h.createSession(t)
	body := map[string]any{"action": "opened"}

	first := decode[map[string]any](t, h.do(t, http.MethodPost, "/hooks/"+sess.Token, body, nil))
	w := h.do(t, http.MethodPost, "/hooks/"+sess.Token, body, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	out := decode[map[string]any](t, w)
	assert.Equal(t, true, out["duplicate"])
	assert.Equal(t, first["eventId"], out["duplicateOf"])
	// Retries answer with the original event's id, not the marker's.
	assert.Equal(t, first["eventId"], out["eventId"])
	assert.Equal(t, float64(2), out["seq"])
}

func TestHandleHook_UnknownSession(t *testing.T) {
	h := newGatewayHarness(t, nil)

	w := h.do(t, http.MethodPost, "/hooks/nope", map[string]any{}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- Event listing tests ---

func TestHandleEventList_CursorPagination(t *testing.T) {
	h := newGatewayHarness(t, nil)
	sess := h.createSession(t)
	h.do(t, http.MethodPost, "/hooks/"+sess.Token, map[string]any{"n": 1}, nil)
	h.do(t, http.MethodPost, "/hooks/"+sess.Token, map[string]any{"n": 2}, nil)

	w := h.do(t, http.MethodGet, "/sessions/"+sess.Token+"/events", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	type listResponse struct {
		Events    []domain.Event `json:"events"`
		NextSince int64          `json:"nextSince"`
	}
	out := decode[listResponse](t, w)
	require.Len(t, out.Events, 2)
	assert.Equal(t, int64(2), out.NextSince)

	w = h.do(t, http.MethodGet, "/sessions/"+sess.Token+"/events?since=1", nil, nil)
	out = decode[listResponse](t, w)
	require.Len(t, out.Events, 1)
	assert.Equal(t, int64(2), out.Events[0].Seq)
}

// --- Run endpoint tests ---

type launchResponse struct {
	Run  domain.Run  `json:"run"`
	Plan domain.Plan `json:"plan"`
}

func TestHandleRunLaunch_ExplicitPlan(t *testing.T) {
	h := newGatewayHarness(t, nil)
	sess := h.createSession(t)

	req := map[string]any{
		"plan": domain.Plan{
			ID:    "p1",
			Steps: []domain.Step{{ID: "s", API: "crm", Operation: "upsert-contact", Critical: true}},
		},
	}
	w := h.do(t, http.MethodPost, "/sessions/"+sess.Token+"/runs", req, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	out := decode[launchResponse](t, w)
	assert.Equal(t, domain.RunPending, out.Run.State)
	assert.Equal(t, "p1", out.Run.PlanID)

	h.runner.Wait()

	w = h.do(t, http.MethodGet, "/sessions/"+sess.Token+"/runs/"+out.Run.ID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.RunSucceeded, decode[domain.Run](t, w).State)
}

func TestHandleRunLaunch_PlannerBuildsPlan(t *testing.T) {
	h := newGatewayHarness(t, nil)
	sess := h.createSession(t)

	w := h.do(t, http.MethodPost, "/sessions/"+sess.Token+"/runs",
		map[string]any{"apis": []string{"email"}, "goal": "notify"}, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	out := decode[launchResponse](t, w)
	require.Len(t, out.Plan.Steps, 1)
	assert.Equal(t, "email-send", out.Plan.Steps[0].ID)

	h.runner.Wait()
}

func TestHandleRunLaunch_InvalidPlan(t *testing.T) {
	h := newGatewayHarness(t, nil)
	sess := h.createSession(t)

	w := h.do(t, http.MethodPost, "/sessions/"+sess.Token+"/runs",
		map[string]any{"plan": domain.Plan{ID: "empty"}}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandleRunGet_OtherSessionsRunHidden(t *testing.T) {
	h := newGatewayHarness(t, nil)
	owner := h.createSession(t)
	other := h.createSession(t)

	req := map[string]any{
		"plan": domain.Plan{
			ID:    "p1",
			Steps: []domain.Step{{ID: "s", API: "crm", Operation: "upsert-contact"}},
		},
	}
	out := decode[launchResponse](t, h.do(t, http.MethodPost, "/sessions/"+owner.Token+"/runs", req, nil))
	h.runner.Wait()

	w := h.do(t, http.MethodGet, "/sessions/"+other.Token+"/runs/"+out.Run.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleRunCancel_NotRunning(t *testing.T) {
	h := newGatewayHarness(t, nil)
	sess := h.createSession(t)

	req := map[string]any{
		"plan": domain.Plan{
			ID:    "p1",
			Steps: []domain.Step{{ID: "s", API: "crm", Operation: "upsert-contact"}},
		},
	}
	out := decode[launchResponse](t, h.do(t, http.MethodPost, "/sessions/"+sess.Token+"/runs", req, nil))
	h.runner.Wait()

	w := h.do(t, http.MethodDelete, "/sessions/"+sess.Token+"/runs/"+out.Run.ID, nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

// --- Classifier endpoint tests ---

func TestHandleClassify(t *testing.T) {
	h := newGatewayHarness(t, nil)

	w := h.do(t, http.MethodPost, "/classify",
		map[string]any{"provider": "stripe", "code": "card_declined"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	out := decode[classifier.Classification](t, w)
	assert.Equal(t, classifier.SourceStatic, out.Source)
	assert.NotEmpty(t, out.Explanation)
}

func TestHandleClassify_MissingFields(t *testing.T) {
	h := newGatewayHarness(t, nil)

	w := h.do(t, http.MethodPost, "/classify", map[string]any{"provider": "stripe"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
