package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hookbench/hookbench/internal/domain"
	"github.com/hookbench/hookbench/internal/executor"
	"github.com/hookbench/hookbench/internal/planner"
)

// maxHookBody bounds inbound webhook payloads.
const maxHookBody = 1 << 20 // 1MB

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Clients int    `json:"clients,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not_found", "no such route: "+r.URL.Path)
}

// SessionResponse is the public shape of a session.
type SessionResponse struct {
	Token     string    `json:"token"`
	Secret    string    `json:"secret,omitempty"`
	HookURL   string    `json:"hookUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Status    string    `json:"status"`
}

// handleSessionCreate mints a new session and returns its delivery URL.
func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	if !s.requireControlAuth(w, r) {
		return
	}
	sess, err := s.sessions.Create(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, s.sessionResponse(sess, true))
}

// handleSessionList returns all sessions without secrets.
func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	if !s.requireControlAuth(w, r) {
		return
	}
	sessions, err := s.sessions.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	out := make([]SessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, s.sessionResponse(&sessions[i], false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// handleSessionDelete expires a session immediately, cascading to its
// events, runs, and observers.
func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	if !s.requireControlAuth(w, r) {
		return
	}
	token := r.PathValue("token")
	if err := s.sessions.Expire(r.Context(), token); err != nil {
		writeDomainError(w, err)
		return
	}
	s.hub.CloseSession(token)
	w.WriteHeader(http.StatusNoContent)
}

// handleHook is the delivery endpoint providers call. The session token
// in the path is the only credential; verification failures are
// recorded, never rejected.
func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxHookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "reading body: "+err.Error())
		return
	}

	ev, err := s.ingestor.Ingest(r.Context(), token, r.Header, body)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Retried deliveries answer with the original event's id so provider
	// retry loops always see the same identifier for the same delivery.
	eventID := ev.ID
	resp := map[string]any{
		"seq": ev.Seq,
	}
	if ev.Webhook.Duplicate {
		eventID = ev.Webhook.DuplicateOf
		resp["duplicate"] = true
		resp["duplicateOf"] = ev.Webhook.DuplicateOf
	}
	resp["eventId"] = eventID
	writeJSON(w, http.StatusAccepted, resp)
}

// handleEventList returns events after a sequence cursor.
func (s *Server) handleEventList(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if _, err := s.sessions.Resolve(r.Context(), token); err != nil {
		writeDomainError(w, err)
		return
	}

	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := s.events.List(r.Context(), token, since, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	next := since
	if n := len(events); n > 0 {
		next = events[n-1].Seq
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":    events,
		"nextSince": next,
	})
}

// launchRunRequest submits a run. Either a full plan or a goal with API
// identifiers for the planner to expand.
type launchRunRequest struct {
	Plan        *domain.Plan                  `json:"plan,omitempty"`
	Goal        string                        `json:"goal,omitempty"`
	APIs        []string                      `json:"apis,omitempty"`
	Overrides   []planner.CriticalityOverride `json:"overrides,omitempty"`
	Credentials executor.Credentials          `json:"credentials,omitempty"`
}

// handleRunLaunch plans (if needed) and starts a run for the session.
func (s *Server) handleRunLaunch(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if _, err := s.sessions.Resolve(r.Context(), token); err != nil {
		writeDomainError(w, err)
		return
	}

	var req launchRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "parsing body: "+err.Error())
		return
	}

	plan := req.Plan
	if plan == nil {
		built, err := s.planner.Plan(r.Context(), req.APIs, req.Goal, req.Overrides)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		plan = built
	} else {
		if plan.ID == "" {
			plan.ID = token + "-" + strconv.FormatInt(time.Now().UnixMilli(), 10)
		}
		planner.ApplyOverrides(plan, req.Overrides)
	}

	run, err := s.runner.Launch(r.Context(), token, plan, req.Credentials)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run":  run,
		"plan": plan,
	})
}

// handleRunList returns the session's runs, newest first.
func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if _, err := s.sessions.Resolve(r.Context(), token); err != nil {
		writeDomainError(w, err)
		return
	}
	runs, err := s.runs.ListBySession(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleRunGet returns one run record.
func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if _, err := s.sessions.Resolve(r.Context(), token); err != nil {
		writeDomainError(w, err)
		return
	}
	run, err := s.runs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if run.SessionID != token {
		writeDomainError(w, domain.ErrRunNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleRunCancel stops an in-flight run; completed steps are
// compensated.
func (s *Server) handleRunCancel(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if _, err := s.sessions.Resolve(r.Context(), token); err != nil {
		writeDomainError(w, err)
		return
	}
	id := r.PathValue("id")
	run, err := s.runs.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if run.SessionID != token {
		writeDomainError(w, domain.ErrRunNotFound)
		return
	}
	if !s.runner.Cancel(id) {
		writeError(w, http.StatusConflict, "not_running", "run is not in flight")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"cancelling": true})
}

type classifyRequest struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
	Message  string `json:"message,omitempty"`
}

// handleClassify explains a provider error on demand.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if s.cls == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "classifier not configured")
		return
	}
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "parsing body: "+err.Error())
		return
	}
	if req.Provider == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "provider and code are required")
		return
	}
	writeJSON(w, http.StatusOK, s.cls.Classify(r.Context(), req.Provider, req.Code, req.Message))
}

func (s *Server) requireControlAuth(w http.ResponseWriter, r *http.Request) bool {
	result := AuthorizeRequest(s.auth, r)
	if !result.OK {
		writeError(w, http.StatusUnauthorized, "unauthorized", result.Reason)
		return false
	}
	return true
}

func (s *Server) sessionResponse(sess *domain.Session, withSecret bool) SessionResponse {
	resp := SessionResponse{
		Token:     sess.Token,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
		Status:    sess.Status,
	}
	if withSecret {
		resp.Secret = sess.Secret
		resp.HookURL = s.hookURL(sess.Token)
	}
	return resp
}

// hookURL builds the externally reachable delivery URL for a session.
func (s *Server) hookURL(token string) string {
	base := s.cfg.Gateway.PublicURL
	if base == "" {
		scheme := "http"
		if s.cfg.Gateway.TLS.Enabled {
			scheme = "https"
		}
		base = scheme + "://" + resolveBindAddr(s.cfg.Gateway)
	}
	return strings.TrimSuffix(base, "/") + "/hooks/" + token
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": ErrorShape{Code: code, Message: message},
	})
}

// writeDomainError maps domain sentinel errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "unknown or expired session")
	case errors.Is(err, domain.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "run_not_found", "no such run")
	case errors.Is(err, domain.ErrInvalidPlan):
		writeError(w, http.StatusUnprocessableEntity, "invalid_plan", err.Error())
	case errors.Is(err, domain.ErrRunInProgress):
		writeError(w, http.StatusConflict, "run_in_progress", err.Error())
	case errors.Is(err, domain.ErrPlannerUnavailable):
		writeError(w, http.StatusServiceUnavailable, "planner_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

// RequestHandler processes an incoming RPC request frame from a client.
type RequestHandler func(ctx *RequestContext)

// RequestContext carries everything an RPC handler needs.
type RequestContext struct {
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	rc.Client.RespondError(rc.Frame.ID, ErrorShape{Code: code, Message: message})
}

// Params unmarshals the request params into the given target.
func (rc *RequestContext) Params(target any) error {
	if rc.Frame.Params == nil {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}
