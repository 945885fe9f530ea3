package gateway

import (
	"context"
	"net/http"

	"github.com/hookbench/hookbench/internal/domain"
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	// Delivery endpoint: the session token in the path is the credential.
	mux.HandleFunc("POST /hooks/{token}", s.handleHook)

	// Control surface.
	mux.HandleFunc("POST /sessions", s.handleSessionCreate)
	mux.HandleFunc("GET /sessions", s.handleSessionList)
	mux.HandleFunc("DELETE /sessions/{token}", s.handleSessionDelete)

	// Per-session surface, authenticated by session token alone.
	mux.HandleFunc("GET /sessions/{token}/events", s.handleEventList)
	mux.HandleFunc("POST /sessions/{token}/runs", s.handleRunLaunch)
	mux.HandleFunc("GET /sessions/{token}/runs", s.handleRunList)
	mux.HandleFunc("GET /sessions/{token}/runs/{id}", s.handleRunGet)
	mux.HandleFunc("DELETE /sessions/{token}/runs/{id}", s.handleRunCancel)

	mux.HandleFunc("POST /classify", s.handleClassify)

	if s.cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up the WebSocket RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("events.subscribe", s.rpcEventsSubscribe)
	s.Handle("events.unsubscribe", s.rpcEventsUnsubscribe)
	s.Handle("runs.get", s.rpcRunsGet)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(HealthResponse{
		Status:  "ok",
		Version: s.version,
		Clients: s.clients.Count(),
	})
}

type subscribeParams struct {
	Session string `json:"session"`
	Since   int64  `json:"since,omitempty"`
}

// rpcEventsSubscribe attaches the connection to a session's event
// stream from the given cursor: backlog first, then the live feed.
func (s *Server) rpcEventsSubscribe(rc *RequestContext) {
	var p subscribeParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.Session == "" {
		rc.RespondError("invalid_params", "session is required")
		return
	}

	ctx := context.Background()
	if _, err := s.sessions.Resolve(ctx, p.Session); err != nil {
		rc.RespondError("session_not_found", "unknown or expired session")
		return
	}

	sub, err := s.hub.Subscribe(ctx, p.Session, p.Since)
	if err != nil {
		rc.RespondError("subscribe_failed", err.Error())
		return
	}
	rc.Client.Attach(sub)
	rc.Respond(map[string]any{"subscribed": true, "since": p.Since})
}

// rpcEventsUnsubscribe detaches the connection from its event stream.
func (s *Server) rpcEventsUnsubscribe(rc *RequestContext) {
	rc.Client.Detach()
	rc.Respond(map[string]any{"subscribed": false})
}

type runsGetParams struct {
	Session string `json:"session"`
	RunID   string `json:"runId"`
}

func (s *Server) rpcRunsGet(rc *RequestContext) {
	var p runsGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.Session == "" || p.RunID == "" {
		rc.RespondError("invalid_params", "session and runId are required")
		return
	}

	ctx := context.Background()
	if _, err := s.sessions.Resolve(ctx, p.Session); err != nil {
		rc.RespondError("session_not_found", "unknown or expired session")
		return
	}
	run, err := s.runs.Get(ctx, p.RunID)
	if err != nil || run.SessionID != p.Session {
		rc.RespondError("run_not_found", domain.ErrRunNotFound.Error())
		return
	}
	rc.Respond(run)
}
