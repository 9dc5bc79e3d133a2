// Package httpapi exposes the call-control surface: REST endpoints for
// starting, driving and inspecting calls, and the websocket used by the
// voice pipeline.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/worldofdoors/doorline/internal/call"
	"github.com/worldofdoors/doorline/internal/callstore"
	"github.com/worldofdoors/doorline/internal/config"
	"github.com/worldofdoors/doorline/internal/flow"
	"github.com/worldofdoors/doorline/internal/observability"
	"github.com/worldofdoors/doorline/internal/protocol"
)

type Server struct {
	cfg      config.Config
	calls    *call.Manager
	store    callstore.Store
	logger   *slog.Logger
	metrics  *observability.Metrics
	upgrader websocket.Upgrader

	// pingInterval keeps idle websocket calls alive; the read deadline is
	// refreshed by the peer's pongs.
	pingInterval time.Duration
}

func New(cfg config.Config, calls *call.Manager, store callstore.Store, logger *slog.Logger, metrics *observability.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:          cfg,
		calls:        calls,
		store:        store,
		logger:       logger,
		metrics:      metrics,
		pingInterval: 45 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive a call unless the
				// deployment explicitly opens it up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser pipeline clients omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/calls", s.handleCreateCall)
	r.Post("/v1/calls/{id}/actions", s.handleCallAction)
	r.Post("/v1/calls/{id}/end", s.handleEndCall)
	r.Get("/v1/calls/{id}", s.handleGetCall)
	r.Get("/v1/calls", s.handleListCalls)
	r.Get("/v1/calls/ws", s.handleCallWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"active_calls": s.calls.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type createCallRequest struct {
	CallerPhone string `json:"caller_phone"`
	WaitForUser bool   `json:"wait_for_user"`
}

type createCallResponse struct {
	Call call.Snapshot       `json:"call"`
	Node protocol.NodeActive `json:"node"`
}

func (s *Server) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	var req createCallRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sess := s.calls.Create(r.Context(), strings.TrimSpace(req.CallerPhone), req.WaitForUser)
	respondJSON(w, http.StatusCreated, createCallResponse{
		Call: sess.Snapshot(),
		Node: protocol.NewNodeActive(sess.ID, sess.ActiveNode()),
	})
}

type actionRequest struct {
	Action    string         `json:"action"`
	Arguments map[string]any `json:"arguments"`
}

type actionResponse struct {
	Call   call.Snapshot        `json:"call"`
	Result any                  `json:"result,omitempty"`
	Node   *protocol.NodeActive `json:"node,omitempty"`
}

func (s *Server) handleCallAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.calls.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "call_not_found", err.Error())
		return
	}

	var req actionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Action) == "" {
		respondError(w, http.StatusBadRequest, "missing_action", "action is required")
		return
	}

	result, node, err := sess.HandleAction(r.Context(), req.Action, flow.Args(req.Arguments))
	if err != nil {
		s.failCall(r.Context(), w, sess, err)
		return
	}

	resp := actionResponse{Result: result}
	if sess.FlowEnded() {
		snap, endErr := s.calls.End(r.Context(), sess.ID, call.EndReasonCompleted)
		if endErr != nil {
			respondError(w, http.StatusInternalServerError, "end_failed", endErr.Error())
			return
		}
		resp.Call = snap
	} else {
		active := protocol.NewNodeActive(sess.ID, node)
		resp.Node = &active
		resp.Call = sess.Snapshot()
	}
	respondJSON(w, http.StatusOK, resp)
}

// failCall maps a dispatch error to its HTTP shape and, for protocol
// violations, terminates the call with cleanup.
func (s *Server) failCall(ctx context.Context, w http.ResponseWriter, sess *call.Session, err error) {
	switch {
	case errors.Is(err, call.ErrSessionEnded) || errors.Is(err, flow.ErrCallEnded):
		respondError(w, http.StatusConflict, "call_ended", err.Error())
	case errors.Is(err, flow.ErrActionNotAllowed) || errors.Is(err, flow.ErrMissingArgument):
		// Contract violation by the model-facing layer: fatal to this call
		// only, cleanup still runs.
		s.logger.Error("protocol violation", "call_id", sess.ID, "error", err)
		if _, endErr := s.calls.End(ctx, sess.ID, call.EndReasonError); endErr != nil {
			s.logger.Error("call teardown failed", "call_id", sess.ID, "error", endErr)
		}
		respondError(w, http.StatusConflict, "action_not_allowed", err.Error())
	default:
		s.logger.Error("action handler failed", "call_id", sess.ID, "error", err)
		if _, endErr := s.calls.End(ctx, sess.ID, call.EndReasonError); endErr != nil {
			s.logger.Error("call teardown failed", "call_id", sess.ID, "error", endErr)
		}
		respondError(w, http.StatusInternalServerError, "handler_failed", err.Error())
	}
}

type endCallRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_call_id", "missing call id")
		return
	}

	var req endCallRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	reason := call.EndReasonDisconnected
	switch call.EndReason(strings.TrimSpace(req.Reason)) {
	case call.EndReasonCompleted:
		reason = call.EndReasonCompleted
	case call.EndReasonError:
		reason = call.EndReasonError
	}

	snap, err := s.calls.End(r.Context(), id, reason)
	if err != nil {
		respondError(w, http.StatusNotFound, "call_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if sess, err := s.calls.Get(id); err == nil {
		respondJSON(w, http.StatusOK, sess.Snapshot())
		return
	}
	if s.store != nil {
		if rec, err := s.store.GetCall(r.Context(), id); err == nil {
			respondJSON(w, http.StatusOK, rec)
			return
		}
	}
	respondError(w, http.StatusNotFound, "call_not_found", "no live session or record for id")
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondJSON(w, http.StatusOK, []callstore.Record{})
		return
	}
	limit := 20
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	records, err := s.store.ListRecentCalls(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, records)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func writeDeadline() time.Time {
	return time.Now().Add(10 * time.Second)
}
