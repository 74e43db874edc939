// Package server exposes the assistant over HTTP: one chat endpoint that
// runs a workflow turn, plus session management, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"riskintel-assistant/internal/common/config"
	"riskintel-assistant/internal/common/logger"
	"riskintel-assistant/internal/models"
	"riskintel-assistant/internal/nodes/orchestrator"
	"riskintel-assistant/internal/session"
	"riskintel-assistant/internal/workflow"
)

type turnRunner interface {
	Run(ctx context.Context, state *workflow.AnalysisState) error
}

type sessionStore interface {
	GetOrCreate(ctx context.Context, id string) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, sess *models.Session) error
	Delete(ctx context.Context, id string) error
}

// inputValidator is satisfied by *registry.NodeRegistry.
type inputValidator interface {
	ValidateInput(taskType string, input map[string]interface{}) error
}

// ReadinessCheck reports whether a backing service is reachable.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	cfg       config.ServerConfig
	graph     turnRunner
	sessions  sessionStore
	validator inputValidator
	ready     []ReadinessCheck
	logger    logger.Logger
	router    *mux.Router
}

func New(cfg config.ServerConfig, graph turnRunner, sessions sessionStore, validator inputValidator, ready []ReadinessCheck, log logger.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		graph:     graph,
		sessions:  sessions,
		validator: validator,
		ready:     ready,
		logger: log.With(map[string]interface{}{
			"component": "http-server",
		}),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/history", s.handleGetHistory).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the server until ctx is cancelled, then drains with
// the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  config.GetDuration(s.cfg.ReadTimeout),
		WriteTimeout: config.GetDuration(s.cfg.WriteTimeout),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", map[string]interface{}{
			"addr": srv.Addr,
		})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(s.cfg.ShutdownTimeout))
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if s.validator != nil {
		input := map[string]interface{}{"userQuery": req.Message}
		if err := s.validator.ValidateInput(orchestrator.TaskType, input); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ctx := r.Context()
	sess, err := s.sessions.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		s.logger.Error("session load failed", map[string]interface{}{
			"error": err.Error(),
		})
		s.writeError(w, http.StatusInternalServerError, "session store unavailable")
		return
	}

	state := &workflow.AnalysisState{
		SessionID:  sess.ID,
		Messages:   sess.Messages,
		SQLHistory: sess.SQLHistory,
		TopKPI:     sess.TopKPI,
	}
	state.BeginTurn(req.Message)

	if err := s.graph.Run(ctx, state); err != nil {
		s.logger.Error("workflow run failed", map[string]interface{}{
			"sessionId": sess.ID,
			"error":     err.Error(),
		})
		s.writeError(w, http.StatusInternalServerError, "workflow execution failed")
		return
	}

	now := time.Now()
	sess.Messages = append(sess.Messages,
		models.Message{Role: models.RoleUser, Content: req.Message, Timestamp: now},
		models.Message{Role: models.RoleAssistant, Content: state.FinalResponse, Timestamp: now},
	)
	sess.SQLHistory = state.SQLHistory
	if state.TopKPI != nil {
		sess.TopKPI = state.TopKPI
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		// The turn already ran; losing history is not worth failing the reply.
		s.logger.Warn("session save failed", map[string]interface{}{
			"sessionId": sess.ID,
			"error":     err.Error(),
		})
	}

	resp := models.ChatResponse{
		SessionID: sess.ID,
		Response:  state.FinalResponse,
		SQL:       state.GeneratedSQL,
		Insights:  state.Insights,
	}
	if state.Retrieval != nil {
		resp.Data = state.Retrieval.Rows
	}
	if state.Status == workflow.StatusError {
		resp.Error = state.ErrorMsg
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId":  sess.ID,
		"messages":   sess.Messages,
		"sqlHistory": sess.SQLHistory,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "session delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
	id := mux.Vars(r)["id"]
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return nil, false
		}
		s.writeError(w, http.StatusInternalServerError, "session store unavailable")
		return nil, false
	}
	return sess, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	for _, check := range s.ready {
		if err := check(r.Context()); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("response encode failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
