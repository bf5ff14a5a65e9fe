package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/anvita/facebook-warmup/config"
	"github.com/anvita/facebook-warmup/logger"
	"github.com/anvita/facebook-warmup/status"
	"github.com/anvita/facebook-warmup/storage"
)

// Server is the HTTP API front of the warmup service.
type Server struct {
	cfg    *config.Config
	log    *logger.Logger
	runner *Runner
	db     *storage.Database
	hub    *status.Hub
	http   *http.Server
}

// New creates the API server and wires its routes.
func New(cfg *config.Config, log *logger.Logger, runner *Runner, db *storage.Database, hub *status.Hub) *Server {
	s := &Server{
		cfg:    cfg,
		log:    log.WithModule("server"),
		runner: runner,
		db:     db,
		hub:    hub,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	r.HandleFunc("/warmup/start", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/warmup/status/{key}", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/warmup/stop/{key}", s.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/warmup/tasks", s.handleTasks).Methods(http.MethodGet)
	r.HandleFunc("/warmup/sessions", s.handleSessions).Methods(http.MethodGet)
	r.HandleFunc("/stats/today", s.handleTodayStats).Methods(http.MethodGet)
	r.HandleFunc("/ws", hub.ServeWS).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return s
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Infof("HTTP API listening on %s", s.cfg.Server.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the listener and winds down active tasks.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	return s.runner.Shutdown(ctx)
}

type startRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	task, err := s.runner.StartWarmup(req.Email, req.Password)
	if err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}

	s.writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	task := s.runner.Task(key)
	if task == nil {
		s.writeError(w, http.StatusNotFound, "no task found")
		return
	}

	response := map[string]interface{}{"task": task}
	if task.Result == nil {
		// Still running; attach the latest live event if one exists.
		// Sessions are keyed by their task id.
		if ev, ok := s.hub.Latest(task.ID); ok {
			response["live"] = ev
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	task, err := s.runner.StopWarmup(key)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.runner.Tasks())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var err error
	if email := r.URL.Query().Get("email"); email != "" {
		sessions, qerr := s.db.GetSessionsByEmail(email)
		if qerr == nil {
			s.writeJSON(w, http.StatusOK, sessions)
			return
		}
		err = qerr
	} else {
		sessions, qerr := s.db.GetRecentSessions(limit)
		if qerr == nil {
			s.writeJSON(w, http.StatusOK, sessions)
			return
		}
		err = qerr
	}

	s.log.WithError(err).Error("Session query failed")
	s.writeError(w, http.StatusInternalServerError, "session query failed")
}

func (s *Server) handleTodayStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetTodayStats()
	if err != nil {
		s.log.WithError(err).Error("Stats query failed")
		s.writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConfig exposes the effective behavior configuration with
// credentials stripped.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	sanitized := *s.cfg
	sanitized.Facebook.Email = ""
	sanitized.Facebook.Password = ""
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"warmup":   sanitized.Warmup,
		"schedule": sanitized.Schedule,
		"server":   sanitized.Server,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Debug("Response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
