package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anvita/facebook-warmup/config"
	"github.com/anvita/facebook-warmup/logger"
	"github.com/anvita/facebook-warmup/pool"
	"github.com/anvita/facebook-warmup/status"
	"github.com/anvita/facebook-warmup/storage"
	"github.com/anvita/facebook-warmup/warmup"
)

func testServer(t *testing.T, mutate func(*config.Config)) (*Server, *storage.Database) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Schedule.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	log := logger.Discard()
	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "test.db"), log)
	if err != nil {
		t.Fatalf("NewDatabase failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	hub := status.NewHub(log)
	p := pool.New(cfg.Server.MaxConcurrentSessions, log)
	runner := NewRunner(cfg, log, db, hub, p)

	return New(cfg, log, runner, db, hub), db
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestConfigStripsCredentials(t *testing.T) {
	s, _ := testServer(t, func(c *config.Config) {
		c.Facebook.Email = "secret@example.com"
		c.Facebook.Password = "hunter2"
	})

	rec := doRequest(t, s, http.MethodGet, "/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	payload := rec.Body.String()
	if strings.Contains(payload, "secret@example.com") || strings.Contains(payload, "hunter2") {
		t.Error("config response must not leak credentials")
	}
	if !strings.Contains(payload, "warmup") {
		t.Error("config response should include the warmup section")
	}
}

func TestStartRejectsMissingCredentials(t *testing.T) {
	s, _ := testServer(t, nil)

	rec := doRequest(t, s, http.MethodPost, "/warmup/start", `{"email":"a@example.com"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if !strings.Contains(rec.Body.String(), "required") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestStartRejectsBadBody(t *testing.T) {
	s, _ := testServer(t, nil)

	rec := doRequest(t, s, http.MethodPost, "/warmup/start", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStartOutsideOperatingHours(t *testing.T) {
	s, _ := testServer(t, func(c *config.Config) {
		// A zero-width window is never open.
		c.Schedule.Enabled = true
		c.Schedule.StartHour = 0
		c.Schedule.EndHour = 0
	})

	rec := doRequest(t, s, http.MethodPost, "/warmup/start",
		`{"email":"a@example.com","password":"pw"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if !strings.Contains(rec.Body.String(), "operating hours") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestStatusUnknownTask(t *testing.T) {
	s, _ := testServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/warmup/status/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestStopUnknownTask(t *testing.T) {
	s, _ := testServer(t, nil)

	rec := doRequest(t, s, http.MethodPost, "/warmup/stop/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestTasksEmpty(t *testing.T) {
	s, _ := testServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/warmup/tasks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var tasks []*Task
	if err := json.NewDecoder(rec.Body).Decode(&tasks); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected no tasks, got %d", len(tasks))
	}
}

func TestSessionsEndpoint(t *testing.T) {
	s, db := testServer(t, nil)

	for _, id := range []string{"s1", "s2", "s3"} {
		db.SaveSessionResult(&warmup.SessionResult{
			SessionID: id,
			Email:     "a@example.com",
			Status:    warmup.StatusCompleted,
		})
	}
	db.SaveSessionResult(&warmup.SessionResult{
		SessionID: "s4",
		Email:     "b@example.com",
		Status:    warmup.StatusError,
	})

	rec := doRequest(t, s, http.MethodGet, "/warmup/sessions?limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var sessions []*warmup.SessionResult
	json.NewDecoder(rec.Body).Decode(&sessions)
	if len(sessions) != 2 {
		t.Errorf("limit ignored, got %d sessions", len(sessions))
	}

	rec = doRequest(t, s, http.MethodGet, "/warmup/sessions?email=b@example.com", "")
	sessions = nil
	json.NewDecoder(rec.Body).Decode(&sessions)
	if len(sessions) != 1 || sessions[0].SessionID != "s4" {
		t.Errorf("email filter failed: %+v", sessions)
	}
}

func TestTodayStatsEndpoint(t *testing.T) {
	s, db := testServer(t, nil)

	db.SaveSessionResult(&warmup.SessionResult{
		SessionID: "s1",
		Email:     "a@example.com",
		Status:    warmup.StatusCompleted,
		Likes:     4,
	})

	rec := doRequest(t, s, http.MethodGet, "/stats/today", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var stats storage.DailyStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if stats.SessionsCompleted != 1 || stats.Likes != 4 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRunnerDuplicateActiveEmail(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Schedule.Enabled = false

	r := NewRunner(cfg, logger.Discard(), nil, nil, nil)
	r.tasks["t1"] = &Task{ID: "t1", Email: "a@example.com", State: TaskRunning}

	if _, err := r.StartWarmup("a@example.com", "pw"); err == nil {
		t.Fatal("duplicate active email should be rejected")
	}
	if _, err := r.StartWarmup("", "pw"); err == nil {
		t.Fatal("empty email should be rejected")
	}
}

func TestRunnerLookup(t *testing.T) {
	r := NewRunner(config.DefaultConfig(), logger.Discard(), nil, nil, nil)

	r.tasks["t1"] = &Task{ID: "t1", Email: "a@example.com", State: TaskCompleted}
	r.tasks["t2"] = &Task{ID: "t2", Email: "a@example.com", State: TaskRunning}

	if got := r.Task("t1"); got == nil || got.ID != "t1" {
		t.Errorf("lookup by id failed: %+v", got)
	}
	if got := r.Task("a@example.com"); got == nil {
		t.Error("lookup by email failed")
	}
	if got := r.Task("missing"); got != nil {
		t.Errorf("unknown key should return nil, got %+v", got)
	}
}

func TestStopInactiveTask(t *testing.T) {
	r := NewRunner(config.DefaultConfig(), logger.Discard(), nil, nil, nil)
	r.tasks["t1"] = &Task{ID: "t1", Email: "a@example.com", State: TaskCompleted}

	if _, err := r.StopWarmup("t1"); err == nil {
		t.Fatal("stopping a finished task should fail")
	}
}
