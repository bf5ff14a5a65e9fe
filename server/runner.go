// Package server exposes the warmup service over HTTP: task submission,
// status queries, live websocket events, and the session audit trail.
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anvita/facebook-warmup/auth"
	"github.com/anvita/facebook-warmup/browser"
	"github.com/anvita/facebook-warmup/config"
	"github.com/anvita/facebook-warmup/logger"
	"github.com/anvita/facebook-warmup/pool"
	"github.com/anvita/facebook-warmup/status"
	"github.com/anvita/facebook-warmup/stealth"
	"github.com/anvita/facebook-warmup/storage"
	"github.com/anvita/facebook-warmup/timing"
	"github.com/anvita/facebook-warmup/warmup"
)

// Task states
const (
	TaskQueued    = "queued"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
	TaskStopped   = "stopped"
)

// Task is one submitted warmup job. A job may run several session
// attempts under the retry policy.
type Task struct {
	ID        string    `json:"task_id"`
	Email     string    `json:"email"`
	State     string    `json:"state"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`

	Result *warmup.SessionResult `json:"result,omitempty"`

	cancel context.CancelFunc
}

// Runner owns task lifecycle: one goroutine per task, bounded browser
// concurrency through the shared pool, results persisted to storage.
type Runner struct {
	cfg       *config.Config
	log       *logger.Logger
	db        *storage.Database
	hub       *status.Hub
	pool      *pool.Pool
	scheduler *stealth.Scheduler

	mu    sync.Mutex
	tasks map[string]*Task
	wg    sync.WaitGroup
}

// NewRunner creates a task runner.
func NewRunner(cfg *config.Config, log *logger.Logger, db *storage.Database, hub *status.Hub, p *pool.Pool) *Runner {
	return &Runner{
		cfg:       cfg,
		log:       log.WithModule("runner"),
		db:        db,
		hub:       hub,
		pool:      p,
		scheduler: stealth.NewScheduler(&cfg.Schedule, log),
		tasks:     make(map[string]*Task),
	}
}

// StartWarmup submits a warmup job for one account. At most one job per
// account may be active at a time.
func (r *Runner) StartWarmup(email, password string) (*Task, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}
	if !r.scheduler.IsWithinOperatingHours(time.Now()) {
		return nil, fmt.Errorf("outside operating hours (%d:00 - %d:00)",
			r.cfg.Schedule.StartHour, r.cfg.Schedule.EndHour)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tasks {
		if t.Email == email && (t.State == TaskQueued || t.State == TaskRunning) {
			return nil, fmt.Errorf("a warmup for %s is already active", email)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &Task{
		ID:        uuid.New().String(),
		Email:     email,
		State:     TaskQueued,
		CreatedAt: time.Now(),
		cancel:    cancel,
	}
	r.tasks[task.ID] = task

	r.wg.Add(1)
	go r.run(ctx, task, password)

	r.log.WithFields(map[string]interface{}{
		"task_id": task.ID,
		"email":   email,
	}).Info("Warmup task submitted")

	return task, nil
}

// run drives one task through the retry policy. Login failures and
// cancellations are final; errors and timeouts may be retried.
func (r *Runner) run(ctx context.Context, task *Task, password string) {
	defer r.wg.Done()

	maxAttempts := r.cfg.Server.RetryMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoff := time.Duration(r.cfg.Server.RetryBackoffSeconds) * time.Second

	r.setState(task, TaskRunning)

	var result *warmup.SessionResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		r.mu.Lock()
		task.Attempts = attempt
		r.mu.Unlock()

		result = r.runAttempt(ctx, task, password)

		if err := r.db.SaveSessionResult(result); err != nil {
			r.log.WithError(err).Warn("Failed to persist session result")
		}

		if !retryable(result.Status) || attempt == maxAttempts {
			break
		}

		r.log.WithFields(map[string]interface{}{
			"task_id": task.ID,
			"status":  result.Status,
			"attempt": attempt,
		}).Warn("Session failed, retrying after backoff")

		select {
		case <-ctx.Done():
			attempt = maxAttempts
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}

	r.mu.Lock()
	task.Result = result
	switch result.Status {
	case warmup.StatusCompleted:
		task.State = TaskCompleted
	case warmup.StatusCancelled:
		task.State = TaskStopped
	default:
		task.State = TaskFailed
	}
	r.mu.Unlock()

	r.hub.Forget(task.ID)

	r.log.WithFields(map[string]interface{}{
		"task_id": task.ID,
		"state":   task.State,
		"status":  result.Status,
	}).Info("Warmup task finished")
}

// runAttempt wires up one fresh session: new random source, stealth
// manager, browser and engine. The browser launches lazily, after the
// engine holds its concurrency slot.
func (r *Runner) runAttempt(ctx context.Context, task *Task, password string) *warmup.SessionResult {
	src := timing.NewSource()
	stl := stealth.NewManager(&r.cfg.Stealth, r.log, src)
	br := browser.NewBrowser(r.cfg, r.log, stl)

	r.pool.Track(br)
	defer func() {
		r.pool.Untrack(br)
		if err := br.Close(); err != nil {
			r.log.WithError(err).Debug("Browser close failed")
		}
	}()

	authn := auth.NewAuthenticator(r.cfg, r.log, stl, r.db, br)
	engine := warmup.New(r.cfg, r.log, br, authn, r.pool,
		warmup.WithSource(src),
		warmup.WithSink(r.hub),
		warmup.WithSessionID(task.ID),
	)

	return engine.Run(ctx, task.Email, password)
}

// retryable reports whether a terminal status warrants another attempt.
// Login failures need operator attention; cancellations were requested.
func retryable(s warmup.Status) bool {
	return s == warmup.StatusError || s == warmup.StatusTimedOut
}

// StopWarmup requests cancellation of an active task, by task id or
// account email.
func (r *Runner) StopWarmup(key string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task := r.lookupLocked(key)
	if task == nil {
		return nil, fmt.Errorf("no task found for %q", key)
	}
	if task.State != TaskQueued && task.State != TaskRunning {
		return nil, fmt.Errorf("task %s is not active (state %s)", task.ID, task.State)
	}

	task.cancel()
	r.log.WithField("task_id", task.ID).Info("Warmup task stop requested")
	return task, nil
}

// Task returns a snapshot of one task, by task id or account email.
func (r *Runner) Task(key string) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	task := r.lookupLocked(key)
	if task == nil {
		return nil
	}
	snapshot := *task
	return &snapshot
}

// Tasks returns snapshots of all known tasks.
func (r *Runner) Tasks() []*Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		snapshot := *t
		out = append(out, &snapshot)
	}
	return out
}

// lookupLocked finds a task by id, falling back to the most recent task
// for an email. Callers hold r.mu.
func (r *Runner) lookupLocked(key string) *Task {
	if t, ok := r.tasks[key]; ok {
		return t
	}
	var newest *Task
	for _, t := range r.tasks {
		if t.Email != key {
			continue
		}
		if newest == nil || t.CreatedAt.After(newest.CreatedAt) {
			newest = t
		}
	}
	return newest
}

func (r *Runner) setState(task *Task, state string) {
	r.mu.Lock()
	task.State = state
	r.mu.Unlock()
}

// Shutdown cancels all active tasks and waits for them to wind down or
// the context to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, t := range r.tasks {
		if t.State == TaskQueued || t.State == TaskRunning {
			t.cancel()
		}
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.pool.ForceCleanupAll()
		return ctx.Err()
	}
}
