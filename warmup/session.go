package warmup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anvita/facebook-warmup/config"
	"github.com/anvita/facebook-warmup/logger"
	"github.com/anvita/facebook-warmup/timing"
)

// Engine runs warmup sessions. One Engine instance drives one browser at
// a time; concurrency across sessions is bounded by the ResourcePool.
type Engine struct {
	cfg    *config.Config
	log    *logger.Logger
	driver BrowserDriver
	login  LoginService
	sink   StatusSink
	pool   ResourcePool
	src    timing.Source
	clock  timing.Clock

	sessionID string
}

// Option configures an Engine.
type Option func(*Engine)

// WithSource injects the random source used by every gate and sampler.
func WithSource(src timing.Source) Option {
	return func(e *Engine) { e.src = src }
}

// WithClock injects the clock, letting tests collapse delays.
func WithClock(c timing.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithSink injects the status broadcast collaborator.
func WithSink(s StatusSink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithSessionID fixes the session identifier instead of generating one,
// so callers can correlate live events with their own bookkeeping.
func WithSessionID(id string) Option {
	return func(e *Engine) { e.sessionID = id }
}

// New creates a warmup engine. All collaborators are explicit; the engine
// holds no global state.
func New(cfg *config.Config, log *logger.Logger, driver BrowserDriver, login LoginService, pool ResourcePool, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		log:    log.WithModule("warmup"),
		driver: driver,
		login:  login,
		sink:   NopSink{},
		pool:   pool,
		src:    timing.NewSource(),
		clock:  timing.RealClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one complete warmup session and always returns a
// structured result. No error or panic escapes: unexpected failures
// surface as a result with status "error".
//
// Cancellation via ctx is observed at loop iteration boundaries only; no
// action is interruptible mid-click. A cancelled session skips remaining
// phases and still attempts a best-effort logout. A deadline expiry is
// treated as a hard timeout: resources are force-reclaimed immediately.
func (e *Engine) Run(ctx context.Context, email, password string) (result *SessionResult) {
	sessionID := e.sessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	profile := SelectProfile(e.src, e.cfg.Warmup.Profiles)
	st := newSessionState(sessionID, email, profile, &e.cfg.Warmup, e.clock.Now())
	log := e.log.WithSession(st.SessionID)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("session panic: %v", r)
			e.pool.ForceCleanupAll()
			st.Status = StatusError
			st.ErrorDetail = fmt.Sprintf("panic: %v", r)
			result = st.result(e.clock.Now(), "")
		}
	}()

	log.SessionPhase(string(PhaseStarting), map[string]interface{}{
		"profile":     profile.Name,
		"description": profile.Description,
	})

	// Starting: a browser slot must be held before anything else, and is
	// released on every exit path.
	acquireCtx, cancelAcquire := context.WithTimeout(ctx, time.Duration(e.cfg.Warmup.AcquireTimeoutSeconds)*time.Second)
	err := e.pool.Acquire(acquireCtx)
	cancelAcquire()
	if err != nil {
		st.Status = StatusError
		st.ErrorDetail = "no browser slot available: " + err.Error()
		return st.result(e.clock.Now(), "")
	}
	defer e.pool.Release()

	if e.cfg.Warmup.HardTimeoutMinutes > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.Warmup.HardTimeoutMinutes)*time.Minute)
		defer cancel()
	}

	// LoggingIn
	st.enterPhase(PhaseLoggingIn, e.clock.Now())
	e.publish(st, "Logging in", 0)

	outcome := e.login.Login(email, password)
	if !outcome.Success {
		kind := outcome.FailureKind
		if kind == LoginFailureNone {
			kind = LoginFailureUnknown
		}
		log.SecurityEvent("LOGIN_FAILED", string(kind))
		st.Status = StatusLoginFailed
		st.ErrorDetail = outcome.Diagnostic
		if outcome.ScreenshotPath != "" {
			st.Screenshots = append(st.Screenshots, outcome.ScreenshotPath)
		}
		e.publish(st, "Login failed: "+string(kind), 0)
		return st.result(e.clock.Now(), kind)
	}
	st.Status = StatusLoggedIn
	log.Info("Login successful")

	// Engaging: the deadline is fixed once and never recomputed.
	now := e.clock.Now()
	st.enterPhase(PhaseEngaging, now)
	duration := profile.ScrollMinutes.Minutes(e.src)
	st.Deadline = now.Add(duration)
	e.publish(st, fmt.Sprintf("Engaging for %.1f minutes", duration.Minutes()), duration.Seconds())

	interrupted := e.engageLoop(ctx, st)

	if interrupted == StatusTimedOut {
		return e.finishTimedOut(st)
	}

	// FriendSuggestions: probability-gated excursion, highest-risk phase.
	if interrupted == "" && timing.ProbabilityGate(e.src, profile.FriendProbability) {
		st.enterPhase(PhaseFriendSuggestions, e.clock.Now())
		e.publish(st, "Visiting friend suggestions", 0)
		interrupted = e.friendSuggestions(ctx, st)

		// Return to the feed no matter how many requests were sent.
		if err := e.driver.Navigate(e.cfg.Facebook.FeedURL); err != nil {
			log.WithError(err).Debug("failed to return to feed")
		}

		if interrupted == StatusTimedOut {
			return e.finishTimedOut(st)
		}
	}

	// PreLogoutIdle: keep scrolling lightly so the session looks alive.
	// A cancelled session records the phase but does not dwell in it.
	st.enterPhase(PhasePreLogoutIdle, e.clock.Now())
	e.publish(st, "Winding down", 0)
	if interrupted == "" {
		interrupted = e.preLogoutIdle(ctx, st)
		if interrupted == StatusTimedOut {
			return e.finishTimedOut(st)
		}
	}

	// LoggingOut is best-effort and never flips the session to error.
	if e.cfg.Warmup.PerformLogout {
		st.enterPhase(PhaseLoggingOut, e.clock.Now())
		e.publish(st, "Logging out", 0)
		if err := e.login.Logout(); err != nil {
			log.WithError(err).Warn("Logout failed, closing session anyway")
		}
	}

	e.captureScreenshot(st, "final")

	if interrupted == StatusCancelled {
		st.Status = StatusCancelled
	} else {
		st.Status = StatusCompleted
	}
	e.publish(st, "Session "+string(st.Status), 0)
	log.SessionPhase(string(PhaseDone), map[string]interface{}{"status": st.Status})

	return st.result(e.clock.Now(), "")
}

// engageLoop runs the bounded main engagement loop. It returns the empty
// status when the deadline ran out naturally, or the interrupting status.
func (e *Engine) engageLoop(ctx context.Context, st *SessionState) Status {
	progressEvery := time.Duration(e.cfg.Warmup.ProgressIntervalSeconds) * time.Second
	lastProgress := e.clock.Now()
	consecutiveErrs := 0

	for e.clock.Now().Before(st.Deadline) {
		if s := interruptStatus(ctx); s != "" {
			return s
		}

		e.ensureValidPage()

		kind, err := timing.WeightedChoice(e.src, e.cfg.Warmup.ActionWeights)
		if err != nil {
			// Misconfigured weights never abort a running session.
			kind = ActionScrollDown
		}

		res := e.executeAction(st, kind)
		if strings.HasPrefix(res.SkipReason, "interaction error") {
			consecutiveErrs++
			if consecutiveErrs == 3 {
				// Transient DOM flux is expected on a live feed; keep a
				// diagnostic shot but do not abort.
				e.log.Warnf("%d consecutive interaction errors, continuing", consecutiveErrs)
				e.captureScreenshot(st, "dom_flux")
			}
		} else {
			consecutiveErrs = 0
		}

		e.clock.Sleep(e.cfg.Warmup.ActionIntervalSeconds.Seconds(e.src))

		if now := e.clock.Now(); progressEvery > 0 && now.Sub(lastProgress) >= progressEvery {
			remaining := st.Deadline.Sub(now).Seconds()
			e.publish(st, fmt.Sprintf("Engaging, %.1f min remaining", remaining/60), remaining)
			lastProgress = now
		}
	}
	return ""
}

// friendSuggestions performs a bounded number of friend-request attempts
// from the suggestions view.
func (e *Engine) friendSuggestions(ctx context.Context, st *SessionState) Status {
	wc := &e.cfg.Warmup

	if err := e.driver.Navigate(e.cfg.Facebook.SuggestionsURL); err != nil {
		e.log.WithError(err).Debug("failed to open friend suggestions")
		return ""
	}

	for i := 0; i < wc.FriendSuggestionScrolls; i++ {
		e.doScrollDown(st)
	}

	planned := wc.FriendRequestMinPlanned
	if spread := wc.FriendRequestMaxPlanned - wc.FriendRequestMinPlanned; spread > 0 {
		planned += e.src.Intn(spread + 1)
	}
	e.log.Debugf("planning %d friend requests", planned)

	for i := 0; i < planned; i++ {
		if s := interruptStatus(ctx); s != "" {
			return s
		}
		if timing.ProbabilityGate(e.src, wc.FriendRequestSendChance) {
			e.executeAction(st, ActionFriendRequest)
		} else {
			// Just browse the suggestions without adding.
			e.doScrollDown(st)
			e.doPauseReading(st)
		}
	}
	return ""
}

// preLogoutIdle waits out the profile's logout delay while scrolling
// lightly, so the session does not go dead-still before logout.
func (e *Engine) preLogoutIdle(ctx context.Context, st *SessionState) Status {
	idleEnd := e.clock.Now().Add(st.Profile.LogoutDelayMinutes.Minutes(e.src))

	for e.clock.Now().Before(idleEnd) {
		if s := interruptStatus(ctx); s != "" {
			return s
		}
		pixels := 200 + e.src.Intn(201)
		if err := e.driver.Scroll(pixels); err == nil {
			st.ScrollCount++
			st.ScrolledPixels += pixels
		}
		e.clock.Sleep(timing.SampleDelay(e.src, 10*time.Second, 20*time.Second))
	}
	return ""
}

// ensureValidPage redirects back to the feed when the browser wandered
// off the allowed locations.
func (e *Engine) ensureValidPage() {
	url, err := e.driver.CurrentURL()
	if err != nil {
		return
	}

	trimmed := strings.TrimRight(url, "/")
	if strings.HasSuffix(trimmed, "facebook.com") {
		return
	}
	for _, valid := range e.cfg.Selectors.ValidPages {
		if strings.Contains(url, valid) {
			return
		}
	}

	e.log.Warnf("unexpected location %s, returning to feed", url)
	if err := e.driver.Navigate(e.cfg.Facebook.FeedURL); err != nil {
		e.log.WithError(err).Debug("failed to navigate back to feed")
	}
}

// finishTimedOut handles the hard-deadline path: reclaim everything now.
func (e *Engine) finishTimedOut(st *SessionState) *SessionResult {
	e.log.Error("session hit hard deadline, forcing cleanup")
	e.pool.ForceCleanupAll()
	st.Status = StatusTimedOut
	st.ErrorDetail = "session exceeded hard deadline"
	e.publish(st, "Session timed out", 0)
	return st.result(e.clock.Now(), "")
}

// publish sends a status event. The sink contract is fire-and-forget.
func (e *Engine) publish(st *SessionState, message string, remaining float64) {
	e.sink.Publish(st.SessionID, Event{
		SessionID:        st.SessionID,
		Phase:            string(st.Phase),
		Message:          message,
		Counters:         st.Counters(),
		RemainingSeconds: remaining,
		Timestamp:        e.clock.Now(),
	})
}

// captureScreenshot stores an audit screenshot, best-effort.
func (e *Engine) captureScreenshot(st *SessionState, label string) {
	dir := e.cfg.Storage.ScreenshotsDir
	if dir == "" {
		return
	}
	data, err := e.driver.Screenshot()
	if err != nil {
		e.log.WithError(err).Debug("screenshot failed")
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return
	}
	name := fmt.Sprintf("%s_%s_%d.png", st.SessionID, label, len(st.Screenshots)+1)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		e.log.WithError(err).Debug("failed to save screenshot")
		return
	}
	st.Screenshots = append(st.Screenshots, path)
}

// interruptStatus maps context state to an interrupting session status.
func interruptStatus(ctx context.Context) Status {
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return StatusTimedOut
		}
		return StatusCancelled
	default:
		return ""
	}
}
