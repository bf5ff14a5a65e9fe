package warmup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/anvita/facebook-warmup/config"
	"github.com/anvita/facebook-warmup/logger"
	"github.com/anvita/facebook-warmup/timing"
)

// fakeClock advances instantly on Sleep, so sessions that would take
// minutes run in microseconds.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time        { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

// fakeDriver is a scripted page. Targets are keyed by selector kind.
type fakeDriver struct {
	url           string
	targets       map[string][]Target
	scrollErr     error
	findErr       error
	panicOnScroll bool

	navigations []string
	clicks      []string
	typed       []string
	scrolls     int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		url:     "https://www.facebook.com",
		targets: make(map[string][]Target),
	}
}

func (d *fakeDriver) Navigate(url string) error {
	d.navigations = append(d.navigations, url)
	return nil
}

func (d *fakeDriver) CurrentURL() (string, error) { return d.url, nil }

func (d *fakeDriver) FindActionable(kind string, filter TargetFilter) ([]Target, error) {
	if d.findErr != nil {
		return nil, d.findErr
	}
	targets := d.targets[kind]
	if filter.Limit > 0 && len(targets) > filter.Limit {
		targets = targets[:filter.Limit]
	}
	return targets, nil
}

func (d *fakeDriver) Click(t Target) error {
	d.clicks = append(d.clicks, t.Kind)
	return nil
}

func (d *fakeDriver) TypeText(t Target, text string) error {
	d.typed = append(d.typed, text)
	return nil
}

func (d *fakeDriver) PressEnter() error { return nil }

func (d *fakeDriver) Scroll(deltaY int) error {
	if d.panicOnScroll {
		panic("page connection lost")
	}
	if d.scrollErr != nil {
		return d.scrollErr
	}
	d.scrolls++
	return nil
}

func (d *fakeDriver) Describe(t Target) (string, error) { return "Pat Example", nil }
func (d *fakeDriver) Screenshot() ([]byte, error)       { return nil, errors.New("no screen") }
func (d *fakeDriver) PageText() (string, error)         { return "", nil }

type fakeLogin struct {
	outcome     LoginOutcome
	logoutCalls int
	logoutErr   error
}

func (l *fakeLogin) Login(email, password string) LoginOutcome { return l.outcome }
func (l *fakeLogin) Logout() error {
	l.logoutCalls++
	return l.logoutErr
}

type fakePool struct {
	acquires   int
	releases   int
	forced     int
	acquireErr error
}

func (p *fakePool) Acquire(ctx context.Context) error {
	if p.acquireErr != nil {
		return p.acquireErr
	}
	p.acquires++
	return nil
}
func (p *fakePool) Release()         { p.releases++ }
func (p *fakePool) ForceCleanupAll() { p.forced++ }

type captureSink struct {
	events []Event
}

func (s *captureSink) Publish(sessionID string, ev Event) {
	s.events = append(s.events, ev)
}

// testConfig returns a config whose single profile finishes instantly.
// Individual tests dial phases back up as needed.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Storage.ScreenshotsDir = ""
	cfg.Warmup.Profiles = []config.ProfileConfig{{
		Name:               "test",
		Weight:             1,
		ScrollMinutes:      timing.Range{Min: 0, Max: 0},
		LogoutDelayMinutes: timing.Range{Min: 0, Max: 0},
		FriendProbability:  0,
		MaxLikes:           5,
	}}
	cfg.Warmup.ActionIntervalSeconds = timing.Range{Min: 1, Max: 1}
	return cfg
}

type fixture struct {
	cfg    *config.Config
	driver *fakeDriver
	login  *fakeLogin
	pool   *fakePool
	sink   *captureSink
	clock  *fakeClock
	engine *Engine
}

func newFixture(cfg *config.Config) *fixture {
	f := &fixture{
		cfg:    cfg,
		driver: newFakeDriver(),
		login:  &fakeLogin{outcome: LoginOutcome{Success: true}},
		pool:   &fakePool{},
		sink:   &captureSink{},
		clock:  newFakeClock(),
	}
	f.engine = New(cfg, logger.Discard(), f.driver, f.login, f.pool,
		WithSource(timing.NewSeededSource(1)),
		WithClock(f.clock),
		WithSink(f.sink),
	)
	return f
}

func (f *fixture) assertPoolBalanced(t *testing.T) {
	t.Helper()
	if f.pool.acquires != 1 || f.pool.releases != 1 {
		t.Errorf("pool not balanced: %d acquires, %d releases", f.pool.acquires, f.pool.releases)
	}
}

func TestRunLoginFailureIsTerminal(t *testing.T) {
	f := newFixture(testConfig())
	f.login.outcome = LoginOutcome{
		FailureKind: LoginFailureBadCredentials,
		Diagnostic:  "wrong password message displayed",
	}

	res := f.engine.Run(context.Background(), "a@example.com", "bad")

	if res.Status != StatusLoginFailed {
		t.Fatalf("status = %s, want %s", res.Status, StatusLoginFailed)
	}
	if res.LoginFailure != LoginFailureBadCredentials {
		t.Errorf("login failure = %q", res.LoginFailure)
	}
	if res.Likes != 0 || res.Comments != 0 || res.FriendRequests != 0 || res.ScrollCount != 0 {
		t.Error("failed login must perform zero engagement actions")
	}
	if f.login.logoutCalls != 0 {
		t.Error("failed login must not attempt logout")
	}
	f.assertPoolBalanced(t)
}

func TestRunCompletesWithZeroDurations(t *testing.T) {
	f := newFixture(testConfig())

	res := f.engine.Run(context.Background(), "a@example.com", "pw")

	if res.Status != StatusCompleted {
		t.Fatalf("status = %s (%s), want %s", res.Status, res.Error, StatusCompleted)
	}
	if f.login.logoutCalls != 1 {
		t.Errorf("logout calls = %d, want 1", f.login.logoutCalls)
	}
	if res.SessionProfile != "test" {
		t.Errorf("profile = %q", res.SessionProfile)
	}
	if _, ok := res.Timing[string(PhaseEngaging)]; !ok {
		t.Error("timing should record the engaging phase even at zero length")
	}
	f.assertPoolBalanced(t)

	if len(f.sink.events) == 0 {
		t.Fatal("expected status events")
	}
	last := f.sink.events[len(f.sink.events)-1]
	if !strings.Contains(last.Message, "completed") {
		t.Errorf("last event message = %q", last.Message)
	}
}

func TestRunLikesRespectProfileCap(t *testing.T) {
	cfg := testConfig()
	cfg.Warmup.Profiles[0].ScrollMinutes = timing.Range{Min: 0.1, Max: 0.1}
	cfg.Warmup.Profiles[0].MaxLikes = 2
	cfg.Warmup.ActionWeights = map[string]float64{"like_post": 1}
	cfg.Warmup.Like.Probability = 1
	cfg.Warmup.Like.MaxPerSession = 10
	cfg.Warmup.Like.IntervalSeconds = timing.Range{Min: 0, Max: 0}

	f := newFixture(cfg)
	f.driver.targets["like"] = []Target{{Kind: "like", Position: Point{X: 100, Y: 400}}}

	res := f.engine.Run(context.Background(), "a@example.com", "pw")

	if res.Status != StatusCompleted {
		t.Fatalf("status = %s (%s)", res.Status, res.Error)
	}
	if res.Likes != 2 {
		t.Errorf("likes = %d, want exactly the profile cap of 2", res.Likes)
	}
	if len(res.LikedPosts) != 2 {
		t.Errorf("liked posts = %d", len(res.LikedPosts))
	}
	for _, lp := range res.LikedPosts {
		if lp.Author != "Pat Example" {
			t.Errorf("liked post author = %q", lp.Author)
		}
	}
	f.assertPoolBalanced(t)
}

func TestRunCancellationWindsDown(t *testing.T) {
	cfg := testConfig()
	cfg.Warmup.Profiles[0].ScrollMinutes = timing.Range{Min: 1, Max: 1}
	cfg.Warmup.Profiles[0].FriendProbability = 1

	f := newFixture(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.engine.Run(ctx, "a@example.com", "pw")

	if res.Status != StatusCancelled {
		t.Fatalf("status = %s (%s), want %s", res.Status, res.Error, StatusCancelled)
	}
	// Cancellation skips the friend suggestions excursion entirely.
	for _, url := range f.driver.navigations {
		if strings.Contains(url, "suggestions") {
			t.Error("cancelled session must not visit friend suggestions")
		}
	}
	if f.login.logoutCalls != 1 {
		t.Errorf("cancelled session should still log out, calls = %d", f.login.logoutCalls)
	}
	if _, ok := res.Timing[string(PhasePreLogoutIdle)]; !ok {
		t.Error("timing should record the pre-logout phase")
	}
	f.assertPoolBalanced(t)
}

func TestRunDeadlineForcesCleanup(t *testing.T) {
	cfg := testConfig()
	cfg.Warmup.Profiles[0].ScrollMinutes = timing.Range{Min: 1, Max: 1}

	f := newFixture(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()

	res := f.engine.Run(ctx, "a@example.com", "pw")

	if res.Status != StatusTimedOut {
		t.Fatalf("status = %s (%s), want %s", res.Status, res.Error, StatusTimedOut)
	}
	if f.pool.forced == 0 {
		t.Error("timeout must force resource cleanup")
	}
	if f.login.logoutCalls != 0 {
		t.Error("timed out session must not attempt an orderly logout")
	}
	f.assertPoolBalanced(t)
}

func TestRunAcquireFailure(t *testing.T) {
	f := newFixture(testConfig())
	f.pool.acquireErr = errors.New("pool exhausted")

	res := f.engine.Run(context.Background(), "a@example.com", "pw")

	if res.Status != StatusError {
		t.Fatalf("status = %s, want %s", res.Status, StatusError)
	}
	if !strings.Contains(res.Error, "no browser slot") {
		t.Errorf("error = %q", res.Error)
	}
	if f.pool.releases != 0 {
		t.Error("failed acquire must not release")
	}
	if f.login.logoutCalls != 0 {
		t.Error("failed acquire must not reach login")
	}
}

func TestRunRecoversFromPanic(t *testing.T) {
	cfg := testConfig()
	cfg.Warmup.Profiles[0].ScrollMinutes = timing.Range{Min: 1, Max: 1}
	cfg.Warmup.ActionWeights = map[string]float64{"scroll_down": 1}

	f := newFixture(cfg)
	f.driver.panicOnScroll = true

	res := f.engine.Run(context.Background(), "a@example.com", "pw")

	if res == nil {
		t.Fatal("Run must always return a result")
	}
	if res.Status != StatusError {
		t.Fatalf("status = %s, want %s", res.Status, StatusError)
	}
	if !strings.Contains(res.Error, "panic") {
		t.Errorf("error = %q", res.Error)
	}
	if f.pool.forced == 0 {
		t.Error("panic must force resource cleanup")
	}
	f.assertPoolBalanced(t)
}

func TestRunFriendSuggestions(t *testing.T) {
	cfg := testConfig()
	cfg.Warmup.Profiles[0].FriendProbability = 1
	cfg.Warmup.FriendRequestMinPlanned = 2
	cfg.Warmup.FriendRequestMaxPlanned = 2
	cfg.Warmup.FriendRequestSendChance = 1
	cfg.Warmup.FriendRequest.MaxPerSession = 3
	cfg.Warmup.FriendRequest.IntervalSeconds = timing.Range{Min: 0, Max: 0}

	f := newFixture(cfg)
	f.driver.targets["friend_request"] = []Target{{Kind: "friend_request", Position: Point{X: 200, Y: 500}}}

	res := f.engine.Run(context.Background(), "a@example.com", "pw")

	if res.Status != StatusCompleted {
		t.Fatalf("status = %s (%s)", res.Status, res.Error)
	}
	if res.FriendRequests != 2 {
		t.Errorf("friend requests = %d, want 2", res.FriendRequests)
	}
	if len(res.FriendsRequested) != 2 {
		t.Errorf("friends requested records = %d", len(res.FriendsRequested))
	}

	visitedSuggestions := false
	returnedToFeed := false
	for i, url := range f.driver.navigations {
		if url == cfg.Facebook.SuggestionsURL {
			visitedSuggestions = true
		}
		if visitedSuggestions && url == cfg.Facebook.FeedURL && i > 0 {
			returnedToFeed = true
		}
	}
	if !visitedSuggestions {
		t.Error("session should visit the suggestions page")
	}
	if !returnedToFeed {
		t.Error("session should return to the feed after suggestions")
	}
	f.assertPoolBalanced(t)
}

func TestRunToleratesInteractionErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Warmup.Profiles[0].ScrollMinutes = timing.Range{Min: 0.1, Max: 0.1}
	cfg.Warmup.ActionWeights = map[string]float64{"scroll_down": 1}

	f := newFixture(cfg)
	f.driver.scrollErr = &InteractionError{Op: "scroll", Err: errors.New("node detached")}

	res := f.engine.Run(context.Background(), "a@example.com", "pw")

	if res.Status != StatusCompleted {
		t.Fatalf("interaction errors must not abort: status = %s (%s)", res.Status, res.Error)
	}
	if res.ScrollCount != 0 {
		t.Errorf("no scroll should have been recorded, got %d", res.ScrollCount)
	}
	f.assertPoolBalanced(t)
}

func TestRunFixedSessionID(t *testing.T) {
	f := newFixture(testConfig())
	f.engine.sessionID = "task-123"

	res := f.engine.Run(context.Background(), "a@example.com", "pw")

	if res.SessionID != "task-123" {
		t.Errorf("session id = %q, want task-123", res.SessionID)
	}
	for _, ev := range f.sink.events {
		if ev.SessionID != "task-123" {
			t.Fatalf("event session id = %q", ev.SessionID)
		}
	}
}

func TestExecuteActionProbabilityGateSkips(t *testing.T) {
	cfg := testConfig()
	cfg.Warmup.Like.Probability = 0

	f := newFixture(cfg)
	f.driver.targets["like"] = []Target{{Kind: "like"}}

	st := newSessionState("s", "a@example.com", cfg.Warmup.Profiles[0], &cfg.Warmup, f.clock.Now())
	res := f.engine.executeAction(st, ActionLikePost)

	if res.Succeeded {
		t.Fatal("p=0 like should never succeed")
	}
	if !strings.Contains(res.SkipReason, "probability") {
		t.Errorf("skip reason = %q", res.SkipReason)
	}
	if st.Likes != 0 {
		t.Error("skipped action must not touch counters")
	}
}

func TestExecuteActionNoTargets(t *testing.T) {
	cfg := testConfig()
	cfg.Warmup.Comment.Probability = 1

	f := newFixture(cfg)

	st := newSessionState("s", "a@example.com", cfg.Warmup.Profiles[0], &cfg.Warmup, f.clock.Now())
	res := f.engine.executeAction(st, ActionCommentPost)

	if res.Succeeded {
		t.Fatal("no targets means no comment")
	}
	if !strings.Contains(res.SkipReason, "none found") {
		t.Errorf("skip reason = %q", res.SkipReason)
	}
}

func TestExecuteActionUnknownKindScrolls(t *testing.T) {
	f := newFixture(testConfig())

	st := newSessionState("s", "a@example.com", f.cfg.Warmup.Profiles[0], &f.cfg.Warmup, f.clock.Now())
	res := f.engine.executeAction(st, "moonwalk")

	if !res.Succeeded || res.Kind != ActionScrollDown {
		t.Errorf("unknown kind should fall back to scroll, got %+v", res)
	}
	if st.ScrollCount != 1 {
		t.Errorf("scroll count = %d", st.ScrollCount)
	}
}

func TestSessionStateTiming(t *testing.T) {
	cfg := testConfig()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	st := newSessionState("s", "a@example.com", cfg.Warmup.Profiles[0], &cfg.Warmup, now)
	st.enterPhase(PhaseLoggingIn, now)
	st.enterPhase(PhaseEngaging, now.Add(5*time.Second))
	st.enterPhase(PhaseLoggingOut, now.Add(65*time.Second))

	res := st.result(now.Add(70*time.Second), "")

	if got := res.Timing[string(PhaseLoggingIn)]; got != 5 {
		t.Errorf("logging_in seconds = %v, want 5", got)
	}
	if got := res.Timing[string(PhaseEngaging)]; got != 60 {
		t.Errorf("engaging seconds = %v, want 60", got)
	}
	if res.DurationSeconds != 70 {
		t.Errorf("duration = %v, want 70", res.DurationSeconds)
	}
}
