package warmup

import (
	"time"

	"github.com/anvita/facebook-warmup/config"
)

// Phase is one step of the session state machine. Phases advance
// monotonically; none is revisited once left.
type Phase string

const (
	PhaseStarting          Phase = "starting"
	PhaseLoggingIn         Phase = "logging_in"
	PhaseEngaging          Phase = "engaging"
	PhaseFriendSuggestions Phase = "friend_suggestions"
	PhasePreLogoutIdle     Phase = "pre_logout_idle"
	PhaseLoggingOut        Phase = "logging_out"
	PhaseDone              Phase = "done"
)

// Status is the terminal outcome of a session.
type Status string

const (
	StatusStarted     Status = "started"
	StatusLoggedIn    Status = "logged_in"
	StatusLoginFailed Status = "login_failed"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
	StatusTimedOut    Status = "timeout"
	StatusCancelled   Status = "cancelled"
)

// LikedPost is the audit record for one successful like.
type LikedPost struct {
	Author    string    `json:"author"`
	Preview   string    `json:"content_preview,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FriendRequested is the audit record for one sent friend request.
type FriendRequested struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// ActionResult is the ephemeral outcome of one executor invocation. It is
// aggregated into the session state and not persisted on its own.
type ActionResult struct {
	Kind       string
	Succeeded  bool
	SkipReason string
	Detail     string
}

// SessionState is the mutable state of one running warmup. It is owned by
// the orchestrator and mutated only by it and the executors it calls.
type SessionState struct {
	SessionID string
	Email     string
	Profile   config.ProfileConfig

	StartedAt  time.Time
	Deadline   time.Time // fixed once computed, never recomputed
	Phase      Phase
	Status     Status
	ErrorDetail string

	ScrollCount    int
	ScrolledPixels int
	Likes          int
	Comments       int
	FriendRequests int
	VideosWatched  int

	LikedPosts       []LikedPost
	FriendsRequested []FriendRequested
	Screenshots      []string

	// Timing holds elapsed seconds per phase.
	Timing map[string]float64

	likeGuard    *rateGuard
	commentGuard *rateGuard
	friendGuard  *rateGuard
	videoGuard   *rateGuard

	phaseEnteredAt time.Time
}

func newSessionState(sessionID, email string, profile config.ProfileConfig, cfg *config.WarmupConfig, now time.Time) *SessionState {
	maxLikes := profile.MaxLikes
	if cfg.Like.MaxPerSession > 0 && cfg.Like.MaxPerSession < maxLikes {
		maxLikes = cfg.Like.MaxPerSession
	}

	return &SessionState{
		SessionID: sessionID,
		Email:     email,
		Profile:   profile,
		StartedAt: now,
		Phase:     PhaseStarting,
		Status:    StatusStarted,
		Timing:    make(map[string]float64),

		likeGuard:    newRateGuard("like", maxLikes, minIntervalOf(cfg.Like)),
		commentGuard: newRateGuard("comment", cfg.Comment.MaxPerSession, minIntervalOf(cfg.Comment)),
		friendGuard:  newRateGuard("friend_request", cfg.FriendRequest.MaxPerSession, minIntervalOf(cfg.FriendRequest)),
		videoGuard:   newRateGuard("watch_video", cfg.Video.MaxPerSession, 0),

		phaseEnteredAt: now,
	}
}

func minIntervalOf(ac config.ActionConfig) time.Duration {
	return time.Duration(ac.IntervalSeconds.Min * float64(time.Second))
}

// enterPhase closes timing for the current phase and opens the next one.
func (s *SessionState) enterPhase(p Phase, now time.Time) {
	if s.Phase != "" {
		s.Timing[string(s.Phase)] += now.Sub(s.phaseEnteredAt).Seconds()
	}
	s.Phase = p
	s.phaseEnteredAt = now
}

// Counters returns the counter snapshot published in progress events.
func (s *SessionState) Counters() map[string]int {
	return map[string]int{
		"scrolls":         s.ScrollCount,
		"likes":           s.Likes,
		"comments":        s.Comments,
		"friend_requests": s.FriendRequests,
		"videos_watched":  s.VideosWatched,
	}
}

// SessionResult is the serialized terminal state returned to the caller.
type SessionResult struct {
	SessionID       string             `json:"session_id"`
	Email           string             `json:"email"`
	Status          Status             `json:"status"`
	SessionProfile  string             `json:"session_profile"`
	Likes           int                `json:"likes"`
	LikedPosts      []LikedPost        `json:"liked_posts"`
	Comments        int                `json:"comments"`
	FriendRequests  int                `json:"friend_requests"`
	FriendsRequested []FriendRequested `json:"friends_requested"`
	VideosWatched   int                `json:"videos_watched"`
	ScrollCount     int                `json:"scroll_count"`
	ScrolledPixels  int                `json:"scrolled_pixels"`
	DurationSeconds float64            `json:"duration_seconds"`
	Timing          map[string]float64 `json:"timing"`
	Screenshots     []string           `json:"screenshots,omitempty"`
	LoginFailure    LoginFailureKind   `json:"login_failure,omitempty"`
	Error           string             `json:"error,omitempty"`
}

// result finalizes the state into the caller-facing report.
func (s *SessionState) result(now time.Time, failure LoginFailureKind) *SessionResult {
	s.enterPhase(PhaseDone, now)
	delete(s.Timing, string(PhaseDone))

	return &SessionResult{
		SessionID:        s.SessionID,
		Email:            s.Email,
		Status:           s.Status,
		SessionProfile:   s.Profile.Name,
		Likes:            s.Likes,
		LikedPosts:       s.LikedPosts,
		Comments:         s.Comments,
		FriendRequests:   s.FriendRequests,
		FriendsRequested: s.FriendsRequested,
		VideosWatched:    s.VideosWatched,
		ScrollCount:      s.ScrollCount,
		ScrolledPixels:   s.ScrolledPixels,
		DurationSeconds:  now.Sub(s.StartedAt).Seconds(),
		Timing:           s.Timing,
		Screenshots:      s.Screenshots,
		LoginFailure:     failure,
		Error:            s.ErrorDetail,
	}
}
