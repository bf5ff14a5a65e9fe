// Package warmup implements the session orchestration and human-behavior
// emulation engine. It drives a logged-in browser through a randomized
// engagement session (scroll, like, pause, friend requests) under rate
// limits and a duration budget, and returns an auditable result.
//
// The package owns only the state machine and the probabilistic action
// logic. Browser control, login, status broadcast and concurrency limiting
// are injected collaborators; no globals are consulted.
package warmup

import (
	"context"
	"fmt"
	"time"
)

// Point is an on-screen coordinate, used to deduplicate targets.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Target is one actionable page element found by the browser collaborator.
// Ref is a driver-private handle and is opaque to the engine.
type Target struct {
	Kind     string
	Position Point
	Ref      interface{}
}

// TargetFilter narrows target discovery to real post controls.
type TargetFilter struct {
	// Targets whose text matches any entry are excluded (composer, ads,
	// navigation chrome).
	ExcludedText []string

	// Targets above this Y coordinate are excluded.
	MinY float64

	// At most this many targets are returned.
	Limit int
}

// BrowserDriver is the page interaction collaborator. Any method may
// return an *InteractionError; the engine recovers from those locally.
type BrowserDriver interface {
	Navigate(url string) error
	CurrentURL() (string, error)
	FindActionable(kind string, filter TargetFilter) ([]Target, error)
	Click(t Target) error
	TypeText(t Target, text string) error
	PressEnter() error
	Scroll(deltaY int) error
	// Describe returns best-effort descriptive metadata for a target,
	// such as the post author's name.
	Describe(t Target) (string, error)
	Screenshot() ([]byte, error)
	PageText() (string, error)
}

// InteractionError wraps a browser-level failure. These are expected on a
// live feed (transient DOM flux) and never abort a session by themselves.
type InteractionError struct {
	Op  string
	Err error
}

func (e *InteractionError) Error() string {
	return fmt.Sprintf("interaction %s: %v", e.Op, e.Err)
}

func (e *InteractionError) Unwrap() error { return e.Err }

// LoginFailureKind distinguishes why a login failed. Each kind is a
// distinct terminal outcome, not a generic error.
type LoginFailureKind string

const (
	LoginFailureNone            LoginFailureKind = ""
	LoginFailureCheckpoint      LoginFailureKind = "checkpoint"
	LoginFailureTwoFactor       LoginFailureKind = "two_factor"
	LoginFailureBadCredentials  LoginFailureKind = "bad_credentials"
	LoginFailureAccountDisabled LoginFailureKind = "account_disabled"
	LoginFailureUnknown         LoginFailureKind = "unknown"
)

// LoginOutcome is the result of a login attempt.
type LoginOutcome struct {
	Success        bool
	FailureKind    LoginFailureKind
	Diagnostic     string
	ScreenshotPath string
}

// LoginService is the credential login collaborator.
type LoginService interface {
	Login(email, password string) LoginOutcome
	Logout() error
}

// Event is one status snapshot published during a session.
type Event struct {
	SessionID        string         `json:"session_id"`
	Phase            string         `json:"phase"`
	Message          string         `json:"message"`
	Counters         map[string]int `json:"counters,omitempty"`
	RemainingSeconds float64        `json:"remaining_seconds,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

// StatusSink receives session events. Publish is fire-and-forget: it must
// never block the engine and its failures are ignored.
type StatusSink interface {
	Publish(sessionID string, ev Event)
}

// NopSink discards all events.
type NopSink struct{}

// Publish implements StatusSink.
func (NopSink) Publish(string, Event) {}

// ResourcePool bounds how many sessions hold a browser at once. The
// engine acquires a slot before Starting and releases it on every exit
// path, so slot leakage under repeated crashes is impossible.
type ResourcePool interface {
	Acquire(ctx context.Context) error
	Release()
	// ForceCleanupAll reclaims any held browser resources after a fatal
	// error or timeout.
	ForceCleanupAll()
}
