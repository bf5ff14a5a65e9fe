package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/anvita/facebook-warmup/logger"
	"github.com/anvita/facebook-warmup/warmup"
)

func testDB(t *testing.T) *Database {
	t.Helper()

	db, err := NewDatabase(filepath.Join(t.TempDir(), "warmup.db"), logger.Discard())
	if err != nil {
		t.Fatalf("NewDatabase failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleResult(id, email string, status warmup.Status) *warmup.SessionResult {
	return &warmup.SessionResult{
		SessionID:      id,
		Email:          email,
		Status:         status,
		SessionProfile: "normal",
		Likes:          3,
		LikedPosts: []warmup.LikedPost{
			{Author: "Pat Example", Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		},
		Comments:       1,
		FriendRequests: 2,
		FriendsRequested: []warmup.FriendRequested{
			{Name: "Sam Suggested", Timestamp: time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)},
		},
		VideosWatched:   1,
		ScrollCount:     40,
		ScrolledPixels:  18000,
		DurationSeconds: 600,
		Timing: map[string]float64{
			"logging_in": 12.5,
			"engaging":   540,
		},
	}
}

func TestSaveAndGetSessionResult(t *testing.T) {
	db := testDB(t)

	saved := sampleResult("sess-1", "a@example.com", warmup.StatusCompleted)
	if err := db.SaveSessionResult(saved); err != nil {
		t.Fatalf("SaveSessionResult failed: %v", err)
	}

	got, err := db.GetSessionResult("sess-1")
	if err != nil {
		t.Fatalf("GetSessionResult failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected a session, got nil")
	}

	if got.SessionID != "sess-1" || got.Email != "a@example.com" {
		t.Errorf("identity mismatch: %s / %s", got.SessionID, got.Email)
	}
	if got.Status != warmup.StatusCompleted {
		t.Errorf("status = %s", got.Status)
	}
	if got.Likes != 3 || got.Comments != 1 || got.FriendRequests != 2 || got.VideosWatched != 1 {
		t.Errorf("counters lost: %+v", got)
	}
	if len(got.LikedPosts) != 1 || got.LikedPosts[0].Author != "Pat Example" {
		t.Errorf("liked posts lost: %+v", got.LikedPosts)
	}
	if len(got.FriendsRequested) != 1 || got.FriendsRequested[0].Name != "Sam Suggested" {
		t.Errorf("friends requested lost: %+v", got.FriendsRequested)
	}
	if got.Timing["engaging"] != 540 {
		t.Errorf("timing lost: %v", got.Timing)
	}
}

func TestGetSessionResultMissing(t *testing.T) {
	db := testDB(t)

	got, err := db.GetSessionResult("nope")
	if err != nil {
		t.Fatalf("missing session should not error, got: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing session, got %+v", got)
	}
}

func TestGetRecentSessions(t *testing.T) {
	db := testDB(t)

	for i, id := range []string{"s1", "s2", "s3"} {
		res := sampleResult(id, "a@example.com", warmup.StatusCompleted)
		if err := db.SaveSessionResult(res); err != nil {
			t.Fatalf("save %d failed: %v", i, err)
		}
	}

	sessions, err := db.GetRecentSessions(2)
	if err != nil {
		t.Fatalf("GetRecentSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("limit not applied, got %d sessions", len(sessions))
	}

	all, err := db.GetRecentSessions(10)
	if err != nil {
		t.Fatalf("GetRecentSessions failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 sessions, got %d", len(all))
	}
}

func TestGetSessionsByEmail(t *testing.T) {
	db := testDB(t)

	db.SaveSessionResult(sampleResult("s1", "a@example.com", warmup.StatusCompleted))
	db.SaveSessionResult(sampleResult("s2", "b@example.com", warmup.StatusCompleted))
	db.SaveSessionResult(sampleResult("s3", "a@example.com", warmup.StatusError))

	sessions, err := db.GetSessionsByEmail("a@example.com")
	if err != nil {
		t.Fatalf("GetSessionsByEmail failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions for a@example.com, got %d", len(sessions))
	}
	for _, s := range sessions {
		if s.Email != "a@example.com" {
			t.Errorf("wrong email in result: %s", s.Email)
		}
	}
}

func TestDailyStatsAccumulate(t *testing.T) {
	db := testDB(t)

	db.SaveSessionResult(sampleResult("s1", "a@example.com", warmup.StatusCompleted))
	db.SaveSessionResult(sampleResult("s2", "a@example.com", warmup.StatusLoginFailed))

	stats, err := db.GetTodayStats()
	if err != nil {
		t.Fatalf("GetTodayStats failed: %v", err)
	}

	if stats.SessionsCompleted != 1 {
		t.Errorf("sessions completed = %d, want 1", stats.SessionsCompleted)
	}
	if stats.SessionsFailed != 1 {
		t.Errorf("sessions failed = %d, want 1", stats.SessionsFailed)
	}
	// Both sessions carried 3 likes and 2 friend requests.
	if stats.Likes != 6 {
		t.Errorf("likes = %d, want 6", stats.Likes)
	}
	if stats.FriendRequests != 4 {
		t.Errorf("friend requests = %d, want 4", stats.FriendRequests)
	}
}

func TestTodayStatsEmpty(t *testing.T) {
	db := testDB(t)

	stats, err := db.GetTodayStats()
	if err != nil {
		t.Fatalf("GetTodayStats failed: %v", err)
	}
	if stats.SessionsCompleted != 0 || stats.Likes != 0 {
		t.Errorf("fresh database should report zero stats: %+v", stats)
	}
}

func TestCookieRoundTrip(t *testing.T) {
	db := testDB(t)

	cookies := []*SessionCookie{
		{Name: "c_user", Value: "12345", Domain: ".facebook.com", Path: "/", Expires: time.Now().Add(24 * time.Hour).Unix(), HTTPOnly: true, Secure: true},
		{Name: "xs", Value: "abc", Domain: ".facebook.com", Path: "/", Secure: true},
	}

	if err := db.SaveCookies(cookies); err != nil {
		t.Fatalf("SaveCookies failed: %v", err)
	}

	loaded, err := db.LoadCookies()
	if err != nil {
		t.Fatalf("LoadCookies failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(loaded))
	}
	if loaded[0].Name != "c_user" || loaded[0].Value != "12345" {
		t.Errorf("cookie lost: %+v", loaded[0])
	}

	// Saving again replaces, never appends.
	if err := db.SaveCookies(cookies[:1]); err != nil {
		t.Fatalf("second SaveCookies failed: %v", err)
	}
	loaded, _ = db.LoadCookies()
	if len(loaded) != 1 {
		t.Errorf("expected replacement, got %d cookies", len(loaded))
	}
}

func TestCookieFileRoundTrip(t *testing.T) {
	db := testDB(t)
	path := filepath.Join(t.TempDir(), "cookies", "session.json")

	cookies := []*SessionCookie{
		{Name: "c_user", Value: "12345", Domain: ".facebook.com"},
	}

	if err := db.SaveCookiesToFile(cookies, path); err != nil {
		t.Fatalf("SaveCookiesToFile failed: %v", err)
	}

	loaded, err := db.LoadCookiesFromFile(path)
	if err != nil {
		t.Fatalf("LoadCookiesFromFile failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Name != "c_user" {
		t.Errorf("file round trip lost cookies: %+v", loaded)
	}
}

func TestLoadCookiesFromMissingFile(t *testing.T) {
	db := testDB(t)

	loaded, err := db.LoadCookiesFromFile(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("missing cookie file should not error, got: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil for missing file, got %+v", loaded)
	}
}
