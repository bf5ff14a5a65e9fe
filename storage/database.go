// Package storage provides data persistence using SQLite for the warmup
// service. It keeps the audit trail of completed sessions, daily activity
// statistics, and browser session cookies.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/anvita/facebook-warmup/logger"
	"github.com/anvita/facebook-warmup/warmup"
)

// Database wraps SQLite database operations
type Database struct {
	db     *sql.DB
	logger *logger.Logger
}

// DailyStats tracks daily activity statistics across sessions.
type DailyStats struct {
	Date              string `json:"date"`
	SessionsCompleted int    `json:"sessions_completed"`
	SessionsFailed    int    `json:"sessions_failed"`
	Likes             int    `json:"likes"`
	Comments          int    `json:"comments"`
	FriendRequests    int    `json:"friend_requests"`
	VideosWatched     int    `json:"videos_watched"`
}

// SessionCookie represents a stored browser cookie
type SessionCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Expires  int64  `json:"expires"`
	HTTPOnly bool   `json:"http_only"`
	Secure   bool   `json:"secure"`
}

// NewDatabase creates a new database connection
func NewDatabase(dbPath string, log *logger.Logger) (*Database, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	database := &Database{
		db:     db,
		logger: log.WithModule("storage"),
	}

	if err := database.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	database.logger.Info("Database initialized successfully")
	return database, nil
}

// initSchema creates the database tables if they don't exist
func (d *Database) initSchema() error {
	schema := `
	-- Completed warmup sessions (audit trail)
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		status TEXT NOT NULL,
		session_profile TEXT,
		likes INTEGER DEFAULT 0,
		comments INTEGER DEFAULT 0,
		friend_requests INTEGER DEFAULT 0,
		videos_watched INTEGER DEFAULT 0,
		scroll_count INTEGER DEFAULT 0,
		scrolled_pixels INTEGER DEFAULT 0,
		duration_seconds REAL DEFAULT 0,
		timing_json TEXT,
		liked_posts_json TEXT,
		friends_requested_json TEXT,
		screenshots_json TEXT,
		login_failure TEXT,
		error TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Daily stats table
	CREATE TABLE IF NOT EXISTS daily_stats (
		date TEXT PRIMARY KEY,
		sessions_completed INTEGER DEFAULT 0,
		sessions_failed INTEGER DEFAULT 0,
		likes INTEGER DEFAULT 0,
		comments INTEGER DEFAULT 0,
		friend_requests INTEGER DEFAULT 0,
		videos_watched INTEGER DEFAULT 0
	);

	-- Session cookies table
	CREATE TABLE IF NOT EXISTS session_cookies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		domain TEXT,
		path TEXT,
		expires INTEGER,
		http_only BOOLEAN,
		secure BOOLEAN,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Create indexes
	CREATE INDEX IF NOT EXISTS idx_sessions_email ON sessions(email);
	CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// ==============================================================================
// Session Operations
// ==============================================================================

// SaveSessionResult records the terminal result of one warmup session.
func (d *Database) SaveSessionResult(res *warmup.SessionResult) error {
	timingJSON, _ := json.Marshal(res.Timing)
	likedJSON, _ := json.Marshal(res.LikedPosts)
	friendsJSON, _ := json.Marshal(res.FriendsRequested)
	screenshotsJSON, _ := json.Marshal(res.Screenshots)

	query := `
		INSERT INTO sessions (
			session_id, email, status, session_profile,
			likes, comments, friend_requests, videos_watched,
			scroll_count, scrolled_pixels, duration_seconds,
			timing_json, liked_posts_json, friends_requested_json, screenshots_json,
			login_failure, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := d.db.Exec(query,
		res.SessionID, res.Email, string(res.Status), res.SessionProfile,
		res.Likes, res.Comments, res.FriendRequests, res.VideosWatched,
		res.ScrollCount, res.ScrolledPixels, res.DurationSeconds,
		string(timingJSON), string(likedJSON), string(friendsJSON), string(screenshotsJSON),
		string(res.LoginFailure), res.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save session result: %w", err)
	}

	d.logger.WithFields(map[string]interface{}{
		"session_id": res.SessionID,
		"status":     res.Status,
	}).Info("Session result saved")

	if res.Status == warmup.StatusCompleted {
		d.incrementDailyStat("sessions_completed", 1)
	} else {
		d.incrementDailyStat("sessions_failed", 1)
	}
	d.incrementDailyStat("likes", res.Likes)
	d.incrementDailyStat("comments", res.Comments)
	d.incrementDailyStat("friend_requests", res.FriendRequests)
	d.incrementDailyStat("videos_watched", res.VideosWatched)

	return nil
}

// GetSessionResult retrieves one session by id. Returns nil when no such
// session exists.
func (d *Database) GetSessionResult(sessionID string) (*warmup.SessionResult, error) {
	query := sessionSelect + ` WHERE session_id = ?`

	res, err := d.scanSession(d.db.QueryRow(query, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return res, nil
}

// GetRecentSessions retrieves the most recent sessions, newest first.
func (d *Database) GetRecentSessions(limit int) ([]*warmup.SessionResult, error) {
	query := sessionSelect + ` ORDER BY created_at DESC LIMIT ?`

	rows, err := d.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*warmup.SessionResult
	for rows.Next() {
		res, err := d.scanSession(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// GetSessionsByEmail retrieves all sessions for one account, newest first.
func (d *Database) GetSessionsByEmail(email string) ([]*warmup.SessionResult, error) {
	query := sessionSelect + ` WHERE email = ? ORDER BY created_at DESC`

	rows, err := d.db.Query(query, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*warmup.SessionResult
	for rows.Next() {
		res, err := d.scanSession(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

const sessionSelect = `
	SELECT session_id, email, status, session_profile,
		likes, comments, friend_requests, videos_watched,
		scroll_count, scrolled_pixels, duration_seconds,
		timing_json, liked_posts_json, friends_requested_json, screenshots_json,
		login_failure, error
	FROM sessions`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (d *Database) scanSession(row rowScanner) (*warmup.SessionResult, error) {
	res := &warmup.SessionResult{}
	var status, loginFailure string
	var timingJSON, likedJSON, friendsJSON, screenshotsJSON string

	err := row.Scan(
		&res.SessionID, &res.Email, &status, &res.SessionProfile,
		&res.Likes, &res.Comments, &res.FriendRequests, &res.VideosWatched,
		&res.ScrollCount, &res.ScrolledPixels, &res.DurationSeconds,
		&timingJSON, &likedJSON, &friendsJSON, &screenshotsJSON,
		&loginFailure, &res.Error,
	)
	if err != nil {
		return nil, err
	}

	res.Status = warmup.Status(status)
	res.LoginFailure = warmup.LoginFailureKind(loginFailure)
	json.Unmarshal([]byte(timingJSON), &res.Timing)
	json.Unmarshal([]byte(likedJSON), &res.LikedPosts)
	json.Unmarshal([]byte(friendsJSON), &res.FriendsRequested)
	json.Unmarshal([]byte(screenshotsJSON), &res.Screenshots)

	return res, nil
}

// ==============================================================================
// Daily Stats Operations
// ==============================================================================

// GetTodayStats returns today's activity statistics
func (d *Database) GetTodayStats() (*DailyStats, error) {
	today := time.Now().Format("2006-01-02")
	query := `SELECT date, sessions_completed, sessions_failed, likes, comments, friend_requests, videos_watched FROM daily_stats WHERE date = ?`

	stats := &DailyStats{Date: today}
	err := d.db.QueryRow(query, today).Scan(
		&stats.Date, &stats.SessionsCompleted, &stats.SessionsFailed,
		&stats.Likes, &stats.Comments, &stats.FriendRequests, &stats.VideosWatched,
	)

	if err == sql.ErrNoRows {
		return stats, nil
	}
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// incrementDailyStat adds n to a daily stat counter. Stat names come from
// code, never from input.
func (d *Database) incrementDailyStat(statName string, n int) error {
	if n == 0 {
		return nil
	}
	today := time.Now().Format("2006-01-02")

	insertQuery := `INSERT OR IGNORE INTO daily_stats (date) VALUES (?)`
	d.db.Exec(insertQuery, today)

	updateQuery := fmt.Sprintf(`UPDATE daily_stats SET %s = %s + ? WHERE date = ?`, statName, statName)
	_, err := d.db.Exec(updateQuery, n, today)
	return err
}

// ==============================================================================
// Cookie/Session Operations
// ==============================================================================

// SaveCookies saves session cookies, replacing any stored set.
func (d *Database) SaveCookies(cookies []*SessionCookie) error {
	d.db.Exec("DELETE FROM session_cookies")

	query := `INSERT INTO session_cookies (name, value, domain, path, expires, http_only, secure) VALUES (?, ?, ?, ?, ?, ?, ?)`

	for _, cookie := range cookies {
		_, err := d.db.Exec(query, cookie.Name, cookie.Value, cookie.Domain, cookie.Path, cookie.Expires, cookie.HTTPOnly, cookie.Secure)
		if err != nil {
			return fmt.Errorf("failed to save cookie: %w", err)
		}
	}

	d.logger.Infof("Saved %d session cookies", len(cookies))
	return nil
}

// LoadCookies loads session cookies
func (d *Database) LoadCookies() ([]*SessionCookie, error) {
	query := `SELECT name, value, domain, path, expires, http_only, secure FROM session_cookies`

	rows, err := d.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cookies []*SessionCookie
	for rows.Next() {
		cookie := &SessionCookie{}
		err := rows.Scan(&cookie.Name, &cookie.Value, &cookie.Domain, &cookie.Path, &cookie.Expires, &cookie.HTTPOnly, &cookie.Secure)
		if err != nil {
			return nil, err
		}
		cookies = append(cookies, cookie)
	}

	d.logger.Infof("Loaded %d session cookies", len(cookies))
	return cookies, nil
}

// SaveCookiesToFile saves cookies to a JSON file
func (d *Database) SaveCookiesToFile(cookies []*SessionCookie, filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filePath, data, 0600)
}

// LoadCookiesFromFile loads cookies from a JSON file
func (d *Database) LoadCookiesFromFile(filePath string) ([]*SessionCookie, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var cookies []*SessionCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, err
	}

	return cookies, nil
}
