// Package config provides configuration management for the warmup service.
// It supports YAML configuration files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anvita/facebook-warmup/timing"
)

// Config holds all configuration settings for the warmup service
type Config struct {
	// Facebook account defaults for single-run mode
	Facebook FacebookConfig `yaml:"facebook"`

	// Browser configuration
	Browser BrowserConfig `yaml:"browser"`

	// Stealth settings for human-like input
	Stealth StealthConfig `yaml:"stealth"`

	// Warmup session behavior
	Warmup WarmupConfig `yaml:"warmup"`

	// Page element selectors (injectable, may break when markup changes)
	Selectors SelectorsConfig `yaml:"selectors"`

	// HTTP API configuration
	Server ServerConfig `yaml:"server"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`

	// Operating hours for queued warmups
	Schedule ScheduleConfig `yaml:"schedule"`
}

// FacebookConfig holds account credentials and site URLs
type FacebookConfig struct {
	Email          string `yaml:"email"`
	Password       string `yaml:"password"`
	BaseURL        string `yaml:"base_url"`
	FeedURL        string `yaml:"feed_url"`
	SuggestionsURL string `yaml:"suggestions_url"`
	LogoutURL      string `yaml:"logout_url"`
}

// BrowserConfig holds browser automation settings
type BrowserConfig struct {
	Headless       bool   `yaml:"headless"`
	UserDataDir    string `yaml:"user_data_dir"`
	SlowMotion     int    `yaml:"slow_motion_ms"`
	Timeout        int    `yaml:"timeout_seconds"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
}

// StealthConfig holds human-like input settings
type StealthConfig struct {
	MouseSpeedMin     float64 `yaml:"mouse_speed_min"`
	MouseSpeedMax     float64 `yaml:"mouse_speed_max"`
	MouseOvershoot    bool    `yaml:"mouse_overshoot"`
	MouseMicroCorrect bool    `yaml:"mouse_micro_corrections"`
	ClickOffsetRange  int     `yaml:"click_offset_range"`

	TypingDelayMin    int     `yaml:"typing_delay_min_ms"`
	TypingDelayMax    int     `yaml:"typing_delay_max_ms"`
	TypingMistakeRate float64 `yaml:"typing_mistake_rate"`

	ScrollChunkMin   int     `yaml:"scroll_chunk_min"`
	ScrollChunkMax   int     `yaml:"scroll_chunk_max"`
	ScrollBackChance float64 `yaml:"scroll_back_chance"`

	ActionDelayMin  int `yaml:"action_delay_min_ms"`
	ActionDelayMax  int `yaml:"action_delay_max_ms"`
	PageLoadWaitMin int `yaml:"page_load_wait_min_ms"`
	PageLoadWaitMax int `yaml:"page_load_wait_max_ms"`

	RandomizeViewport bool `yaml:"randomize_viewport"`
	DisableWebdriver  bool `yaml:"disable_webdriver"`
	RandomUserAgent   bool `yaml:"random_user_agent"`
}

// ProfileConfig describes one named session profile. A profile is selected
// once per session by weighted random choice and never mutated.
type ProfileConfig struct {
	Name               string       `yaml:"name"`
	Weight             float64      `yaml:"weight"`
	ScrollMinutes      timing.Range `yaml:"scroll_minutes"`
	LogoutDelayMinutes timing.Range `yaml:"logout_delay_minutes"`
	FriendProbability  float64      `yaml:"friend_probability"`
	MaxLikes           int          `yaml:"max_likes"`
	Description        string       `yaml:"description"`
}

// ActionConfig holds the guard settings for one rate-limited action kind.
// IntervalSeconds.Min is the minimum spacing between successes; the
// post-action cooldown is sampled from the whole range.
type ActionConfig struct {
	Probability     float64      `yaml:"probability"`
	MaxPerSession   int          `yaml:"max_per_session"`
	IntervalSeconds timing.Range `yaml:"interval_seconds"`
}

// ScrollConfig holds feed scrolling behavior
type ScrollConfig struct {
	MinPixels    int          `yaml:"min_pixels"`
	MaxPixels    int          `yaml:"max_pixels"`
	UpMinPixels  int          `yaml:"up_min_pixels"`
	UpMaxPixels  int          `yaml:"up_max_pixels"`
	PauseSeconds timing.Range `yaml:"pause_seconds"`
}

// VideoConfig holds video watching behavior
type VideoConfig struct {
	WatchProbability float64      `yaml:"watch_probability"`
	WatchSeconds     timing.Range `yaml:"watch_seconds"`
	MaxPerSession    int          `yaml:"max_per_session"`
}

// WarmupConfig holds warmup session behavior settings
type WarmupConfig struct {
	Enabled bool `yaml:"enabled"`

	Profiles []ProfileConfig `yaml:"session_profiles"`

	// Relative weights for picking the next engagement action
	ActionWeights map[string]float64 `yaml:"action_weights"`

	Like          ActionConfig `yaml:"like"`
	Comment       ActionConfig `yaml:"comment"`
	FriendRequest ActionConfig `yaml:"friend_request"`
	Video         VideoConfig  `yaml:"video"`
	Scroll        ScrollConfig `yaml:"scroll"`

	// Small delay between loop iterations, seconds
	ActionIntervalSeconds timing.Range `yaml:"action_interval_seconds"`

	// How often a progress snapshot is published, seconds
	ProgressIntervalSeconds int `yaml:"progress_interval_seconds"`

	// Friend suggestion phase: scroll passes before sending, and the
	// per-planned-request send probability
	FriendSuggestionScrolls  int     `yaml:"friend_suggestion_scrolls"`
	FriendRequestSendChance  float64 `yaml:"friend_request_send_chance"`
	FriendRequestMinPlanned  int     `yaml:"friend_request_min_planned"`
	FriendRequestMaxPlanned  int     `yaml:"friend_request_max_planned"`

	PerformLogout bool `yaml:"perform_logout"`

	// How long Run waits for a browser slot, seconds
	AcquireTimeoutSeconds int `yaml:"acquire_timeout_seconds"`

	// Hard watchdog deadline for a whole session, minutes (0 disables)
	HardTimeoutMinutes int `yaml:"hard_timeout_minutes"`
}

// Locator is one element lookup strategy. By is "attribute", "role" or
// "text"; the browser layer tries locators in the order configured.
type Locator struct {
	By    string `yaml:"by"`
	Value string `yaml:"value"`
}

// SelectorsConfig holds all page element selectors. These are data, not
// code: they break when the target site's markup changes and are expected
// to be updated from configuration.
type SelectorsConfig struct {
	// Per action kind (like, comment, comment_box, friend_request, video,
	// video_play), tried in order
	Actionable map[string][]Locator `yaml:"actionable"`

	// Targets whose combined text matches any of these are never clicked
	ExcludedText []string `yaml:"excluded_text"`

	// Targets above this Y coordinate are composer/nav chrome, not posts
	MinTargetY float64 `yaml:"min_target_y"`

	// URL substrings considered a valid engagement location
	ValidPages []string `yaml:"valid_pages"`

	Login  LoginSelectors  `yaml:"login"`
	Logout LogoutSelectors `yaml:"logout"`
}

// LoginSelectors locate the login form and failure indicators
type LoginSelectors struct {
	EmailInput      []Locator `yaml:"email_input"`
	PasswordInput   []Locator `yaml:"password_input"`
	LoginButton     []Locator `yaml:"login_button"`
	WrongPassword   []string  `yaml:"wrong_password_markers"`
	AccountDisabled []string  `yaml:"account_disabled_markers"`
	TwoFactor       []string  `yaml:"two_factor_markers"`
}

// LogoutSelectors locate the account menu and logout control
type LogoutSelectors struct {
	ProfileMenu  []Locator `yaml:"profile_menu"`
	LogoutButton []Locator `yaml:"logout_button"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Addr                  string `yaml:"addr"`
	MaxConcurrentSessions int    `yaml:"max_concurrent_sessions"`
	RetryMaxAttempts      int    `yaml:"retry_max_attempts"`
	RetryBackoffSeconds   int    `yaml:"retry_backoff_seconds"`
}

// StorageConfig holds data persistence settings
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	CookiesPath    string `yaml:"cookies_path"`
	ScreenshotsDir string `yaml:"screenshots_dir"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputFile string `yaml:"output_file"`
}

// ScheduleConfig holds operating-hours settings for queued warmups
type ScheduleConfig struct {
	Enabled      bool `yaml:"enabled"`
	StartHour    int  `yaml:"start_hour"`
	EndHour      int  `yaml:"end_hour"`
	WorkDaysOnly bool `yaml:"work_days_only"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Facebook: FacebookConfig{
			BaseURL:        "https://www.facebook.com",
			FeedURL:        "https://www.facebook.com",
			SuggestionsURL: "https://www.facebook.com/friends/suggestions",
			LogoutURL:      "https://www.facebook.com/logout",
		},
		Browser: BrowserConfig{
			Headless:       false,
			UserDataDir:    "./data/browser",
			SlowMotion:     0,
			Timeout:        30,
			ViewportWidth:  1366,
			ViewportHeight: 768,
		},
		Stealth: StealthConfig{
			MouseSpeedMin:     0.5,
			MouseSpeedMax:     2.0,
			MouseOvershoot:    true,
			MouseMicroCorrect: true,
			ClickOffsetRange:  5,
			TypingDelayMin:    80,
			TypingDelayMax:    200,
			TypingMistakeRate: 0.02,
			ScrollChunkMin:    50,
			ScrollChunkMax:    150,
			ScrollBackChance:  0.1,
			ActionDelayMin:    500,
			ActionDelayMax:    2000,
			PageLoadWaitMin:   2000,
			PageLoadWaitMax:   4000,
			RandomizeViewport: true,
			DisableWebdriver:  true,
			RandomUserAgent:   true,
		},
		Warmup: WarmupConfig{
			Enabled: true,
			Profiles: []ProfileConfig{
				{
					Name:               "quick",
					Weight:             25,
					ScrollMinutes:      timing.Range{Min: 3, Max: 5},
					LogoutDelayMinutes: timing.Range{Min: 1, Max: 2},
					FriendProbability:  0.3,
					MaxLikes:           3,
					Description:        "Quick check-in session",
				},
				{
					Name:               "normal",
					Weight:             45,
					ScrollMinutes:      timing.Range{Min: 5, Max: 10},
					LogoutDelayMinutes: timing.Range{Min: 2, Max: 5},
					FriendProbability:  0.7,
					MaxLikes:           6,
					Description:        "Normal browsing session",
				},
				{
					Name:               "long",
					Weight:             20,
					ScrollMinutes:      timing.Range{Min: 10, Max: 18},
					LogoutDelayMinutes: timing.Range{Min: 3, Max: 7},
					FriendProbability:  0.9,
					MaxLikes:           10,
					Description:        "Extended browsing session",
				},
				{
					Name:               "very_short",
					Weight:             10,
					ScrollMinutes:      timing.Range{Min: 1, Max: 3},
					LogoutDelayMinutes: timing.Range{Min: 0.5, Max: 1},
					FriendProbability:  0.1,
					MaxLikes:           2,
					Description:        "Very brief check",
				},
			},
			ActionWeights: map[string]float64{
				"scroll_down":   50,
				"scroll_up":     10,
				"pause_reading": 25,
				"like_post":     15,
			},
			Like: ActionConfig{
				Probability:     0.7,
				MaxPerSession:   10,
				IntervalSeconds: timing.Range{Min: 30, Max: 90},
			},
			Comment: ActionConfig{
				Probability:     0.5,
				MaxPerSession:   5,
				IntervalSeconds: timing.Range{Min: 60, Max: 120},
			},
			FriendRequest: ActionConfig{
				Probability:     0.6,
				MaxPerSession:   3,
				IntervalSeconds: timing.Range{Min: 60, Max: 120},
			},
			Video: VideoConfig{
				WatchProbability: 0.7,
				WatchSeconds:     timing.Range{Min: 5, Max: 30},
				MaxPerSession:    5,
			},
			Scroll: ScrollConfig{
				MinPixels:    300,
				MaxPixels:    800,
				UpMinPixels:  100,
				UpMaxPixels:  300,
				PauseSeconds: timing.Range{Min: 2, Max: 5},
			},
			ActionIntervalSeconds:   timing.Range{Min: 1, Max: 3},
			ProgressIntervalSeconds: 30,
			FriendSuggestionScrolls: 3,
			FriendRequestSendChance: 0.6,
			FriendRequestMinPlanned: 0,
			FriendRequestMaxPlanned: 3,
			PerformLogout:           true,
			AcquireTimeoutSeconds:   60,
			HardTimeoutMinutes:      45,
		},
		Selectors: DefaultSelectors(),
		Server: ServerConfig{
			Addr:                  ":8080",
			MaxConcurrentSessions: 3,
			RetryMaxAttempts:      2,
			RetryBackoffSeconds:   60,
		},
		Storage: StorageConfig{
			DatabasePath:   "./data/warmup.db",
			CookiesPath:    "./data/cookies.json",
			ScreenshotsDir: "./data/screenshots",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			OutputFile: "./logs/warmup.log",
		},
		Schedule: ScheduleConfig{
			Enabled:      false,
			StartHour:    8,
			EndHour:      23,
			WorkDaysOnly: false,
		},
	}
}

// DefaultSelectors returns the built-in Facebook selector set. These are
// best-effort samples; production deployments override them from YAML when
// the markup drifts.
func DefaultSelectors() SelectorsConfig {
	return SelectorsConfig{
		Actionable: map[string][]Locator{
			"like": {
				{By: "attribute", Value: `div[data-ad-rendering-role="like_button"]`},
				{By: "role", Value: `div[aria-label="Like"][role="button"]`},
				{By: "text", Value: "Like"},
			},
			"comment": {
				{By: "role", Value: `div[aria-label="Leave a comment"][role="button"]`},
				{By: "text", Value: "Comment"},
			},
			"comment_box": {
				{By: "attribute", Value: `div[contenteditable="true"][role="textbox"]`},
				{By: "role", Value: `[aria-label="Write a comment"]`},
			},
			"friend_request": {
				{By: "role", Value: `div[aria-label="Add friend"][role="button"]`},
				{By: "text", Value: "Add friend"},
			},
			"video": {
				{By: "attribute", Value: "video"},
				{By: "attribute", Value: "[data-video-id]"},
			},
			"video_play": {
				{By: "role", Value: `[aria-label="Play"]`},
			},
		},
		ExcludedText: []string{
			"photo", "video", "live", "feeling", "activity",
			"create", "story", "reel", "marketplace", "messenger",
		},
		MinTargetY: 300,
		ValidPages: []string{
			"facebook.com/?",
			"facebook.com/home",
			"facebook.com/friends",
		},
		Login: LoginSelectors{
			EmailInput: []Locator{
				{By: "attribute", Value: `input[name="email"]`},
				{By: "attribute", Value: "input#email"},
			},
			PasswordInput: []Locator{
				{By: "attribute", Value: `input[name="pass"]`},
				{By: "attribute", Value: "input#pass"},
			},
			LoginButton: []Locator{
				{By: "attribute", Value: `button[name="login"]`},
				{By: "text", Value: "Log in"},
			},
			WrongPassword:   []string{"Wrong password", "The password you entered is incorrect"},
			AccountDisabled: []string{"account has been disabled", "account has been restricted"},
			TwoFactor:       []string{"two-factor", "Enter the code", "login code"},
		},
		Logout: LogoutSelectors{
			ProfileMenu: []Locator{
				{By: "role", Value: `div[aria-label="Your profile"]`},
				{By: "role", Value: `div[aria-label="Account"]`},
			},
			LogoutButton: []Locator{
				{By: "text", Value: "Log Out"},
				{By: "text", Value: "Log out"},
			},
		},
	}
}

// LoadConfig loads configuration from a YAML file and applies environment
// variable overrides
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, use defaults
		} else {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvOverrides() {
	if email := os.Getenv("FACEBOOK_EMAIL"); email != "" {
		c.Facebook.Email = email
	}
	if password := os.Getenv("FACEBOOK_PASSWORD"); password != "" {
		c.Facebook.Password = password
	}

	if headless := os.Getenv("BROWSER_HEADLESS"); headless != "" {
		c.Browser.Headless = headless == "true" || headless == "1"
	}
	if userDataDir := os.Getenv("BROWSER_USER_DATA_DIR"); userDataDir != "" {
		c.Browser.UserDataDir = userDataDir
	}

	if addr := os.Getenv("SERVER_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if maxSessions := os.Getenv("MAX_CONCURRENT_SESSIONS"); maxSessions != "" {
		if val, err := strconv.Atoi(maxSessions); err == nil {
			c.Server.MaxConcurrentSessions = val
		}
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		c.Logging.Format = logFormat
	}

	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		c.Storage.DatabasePath = dbPath
	}
}

// Validate checks if the configuration is valid. Malformed profile or
// weight data is fatal at startup, never mid-session.
func (c *Config) Validate() error {
	for _, p := range c.Warmup.Profiles {
		if p.Name == "" {
			return fmt.Errorf("session profile with empty name")
		}
		if p.Weight <= 0 {
			return fmt.Errorf("profile %q: weight must be positive", p.Name)
		}
		if !p.ScrollMinutes.Valid() {
			return fmt.Errorf("profile %q: scroll_minutes range is invalid", p.Name)
		}
		if !p.LogoutDelayMinutes.Valid() {
			return fmt.Errorf("profile %q: logout_delay_minutes range is invalid", p.Name)
		}
		if p.FriendProbability < 0 || p.FriendProbability > 1 {
			return fmt.Errorf("profile %q: friend_probability must be in [0,1]", p.Name)
		}
		if p.MaxLikes < 0 {
			return fmt.Errorf("profile %q: max_likes must not be negative", p.Name)
		}
	}

	positive := false
	for kind, w := range c.Warmup.ActionWeights {
		if w < 0 {
			return fmt.Errorf("action weight for %q must not be negative", kind)
		}
		if w > 0 {
			positive = true
		}
	}
	if len(c.Warmup.ActionWeights) > 0 && !positive {
		return fmt.Errorf("action weights must include at least one positive weight")
	}

	for name, ac := range map[string]ActionConfig{
		"like":           c.Warmup.Like,
		"comment":        c.Warmup.Comment,
		"friend_request": c.Warmup.FriendRequest,
	} {
		if ac.Probability < 0 || ac.Probability > 1 {
			return fmt.Errorf("%s probability must be in [0,1]", name)
		}
		if !ac.IntervalSeconds.Valid() {
			return fmt.Errorf("%s interval_seconds range is invalid", name)
		}
	}

	if c.Schedule.StartHour < 0 || c.Schedule.StartHour > 23 {
		return fmt.Errorf("start_hour must be between 0 and 23")
	}
	if c.Schedule.EndHour < 0 || c.Schedule.EndHour > 23 {
		return fmt.Errorf("end_hour must be between 0 and 23")
	}

	if c.Server.MaxConcurrentSessions < 1 {
		return fmt.Errorf("max_concurrent_sessions must be at least 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetTimeout returns the configured browser timeout as a time.Duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Browser.Timeout) * time.Second
}

// SaveConfig saves the current configuration to a YAML file
func (c *Config) SaveConfig(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
