// Package auth provides Facebook authentication functionality.
// It handles login, session cookie persistence, and classifies login
// failures into distinct outcomes so the orchestrator can report them.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/anvita/facebook-warmup/browser"
	"github.com/anvita/facebook-warmup/config"
	"github.com/anvita/facebook-warmup/logger"
	"github.com/anvita/facebook-warmup/stealth"
	"github.com/anvita/facebook-warmup/storage"
	"github.com/anvita/facebook-warmup/warmup"
)

// Error types for authentication
var (
	ErrLoginFailed       = errors.New("login failed: invalid credentials or unknown error")
	ErrTwoFactorRequired = errors.New("two-factor authentication required")
	ErrSecurityCheck     = errors.New("security checkpoint detected")
	ErrAccountDisabled   = errors.New("account access disabled")
)

// Authenticator handles Facebook authentication. It implements the login
// collaborator interface the warmup engine consumes.
type Authenticator struct {
	config     *config.Config
	logger     *logger.Logger
	stealth    *stealth.Manager
	db         *storage.Database
	browser    *browser.Browser
	isLoggedIn bool
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(cfg *config.Config, log *logger.Logger, s *stealth.Manager, db *storage.Database, b *browser.Browser) *Authenticator {
	return &Authenticator{
		config:  cfg,
		logger:  log.WithModule("auth"),
		stealth: s,
		db:      db,
		browser: b,
	}
}

// Login performs Facebook login with human-like input and classifies the
// outcome. It never returns an error; every failure mode is a distinct
// outcome with a diagnostic.
func (a *Authenticator) Login(email, password string) warmup.LoginOutcome {
	a.logger.Info("Starting login process")

	if a.tryExistingSession() {
		a.logger.Info("Successfully restored existing session")
		a.isLoggedIn = true
		return warmup.LoginOutcome{Success: true}
	}

	page := a.browser.Page()

	if err := a.browser.Navigate(a.config.Facebook.BaseURL); err != nil {
		return a.failure(warmup.LoginFailureUnknown, "failed to open login page: "+err.Error())
	}

	emailField, err := a.findFirst(a.config.Selectors.Login.EmailInput)
	if err != nil {
		// No login form usually means a persisted browser profile is
		// already signed in.
		if a.IsLoggedIn() {
			a.isLoggedIn = true
			return warmup.LoginOutcome{Success: true}
		}
		return a.failure(warmup.LoginFailureUnknown, "login form not found: "+err.Error())
	}

	a.logger.Debug("Entering email")
	if err := a.stealth.ClickElement(page, emailField); err != nil {
		return a.failure(warmup.LoginFailureUnknown, "failed to focus email field: "+err.Error())
	}
	if err := a.stealth.HumanType(page, emailField, email); err != nil {
		return a.failure(warmup.LoginFailureUnknown, "failed to enter email: "+err.Error())
	}

	a.stealth.ActionDelay()

	a.logger.Debug("Entering password")
	passwordField, err := a.findFirst(a.config.Selectors.Login.PasswordInput)
	if err != nil {
		return a.failure(warmup.LoginFailureUnknown, "password field not found: "+err.Error())
	}
	if err := a.stealth.ClickElement(page, passwordField); err != nil {
		return a.failure(warmup.LoginFailureUnknown, "failed to focus password field: "+err.Error())
	}
	if err := a.stealth.HumanType(page, passwordField, password); err != nil {
		return a.failure(warmup.LoginFailureUnknown, "failed to enter password: "+err.Error())
	}

	a.logger.Debug("Clicking login button")
	loginButton, err := a.findFirst(a.config.Selectors.Login.LoginButton)
	if err != nil {
		return a.failure(warmup.LoginFailureUnknown, "login button not found: "+err.Error())
	}
	if err := a.stealth.ClickElement(page, loginButton); err != nil {
		return a.failure(warmup.LoginFailureUnknown, "failed to click login button: "+err.Error())
	}

	a.stealth.PageLoadDelay()
	time.Sleep(3 * time.Second) // Extra wait for login processing

	return a.checkLoginResult()
}

// checkLoginResult classifies the post-submit page state.
func (a *Authenticator) checkLoginResult() warmup.LoginOutcome {
	currentURL, err := a.browser.CurrentURL()
	if err != nil {
		return a.failure(warmup.LoginFailureUnknown, "cannot read page state: "+err.Error())
	}

	a.logger.WithField("url", currentURL).Debug("Checking login result")

	if strings.Contains(currentURL, "/checkpoint") {
		a.logger.SecurityEvent("SECURITY_CHECKPOINT", "Login hit a security checkpoint")
		return a.failure(warmup.LoginFailureCheckpoint, "security checkpoint at "+currentURL)
	}

	pageText, _ := a.browser.PageText()

	if containsAnyMarker(pageText, a.config.Selectors.Login.TwoFactor) {
		a.logger.SecurityEvent("2FA_REQUIRED", "Two-factor authentication is required")
		return a.failure(warmup.LoginFailureTwoFactor, "two-factor challenge presented")
	}

	if containsAnyMarker(pageText, a.config.Selectors.Login.WrongPassword) {
		return a.failure(warmup.LoginFailureBadCredentials, "wrong password message displayed")
	}

	if containsAnyMarker(pageText, a.config.Selectors.Login.AccountDisabled) {
		a.logger.SecurityEvent("ACCOUNT_DISABLED", "Account access has been disabled")
		return a.failure(warmup.LoginFailureAccountDisabled, "account disabled message displayed")
	}

	if strings.Contains(currentURL, "/login") {
		return a.failure(warmup.LoginFailureUnknown, "still on login page after submit")
	}

	if a.IsLoggedIn() {
		a.isLoggedIn = true
		a.saveCookies()
		a.logger.Info("Login successful")
		return warmup.LoginOutcome{Success: true}
	}

	return a.failure(warmup.LoginFailureUnknown, "login state unclear after submit")
}

// failure builds a failure outcome with a diagnostic screenshot.
func (a *Authenticator) failure(kind warmup.LoginFailureKind, diagnostic string) warmup.LoginOutcome {
	a.logger.WithField("kind", string(kind)).Errorf("Login failed: %s", diagnostic)

	outcome := warmup.LoginOutcome{
		FailureKind: kind,
		Diagnostic:  diagnostic,
	}

	if path := a.captureDiagnostic(kind); path != "" {
		outcome.ScreenshotPath = path
	}
	return outcome
}

// captureDiagnostic saves a screenshot of the failed login page.
func (a *Authenticator) captureDiagnostic(kind warmup.LoginFailureKind) string {
	dir := a.config.Storage.ScreenshotsDir
	if dir == "" {
		return ""
	}
	data, err := a.browser.Screenshot()
	if err != nil {
		return ""
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf("login_failed_%s_%d.png", kind, time.Now().Unix()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return ""
	}
	return path
}

// IsLoggedIn checks whether the browser currently holds a valid session.
func (a *Authenticator) IsLoggedIn() bool {
	if a.isLoggedIn {
		return true
	}

	if err := a.browser.Navigate(a.config.Facebook.FeedURL); err != nil {
		return false
	}
	time.Sleep(2 * time.Second)

	currentURL, err := a.browser.CurrentURL()
	if err != nil {
		return false
	}
	if strings.Contains(currentURL, "/login") || strings.Contains(currentURL, "/checkpoint") {
		return false
	}

	// A signed-in page has the account menu; the logged-out page has the
	// login form instead.
	if _, err := a.findFirst(a.config.Selectors.Logout.ProfileMenu); err == nil {
		a.isLoggedIn = true
		return true
	}
	if a.browser.IsElementPresent(`div[role="feed"]`) {
		a.isLoggedIn = true
		return true
	}

	return false
}

// tryExistingSession attempts to restore a session from saved cookies.
func (a *Authenticator) tryExistingSession() bool {
	a.logger.Debug("Attempting to restore existing session")

	cookies, err := a.db.LoadCookiesFromFile(a.config.Storage.CookiesPath)
	if err != nil {
		a.logger.WithError(err).Debug("Failed to load cookies from file")
		return false
	}
	if len(cookies) == 0 {
		a.logger.Debug("No existing cookies found")
		return false
	}

	validCookies := make([]*storage.SessionCookie, 0)
	now := time.Now().Unix()
	for _, cookie := range cookies {
		if cookie.Expires == 0 || cookie.Expires > now {
			validCookies = append(validCookies, cookie)
		}
	}
	if len(validCookies) == 0 {
		a.logger.Debug("All cookies have expired")
		return false
	}

	// Cookies can only be set for a domain the page is on.
	if err := a.browser.Navigate(a.config.Facebook.BaseURL); err != nil {
		return false
	}

	page := a.browser.Page()
	for _, cookie := range validCookies {
		err := page.SetCookies([]*proto.NetworkCookieParam{{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Expires:  proto.TimeSinceEpoch(cookie.Expires),
			HTTPOnly: cookie.HTTPOnly,
			Secure:   cookie.Secure,
		}})
		if err != nil {
			a.logger.WithError(err).Debug("Failed to set cookie")
		}
	}

	return a.IsLoggedIn()
}

// saveCookies persists the current session cookies for later restore.
func (a *Authenticator) saveCookies() error {
	cookies, err := a.browser.Page().Cookies([]string{a.config.Facebook.BaseURL})
	if err != nil {
		return fmt.Errorf("failed to get cookies: %w", err)
	}

	storageCookies := make([]*storage.SessionCookie, len(cookies))
	for i, cookie := range cookies {
		storageCookies[i] = &storage.SessionCookie{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Expires:  int64(cookie.Expires),
			HTTPOnly: cookie.HTTPOnly,
			Secure:   cookie.Secure,
		}
	}

	if err := a.db.SaveCookiesToFile(storageCookies, a.config.Storage.CookiesPath); err != nil {
		a.logger.WithError(err).Warn("Failed to save cookies to file")
		return err
	}

	a.logger.Info("Session cookies saved successfully")
	return nil
}

// Logout signs the account out through the account menu, falling back to
// the logout URL when the menu cannot be driven.
func (a *Authenticator) Logout() error {
	a.logger.Info("Logging out")
	page := a.browser.Page()

	menu, err := a.findFirst(a.config.Selectors.Logout.ProfileMenu)
	if err == nil {
		if err := a.stealth.ClickElement(page, menu); err == nil {
			a.stealth.ActionDelay()
			if button, err := a.findFirst(a.config.Selectors.Logout.LogoutButton); err == nil {
				if err := a.stealth.ClickElement(page, button); err == nil {
					a.stealth.PageLoadDelay()
					a.isLoggedIn = false
					a.logger.Info("Logged out via account menu")
					return nil
				}
			}
		}
	}

	// Menu path failed, hit the logout URL directly.
	if err := a.browser.Navigate(a.config.Facebook.LogoutURL); err != nil {
		return fmt.Errorf("logout navigation failed: %w", err)
	}
	a.isLoggedIn = false
	a.logger.Info("Logged out via logout URL")
	return nil
}

// findFirst resolves a locator chain to the first matching element.
func (a *Authenticator) findFirst(locators []config.Locator) (*rod.Element, error) {
	page := a.browser.Page()
	for _, loc := range locators {
		var el *rod.Element
		var err error
		switch loc.By {
		case "attribute", "role":
			el, err = page.Timeout(3 * time.Second).Element(loc.Value)
		case "text":
			el, err = page.Timeout(3 * time.Second).ElementX(fmt.Sprintf(`//*[contains(., "%s")][@role="button" or self::button or self::a]`, loc.Value))
		default:
			continue
		}
		if err == nil && el != nil {
			return el, nil
		}
	}
	return nil, fmt.Errorf("no locator matched")
}

func containsAnyMarker(text string, markers []string) bool {
	lower := strings.ToLower(text)
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
