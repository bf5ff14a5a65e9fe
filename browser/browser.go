// Package browser provides browser automation setup and management using Rod.
// It handles browser initialization, stealth configuration, and implements
// the page interaction surface the warmup engine drives.
package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/anvita/facebook-warmup/config"
	"github.com/anvita/facebook-warmup/logger"
	"github.com/anvita/facebook-warmup/stealth"
)

// Browser wraps the Rod browser with stealth setup and page management.
type Browser struct {
	config  *config.Config
	logger  *logger.Logger
	stealth *stealth.Manager
	browser *rod.Browser
	page    *rod.Page
}

// NewBrowser creates a new browser instance
func NewBrowser(cfg *config.Config, log *logger.Logger, s *stealth.Manager) *Browser {
	return &Browser{
		config:  cfg,
		logger:  log.WithModule("browser"),
		stealth: s,
	}
}

// Launch initializes and launches the browser with stealth settings
func (b *Browser) Launch() error {
	b.logger.Info("Launching browser")

	// Ensure user data directory exists
	if b.config.Browser.UserDataDir != "" {
		absPath, err := filepath.Abs(b.config.Browser.UserDataDir)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for user data dir: %w", err)
		}
		if err := os.MkdirAll(absPath, 0755); err != nil {
			return fmt.Errorf("failed to create user data directory: %w", err)
		}
		b.config.Browser.UserDataDir = absPath
	}

	l := launcher.New().
		Headless(b.config.Browser.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-infobars").
		Set("disable-dev-shm-usage").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-background-networking").
		Set("disable-sync").
		Set("disable-translate").
		Set("disable-extensions").
		Set("disable-popup-blocking").
		Set("metrics-recording-only").
		Set("safebrowsing-disable-auto-update")

	if b.config.Browser.UserDataDir != "" {
		l = l.UserDataDir(b.config.Browser.UserDataDir)
	}

	var viewportWidth, viewportHeight int
	if b.config.Stealth.RandomizeViewport {
		viewportWidth, viewportHeight = b.stealth.RandomViewport()
	} else {
		viewportWidth = b.config.Browser.ViewportWidth
		viewportHeight = b.config.Browser.ViewportHeight
	}

	l = l.Set("window-size", fmt.Sprintf("%d,%d", viewportWidth, viewportHeight))

	url, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	b.browser = rod.New().
		ControlURL(url).
		Timeout(time.Duration(b.config.Browser.Timeout) * time.Second)

	if b.config.Browser.SlowMotion > 0 {
		b.browser = b.browser.SlowMotion(time.Duration(b.config.Browser.SlowMotion) * time.Millisecond)
	}

	if err := b.browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	b.logger.Info("Browser launched successfully")

	return b.createPage(viewportWidth, viewportHeight)
}

// createPage creates a new page with stealth settings
func (b *Browser) createPage(width, height int) error {
	var err error
	b.page, err = b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}

	err = b.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	})
	if err != nil {
		b.logger.WithError(err).Warn("Failed to set viewport")
	}

	if b.config.Stealth.RandomUserAgent {
		userAgent := b.stealth.RandomUserAgent()
		err = b.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent: userAgent,
		})
		if err != nil {
			b.logger.WithError(err).Warn("Failed to set user agent")
		} else {
			b.logger.WithField("user_agent", userAgent).Debug("User agent set")
		}
	}

	b.page.EvalOnNewDocument(stealthScript)

	b.logger.Info("Page created with stealth settings")
	return nil
}

// stealthScript is injected on every new document for anti-detection.
const stealthScript = `
	// Remove webdriver property
	Object.defineProperty(navigator, 'webdriver', {
		get: () => undefined
	});

	Object.defineProperty(navigator, 'plugins', {
		get: () => [
			{ name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer' },
			{ name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai' },
			{ name: 'Native Client', filename: 'internal-nacl-plugin' }
		]
	});

	Object.defineProperty(navigator, 'languages', {
		get: () => ['en-US', 'en']
	});

	// Fix permissions
	const originalQuery = window.navigator.permissions.query;
	window.navigator.permissions.query = (parameters) => (
		parameters.name === 'notifications'
			? Promise.resolve({ state: Notification.permission })
			: originalQuery(parameters)
	);

	// Mock chrome object
	window.chrome = {
		runtime: {},
		loadTimes: function() {},
		csi: function() {},
		app: {}
	};

	// Add realistic screen properties
	Object.defineProperty(screen, 'availWidth', { get: () => screen.width });
	Object.defineProperty(screen, 'availHeight', { get: () => screen.height - 40 });

	// Fix toStringing
	const oldToString = Function.prototype.toString;
	Function.prototype.toString = function() {
		if (this === window.navigator.permissions.query) {
			return 'function query() { [native code] }';
		}
		return oldToString.call(this);
	};
`

// Page returns the current page
func (b *Browser) Page() *rod.Page {
	return b.page
}

// ensure launches the browser on first use. Launching lazily means a
// session holds its concurrency slot before Chrome ever starts.
func (b *Browser) ensure() error {
	if b.page != nil {
		return nil
	}
	return b.Launch()
}

// Navigate navigates to a URL with stealth measures
func (b *Browser) Navigate(url string) error {
	if err := b.ensure(); err != nil {
		return err
	}
	b.logger.BrowserAction("navigate", url)

	if err := b.page.Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}

	b.stealth.PageLoadDelay()

	if err := b.page.WaitLoad(); err != nil {
		return fmt.Errorf("page load failed: %w", err)
	}

	b.stealth.ApplyFingerprintMasking(b.page)

	return nil
}

// CurrentURL returns the current page URL.
func (b *Browser) CurrentURL() (string, error) {
	if err := b.ensure(); err != nil {
		return "", err
	}
	info, err := b.page.Info()
	if err != nil {
		return "", fmt.Errorf("failed to read page info: %w", err)
	}
	return info.URL, nil
}

// Screenshot captures the current viewport as PNG bytes.
func (b *Browser) Screenshot() ([]byte, error) {
	if err := b.ensure(); err != nil {
		return nil, err
	}
	data, err := b.page.Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

// PageText returns the visible text of the current page.
func (b *Browser) PageText() (string, error) {
	if err := b.ensure(); err != nil {
		return "", err
	}
	body, err := b.page.Element("body")
	if err != nil {
		return "", fmt.Errorf("failed to find page body: %w", err)
	}
	text, err := body.Text()
	if err != nil {
		return "", fmt.Errorf("failed to read page text: %w", err)
	}
	return text, nil
}

// WaitForSelector waits for an element to appear
func (b *Browser) WaitForSelector(selector string, timeout time.Duration) (*rod.Element, error) {
	return b.page.Timeout(timeout).Element(selector)
}

// IsElementPresent checks if an element is present on the page
func (b *Browser) IsElementPresent(selector string) bool {
	_, err := b.page.Timeout(2 * time.Second).Element(selector)
	return err == nil
}

// Close closes the browser
func (b *Browser) Close() error {
	b.logger.Info("Closing browser")

	if b.page != nil {
		b.page.Close()
	}

	if b.browser != nil {
		return b.browser.Close()
	}

	return nil
}
