// Package stealth provides anti-bot detection techniques for browser automation.
// It implements human-like input patterns so the session looks like a person
// at a keyboard rather than a script.
package stealth

import (
	"math"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/anvita/facebook-warmup/config"
	"github.com/anvita/facebook-warmup/logger"
	"github.com/anvita/facebook-warmup/timing"
)

// Manager handles all human-like input operations
type Manager struct {
	config *config.StealthConfig
	logger *logger.Logger
	src    timing.Source
}

// NewManager creates a stealth manager. The random source is shared with
// the rest of the session so seeded runs stay reproducible.
func NewManager(cfg *config.StealthConfig, log *logger.Logger, src timing.Source) *Manager {
	return &Manager{
		config: cfg,
		logger: log.WithModule("stealth"),
		src:    src,
	}
}

// Point represents a 2D coordinate
type Point struct {
	X, Y float64
}

// ==============================================================================
// Human-like mouse movement (Bézier curves with variable speed)
// ==============================================================================

// MoveMouse moves the mouse from an approximate current position to the
// target along a curved path with variable speed.
func (s *Manager) MoveMouse(page *rod.Page, targetX, targetY float64) error {
	currentX, currentY := s.approximateMousePosition()

	points := s.BezierPath(
		Point{currentX, currentY},
		Point{targetX, targetY},
	)

	if s.config.MouseOvershoot && s.src.Float64() < 0.3 {
		points = s.addOvershoot(points, targetX, targetY)
	}

	for i, point := range points {
		// Slower at the ends, faster in the middle
		delay := s.movementDelay(i, len(points))
		time.Sleep(time.Duration(delay) * time.Millisecond)

		if err := page.Mouse.MoveLinear(proto.NewPoint(point.X, point.Y), 1); err != nil {
			return err
		}

		if s.config.MouseMicroCorrect && i > len(points)-5 {
			s.microCorrection(page, point.X, point.Y)
		}
	}

	s.logger.StealthAction("mouse_move", map[string]interface{}{
		"to_x": targetX, "to_y": targetY,
		"steps": len(points),
	})

	return nil
}

// BezierPath creates a curved path between two points using a cubic Bézier
// with randomized control points.
func (s *Manager) BezierPath(start, end Point) []Point {
	distance := math.Sqrt(math.Pow(end.X-start.X, 2) + math.Pow(end.Y-start.Y, 2))
	numSteps := int(distance/10) + 10

	offsetRange := distance * 0.3
	ctrl1 := Point{
		X: start.X + (end.X-start.X)*0.25 + (s.src.Float64()-0.5)*offsetRange,
		Y: start.Y + (end.Y-start.Y)*0.25 + (s.src.Float64()-0.5)*offsetRange,
	}
	ctrl2 := Point{
		X: start.X + (end.X-start.X)*0.75 + (s.src.Float64()-0.5)*offsetRange,
		Y: start.Y + (end.Y-start.Y)*0.75 + (s.src.Float64()-0.5)*offsetRange,
	}

	points := make([]Point, numSteps)
	for i := 0; i < numSteps; i++ {
		t := float64(i) / float64(numSteps-1)
		points[i] = cubicBezier(t, start, ctrl1, ctrl2, end)
	}

	return points
}

func cubicBezier(t float64, p0, p1, p2, p3 Point) Point {
	u := 1 - t
	tt := t * t
	uu := u * u
	uuu := uu * u
	ttt := tt * t

	return Point{
		X: uuu*p0.X + 3*uu*t*p1.X + 3*u*tt*p2.X + ttt*p3.X,
		Y: uuu*p0.Y + 3*uu*t*p1.Y + 3*u*tt*p2.Y + ttt*p3.Y,
	}
}

// addOvershoot adds a natural overshoot past the target with a correction
// back onto it.
func (s *Manager) addOvershoot(points []Point, targetX, targetY float64) []Point {
	overshootX := (s.src.Float64()*10 + 5) * s.randomSign()
	overshootY := (s.src.Float64()*10 + 5) * s.randomSign()

	overshootPoint := Point{X: targetX + overshootX, Y: targetY + overshootY}
	points = append(points, overshootPoint)

	correctionSteps := 3 + s.src.Intn(3)
	for i := 0; i < correctionSteps; i++ {
		t := float64(i+1) / float64(correctionSteps)
		points = append(points, Point{
			X: overshootPoint.X + (targetX-overshootPoint.X)*t,
			Y: overshootPoint.Y + (targetY-overshootPoint.Y)*t,
		})
	}

	return points
}

func (s *Manager) microCorrection(page *rod.Page, x, y float64) {
	microX := x + (s.src.Float64()-0.5)*2
	microY := y + (s.src.Float64()-0.5)*2
	time.Sleep(time.Duration(5+s.src.Intn(10)) * time.Millisecond)
	page.Mouse.MoveLinear(proto.NewPoint(microX, microY), 1)
}

// movementDelay returns the per-step delay in milliseconds, with an
// ease-in-out profile.
func (s *Manager) movementDelay(step, totalSteps int) int {
	progress := float64(step) / float64(totalSteps)
	easeFactor := math.Sin(progress * math.Pi)

	minDelay := int(s.config.MouseSpeedMin * 5)
	maxDelay := int(s.config.MouseSpeedMax * 15)

	delay := maxDelay - int(float64(maxDelay-minDelay)*easeFactor)
	return delay + s.src.Intn(3)
}

func (s *Manager) approximateMousePosition() (float64, float64) {
	// Default to a half-HD viewport center; the exact position does not
	// matter, only that the path starts somewhere plausible.
	return 683, 384
}

// ==============================================================================
// Randomized timing patterns
// ==============================================================================

// RandomDelay sleeps a randomized duration between min and max milliseconds.
func (s *Manager) RandomDelay(minMs, maxMs int) {
	delay := minMs + s.src.Intn(maxMs-minMs+1)
	time.Sleep(time.Duration(delay) * time.Millisecond)
}

// ActionDelay adds a human-like delay between page interactions.
func (s *Manager) ActionDelay() {
	s.RandomDelay(s.config.ActionDelayMin, s.config.ActionDelayMax)
}

// PageLoadDelay waits for a page to settle with natural variation.
func (s *Manager) PageLoadDelay() {
	s.RandomDelay(s.config.PageLoadWaitMin, s.config.PageLoadWaitMax)
}

// ==============================================================================
// Browser fingerprint masking
// ==============================================================================

// ApplyFingerprintMasking injects scripts that hide the usual automation
// tells. Individual script failures are logged and skipped.
func (s *Manager) ApplyFingerprintMasking(page *rod.Page) error {
	scripts := []string{}

	if s.config.DisableWebdriver {
		scripts = append(scripts, `
			Object.defineProperty(navigator, 'webdriver', {
				get: () => undefined
			});

			delete window.cdc_adoQpoasnfa76pfcZLmcfl_Array;
			delete window.cdc_adoQpoasnfa76pfcZLmcfl_Promise;
			delete window.cdc_adoQpoasnfa76pfcZLmcfl_Symbol;
		`)
	}

	scripts = append(scripts, `
		Object.defineProperty(navigator, 'plugins', {
			get: () => [
				{name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer'},
				{name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai'},
				{name: 'Native Client', filename: 'internal-nacl-plugin'}
			]
		});

		Object.defineProperty(navigator, 'languages', {
			get: () => ['en-US', 'en']
		});

		const originalQuery = window.navigator.permissions.query;
		window.navigator.permissions.query = (parameters) => (
			parameters.name === 'notifications' ?
				Promise.resolve({ state: Notification.permission }) :
				originalQuery(parameters)
		);

		Object.defineProperty(screen, 'availWidth', { get: () => screen.width });
		Object.defineProperty(screen, 'availHeight', { get: () => screen.height - 40 });
	`)

	scripts = append(scripts, `
		Object.defineProperty(navigator, 'hardwareConcurrency', {
			get: () => `+s.randomHardwareConcurrency()+`
		});
	`)

	for _, script := range scripts {
		if _, err := page.Eval(script); err != nil {
			s.logger.WithError(err).Warn("Failed to apply fingerprint mask")
		}
	}

	s.logger.StealthAction("fingerprint_mask", map[string]interface{}{"scripts_applied": len(scripts)})
	return nil
}

// RandomUserAgent returns a realistic desktop user agent string.
func (s *Manager) RandomUserAgent() string {
	userAgents := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	}
	return userAgents[s.src.Intn(len(userAgents))]
}

// RandomViewport returns randomized viewport dimensions near common sizes.
func (s *Manager) RandomViewport() (int, int) {
	viewports := []struct{ width, height int }{
		{1920, 1080},
		{1366, 768},
		{1536, 864},
		{1440, 900},
		{1280, 720},
		{1600, 900},
	}
	vp := viewports[s.src.Intn(len(viewports))]
	return vp.width + s.src.Intn(20) - 10, vp.height + s.src.Intn(20) - 10
}

func (s *Manager) randomHardwareConcurrency() string {
	cores := []string{"4", "8", "12", "16"}
	return cores[s.src.Intn(len(cores))]
}

// ==============================================================================
// Natural scrolling
// ==============================================================================

// HumanScroll scrolls the page by roughly the requested amount, in small
// chunks with variable speed and an occasional scroll-back.
func (s *Manager) HumanScroll(page *rod.Page, direction string, amount int) error {
	actualAmount := amount + s.src.Intn(100) - 50
	if actualAmount < 1 {
		actualAmount = amount
	}

	scrolled := 0
	for scrolled < actualAmount {
		increment := s.config.ScrollChunkMin + s.src.Intn(s.config.ScrollChunkMax-s.config.ScrollChunkMin)
		if scrolled+increment > actualAmount {
			increment = actualAmount - scrolled
		}

		progress := float64(scrolled) / float64(actualAmount)
		speedFactor := math.Sin(progress * math.Pi)
		delay := int(float64(30) / (speedFactor + 0.3))

		deltaY := float64(increment)
		if direction == "up" {
			deltaY = -deltaY
		}

		if err := page.Mouse.Scroll(0, deltaY, 1); err != nil {
			return err
		}

		scrolled += increment
		time.Sleep(time.Duration(delay) * time.Millisecond)
	}

	if s.src.Float64() < s.config.ScrollBackChance {
		backAmount := 50 + s.src.Intn(100)
		s.scrollBack(page, direction, backAmount)
	}

	s.logger.StealthAction("scroll", map[string]interface{}{
		"direction": direction,
		"amount":    actualAmount,
	})

	return nil
}

// scrollBack performs a small scroll in the opposite direction, the way a
// reader backtracks to something they skimmed past.
func (s *Manager) scrollBack(page *rod.Page, originalDirection string, amount int) {
	time.Sleep(time.Duration(200+s.src.Intn(300)) * time.Millisecond)

	deltaY := float64(amount)
	if originalDirection == "down" {
		deltaY = -deltaY
	}
	page.Mouse.Scroll(0, deltaY, 5)
}

// ==============================================================================
// Realistic typing
// ==============================================================================

// HumanType types text with per-keystroke delays, occasional thinking
// pauses and the configured mistake rate (typo plus backspace).
func (s *Manager) HumanType(page *rod.Page, element *rod.Element, text string) error {
	runes := []rune(text)

	for i := 0; i < len(runes); i++ {
		char := runes[i]

		delay := s.config.TypingDelayMin + s.src.Intn(s.config.TypingDelayMax-s.config.TypingDelayMin)

		if s.src.Float64() < 0.05 {
			delay += 200 + s.src.Intn(400)
		}

		if s.config.TypingMistakeRate > 0 && s.src.Float64() < s.config.TypingMistakeRate {
			wrongChar := s.adjacentKey(char)
			if err := element.Input(string(wrongChar)); err != nil {
				return err
			}
			time.Sleep(time.Duration(100+s.src.Intn(200)) * time.Millisecond)

			page.Keyboard.Press(input.Backspace)
			time.Sleep(time.Duration(50+s.src.Intn(100)) * time.Millisecond)
		}

		if err := element.Input(string(char)); err != nil {
			return err
		}

		time.Sleep(time.Duration(delay) * time.Millisecond)
	}

	s.logger.StealthAction("typing", map[string]interface{}{
		"length": len(text),
	})

	return nil
}

// adjacentKey returns a key next to the given key on a QWERTY keyboard.
func (s *Manager) adjacentKey(char rune) rune {
	adjacentKeys := map[rune][]rune{
		'a': {'s', 'q', 'z'},
		'b': {'v', 'n', 'g', 'h'},
		'c': {'x', 'v', 'd', 'f'},
		'd': {'s', 'f', 'e', 'r', 'c', 'x'},
		'e': {'w', 'r', 'd', 's'},
		'f': {'d', 'g', 'r', 't', 'v', 'c'},
		'g': {'f', 'h', 't', 'y', 'b', 'v'},
		'h': {'g', 'j', 'y', 'u', 'n', 'b'},
		'i': {'u', 'o', 'k', 'j'},
		'j': {'h', 'k', 'u', 'i', 'm', 'n'},
		'k': {'j', 'l', 'i', 'o', 'm'},
		'l': {'k', 'o', 'p'},
		'm': {'n', 'j', 'k'},
		'n': {'b', 'm', 'h', 'j'},
		'o': {'i', 'p', 'k', 'l'},
		'p': {'o', 'l'},
		'q': {'w', 'a'},
		'r': {'e', 't', 'd', 'f'},
		's': {'a', 'd', 'w', 'e', 'z', 'x'},
		't': {'r', 'y', 'f', 'g'},
		'u': {'y', 'i', 'h', 'j'},
		'v': {'c', 'b', 'f', 'g'},
		'w': {'q', 'e', 'a', 's'},
		'x': {'z', 'c', 's', 'd'},
		'y': {'t', 'u', 'g', 'h'},
		'z': {'a', 'x'},
	}

	lowerChar := char
	if char >= 'A' && char <= 'Z' {
		lowerChar = char + 32
	}

	if adjacent, ok := adjacentKeys[lowerChar]; ok {
		result := adjacent[s.src.Intn(len(adjacent))]
		if char >= 'A' && char <= 'Z' {
			result -= 32
		}
		return result
	}
	return char
}

// ==============================================================================
// Hovering and clicking
// ==============================================================================

// HoverElement moves the mouse onto a random spot inside the element and
// dwells there briefly.
func (s *Manager) HoverElement(page *rod.Page, element *rod.Element) error {
	box, err := element.Shape()
	if err != nil {
		return err
	}

	quad := box.Quads[0]
	// Random position within the middle 60% of the element bounds
	x := quad[0] + (quad[2]-quad[0])*s.src.Float64()*0.6 + (quad[2]-quad[0])*0.2
	y := quad[1] + (quad[5]-quad[1])*s.src.Float64()*0.6 + (quad[5]-quad[1])*0.2

	if err := s.MoveMouse(page, x, y); err != nil {
		return err
	}

	hoverTime := 200 + s.src.Intn(500)
	time.Sleep(time.Duration(hoverTime) * time.Millisecond)

	return nil
}

// ClickElement performs a human-like click: hover, pause, click, pause.
func (s *Manager) ClickElement(page *rod.Page, element *rod.Element) error {
	if err := s.HoverElement(page, element); err != nil {
		return err
	}

	time.Sleep(time.Duration(50+s.src.Intn(150)) * time.Millisecond)

	if err := element.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}

	time.Sleep(time.Duration(100+s.src.Intn(200)) * time.Millisecond)

	return nil
}

func (s *Manager) randomSign() float64 {
	if s.src.Float64() < 0.5 {
		return -1
	}
	return 1
}
