package browser

import (
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"

	"github.com/anvita/facebook-warmup/config"
	"github.com/anvita/facebook-warmup/warmup"
)

// This file implements the page interaction surface the warmup engine
// drives. All failures surface as *warmup.InteractionError so the engine
// can treat them as non-fatal.

// FindActionable discovers clickable targets of one selector kind. Locators
// are tried in configured order; the first one producing targets that
// survive the filter wins. Targets are deduplicated by screen position so
// one post never yields two entries.
func (b *Browser) FindActionable(kind string, filter warmup.TargetFilter) ([]warmup.Target, error) {
	if err := b.ensure(); err != nil {
		return nil, &warmup.InteractionError{Op: "find_" + kind, Err: err}
	}
	locators, ok := b.config.Selectors.Actionable[kind]
	if !ok || len(locators) == 0 {
		return nil, &warmup.InteractionError{Op: "find_" + kind, Err: fmt.Errorf("no locators configured for %q", kind)}
	}

	for _, loc := range locators {
		elements, err := b.elementsFor(loc)
		if err != nil {
			b.logger.WithError(err).Debugf("locator %s=%q failed, trying next", loc.By, loc.Value)
			continue
		}

		targets := b.filterTargets(kind, elements, filter)
		if len(targets) > 0 {
			b.logger.WithField("count", len(targets)).Debugf("found %s targets via %s", kind, loc.By)
			return targets, nil
		}
	}

	return nil, nil
}

// elementsFor resolves one locator to page elements.
func (b *Browser) elementsFor(loc config.Locator) (rod.Elements, error) {
	switch loc.By {
	case "attribute", "role":
		return b.page.Elements(loc.Value)
	case "text":
		return b.page.ElementsX(fmt.Sprintf(`//*[@role="button" and contains(., "%s")]`, loc.Value))
	default:
		return nil, fmt.Errorf("unknown locator strategy %q", loc.By)
	}
}

// filterTargets drops chrome controls and duplicates, keeping at most
// filter.Limit real post targets.
func (b *Browser) filterTargets(kind string, elements rod.Elements, filter warmup.TargetFilter) []warmup.Target {
	seen := make(map[string]bool)
	var targets []warmup.Target

	for _, el := range elements {
		shape, err := el.Shape()
		if err != nil || len(shape.Quads) == 0 {
			continue
		}
		quad := shape.Quads[0]
		pos := warmup.Point{X: quad[0], Y: quad[1]}

		// Controls near the top of the page belong to the composer or
		// navigation, not to posts.
		if filter.MinY > 0 && pos.Y < filter.MinY {
			continue
		}

		if len(filter.ExcludedText) > 0 {
			text, err := el.Text()
			if err == nil && containsAny(text, filter.ExcludedText) {
				continue
			}
		}

		// Two locators can match the same control; one position bucket,
		// one target.
		bucket := fmt.Sprintf("%.0f:%.0f", pos.X/10, pos.Y/10)
		if seen[bucket] {
			continue
		}
		seen[bucket] = true

		targets = append(targets, warmup.Target{Kind: kind, Position: pos, Ref: el})
		if filter.Limit > 0 && len(targets) >= filter.Limit {
			break
		}
	}

	return targets
}

func containsAny(text string, needles []string) bool {
	lower := strings.ToLower(text)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// Click performs a human-like click on a previously discovered target.
func (b *Browser) Click(t warmup.Target) error {
	el, ok := t.Ref.(*rod.Element)
	if !ok {
		return &warmup.InteractionError{Op: "click", Err: fmt.Errorf("stale target for %q", t.Kind)}
	}

	b.logger.BrowserAction("click", t.Kind)
	if err := b.stealth.ClickElement(b.page, el); err != nil {
		return &warmup.InteractionError{Op: "click", Err: err}
	}
	return nil
}

// TypeText types into a target with human-like keystroke timing.
func (b *Browser) TypeText(t warmup.Target, text string) error {
	el, ok := t.Ref.(*rod.Element)
	if !ok {
		return &warmup.InteractionError{Op: "type", Err: fmt.Errorf("stale target for %q", t.Kind)}
	}

	if err := b.stealth.HumanType(b.page, el, text); err != nil {
		return &warmup.InteractionError{Op: "type", Err: err}
	}
	return nil
}

// PressEnter submits whatever control currently holds focus.
func (b *Browser) PressEnter() error {
	if err := b.ensure(); err != nil {
		return &warmup.InteractionError{Op: "press_enter", Err: err}
	}
	if err := b.page.Keyboard.Press(input.Enter); err != nil {
		return &warmup.InteractionError{Op: "press_enter", Err: err}
	}
	return nil
}

// Scroll scrolls the page by deltaY pixels, negative values scroll up.
func (b *Browser) Scroll(deltaY int) error {
	if err := b.ensure(); err != nil {
		return &warmup.InteractionError{Op: "scroll", Err: err}
	}

	direction := "down"
	amount := deltaY
	if deltaY < 0 {
		direction = "up"
		amount = -deltaY
	}

	if err := b.stealth.HumanScroll(b.page, direction, amount); err != nil {
		return &warmup.InteractionError{Op: "scroll", Err: err}
	}
	return nil
}

// Describe returns the author name of the post a target belongs to, by
// walking up to the enclosing article. Best-effort: an empty string and
// nil error means the name could not be determined.
func (b *Browser) Describe(t warmup.Target) (string, error) {
	el, ok := t.Ref.(*rod.Element)
	if !ok {
		return "", &warmup.InteractionError{Op: "describe", Err: fmt.Errorf("stale target for %q", t.Kind)}
	}

	result, err := el.Eval(`() => {
		const article = this.closest('[role="article"]');
		if (!article) return '';
		const name = article.querySelector('strong, h3 a, h4 a, [role="link"] strong');
		return name ? name.innerText.trim() : '';
	}`)
	if err != nil {
		return "", &warmup.InteractionError{Op: "describe", Err: err}
	}

	return result.Value.Str(), nil
}
