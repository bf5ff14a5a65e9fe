package warmup

import (
	"fmt"
	"time"
)

// rateGuard throttles one action kind. It tracks a running count against a
// per-session cap and the timestamp of the last success against a minimum
// interval. Guards are consulted before an action and updated only after a
// success, so counters can never exceed their caps.
type rateGuard struct {
	kind        string
	cap         int
	minInterval time.Duration
	count       int
	last        time.Time
}

func newRateGuard(kind string, cap int, minInterval time.Duration) *rateGuard {
	return &rateGuard{kind: kind, cap: cap, minInterval: minInterval}
}

// allow reports whether the action may run now. The reason string is a
// skip reason suitable for an ActionResult.
func (g *rateGuard) allow(now time.Time) (bool, string) {
	if g.cap >= 0 && g.count >= g.cap {
		return false, fmt.Sprintf("rate-limited: %s cap %d reached", g.kind, g.cap)
	}
	if !g.last.IsZero() && g.minInterval > 0 {
		if since := now.Sub(g.last); since < g.minInterval {
			return false, fmt.Sprintf("rate-limited: %.0fs since last %s, need %.0fs",
				since.Seconds(), g.kind, g.minInterval.Seconds())
		}
	}
	return true, ""
}

// record marks one success.
func (g *rateGuard) record(now time.Time) {
	g.count++
	g.last = now
}
