package warmup

import (
	"github.com/anvita/facebook-warmup/config"
	"github.com/anvita/facebook-warmup/timing"
)

// DefaultProfile is the hard-coded fallback used when the configured
// profile set is empty or misconfigured. A degraded-but-safe default is
// preferred over aborting a scheduled job.
func DefaultProfile() config.ProfileConfig {
	return config.ProfileConfig{
		Name:               "normal",
		Weight:             1,
		ScrollMinutes:      timing.Range{Min: 5, Max: 10},
		LogoutDelayMinutes: timing.Range{Min: 2, Max: 5},
		FriendProbability:  0.7,
		MaxLikes:           6,
		Description:        "Normal browsing session (fallback)",
	}
}

// SelectProfile picks one session profile by weighted random choice.
// The profile is selected once per session and never mutated.
func SelectProfile(src timing.Source, profiles []config.ProfileConfig) config.ProfileConfig {
	if len(profiles) == 0 {
		return DefaultProfile()
	}

	weights := make(map[string]float64, len(profiles))
	byName := make(map[string]config.ProfileConfig, len(profiles))
	for _, p := range profiles {
		weights[p.Name] = p.Weight
		byName[p.Name] = p
	}

	name, err := timing.WeightedChoice(src, weights)
	if err != nil {
		return DefaultProfile()
	}
	return byName[name]
}
