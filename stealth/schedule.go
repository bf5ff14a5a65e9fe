package stealth

import (
	"context"
	"time"

	"github.com/anvita/facebook-warmup/config"
	"github.com/anvita/facebook-warmup/logger"
)

// Scheduler gates warmup activity to configured operating hours, so
// sessions never start at hours a real user would be asleep.
type Scheduler struct {
	config *config.ScheduleConfig
	logger *logger.Logger
}

// NewScheduler creates an activity scheduler.
func NewScheduler(cfg *config.ScheduleConfig, log *logger.Logger) *Scheduler {
	return &Scheduler{
		config: cfg,
		logger: log.WithModule("scheduler"),
	}
}

// IsWithinOperatingHours reports whether a session may start now.
func (s *Scheduler) IsWithinOperatingHours(now time.Time) bool {
	if !s.config.Enabled {
		return true
	}

	if s.config.WorkDaysOnly {
		weekday := now.Weekday()
		if weekday == time.Saturday || weekday == time.Sunday {
			return false
		}
	}

	hour := now.Hour()
	if hour < s.config.StartHour || hour >= s.config.EndHour {
		return false
	}

	return true
}

// WaitForOperatingHours blocks until operating hours begin or ctx ends.
func (s *Scheduler) WaitForOperatingHours(ctx context.Context) error {
	for !s.IsWithinOperatingHours(time.Now()) {
		s.logger.Infof("Outside operating hours (%d:00 - %d:00), waiting",
			s.config.StartHour, s.config.EndHour)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Minute):
		}
	}
	return nil
}
