package poll

import (
	"context"
	"log/slog"
	"time"
)

// Runner is the tick entry point the scheduler drives.
type Runner interface {
	RunTick(ctx context.Context)
}

// Scheduler fires poll ticks on a fixed period, gated to the target site's
// working hours. Mandarake stock barely moves overnight, and alerts ought
// not to land at 3am Japan time.
type Scheduler struct {
	runner    Runner
	logger    *slog.Logger
	location  *time.Location
	interval  time.Duration
	startHour int // inclusive
	endHour   int // exclusive
}

// NewScheduler creates a scheduler. location is the site's home time zone
// (Asia/Tokyo for Mandarake); the window is [startHour, endHour).
func NewScheduler(runner Runner, interval time.Duration, startHour, endHour int, location *time.Location, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:    runner,
		interval:  interval,
		startHour: startHour,
		endHour:   endHour,
		location:  location,
		logger:    logger,
	}
}

// Run ticks immediately, then on every interval until ctx is cancelled.
// It blocks; run it in its own goroutine. Overlap suppression lives in the
// runner itself, so a firing during a slow tick is simply dropped there.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Scheduler starting",
		"interval", s.interval.String(),
		"window_start", s.startHour,
		"window_end", s.endHour,
		"zone", s.location.String())

	s.fire(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopping", "error", ctx.Err())
			return
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	now := time.Now().In(s.location)
	if !s.withinWorkingHours(now) {
		s.logger.Info("Outside working hours, skipping checks",
			"local_hour", now.Hour(),
			"window_start", s.startHour,
			"window_end", s.endHour)
		return
	}
	s.runner.RunTick(ctx)
}

// withinWorkingHours reports whether t's hour falls in [startHour, endHour).
func (s *Scheduler) withinWorkingHours(t time.Time) bool {
	hour := t.In(s.location).Hour()
	return hour >= s.startHour && hour < s.endHour
}
