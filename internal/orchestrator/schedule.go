package orchestrator

import (
	"context"
	"fmt"
	"time"

	"aquacast/internal/observability"
)

// RunFunc executes one scheduled cycle for the given run date.
type RunFunc func(ctx context.Context, runDate time.Time) error

// Scheduler fires a run function once per day at a fixed UTC wall time.
type Scheduler struct {
	runAt  string
	run    RunFunc
	logger observability.Logger
	clock  func() time.Time
}

// NewScheduler builds a daily scheduler. runAt is a UTC wall time in "15:04"
// form.
func NewScheduler(runAt string, run RunFunc, logger observability.Logger, clock func() time.Time) (*Scheduler, error) {
	if _, err := time.Parse("15:04", runAt); err != nil {
		return nil, fmt.Errorf("run-at time %q: %w", runAt, err)
	}
	if logger == nil {
		logger = observability.NopLogger{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{runAt: runAt, run: run, logger: logger, clock: clock}, nil
}

// Loop blocks, firing the run function at each daily trigger until the
// context is cancelled. A failed cycle is logged and the loop continues; the
// next night's run starts from the store's current state either way.
func (s *Scheduler) Loop(ctx context.Context) error {
	for {
		now := s.clock().UTC()
		next := s.nextFire(now)
		s.logger.Info("next run scheduled", "at", next.Format(time.RFC3339))
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case fired := <-timer.C:
			if err := s.run(ctx, fired.UTC()); err != nil {
				s.logger.Error("scheduled run failed", "error", err.Error())
			}
		}
	}
}

// nextFire returns the first daily trigger strictly after now.
func (s *Scheduler) nextFire(now time.Time) time.Time {
	at, _ := time.Parse("15:04", s.runAt)
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
