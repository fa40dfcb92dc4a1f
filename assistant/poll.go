package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PollConfig bounds how long and how often a run is polled.
type PollConfig struct {
	Interval    time.Duration // delay before the first poll
	MaxInterval time.Duration // cap on the delay between polls
	Multiplier  float64       // growth factor applied after each poll
	Timeout     time.Duration // hard deadline for the whole wait
}

// DefaultPollConfig returns the polling defaults used by the server.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:    1 * time.Second,
		MaxInterval: 5 * time.Second,
		Multiplier:  1.5,
		Timeout:     2 * time.Minute,
	}
}

func (c PollConfig) withDefaults() PollConfig {
	d := DefaultPollConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.MaxInterval < c.Interval {
		c.MaxInterval = c.Interval
	}
	if c.Multiplier < 1 {
		c.Multiplier = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// nextDelay grows delay by the multiplier and clamps it to MaxInterval.
func (c PollConfig) nextDelay(delay time.Duration) time.Duration {
	next := time.Duration(float64(delay) * c.Multiplier)
	if next > c.MaxInterval {
		next = c.MaxInterval
	}
	return next
}

// WaitForRun polls the run until it reaches a terminal status.
//
// If the deadline passes first, the last observed run is returned with ErrRunTimedOut.
// Retrieval errors are not retried.
func WaitForRun(ctx context.Context, client Client, run Run, cfg PollConfig) (Run, error) {
	cfg = cfg.withDefaults()
	logger := zerolog.Ctx(ctx)

	deadline := time.NewTimer(cfg.Timeout)
	defer deadline.Stop()

	delay := cfg.Interval
	polls := 0
	for !run.Status.Terminal() {
		wait := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			wait.Stop()
			return run, ctx.Err()
		case <-deadline.C:
			wait.Stop()
			logger.Warn().Str("run_id", run.ID).Int("polls", polls).Dur("timeout", cfg.Timeout).
				Msg("Gave up waiting for run")
			return run, fmt.Errorf("run %s still %s after %s: %w", run.ID, run.Status, cfg.Timeout, ErrRunTimedOut)
		case <-wait.C:
		}

		next, err := client.RetrieveRun(ctx, run.ThreadID, run.ID)
		if err != nil {
			return run, err
		}
		polls++
		run = next
		logger.Debug().Str("run_id", run.ID).Str("status", string(run.Status)).Int("polls", polls).Msg("Polled run")

		delay = cfg.nextDelay(delay)
	}
	return run, nil
}
