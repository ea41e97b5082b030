package readiness

import (
	"context"
	"log/slog"
	"time"
)

// A backend-specific cluster health check. An error counts as "not ready" for
// that poll and never stops polling.
type Probe func(ctx context.Context) (bool, error)

type Status string

const (
	Ready     Status = "ready"
	TimedOut  Status = "timed_out"
	// ctx ended before the wait budget was spent.
	Cancelled Status = "cancelled"
)

type Outcome struct {
	Status  Status
	Elapsed time.Duration
}

func (o Outcome) Ready() bool {
	return o.Status == Ready
}

// Called after every probe with the 1-based attempt number.
type Observer func(attempt int, ready bool)

// PollUntilReady invokes probe at most once per interval until it reports
// ready or maxWait elapses. Timing out is advisory: callers should warn and
// carry on. Cancelling ctx ends polling early with Cancelled.
func PollUntilReady(ctx context.Context, probe Probe, interval, maxWait time.Duration) Outcome {
	return PollUntilReadyWithObserver(ctx, probe, interval, maxWait, nil)
}

func PollUntilReadyWithObserver(ctx context.Context, probe Probe, interval, maxWait time.Duration, observe Observer) Outcome {
	start := time.Now()
	for attempt := 1; ; attempt++ {
		ready, err := probe(ctx)
		if err != nil {
			slog.Debug("readiness probe failed", slog.Int("attempt", attempt), slog.String("error", err.Error()))
			ready = false
		}
		if observe != nil {
			observe(attempt, ready)
		}
		if ready {
			return Outcome{Status: Ready, Elapsed: time.Since(start)}
		}

		remaining := maxWait - time.Since(start)
		if remaining <= 0 {
			return Outcome{Status: TimedOut, Elapsed: time.Since(start)}
		}

		// Sleeping less than a full interval only happens when the budget runs out
		// first, so the next probe is never early.
		timer := time.NewTimer(min(interval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Debug("readiness polling cancelled", slog.String("error", ctx.Err().Error()))
			return Outcome{Status: Cancelled, Elapsed: time.Since(start)}
		case <-timer.C:
		}

		if time.Since(start) >= maxWait {
			return Outcome{Status: TimedOut, Elapsed: time.Since(start)}
		}
	}
}
