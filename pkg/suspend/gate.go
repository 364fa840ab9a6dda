package suspend

import (
	"context"
	"time"
)

// DefaultPollInterval is how often a paused gate re-checks its conditions.
const DefaultPollInterval = 500 * time.Millisecond

// Gate applies a registry's conditions to one session's dispatch loop. A
// violation observed before a physical command latches a pause request; at
// the next checkpoint the gate blocks until all conditions clear, then the
// stream resumes automatically. The wait is unbounded unless the context is
// cancelled.
//
// A Gate belongs to a single session and is not safe for concurrent use; the
// registry behind it is shared and concurrency-safe.
type Gate struct {
	registry *Registry
	poll     time.Duration
	tripped  bool

	// OnSuspend is called once when the gate begins waiting, with the
	// violated condition names.
	OnSuspend func(violated []string)

	// OnResume is called once when all conditions have cleared, with the
	// time spent paused.
	OnResume func(paused time.Duration)
}

// NewGate creates a gate over the given registry. poll <= 0 selects
// DefaultPollInterval.
func NewGate(registry *Registry, poll time.Duration) *Gate {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Gate{registry: registry, poll: poll}
}

// Check evaluates the conditions without blocking. A violation latches the
// gate so the next checkpoint waits even if the signal recovers in between.
func (g *Gate) Check(ctx context.Context) (bool, error) {
	if g.registry == nil {
		return true, nil
	}
	violated, err := g.registry.Check(ctx)
	if err != nil {
		return false, err
	}
	if len(violated) > 0 {
		g.tripped = true
		return false, nil
	}
	return true, nil
}

// WaitAtCheckpoint blocks at a safe point until every condition clears.
// It returns the time spent paused (zero when nothing was violated) and
// whether the gate actually paused.
func (g *Gate) WaitAtCheckpoint(ctx context.Context) (time.Duration, bool, error) {
	if g.registry == nil {
		return 0, false, nil
	}

	violated, err := g.registry.Check(ctx)
	if err != nil {
		return 0, false, err
	}
	if len(violated) == 0 && !g.tripped {
		return 0, false, nil
	}
	g.tripped = false

	if len(violated) == 0 {
		// Latched violation already cleared; nothing to wait for.
		return 0, false, nil
	}

	if g.OnSuspend != nil {
		g.OnSuspend(violated)
	}

	start := time.Now()
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return time.Since(start), true, ctx.Err()
		case <-ticker.C:
		}
		violated, err = g.registry.Check(ctx)
		if err != nil {
			return time.Since(start), true, err
		}
		if len(violated) == 0 {
			paused := time.Since(start)
			if g.OnResume != nil {
				g.OnResume(paused)
			}
			return paused, true, nil
		}
	}
}
