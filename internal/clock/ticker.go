package clock

import (
	"context"
	"log/slog"
	"time"
)

// Ticker recomputes the clock snapshot on a fixed interval and reports
// phase transitions.
type Ticker struct {
	Clock    *Clock
	Interval time.Duration
	Logger   *slog.Logger

	// OnTick receives every snapshot.
	OnTick func(Snapshot)
	// OnTransition fires when the phase differs from the previous tick.
	OnTransition func(from, to Phase, snap Snapshot)
}

// Run blocks until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) error {
	interval := t.Interval
	if interval <= 0 {
		interval = time.Second
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	last := t.Clock.Phase()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			snap := t.Clock.Snapshot()
			if t.OnTick != nil {
				t.OnTick(snap)
			}
			if snap.Phase != last {
				if t.Logger != nil {
					t.Logger.Info("clock phase changed",
						slog.String("from", string(last)),
						slog.String("to", string(snap.Phase)),
					)
				}
				if t.OnTransition != nil {
					t.OnTransition(last, snap.Phase, snap)
				}
				last = snap.Phase
			}
		}
	}
}
