// Package jobs runs the periodic maintenance sweeps: expiring sessions,
// stale csrf tokens and dead one-time codes.
package jobs

import (
	"context"
	"time"

	"github.com/solumlabs/authcore/internal/obs"
)

// SweepFunc deletes expired rows of one kind and reports how many went.
type SweepFunc func(ctx context.Context) (int64, error)

// Sweep is one recurring cleanup task.
type Sweep struct {
	Kind     string
	Interval time.Duration
	Run      SweepFunc
}

// Sweeper drives a set of sweeps on independent tickers until its context
// is cancelled.
type Sweeper struct {
	sweeps []Sweep
}

func NewSweeper(sweeps ...Sweep) *Sweeper {
	return &Sweeper{sweeps: sweeps}
}

// Start launches one goroutine per sweep and returns immediately. Each
// sweep also runs once at startup so restarts do not defer cleanup by a
// full interval.
func (s *Sweeper) Start(ctx context.Context) {
	for _, sw := range s.sweeps {
		go s.loop(ctx, sw)
	}
}

func (s *Sweeper) loop(ctx context.Context, sw Sweep) {
	s.runOnce(ctx, sw)
	ticker := time.NewTicker(sw.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, sw)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context, sw Sweep) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	n, err := sw.Run(runCtx)
	if err != nil {
		obs.LogJSON(map[string]any{
			"level": "error",
			"msg":   "sweep failed",
			"kind":  sw.Kind,
			"error": err.Error(),
		})
		return
	}
	obs.ObserveSweep(sw.Kind, n)
	if n > 0 {
		obs.LogJSON(map[string]any{
			"level":   "info",
			"msg":     "sweep completed",
			"kind":    sw.Kind,
			"deleted": n,
		})
	}
}
