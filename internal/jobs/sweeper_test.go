package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSweeperRunsImmediatelyAndOnTicker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int64
	s := NewSweeper(Sweep{
		Kind:     "sessions",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) (int64, error) {
			runs.Add(1)
			return 1, nil
		},
	})
	s.Start(ctx)

	deadline := time.After(time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d runs within deadline", runs.Load())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSweeperStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int64
	s := NewSweeper(Sweep{
		Kind:     "otps",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) (int64, error) {
			runs.Add(1)
			return 0, nil
		},
	})
	s.Start(ctx)

	for runs.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	time.Sleep(20 * time.Millisecond)
	settled := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if got := runs.Load(); got != settled {
		t.Fatalf("sweep kept running after cancel: %d then %d", settled, got)
	}
}

func TestSweeperSurvivesFailingSweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int64
	s := NewSweeper(Sweep{
		Kind:     "csrf_tokens",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) (int64, error) {
			runs.Add(1)
			return 0, errors.New("connection refused")
		},
	})
	s.Start(ctx)

	deadline := time.After(time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("failing sweep was not retried")
		case <-time.After(time.Millisecond):
		}
	}
}
