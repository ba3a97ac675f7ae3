package syncclient

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrClosed is returned by view operations after Close.
var ErrClosed = errors.New("view is closed")

type fetchCall struct {
	done chan struct{}
	err  error
}

func (c *fetchCall) wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type startKind int

const (
	startFetch startKind = iota
	startJoin
	startSkip
)

// loader tracks the fetch bookkeeping of a view. Every method expects the
// owning view's lock to be held.
type loader struct {
	dedupe     time.Duration
	generation uint64
	lastFetch  time.Time
	inflight   *fetchCall
}

// start decides what a refresh does. Unforced refreshes join a fetch in
// flight or collapse into the last one inside the dedupe window.
func (l *loader) start(now time.Time, force bool) (*fetchCall, uint64, startKind) {
	if !force {
		if l.inflight != nil {
			return l.inflight, 0, startJoin
		}
		if !l.lastFetch.IsZero() && now.Sub(l.lastFetch) < l.dedupe {
			return nil, 0, startSkip
		}
	}
	l.generation++
	call := &fetchCall{done: make(chan struct{})}
	l.inflight = call
	l.lastFetch = now
	return call, l.generation, startFetch
}

// finish reports whether the result of generation gen may still be
// applied. A newer fetch or a Close bumps the generation.
func (l *loader) finish(call *fetchCall, gen uint64) bool {
	if l.inflight == call {
		l.inflight = nil
	}
	return gen == l.generation
}

func (l *loader) invalidate() {
	l.generation++
	l.inflight = nil
}

// pollLoop runs refresh immediately and then on every tick until ctx ends.
func pollLoop(ctx context.Context, interval time.Duration, logger *slog.Logger, refresh func(context.Context) error) {
	if err := refresh(ctx); err != nil && ctx.Err() == nil {
		logger.Debug("poll failed", "error", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := refresh(ctx); err != nil && ctx.Err() == nil {
				logger.Debug("poll failed", "error", err)
			}
		}
	}
}
