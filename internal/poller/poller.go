// Package poller keeps a displayed value converging on the authority by
// re-fetching it on a fixed interval.
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"posdrawer/backend/internal/metrics"
)

// Observed is a fetched value together with when it was last confirmed.
// After a failed fetch the last good Value is kept and Err annotates it.
type Observed[T any] struct {
	Value    T
	AsOf     time.Time
	Err      error
	HasValue bool
}

// IsStale reports whether the value should be shown as unconfirmed.
func (o Observed[T]) IsStale(now time.Time, maxAge time.Duration) bool {
	if !o.HasValue || o.Err != nil {
		return true
	}
	return maxAge > 0 && now.Sub(o.AsOf) > maxAge
}

type FetchFunc[T any] func(ctx context.Context) (T, error)

type Options struct {
	Logger *zap.Logger
	Now    func() time.Time
}

type Poller[T any] struct {
	fetch    FetchFunc[T]
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	latest  Observed[T]
	updates chan Observed[T]
}

func New[T any](fetch FetchFunc[T], interval time.Duration, opts Options) *Poller[T] {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Poller[T]{
		fetch:    fetch,
		interval: interval,
		logger:   opts.Logger.Named("poller"),
		now:      opts.Now,
		updates:  make(chan Observed[T], 1),
	}
}

// Run fetches immediately and then on every tick until ctx is done. Fetches
// are never retried early; a failure waits for the next tick.
func (p *Poller[T]) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}

// Refresh performs one fetch. A result that arrives after ctx is cancelled
// is dropped so a torn-down caller never sees it applied.
func (p *Poller[T]) Refresh(ctx context.Context) {
	value, err := p.fetch(ctx)
	if ctx.Err() != nil {
		metrics.PollResults.WithLabelValues("discarded").Inc()
		return
	}

	p.mu.Lock()
	if err != nil {
		metrics.PollResults.WithLabelValues("error").Inc()
		p.logger.Warn("poll fetch failed", zap.Error(err))
		p.latest.Err = err
	} else {
		metrics.PollResults.WithLabelValues("ok").Inc()
		p.latest = Observed[T]{Value: value, AsOf: p.now(), HasValue: true}
	}
	snapshot := p.latest
	p.mu.Unlock()

	p.publish(snapshot)
}

func (p *Poller[T]) Latest() Observed[T] {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Updates delivers snapshots after every completed fetch. Slow consumers
// only ever see the newest snapshot.
func (p *Poller[T]) Updates() <-chan Observed[T] {
	return p.updates
}

func (p *Poller[T]) publish(snapshot Observed[T]) {
	for {
		select {
		case p.updates <- snapshot:
			return
		default:
		}
		select {
		case <-p.updates:
		default:
		}
	}
}
