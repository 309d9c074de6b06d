// Package ratelimit implements the per-exchange token bucket described in
// spec.md §4.1, grounded on the teacher's internal/provider/rate_limiter.go
// Wait/refillTokens shape, layered on top of golang.org/x/time/rate for the
// steady-state refill math.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fundingobservatory/observatory/internal/obserr"
)

// Stats mirrors the teacher's RateLimiterStats, exposing the observability
// counters spec.md §4.1 requires: acquires, blocks, penalties, current
// tokens.
type Stats struct {
	Acquires  int64
	Blocks    int64
	Penalties int64
	Tokens    float64
}

// Limiter is a per-exchange token bucket with a penalty box on top for 429
// backoff (spec.md §4.1: "penalize(duration) ... implementing exponential
// backoff across repeated penalties (base B seconds, doubling, capped)").
type Limiter struct {
	name string
	rl   *rate.Limiter
	origBurst int

	mu            sync.Mutex
	baseBackoff   time.Duration
	maxBackoff    time.Duration
	penaltyStreak int
	penalizedUntil time.Time

	acquires  int64
	blocks    int64
	penalties int64
}

// Config carries the token-bucket parameters read from
// exchanges.<name>.rate_limit.{capacity,refill} (spec.md §6).
type Config struct {
	Capacity      int
	RefillPerSec  float64
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
}

// New constructs a Limiter for one exchange.
func New(name string, cfg Config) *Limiter {
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Minute
	}
	return &Limiter{
		name:        name,
		rl:          rate.NewLimiter(rate.Limit(cfg.RefillPerSec), cfg.Capacity),
		origBurst:   cfg.Capacity,
		baseBackoff: cfg.BaseBackoff,
		maxBackoff:  cfg.MaxBackoff,
	}
}

// Acquire blocks until n tokens are available, respecting an active penalty
// window and ctx cancellation. Returns a KindCancelled ObservatoryError if
// cancelled while waiting (spec.md §4.1 failure mode).
func (l *Limiter) Acquire(ctx context.Context, n int) error {
	l.mu.Lock()
	l.acquires++
	wait := time.Until(l.penalizedUntil)
	l.mu.Unlock()

	if wait > 0 {
		l.mu.Lock()
		l.blocks++
		l.mu.Unlock()
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return obserr.New(obserr.KindCancelled, "ratelimit.Acquire", ctx.Err()).WithExchange(l.name)
		case <-timer.C:
		}
	}

	if err := l.rl.WaitN(ctx, n); err != nil {
		if ctx.Err() != nil {
			return obserr.New(obserr.KindCancelled, "ratelimit.Acquire", err).WithExchange(l.name)
		}
		l.mu.Lock()
		l.blocks++
		l.mu.Unlock()
		return obserr.New(obserr.KindRateLimited, "ratelimit.Acquire", err).WithExchange(l.name)
	}
	return nil
}

// Penalize forcibly drains the bucket and suppresses refill for duration,
// doubling the effective penalty on repeated calls up to MaxBackoff (spec.md
// §4.1 exponential backoff across repeated penalties).
func (l *Limiter) Penalize(duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.penalties++
	backoff := l.baseBackoff << uint(min(l.penaltyStreak, 16))
	if backoff <= 0 || backoff > l.maxBackoff {
		backoff = l.maxBackoff
	}
	if duration > backoff {
		backoff = duration
	}
	l.penaltyStreak++

	until := time.Now().Add(backoff)
	if until.After(l.penalizedUntil) {
		l.penalizedUntil = until
	}
	l.rl.SetBurst(0)
	// Restore burst capacity once the penalty window elapses so future
	// refills resume at full capacity rather than staying drained forever.
	time.AfterFunc(backoff, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.rl.SetBurst(l.origBurst)
		l.penaltyStreak = 0
	})
}

// Stats returns a snapshot of the limiter's observability counters.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Acquires:  l.acquires,
		Blocks:    l.blocks,
		Penalties: l.penalties,
		Tokens:    l.rl.Tokens(),
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
