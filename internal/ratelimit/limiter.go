// Package ratelimit implements the in-process leaky-bucket limiters that
// govern session creation and per-session actions. Each limiter owns a set
// of buckets keyed by subject (client address, phone number, or session id);
// buckets are created on first use and swept after sitting idle.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/aelexs/registration-gateway/internal/domain"
)

// Well-known limiter names. Metrics and logs key on these.
const (
	BucketSessionCreation = "session-creation"
	BucketSMSPerSession   = "sms-per-session"
	BucketVoicePerSession = "voice-per-session"
	BucketCheckPerSession = "check-per-session"
)

// Policy describes one named limiter: classic leaky-bucket parameters plus
// a per-consume delay schedule. The n-th consume must come at least
// MinDelays[min(n, len-1)] after the previous one; an empty schedule means
// no spacing requirement.
type Policy struct {
	Capacity     float64
	RefillPerSec float64
	MinDelays    []time.Duration

	// RetainIdle bounds memory: buckets untouched for longer are dropped
	// by the sweeper. Zero means domain.DefaultBucketRetainIdle.
	RetainIdle time.Duration
}

// Decision is the outcome of an admission query. RetryAfter is only
// meaningful when Allowed is false; zero means the denial has no known
// expiry (for example a zero refill rate).
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type bucket struct {
	mu          sync.Mutex
	tokens      float64
	lastRefill  time.Time
	lastConsume time.Time // zero until the first consume
	consumes    int
	lastTouched time.Time
}

// Limiter is one named family of leaky buckets sharing a single policy.
// The bucket map has its own lock; each bucket has its own. The map lock
// is never held while a bucket lock is taken by a caller-visible path
// other than bucket creation.
type Limiter struct {
	name   string
	policy Policy
	clock  domain.Clock

	mu      sync.Mutex
	buckets map[string]*bucket
}

// New creates a limiter for the given policy. The clock is injected so
// tests can drive time deterministically.
func New(name string, policy Policy, clock domain.Clock) *Limiter {
	if policy.RetainIdle <= 0 {
		policy.RetainIdle = domain.DefaultBucketRetainIdle
	}
	return &Limiter{
		name:    name,
		policy:  policy,
		clock:   clock,
		buckets: make(map[string]*bucket),
	}
}

// Name returns the limiter's bucket-family name.
func (l *Limiter) Name() string { return l.name }

func (l *Limiter) get(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		now := l.clock.Now()
		b = &bucket{
			tokens:      l.policy.Capacity,
			lastRefill:  now,
			lastTouched: now,
		}
		l.buckets[key] = b
	}
	return b
}

// minDelay returns the required spacing before the next consume, given how
// many consumes the bucket has already admitted.
func (l *Limiter) minDelay(consumes int) time.Duration {
	s := l.policy.MinDelays
	if len(s) == 0 {
		return 0
	}
	if consumes >= len(s) {
		return s[len(s)-1]
	}
	return s[consumes]
}

// projectedTokens computes the refilled token count at the given instant
// without mutating the bucket. Caller holds b.mu.
func (l *Limiter) projectedTokens(b *bucket, now time.Time) float64 {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return b.tokens
	}
	tokens := b.tokens + elapsed.Seconds()*l.policy.RefillPerSec
	if tokens > l.policy.Capacity {
		tokens = l.policy.Capacity
	}
	return tokens
}

// decide evaluates admission at the given instant. Caller holds b.mu.
// The delay-schedule denial and the token denial each produce a retry
// hint; the caller gets the larger of the two.
func (l *Limiter) decide(b *bucket, now time.Time) Decision {
	var retry time.Duration

	if required := l.minDelay(b.consumes); required > 0 && !b.lastConsume.IsZero() {
		if since := now.Sub(b.lastConsume); since < required {
			retry = required - since
		}
	}

	if l.projectedTokens(b, now) < 1 {
		tokenRetry := time.Duration(0)
		if l.policy.RefillPerSec > 0 {
			deficit := 1 - l.projectedTokens(b, now)
			tokenRetry = time.Duration(deficit / l.policy.RefillPerSec * float64(time.Second))
		}
		if tokenRetry > retry {
			retry = tokenRetry
		}
		return Decision{Allowed: false, RetryAfter: retry}
	}

	if retry > 0 {
		return Decision{Allowed: false, RetryAfter: retry}
	}
	return Decision{Allowed: true}
}

// TryAcquire consumes one token for the subject if admission succeeds.
// On denial nothing is consumed and RetryAfter says when to come back.
func (l *Limiter) TryAcquire(key string) Decision {
	b := l.get(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.clock.Now()
	b.lastTouched = now

	d := l.decide(b, now)
	if !d.Allowed {
		return d
	}

	b.tokens = l.projectedTokens(b, now) - 1
	b.lastRefill = now
	b.lastConsume = now
	b.consumes++
	return d
}

// Peek reports whether a TryAcquire would succeed right now, without
// consuming anything. Used for the may_request_* metadata projections.
func (l *Limiter) Peek(key string) Decision {
	l.mu.Lock()
	b, ok := l.buckets[key]
	l.mu.Unlock()
	if !ok {
		// A fresh bucket starts at full capacity.
		if l.policy.Capacity >= 1 {
			return Decision{Allowed: true}
		}
		return Decision{Allowed: false}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return l.decide(b, l.clock.Now())
}

// Forget drops the subject's bucket, releasing its memory. Called when the
// owning session is evicted.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Len reports the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep drops buckets untouched for longer than the policy's RetainIdle
// and returns how many were removed.
func (l *Limiter) Sweep() int {
	now := l.clock.Now()
	cutoff := now.Add(-l.policy.RetainIdle)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		b.mu.Lock()
		idle := b.lastTouched.Before(cutoff)
		b.mu.Unlock()
		if idle {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// RunSweeper periodically sweeps idle buckets until the context is
// canceled. Intended to run under the server's task group.
func (l *Limiter) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = domain.BucketSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
