package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aelexs/registration-gateway/internal/domain"
)

// sessionHandle pairs a session with its own lock. The registry map lock is
// only held to find or insert handles; all session reads and writes happen
// under the handle lock. Lock ordering: map lock before handle lock, never
// the reverse.
type sessionHandle struct {
	mu   sync.Mutex
	sess *domain.Session
}

// SessionRegistry owns the live sessions of this process: lookup by token,
// TTL-based expiry, and a background sweeper. Sessions are single-node and
// in-memory; an evicted or expired session is indistinguishable from one
// that never existed.
type SessionRegistry struct {
	clock  domain.Clock
	ttl    time.Duration
	logger *slog.Logger

	// onEvict runs after a session leaves the map, outside all locks.
	// The composition root uses it to drop per-session limiter buckets.
	onEvict func(domain.SessionID)

	mu       sync.RWMutex
	sessions map[string]*sessionHandle
}

// RegistryConfig holds the dependencies for SessionRegistry.
type RegistryConfig struct {
	Clock   domain.Clock
	TTL     time.Duration
	Logger  *slog.Logger
	OnEvict func(domain.SessionID)
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(cfg RegistryConfig) *SessionRegistry {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = domain.DefaultSessionTTL
	}
	onEvict := cfg.OnEvict
	if onEvict == nil {
		onEvict = func(domain.SessionID) {}
	}
	return &SessionRegistry{
		clock:    cfg.Clock,
		ttl:      ttl,
		logger:   cfg.Logger,
		onEvict:  onEvict,
		sessions: make(map[string]*sessionHandle),
	}
}

// TTL returns the configured session lifetime.
func (r *SessionRegistry) TTL() time.Duration { return r.ttl }

// Create mints a session token and inserts a fresh session. The returned
// snapshot is safe to use without locking.
func (r *SessionRegistry) Create(phone domain.PhoneNumber, directoryUser string) (domain.Session, error) {
	id, err := domain.GenerateSessionID()
	if err != nil {
		return domain.Session{}, fmt.Errorf("mint session token: %w", err)
	}

	sess := domain.NewSession(id, phone, directoryUser, r.clock.Now(), r.ttl)

	r.mu.Lock()
	r.sessions[id.String()] = &sessionHandle{sess: sess}
	r.mu.Unlock()

	return sess.Snapshot(), nil
}

// With looks the session up and runs fn under the session lock. Expired
// sessions are evicted on sight and reported as not found. fn must not
// perform I/O; callers doing I/O release the lock between a read pass and
// a reacquire-and-validate write pass.
func (r *SessionRegistry) With(id domain.SessionID, fn func(*domain.Session) error) error {
	key := id.String()

	r.mu.RLock()
	h, ok := r.sessions[key]
	r.mu.RUnlock()
	if !ok {
		return domain.ErrSessionNotFound
	}

	h.mu.Lock()
	if h.sess.Expired(r.clock.Now()) {
		h.mu.Unlock()
		r.evict(key, id)
		return domain.ErrSessionNotFound
	}
	err := fn(h.sess)
	h.mu.Unlock()
	return err
}

// Snapshot returns a copy of the session, or ErrSessionNotFound.
func (r *SessionRegistry) Snapshot(id domain.SessionID) (domain.Session, error) {
	var snap domain.Session
	err := r.With(id, func(s *domain.Session) error {
		snap = s.Snapshot()
		return nil
	})
	return snap, err
}

// Delete removes the session regardless of state.
func (r *SessionRegistry) Delete(id domain.SessionID) {
	r.evict(id.String(), id)
}

func (r *SessionRegistry) evict(key string, id domain.SessionID) {
	r.mu.Lock()
	_, ok := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()
	if ok {
		r.onEvict(id)
	}
}

// Len reports the number of live (possibly expired, not yet swept) sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep evicts every expired session and returns how many were removed.
func (r *SessionRegistry) Sweep() int {
	now := r.clock.Now()

	r.mu.RLock()
	expired := make([]domain.SessionID, 0)
	for _, h := range r.sessions {
		h.mu.Lock()
		if h.sess.Expired(now) {
			expired = append(expired, h.sess.ID)
		}
		h.mu.Unlock()
	}
	r.mu.RUnlock()

	for _, id := range expired {
		r.evict(id.String(), id)
	}

	if len(expired) > 0 && r.logger != nil {
		r.logger.Debug("registry.swept_expired_sessions", "count", len(expired))
	}
	return len(expired)
}

// SweepInterval derives the sweeper period from the TTL, floored so a tiny
// TTL cannot spin the sweeper.
func (r *SessionRegistry) SweepInterval() time.Duration {
	interval := r.ttl / domain.SessionSweepDivisor
	if interval < domain.MinSessionSweepPeriod {
		interval = domain.MinSessionSweepPeriod
	}
	return interval
}

// RunSweeper evicts expired sessions on a fixed interval until the context
// is canceled. Intended to run under the server's task group.
func (r *SessionRegistry) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(r.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
