package domain

import (
	"fmt"
	"time"
)

// SessionState is the coarse lifecycle phase of a registration session,
// derived from the session's fields. EXPIRED is implicit: any state plus
// an elapsed TTL.
type SessionState string

const (
	StateFresh     SessionState = "fresh"
	StateCodeSent  SessionState = "code_sent"
	StateVerified  SessionState = "verified"
	StateCommitted SessionState = "committed"
)

// Session is the in-memory record of one in-progress phone-number
// registration. All mutation happens through the transition methods below,
// and only while holding the owning registry handle's lock.
//
// Invariants:
//   - Verified is sticky: once true it never resets.
//   - CheckAttempts never exceeds the configured maximum; the lockout
//     deadline is set the moment the maximum is reached.
//   - ActiveCode holds at most the latest issued code; older codes are
//     superseded and can never verify the session.
type Session struct {
	ID            SessionID
	Phone         PhoneNumber
	DirectoryUser string

	CreatedAt time.Time
	ExpiresAt time.Time

	LastSMSAt   time.Time // zero until the first SMS send
	LastVoiceAt time.Time // zero until the first voice send

	SMSAttempts   int
	VoiceAttempts int
	CheckAttempts int

	ActiveCode string // empty when no code is outstanding
	Verified   bool
	Committed  bool

	CheckLockedUntil time.Time // zero unless a check lockout is in force
}

// NewSession constructs a fresh session for the given phone number.
// The caller supplies the minted ID; verified starts false, no code
// is outstanding, and no channel has been used.
func NewSession(id SessionID, phone PhoneNumber, directoryUser string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:            id,
		Phone:         phone,
		DirectoryUser: directoryUser,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
}

// State derives the lifecycle phase from the session's fields.
func (s *Session) State() SessionState {
	switch {
	case s.Committed:
		return StateCommitted
	case s.Verified:
		return StateVerified
	case s.SMSAttempts > 0 || s.VoiceAttempts > 0:
		return StateCodeSent
	default:
		return StateFresh
	}
}

// Expired reports whether the session's TTL has elapsed at the given instant.
// Expired sessions are indistinguishable from absent ones to callers.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// RemainingTTL returns the whole seconds until expiry, clamped at zero.
func (s *Session) RemainingTTL(now time.Time) uint64 {
	d := s.ExpiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Second)
}

// HasSentSMS reports whether at least one SMS has gone out on this session.
// Voice sends are gated on this (plus the configured delay).
func (s *Session) HasSentSMS() bool {
	return !s.LastSMSAt.IsZero()
}

// VoiceGateSatisfied reports whether the first-SMS prerequisite for voice
// sends is met: an SMS was sent at least delayAfterFirstSMS ago.
func (s *Session) VoiceGateSatisfied(now time.Time, delayAfterFirstSMS time.Duration) bool {
	if s.LastSMSAt.IsZero() {
		return false
	}
	return !now.Before(s.LastSMSAt.Add(delayAfterFirstSMS))
}

// RecordSend registers an outbound code send on the given channel,
// superseding any outstanding code. Only the recorded code can verify the
// session from this point on.
func (s *Session) RecordSend(channel CodeChannel, code string, now time.Time) error {
	if s.Verified {
		return fmt.Errorf("record send on verified session: %w", ErrInvalidInput)
	}
	switch channel {
	case ChannelSMS:
		s.LastSMSAt = now
		s.SMSAttempts++
	case ChannelVoice:
		s.LastVoiceAt = now
		s.VoiceAttempts++
	default:
		return fmt.Errorf("record send: channel %d: %w", channel, ErrTransportNotAllowed)
	}
	s.ActiveCode = code
	return nil
}

// CheckLocked reports whether a check lockout is in force at the given instant.
func (s *Session) CheckLocked(now time.Time) bool {
	return !s.CheckLockedUntil.IsZero() && now.Before(s.CheckLockedUntil)
}

// MayCheckCode reports whether a code check is currently legal: a code is
// outstanding, the attempt budget is not exhausted, and no lockout is in
// force. An expired lockout buys one more attempt; a further failure locks
// again immediately.
func (s *Session) MayCheckCode(now time.Time, maxAttempts int) bool {
	if s.ActiveCode == "" || s.CheckLocked(now) {
		return false
	}
	if s.CheckAttempts >= maxAttempts && s.CheckLockedUntil.IsZero() {
		return false
	}
	return true
}

// RecordCheckFailure registers a failed code check. Exhausting the attempt
// budget sets the lockout deadline; every failure past the budget renews it.
func (s *Session) RecordCheckFailure(now time.Time, maxAttempts int, lockout time.Duration) {
	s.CheckAttempts++
	if s.CheckAttempts >= maxAttempts {
		s.CheckLockedUntil = now.Add(lockout)
	}
}

// RecordCheckSuccess marks the session verified and clears the outstanding
// code. Verified is sticky; the consumed attempt is still counted.
func (s *Session) RecordCheckSuccess() {
	s.CheckAttempts++
	s.Verified = true
	s.ActiveCode = ""
}

// RecordCommit marks the session's registration record as durably written.
func (s *Session) RecordCommit() error {
	if !s.Verified {
		return fmt.Errorf("commit unverified session: %w", ErrNotVerified)
	}
	s.Committed = true
	return nil
}

// Snapshot returns a copy of the session for publication outside the
// session lock. The copy shares no mutable state with the original.
func (s *Session) Snapshot() Session {
	return *s
}
