package app

import (
	"time"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/ratelimit"
)

// SessionMetadata is the caller-visible projection of a session: what has
// been proved and when each next action becomes legal. The may_* flags are
// side-effect-free dry runs; acting on them still consumes bucket tokens.
type SessionMetadata struct {
	SessionID domain.SessionID
	Verified  bool
	E164      uint64

	MayRequestSMS  bool
	NextSMSSeconds uint64

	MayRequestVoiceCall  bool
	NextVoiceCallSeconds uint64

	MayCheckCode         bool
	NextCodeCheckSeconds uint64

	ExpirationSeconds uint64
}

func secondsCeil(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	secs := uint64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

// metadata projects a session snapshot plus the current bucket states.
// The channel flags reflect only the buckets; the first-SMS voice gate and
// the attempt caps are enforced at send time, not projected here.
func (s *Service) metadata(snap domain.Session) SessionMetadata {
	now := s.clock.Now()
	key := snap.ID.String()

	sms := s.limiters.SMS.Peek(key)
	voice := s.limiters.Voice.Peek(key)
	check := s.limiters.Check.Peek(key)

	md := SessionMetadata{
		SessionID:            snap.ID,
		Verified:             snap.Verified,
		E164:                 snap.Phone.Uint64(),
		MayRequestSMS:        sms.Allowed,
		NextSMSSeconds:       secondsCeil(sms.RetryAfter),
		MayRequestVoiceCall:  voice.Allowed,
		NextVoiceCallSeconds: secondsCeil(voice.RetryAfter),
		ExpirationSeconds:    snap.RemainingTTL(now),
	}

	md.MayCheckCode = snap.MayCheckCode(now, s.policy.MaxCheckAttempts) && check.Allowed
	md.NextCodeCheckSeconds = nextCheckSeconds(snap, check, now)

	if snap.Verified {
		md.MayRequestSMS = false
		md.MayRequestVoiceCall = false
		md.MayCheckCode = false
	}
	return md
}

// nextCheckSeconds reports when the next code check becomes legal: the
// larger of the lockout remainder and the check bucket's retry hint.
func nextCheckSeconds(snap domain.Session, check ratelimit.Decision, now time.Time) uint64 {
	var wait time.Duration
	if snap.CheckLocked(now) {
		wait = snap.CheckLockedUntil.Sub(now)
	}
	if !check.Allowed && check.RetryAfter > wait {
		wait = check.RetryAfter
	}
	return secondsCeil(wait)
}
