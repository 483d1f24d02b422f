package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/observability"
	"github.com/aelexs/registration-gateway/internal/ratelimit"
)

// CheckVerificationCode compares a candidate against the session's active
// code. Only the most recently issued code can match. The candidate is first
// compared locally; on a local match the transport gets the final word, so a
// hosted provider stays authoritative for codes it minted. A mismatch is not
// an error: the caller gets metadata with verified=false and one fewer
// remaining attempt.
func (s *Service) CheckVerificationCode(ctx context.Context, id domain.SessionID, candidate string) (*SessionMetadata, error) {
	ctx, span := tracer.Start(ctx, "registration.check_verification_code")
	defer span.End()

	logger := observability.WithTraceID(ctx, s.logger)

	// Local pass under the session lock: admission checks and the
	// constant-time comparison. No I/O here.
	var (
		snap       domain.Session
		localMatch bool
	)
	err := s.registry.With(id, func(sess *domain.Session) error {
		now := s.clock.Now()

		if sess.Verified {
			snap = sess.Snapshot()
			return nil
		}
		if sess.ActiveCode == "" {
			return domain.ErrNoCodeSent
		}
		if !sess.MayCheckCode(now, s.policy.MaxCheckAttempts) {
			return &RetryHint{
				RetryAfterSeconds: secondsCeil(sess.CheckLockedUntil.Sub(now)),
				wrapped:           domain.ErrRateLimited,
			}
		}
		if d := s.limiters.Check.TryAcquire(id.String()); !d.Allowed {
			return rateLimited(d)
		}

		localMatch = domain.ValidCodeFormat(candidate) &&
			domain.CodeEquals(sess.ActiveCode, candidate)
		if !localMatch {
			sess.RecordCheckFailure(now, s.policy.MaxCheckAttempts, s.policy.CheckLockout)
		}
		snap = sess.Snapshot()
		return nil
	})
	if err != nil {
		if domain.IsRetryable(err) {
			rateLimitsTotal.Add(ctx, 1, metric.WithAttributes(
				attribute.String("bucket", ratelimit.BucketCheckPerSession)))
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Already verified: the check is idempotent, but an earlier commit may
	// still be outstanding.
	if snap.Verified {
		if !snap.Committed {
			if err := s.commitRegistration(ctx, id, snap); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
		}
		md := s.metadata(snap)
		return &md, nil
	}

	if !localMatch {
		codeChecksTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", "mismatch")))
		logger.InfoContext(ctx, "registration.code_check_failed",
			"session_id", id.String(), "check_attempts", snap.CheckAttempts)
		md := s.metadata(snap)
		return &md, nil
	}

	// Local match: confirm with the transport outside the session lock.
	checkCtx, cancel := context.WithTimeout(ctx, domain.TransportTimeout)
	approved, err := s.transport.Check(checkCtx, snap.Phone, candidate)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		codeChecksTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", "transport_error")))
		return nil, fmt.Errorf("transport check: %w", domain.ErrUnavailable)
	}

	// Write pass: reacquire and record the outcome. The session may have
	// expired during the transport round trip, and a concurrent send may
	// have superseded the candidate.
	verified := false
	err = s.registry.With(id, func(sess *domain.Session) error {
		switch {
		case sess.Verified:
			verified = true
		case !approved:
			sess.RecordCheckFailure(s.clock.Now(), s.policy.MaxCheckAttempts, s.policy.CheckLockout)
		case sess.ActiveCode == "" || !domain.CodeEquals(sess.ActiveCode, candidate):
			// Superseded while the transport check was in flight. Only the
			// latest issued code can verify, and the stale candidate does
			// not burn an attempt against the new one.
		default:
			sess.RecordCheckSuccess()
			verified = true
		}
		snap = sess.Snapshot()
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if !verified {
		outcome := "rejected"
		if approved {
			outcome = "superseded"
		}
		codeChecksTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", outcome)))
		md := s.metadata(snap)
		return &md, nil
	}

	codeChecksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", "verified")))
	logger.InfoContext(ctx, "registration.session_verified", "session_id", id.String())

	if !snap.Committed {
		if err := s.commitRegistration(ctx, id, snap); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	fresh, err := s.registry.Snapshot(id)
	if err != nil {
		// Verified and committed but evicted in between; project the last
		// snapshot rather than failing the successful check.
		fresh = snap
		fresh.Committed = true
	}
	md := s.metadata(fresh)
	return &md, nil
}
