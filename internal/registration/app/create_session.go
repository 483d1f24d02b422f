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

// RetryHint carries a machine-readable backoff for rate-limit denials.
// The error map reads it via errors.As.
type RetryHint struct {
	RetryAfterSeconds uint64
	wrapped           error
}

func (e *RetryHint) Error() string {
	return fmt.Sprintf("%v (retry after %ds)", e.wrapped, e.RetryAfterSeconds)
}

func (e *RetryHint) Unwrap() error { return e.wrapped }

// NewRetryHint wraps err with a machine-readable backoff in seconds.
func NewRetryHint(seconds uint64, err error) *RetryHint {
	return &RetryHint{RetryAfterSeconds: seconds, wrapped: err}
}

func rateLimited(d ratelimit.Decision) error {
	return &RetryHint{
		RetryAfterSeconds: secondsCeil(d.RetryAfter),
		wrapped:           domain.ErrRateLimited,
	}
}

// CreateSession authenticates the caller against the directory, rate-limits
// session creation by caller address and by phone number, and mints a fresh
// session. Directory auth failures are deliberately conflated so this
// surface cannot be used to enumerate directory users.
func (s *Service) CreateSession(ctx context.Context, username, password, clientAddr string) (*SessionMetadata, error) {
	ctx, span := tracer.Start(ctx, "registration.create_session")
	defer span.End()

	logger := observability.WithTraceID(ctx, s.logger)

	if username == "" || password == "" {
		span.SetStatus(codes.Error, "missing credentials")
		return nil, fmt.Errorf("username and password are required: %w", domain.ErrInvalidInput)
	}

	// Caller-keyed bucket first, before any directory traffic.
	callerKey := clientAddr
	if callerKey == "" {
		callerKey = username
	}
	if d := s.limiters.SessionCreation.TryAcquire("addr:" + callerKey); !d.Allowed {
		rateLimitsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("bucket", ratelimit.BucketSessionCreation),
			attribute.String("key_type", "addr"),
		))
		span.SetStatus(codes.Error, "session creation rate limited")
		return nil, rateLimited(d)
	}

	phone, err := s.directory.Authenticate(ctx, username, password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if domain.IsAuthFailure(err) {
			directoryFailuresTotal.Add(ctx, 1, metric.WithAttributes(
				attribute.String("reason", "auth_rejected")))
			logger.InfoContext(ctx, "registration.directory_rejected", "username", username)
			// USER_NOT_FOUND and BAD_CREDENTIALS look identical here.
			return nil, domain.ErrBadCredentials
		}
		directoryFailuresTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", "upstream")))
		return nil, fmt.Errorf("directory authenticate: %w", err)
	}

	// Phone-keyed bucket: the same number cannot be hammered from many
	// addresses.
	if d := s.limiters.SessionCreation.TryAcquire("phone:" + phone.String()); !d.Allowed {
		rateLimitsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("bucket", ratelimit.BucketSessionCreation),
			attribute.String("key_type", "phone"),
		))
		span.SetStatus(codes.Error, "phone rate limited")
		return nil, rateLimited(d)
	}

	snap, err := s.registry.Create(phone, username)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sessionsCreatedTotal.Add(ctx, 1)
	logger.InfoContext(ctx, "registration.session_created",
		"session_id", snap.ID.String(), "username", username)

	md := s.metadata(snap)
	return &md, nil
}
