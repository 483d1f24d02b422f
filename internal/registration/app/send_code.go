package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/ratelimit"
)

// SendVerificationCode mints a fresh code and delivers it over the requested
// channel. A newer code always supersedes the previous one. Voice requires a
// prior SMS at least delay_after_first_sms ago; both channels consume their
// per-session bucket.
func (s *Service) SendVerificationCode(ctx context.Context, id domain.SessionID, channel domain.CodeChannel) (*SessionMetadata, error) {
	ctx, span := tracer.Start(ctx, "registration.send_verification_code")
	defer span.End()
	span.SetAttributes(attribute.String("channel", channel.String()))

	if !domain.IsValidChannel(channel) {
		span.SetStatus(codes.Error, "unknown channel")
		return nil, fmt.Errorf("unknown transport %d: %w", channel, domain.ErrTransportNotAllowed)
	}

	// Read pass: validate against a snapshot, no lock held during I/O.
	snap, err := s.registry.Snapshot(id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if snap.Verified {
		span.SetStatus(codes.Error, "session already verified")
		return nil, fmt.Errorf("session already verified: %w", domain.ErrTransportNotAllowed)
	}

	if channel == domain.ChannelVoice {
		if !snap.VoiceGateSatisfied(s.clock.Now(), s.policy.DelayAfterFirstSMS) {
			span.SetStatus(codes.Error, "voice gate not satisfied")
			return nil, fmt.Errorf("voice requires a prior SMS: %w", domain.ErrTransportNotAllowed)
		}
		if snap.VoiceAttempts >= s.policy.MaxVoiceAttempts {
			span.SetStatus(codes.Error, "voice attempts exhausted")
			rateLimitsTotal.Add(ctx, 1, metric.WithAttributes(
				attribute.String("bucket", ratelimit.BucketVoicePerSession),
				attribute.String("key_type", "attempts"),
			))
			return nil, domain.ErrRateLimited
		}
	}

	limiter := s.limiters.SMS
	bucketName := ratelimit.BucketSMSPerSession
	if channel == domain.ChannelVoice {
		limiter = s.limiters.Voice
		bucketName = ratelimit.BucketVoicePerSession
	}
	if d := limiter.TryAcquire(id.String()); !d.Allowed {
		rateLimitsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("bucket", bucketName),
		))
		span.SetStatus(codes.Error, "send rate limited")
		return nil, rateLimited(d)
	}

	code, err := domain.GenerateVerificationCode()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, domain.TransportTimeout)
	err = s.transport.Send(sendCtx, snap.Phone, channel, code)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if domain.IsClientError(err) || domain.IsRetryable(err) {
			return nil, err
		}
		return nil, fmt.Errorf("transport send: %w", err)
	}

	// Write pass: the session may have expired while the transport call
	// was in flight.
	err = s.registry.With(id, func(sess *domain.Session) error {
		return sess.RecordSend(channel, code, s.clock.Now())
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	codesSentTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel.String()),
	))
	s.logger.InfoContext(ctx, "registration.code_sent",
		"session_id", id.String(), "channel", channel.String())

	fresh, err := s.registry.Snapshot(id)
	if err != nil {
		return nil, err
	}
	md := s.metadata(fresh)
	return &md, nil
}
