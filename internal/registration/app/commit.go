package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/observability"
)

// commitRegistration durably binds {directory user, phone number,
// registration id} in the store and marks the session committed. Retried on
// the next check if the store write fails; the session stays verified.
func (s *Service) commitRegistration(ctx context.Context, id domain.SessionID, snap domain.Session) error {
	ctx, span := tracer.Start(ctx, "registration.commit")
	defer span.End()

	logger := observability.WithTraceID(ctx, s.logger)

	record := RegistrationRecord{
		Phone:          snap.Phone,
		Username:       snap.DirectoryUser,
		RegistrationID: domain.GenerateRegistrationID(),
	}

	if err := s.store.Put(ctx, record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "registration.commit_failed",
			"session_id", id.String(), "error", err)
		return fmt.Errorf("commit registration: %w", domain.ErrUnavailable)
	}

	err := s.registry.With(id, func(sess *domain.Session) error {
		return sess.RecordCommit()
	})
	if err != nil {
		// The record is durable; a missing session only means the caller
		// cannot observe the committed flag anymore.
		logger.WarnContext(ctx, "registration.committed_session_gone",
			"session_id", id.String(), "error", err)
	}

	registrationsTotal.Add(ctx, 1)
	logger.InfoContext(ctx, "registration.committed",
		"session_id", id.String(),
		"registration_id", record.RegistrationID.String())
	return nil
}
