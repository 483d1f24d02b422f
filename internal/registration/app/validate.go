package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/observability"
)

// ValidateCredentials is the secondary surface for operator tooling: a pure
// directory check that resolves {username, password} to the entry's phone
// number without creating a session or touching the store. Unlike
// CreateSession it may distinguish "no such user" from "bad password"; it is
// not exposed to end clients.
func (s *Service) ValidateCredentials(ctx context.Context, username, password string) (domain.PhoneNumber, error) {
	ctx, span := tracer.Start(ctx, "registration.validate_credentials")
	defer span.End()

	logger := observability.WithTraceID(ctx, s.logger)

	if username == "" || password == "" {
		span.SetStatus(codes.Error, "missing credentials")
		return domain.PhoneNumber{}, fmt.Errorf("username and password are required: %w", domain.ErrInvalidInput)
	}

	phone, err := s.directory.Authenticate(ctx, username, password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if domain.IsAuthFailure(err) {
			directoryFailuresTotal.Add(ctx, 1, metric.WithAttributes(
				attribute.String("reason", "auth_rejected")))
			return domain.PhoneNumber{}, err
		}
		return domain.PhoneNumber{}, fmt.Errorf("directory authenticate: %w", err)
	}

	logger.InfoContext(ctx, "registration.credentials_validated",
		"username", username)
	return phone, nil
}
