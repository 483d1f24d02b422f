package app

import (
	"context"

	"go.opentelemetry.io/otel/codes"

	"github.com/aelexs/registration-gateway/internal/domain"
)

// GetSessionMetadata returns the current projection of a live session.
// Expired or unknown tokens both report ErrSessionNotFound.
func (s *Service) GetSessionMetadata(ctx context.Context, id domain.SessionID) (*SessionMetadata, error) {
	_, span := tracer.Start(ctx, "registration.get_session_metadata")
	defer span.End()

	snap, err := s.registry.Snapshot(id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	md := s.metadata(snap)
	return &md, nil
}
