// Package port translates wire frames into app-layer calls and projects the
// results back onto the wire.
package port

import (
	"context"
	"fmt"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/errmap"
	"github.com/aelexs/registration-gateway/internal/registration/app"
	"github.com/aelexs/registration-gateway/pkg/protocol"
)

// registrationService is a narrow, consumer-defined interface for the
// operations the handler requires. The *app.Service satisfies this.
type registrationService interface {
	CreateSession(ctx context.Context, username, password, clientAddr string) (*app.SessionMetadata, error)
	GetSessionMetadata(ctx context.Context, id domain.SessionID) (*app.SessionMetadata, error)
	SendVerificationCode(ctx context.Context, id domain.SessionID, channel domain.CodeChannel) (*app.SessionMetadata, error)
	CheckVerificationCode(ctx context.Context, id domain.SessionID, candidate string) (*app.SessionMetadata, error)
	ValidateCredentials(ctx context.Context, username, password string) (domain.PhoneNumber, error)
}

// Handler decodes request frames, invokes the service, and encodes response
// frames. It never returns transport-level errors for domain failures; those
// travel as typed wire errors. A returned error means the frame body was
// unparseable and the connection should be dropped.
type Handler struct {
	svc registrationService
}

// NewHandler creates a Handler backed by the given registration service.
func NewHandler(svc *app.Service) *Handler {
	return &Handler{svc: svc}
}

// Handle dispatches one request frame and returns the response frame.
// clientAddr is the peer's remote address, used for rate-limit keying.
func (h *Handler) Handle(ctx context.Context, frame protocol.Frame, clientAddr string) (protocol.Frame, error) {
	switch frame.Method {
	case protocol.MethodCreateSession:
		return h.createSession(ctx, frame, clientAddr)
	case protocol.MethodGetSessionMetadata:
		return h.getSessionMetadata(ctx, frame)
	case protocol.MethodSendVerificationCode:
		return h.sendVerificationCode(ctx, frame)
	case protocol.MethodCheckVerificationCode:
		return h.checkVerificationCode(ctx, frame)
	case protocol.MethodValidateCredentials:
		return h.validateCredentials(ctx, frame)
	default:
		return protocol.Frame{}, protocol.ErrUnknownMethod
	}
}

func (h *Handler) createSession(ctx context.Context, frame protocol.Frame, clientAddr string) (protocol.Frame, error) {
	var req protocol.CreateSessionRequest
	if err := req.Unmarshal(frame.Body); err != nil {
		return protocol.Frame{}, fmt.Errorf("decode create session: %w", err)
	}

	md, err := h.svc.CreateSession(ctx, req.Username, req.Password, clientAddr)
	if err != nil {
		return sessionError(frame.Method, err), nil
	}
	return sessionOK(frame.Method, md), nil
}

func (h *Handler) getSessionMetadata(ctx context.Context, frame protocol.Frame) (protocol.Frame, error) {
	var req protocol.GetSessionMetadataRequest
	if err := req.Unmarshal(frame.Body); err != nil {
		return protocol.Frame{}, fmt.Errorf("decode get session metadata: %w", err)
	}

	id, err := sessionID(req.SessionID)
	if err != nil {
		return sessionError(frame.Method, err), nil
	}

	md, err := h.svc.GetSessionMetadata(ctx, id)
	if err != nil {
		return sessionError(frame.Method, err), nil
	}
	return sessionOK(frame.Method, md), nil
}

func (h *Handler) sendVerificationCode(ctx context.Context, frame protocol.Frame) (protocol.Frame, error) {
	var req protocol.SendVerificationCodeRequest
	if err := req.Unmarshal(frame.Body); err != nil {
		return protocol.Frame{}, fmt.Errorf("decode send verification code: %w", err)
	}

	id, err := sessionID(req.SessionID)
	if err != nil {
		return sessionError(frame.Method, err), nil
	}

	md, err := h.svc.SendVerificationCode(ctx, id, domain.CodeChannel(req.Transport))
	if err != nil {
		return sessionError(frame.Method, err), nil
	}
	return sessionOK(frame.Method, md), nil
}

func (h *Handler) checkVerificationCode(ctx context.Context, frame protocol.Frame) (protocol.Frame, error) {
	var req protocol.CheckVerificationCodeRequest
	if err := req.Unmarshal(frame.Body); err != nil {
		return protocol.Frame{}, fmt.Errorf("decode check verification code: %w", err)
	}

	id, err := sessionID(req.SessionID)
	if err != nil {
		return sessionError(frame.Method, err), nil
	}

	md, err := h.svc.CheckVerificationCode(ctx, id, req.Code)
	if err != nil {
		return sessionError(frame.Method, err), nil
	}
	return sessionOK(frame.Method, md), nil
}

func (h *Handler) validateCredentials(ctx context.Context, frame protocol.Frame) (protocol.Frame, error) {
	var req protocol.ValidateCredentialsRequest
	if err := req.Unmarshal(frame.Body); err != nil {
		return protocol.Frame{}, fmt.Errorf("decode validate credentials: %w", err)
	}

	phone, err := h.svc.ValidateCredentials(ctx, req.Username, req.Password)
	if err != nil {
		resp := protocol.ValidateCredentialsResponse{
			Error: errmap.ToErrorInfo(frame.Method, err),
		}
		return protocol.Frame{Method: frame.Method, Body: resp.Marshal()}, nil
	}

	resp := protocol.ValidateCredentialsResponse{PhoneNumber: phone.String()}
	return protocol.Frame{Method: frame.Method, Body: resp.Marshal()}, nil
}

// sessionID validates the raw token; malformed tokens look exactly like
// unknown ones.
func sessionID(raw []byte) (domain.SessionID, error) {
	id, err := domain.NewSessionID(raw)
	if err != nil {
		return domain.SessionID{}, domain.ErrSessionNotFound
	}
	return id, nil
}

func sessionOK(method protocol.Method, md *app.SessionMetadata) protocol.Frame {
	resp := protocol.SessionResponse{Metadata: toWireMetadata(md)}
	return protocol.Frame{Method: method, Body: resp.Marshal()}
}

func sessionError(method protocol.Method, err error) protocol.Frame {
	resp := protocol.SessionResponse{Error: errmap.ToErrorInfo(method, err)}
	return protocol.Frame{Method: method, Body: resp.Marshal()}
}

func toWireMetadata(md *app.SessionMetadata) *protocol.SessionMetadata {
	return &protocol.SessionMetadata{
		SessionID:            md.SessionID.Bytes(),
		Verified:             md.Verified,
		E164:                 md.E164,
		MayRequestSMS:        md.MayRequestSMS,
		NextSMSSeconds:       md.NextSMSSeconds,
		MayRequestVoiceCall:  md.MayRequestVoiceCall,
		NextVoiceCallSeconds: md.NextVoiceCallSeconds,
		MayCheckCode:         md.MayCheckCode,
		NextCodeCheckSeconds: md.NextCodeCheckSeconds,
		ExpirationSeconds:    md.ExpirationSeconds,
	}
}
