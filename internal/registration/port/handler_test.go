package port

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/registration/app"
	"github.com/aelexs/registration-gateway/pkg/protocol"
)

// stubService implements registrationService for unit tests.
type stubService struct {
	createSessionFn func(ctx context.Context, username, password, clientAddr string) (*app.SessionMetadata, error)
	getMetadataFn   func(ctx context.Context, id domain.SessionID) (*app.SessionMetadata, error)
	sendCodeFn      func(ctx context.Context, id domain.SessionID, channel domain.CodeChannel) (*app.SessionMetadata, error)
	checkCodeFn     func(ctx context.Context, id domain.SessionID, candidate string) (*app.SessionMetadata, error)
	validateFn      func(ctx context.Context, username, password string) (domain.PhoneNumber, error)
}

func (s *stubService) CreateSession(ctx context.Context, username, password, clientAddr string) (*app.SessionMetadata, error) {
	return s.createSessionFn(ctx, username, password, clientAddr)
}

func (s *stubService) GetSessionMetadata(ctx context.Context, id domain.SessionID) (*app.SessionMetadata, error) {
	return s.getMetadataFn(ctx, id)
}

func (s *stubService) SendVerificationCode(ctx context.Context, id domain.SessionID, channel domain.CodeChannel) (*app.SessionMetadata, error) {
	return s.sendCodeFn(ctx, id, channel)
}

func (s *stubService) CheckVerificationCode(ctx context.Context, id domain.SessionID, candidate string) (*app.SessionMetadata, error) {
	return s.checkCodeFn(ctx, id, candidate)
}

func (s *stubService) ValidateCredentials(ctx context.Context, username, password string) (domain.PhoneNumber, error) {
	return s.validateFn(ctx, username, password)
}

var _ registrationService = (*stubService)(nil)

var testID = domain.MustSessionID(bytes.Repeat([]byte{0x5a}, 16))

func sampleMetadata() *app.SessionMetadata {
	return &app.SessionMetadata{
		SessionID:           testID,
		E164:                12025550123,
		MayRequestSMS:       true,
		MayRequestVoiceCall: true,
		ExpirationSeconds:   600,
	}
}

func decodeSessionResponse(t *testing.T, frame protocol.Frame) protocol.SessionResponse {
	t.Helper()
	var resp protocol.SessionResponse
	require.NoError(t, resp.Unmarshal(frame.Body))
	return resp
}

func TestHandlerCreateSession(t *testing.T) {
	t.Run("success maps metadata onto the wire", func(t *testing.T) {
		stub := &stubService{
			createSessionFn: func(_ context.Context, username, password, clientAddr string) (*app.SessionMetadata, error) {
				assert.Equal(t, "alice@corp", username)
				assert.Equal(t, "pw", password)
				assert.Equal(t, "198.51.100.7", clientAddr)
				return sampleMetadata(), nil
			},
		}
		h := &Handler{svc: stub}

		req := protocol.CreateSessionRequest{Username: "alice@corp", Password: "pw"}
		out, err := h.Handle(context.Background(),
			protocol.Frame{Method: protocol.MethodCreateSession, Body: req.Marshal()},
			"198.51.100.7")
		require.NoError(t, err)
		assert.Equal(t, protocol.MethodCreateSession, out.Method)

		resp := decodeSessionResponse(t, out)
		require.NotNil(t, resp.Metadata)
		assert.Nil(t, resp.Error)
		assert.Equal(t, testID.Bytes(), resp.Metadata.SessionID)
		assert.Equal(t, uint64(12025550123), resp.Metadata.E164)
		assert.True(t, resp.Metadata.MayRequestSMS)
	})

	t.Run("rate limited maps to a typed error with backoff", func(t *testing.T) {
		stub := &stubService{
			createSessionFn: func(_ context.Context, _, _, _ string) (*app.SessionMetadata, error) {
				return nil, app.NewRetryHint(17, domain.ErrRateLimited)
			},
		}
		h := &Handler{svc: stub}

		out, err := h.Handle(context.Background(),
			protocol.Frame{Method: protocol.MethodCreateSession}, "")
		require.NoError(t, err, "domain failures are wire errors, not transport errors")

		resp := decodeSessionResponse(t, out)
		require.NotNil(t, resp.Error)
		assert.Equal(t, protocol.CreateErrRateLimited, resp.Error.ErrorType)
		assert.True(t, resp.Error.MayRetry)
		assert.Equal(t, uint64(17), resp.Error.RetryAfterSeconds)
	})
}

func TestHandlerSessionMethods(t *testing.T) {
	t.Run("send passes id and channel through", func(t *testing.T) {
		stub := &stubService{
			sendCodeFn: func(_ context.Context, id domain.SessionID, channel domain.CodeChannel) (*app.SessionMetadata, error) {
				assert.Equal(t, testID, id)
				assert.Equal(t, domain.ChannelVoice, channel)
				return sampleMetadata(), nil
			},
		}
		h := &Handler{svc: stub}

		req := protocol.SendVerificationCodeRequest{
			SessionID: testID.Bytes(),
			Transport: protocol.TransportVoice,
		}
		out, err := h.Handle(context.Background(),
			protocol.Frame{Method: protocol.MethodSendVerificationCode, Body: req.Marshal()}, "")
		require.NoError(t, err)

		resp := decodeSessionResponse(t, out)
		require.NotNil(t, resp.Metadata)
	})

	t.Run("check passes the candidate through", func(t *testing.T) {
		stub := &stubService{
			checkCodeFn: func(_ context.Context, id domain.SessionID, candidate string) (*app.SessionMetadata, error) {
				assert.Equal(t, testID, id)
				assert.Equal(t, "123456", candidate)
				md := sampleMetadata()
				md.Verified = true
				return md, nil
			},
		}
		h := &Handler{svc: stub}

		req := protocol.CheckVerificationCodeRequest{SessionID: testID.Bytes(), Code: "123456"}
		out, err := h.Handle(context.Background(),
			protocol.Frame{Method: protocol.MethodCheckVerificationCode, Body: req.Marshal()}, "")
		require.NoError(t, err)

		resp := decodeSessionResponse(t, out)
		require.NotNil(t, resp.Metadata)
		assert.True(t, resp.Metadata.Verified)
	})

	t.Run("malformed session token looks like an unknown session", func(t *testing.T) {
		h := &Handler{svc: &stubService{}}

		req := protocol.GetSessionMetadataRequest{SessionID: []byte{0x01, 0x02}}
		out, err := h.Handle(context.Background(),
			protocol.Frame{Method: protocol.MethodGetSessionMetadata, Body: req.Marshal()}, "")
		require.NoError(t, err)

		resp := decodeSessionResponse(t, out)
		require.NotNil(t, resp.Error)
		assert.Equal(t, protocol.GetErrSessionNotFound, resp.Error.ErrorType)
	})

	t.Run("session not found from the app layer", func(t *testing.T) {
		stub := &stubService{
			getMetadataFn: func(_ context.Context, _ domain.SessionID) (*app.SessionMetadata, error) {
				return nil, domain.ErrSessionNotFound
			},
		}
		h := &Handler{svc: stub}

		req := protocol.GetSessionMetadataRequest{SessionID: testID.Bytes()}
		out, err := h.Handle(context.Background(),
			protocol.Frame{Method: protocol.MethodGetSessionMetadata, Body: req.Marshal()}, "")
		require.NoError(t, err)

		resp := decodeSessionResponse(t, out)
		require.NotNil(t, resp.Error)
		assert.Equal(t, protocol.GetErrSessionNotFound, resp.Error.ErrorType)
	})
}

func TestHandlerValidateCredentials(t *testing.T) {
	t.Run("success carries the resolved number", func(t *testing.T) {
		stub := &stubService{
			validateFn: func(_ context.Context, username, password string) (domain.PhoneNumber, error) {
				assert.Equal(t, "alice@corp", username)
				return domain.MustPhoneNumber("+12025550123"), nil
			},
		}
		h := &Handler{svc: stub}

		req := protocol.ValidateCredentialsRequest{Username: "alice@corp", Password: "pw"}
		out, err := h.Handle(context.Background(),
			protocol.Frame{Method: protocol.MethodValidateCredentials, Body: req.Marshal()}, "")
		require.NoError(t, err)

		var resp protocol.ValidateCredentialsResponse
		require.NoError(t, resp.Unmarshal(out.Body))
		assert.Equal(t, "+12025550123", resp.PhoneNumber)
		assert.Nil(t, resp.Error)
	})

	t.Run("auth failure stays distinguishable", func(t *testing.T) {
		stub := &stubService{
			validateFn: func(_ context.Context, _, _ string) (domain.PhoneNumber, error) {
				return domain.PhoneNumber{}, domain.ErrUserNotFound
			},
		}
		h := &Handler{svc: stub}

		req := protocol.ValidateCredentialsRequest{Username: "ghost@corp", Password: "pw"}
		out, err := h.Handle(context.Background(),
			protocol.Frame{Method: protocol.MethodValidateCredentials, Body: req.Marshal()}, "")
		require.NoError(t, err)

		var resp protocol.ValidateCredentialsResponse
		require.NoError(t, resp.Unmarshal(out.Body))
		require.NotNil(t, resp.Error)
		assert.Equal(t, protocol.ValidateErrUserNotFound, resp.Error.ErrorType)
	})
}

func TestHandlerUnknownMethod(t *testing.T) {
	h := &Handler{svc: &stubService{}}

	_, err := h.Handle(context.Background(), protocol.Frame{Method: protocol.Method(42)}, "")
	assert.ErrorIs(t, err, protocol.ErrUnknownMethod)
}

func TestHandlerMalformedBody(t *testing.T) {
	h := &Handler{svc: &stubService{}}

	// Declared bytes length runs past the buffer.
	bad := []byte{0x0a, 0xFF, 0x01}
	_, err := h.Handle(context.Background(),
		protocol.Frame{Method: protocol.MethodCreateSession, Body: bad}, "")
	assert.Error(t, err)
}
