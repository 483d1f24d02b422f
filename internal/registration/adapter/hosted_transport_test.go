package adapter

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/registration-gateway/internal/domain"
)

func hostedTransportForTest(t *testing.T, handler http.HandlerFunc) *HostedTransport {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHostedTransport(HostedTransportConfig{
		BaseURL:    srv.URL,
		ServiceSID: "VA123",
		AccountSID: "AC123",
		AuthToken:  "secret",
	}, srv.Client(), slog.Default())
}

func TestHostedTransport_Send(t *testing.T) {
	t.Run("posts the custom code over the mapped channel", func(t *testing.T) {
		transport := hostedTransportForTest(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/Services/VA123/Verifications", r.URL.Path)
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "AC123", user)
			assert.Equal(t, "secret", pass)

			require.NoError(t, r.ParseForm())
			assert.Equal(t, "+12025550123", r.PostFormValue("To"))
			assert.Equal(t, "call", r.PostFormValue("Channel"))
			assert.Equal(t, "123456", r.PostFormValue("CustomCode"))
			w.WriteHeader(http.StatusCreated)
		})

		err := transport.Send(context.Background(), storePhone, domain.ChannelVoice, "123456")
		require.NoError(t, err)
	})

	t.Run("throttled send is rate limited", func(t *testing.T) {
		transport := hostedTransportForTest(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		err := transport.Send(context.Background(), storePhone, domain.ChannelSMS, "123456")
		assert.ErrorIs(t, err, domain.ErrRateLimited)
	})

	t.Run("provider rejection of the number", func(t *testing.T) {
		transport := hostedTransportForTest(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":60200,"message":"Invalid parameter To"}`))
		})

		err := transport.Send(context.Background(), storePhone, domain.ChannelSMS, "123456")
		assert.ErrorIs(t, err, domain.ErrTransportRejected)
	})

	t.Run("server trouble is unavailable", func(t *testing.T) {
		transport := hostedTransportForTest(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		err := transport.Send(context.Background(), storePhone, domain.ChannelSMS, "123456")
		assert.ErrorIs(t, err, domain.ErrUnavailable)
	})
}

func TestHostedTransport_Check(t *testing.T) {
	t.Run("approved status verifies", func(t *testing.T) {
		transport := hostedTransportForTest(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/Services/VA123/VerificationCheck", r.URL.Path)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "654321", r.PostFormValue("Code"))
			_, _ = w.Write([]byte(`{"status":"approved"}`))
		})

		ok, err := transport.Check(context.Background(), storePhone, "654321")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("pending status is a definitive rejection", func(t *testing.T) {
		transport := hostedTransportForTest(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status":"pending"}`))
		})

		ok, err := transport.Check(context.Background(), storePhone, "654321")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expired provider verification is a rejection, not an outage", func(t *testing.T) {
		transport := hostedTransportForTest(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		ok, err := transport.Check(context.Background(), storePhone, "654321")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("server trouble is an error so attempts are not burned", func(t *testing.T) {
		transport := hostedTransportForTest(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := transport.Check(context.Background(), storePhone, "654321")
		assert.ErrorIs(t, err, domain.ErrUnavailable)
	})
}
