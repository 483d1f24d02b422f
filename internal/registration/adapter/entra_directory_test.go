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

// entraHandlers routes the token and userinfo endpoints of a fake provider.
type entraHandlers struct {
	token    http.HandlerFunc
	userinfo http.HandlerFunc
}

func entraDirectoryForTest(t *testing.T, h entraHandlers) *EntraDirectory {
	t.Helper()
	mux := http.NewServeMux()
	if h.token != nil {
		mux.HandleFunc("/token", h.token)
	}
	if h.userinfo != nil {
		mux.HandleFunc("/me", h.userinfo)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return NewEntraDirectory(EntraDirectoryConfig{
		TokenURL:    srv.URL + "/token",
		ClientID:    "client-123",
		Scope:       "User.Read",
		UserinfoURL: srv.URL + "/me",
	}, srv.Client(), slog.Default())
}

func TestEntraDirectory_Authenticate(t *testing.T) {
	t.Run("password grant then profile lookup", func(t *testing.T) {
		d := entraDirectoryForTest(t, entraHandlers{
			token: func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, r.ParseForm())
				assert.Equal(t, "password", r.PostFormValue("grant_type"))
				assert.Equal(t, "client-123", r.PostFormValue("client_id"))
				assert.Equal(t, "alice@corp.example", r.PostFormValue("username"))
				assert.Equal(t, "pw", r.PostFormValue("password"))
				_, _ = w.Write([]byte(`{"access_token":"tok-abc","token_type":"Bearer"}`))
			},
			userinfo: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))
				_, _ = w.Write([]byte(`{"mobilePhone":"+1 (202) 555-0123","businessPhones":[]}`))
			},
		})

		phone, err := d.Authenticate(context.Background(), "alice@corp.example", "pw")
		require.NoError(t, err)
		assert.Equal(t, "+12025550123", phone.String())
	})

	t.Run("falls back to the first business phone", func(t *testing.T) {
		d := entraDirectoryForTest(t, entraHandlers{
			token: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"access_token":"tok-abc"}`))
			},
			userinfo: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"mobilePhone":"","businessPhones":["+12025550199","+12025550100"]}`))
			},
		})

		phone, err := d.Authenticate(context.Background(), "alice", "pw")
		require.NoError(t, err)
		assert.Equal(t, "+12025550199", phone.String())
	})

	t.Run("unknown account is user not found", func(t *testing.T) {
		d := entraDirectoryForTest(t, entraHandlers{
			token: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"AADSTS50034: the user account does not exist"}`))
			},
		})

		_, err := d.Authenticate(context.Background(), "ghost", "pw")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("wrong password is bad credentials", func(t *testing.T) {
		d := entraDirectoryForTest(t, entraHandlers{
			token: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"AADSTS50126: invalid username or password"}`))
			},
		})

		_, err := d.Authenticate(context.Background(), "alice", "wrong")
		assert.ErrorIs(t, err, domain.ErrBadCredentials)
	})

	t.Run("provider throttling", func(t *testing.T) {
		d := entraDirectoryForTest(t, entraHandlers{
			token: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
		})

		_, err := d.Authenticate(context.Background(), "alice", "pw")
		assert.ErrorIs(t, err, domain.ErrDirectoryRateLimit)
	})

	t.Run("profile without phone attributes", func(t *testing.T) {
		d := entraDirectoryForTest(t, entraHandlers{
			token: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"access_token":"tok-abc"}`))
			},
			userinfo: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"mobilePhone":"","businessPhones":[]}`))
			},
		})

		_, err := d.Authenticate(context.Background(), "alice", "pw")
		assert.ErrorIs(t, err, domain.ErrNoPhoneAttribute)
	})

	t.Run("token endpoint outage", func(t *testing.T) {
		d := entraDirectoryForTest(t, entraHandlers{
			token: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		})

		_, err := d.Authenticate(context.Background(), "alice", "pw")
		assert.ErrorIs(t, err, domain.ErrUnavailable)
	})
}
