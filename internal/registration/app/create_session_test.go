package app_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/registration/app"
)

func TestCreateSession(t *testing.T) {
	t.Run("success: fresh session metadata", func(t *testing.T) {
		h := newTestHarness(t)

		md := h.createSession(t)

		assert.False(t, md.SessionID.IsZero())
		assert.False(t, md.Verified)
		assert.Equal(t, uint64(12025550123), md.E164)
		assert.True(t, md.MayRequestSMS)
		assert.True(t, md.MayRequestVoiceCall, "voice flag reflects only the bucket; the SMS gate applies at send time")
		assert.False(t, md.MayCheckCode, "no code outstanding yet")
		assert.Equal(t, uint64(600), md.ExpirationSeconds)
	})

	t.Run("each session gets a distinct token", func(t *testing.T) {
		h := newTestHarness(t)

		a := h.createSession(t)
		b := h.createSession(t)
		assert.NotEqual(t, a.SessionID, b.SessionID)
	})

	t.Run("missing credentials rejected", func(t *testing.T) {
		h := newTestHarness(t)

		_, err := h.svc.CreateSession(context.Background(), "", testPassword, testClientAddr)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = h.svc.CreateSession(context.Background(), testUsername, "", testClientAddr)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unknown user and bad password are indistinguishable", func(t *testing.T) {
		h := newTestHarness(t)

		h.directory.authenticateFn = func(_ context.Context, _, _ string) (domain.PhoneNumber, error) {
			return domain.PhoneNumber{}, domain.ErrUserNotFound
		}
		_, errNoUser := h.svc.CreateSession(context.Background(), "ghost@corp", testPassword, testClientAddr)

		h.directory.authenticateFn = func(_ context.Context, _, _ string) (domain.PhoneNumber, error) {
			return domain.PhoneNumber{}, domain.ErrBadCredentials
		}
		_, errBadPass := h.svc.CreateSession(context.Background(), testUsername, "wrong", testClientAddr)

		require.Error(t, errNoUser)
		require.Error(t, errBadPass)
		assert.ErrorIs(t, errNoUser, domain.ErrBadCredentials)
		assert.ErrorIs(t, errBadPass, domain.ErrBadCredentials)
		assert.Equal(t, errNoUser.Error(), errBadPass.Error(), "user enumeration hardening")
	})

	t.Run("directory outage is not an auth failure", func(t *testing.T) {
		h := newTestHarness(t)
		h.directory.authenticateFn = func(_ context.Context, _, _ string) (domain.PhoneNumber, error) {
			return domain.PhoneNumber{}, domain.ErrUnavailable
		}

		_, err := h.svc.CreateSession(context.Background(), testUsername, testPassword, testClientAddr)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrUnavailable)
		assert.NotErrorIs(t, err, domain.ErrBadCredentials)
	})

	t.Run("caller address bucket limits creation", func(t *testing.T) {
		h := newTestHarness(t)

		for i := 0; i < domain.DefaultSessionCreationCapacity; i++ {
			// Distinct phones so the phone bucket stays out of the way.
			phone := domain.MustPhoneNumber(fmt.Sprintf("+1202555%04d", i))
			h.directory.authenticateFn = func(_ context.Context, _, _ string) (domain.PhoneNumber, error) {
				return phone, nil
			}
			_, err := h.svc.CreateSession(context.Background(), testUsername, testPassword, testClientAddr)
			require.NoError(t, err, "create %d within capacity", i)
		}

		_, err := h.svc.CreateSession(context.Background(), testUsername, testPassword, testClientAddr)
		require.ErrorIs(t, err, domain.ErrRateLimited)

		var hint *app.RetryHint
		require.ErrorAs(t, err, &hint)
		assert.Greater(t, hint.RetryAfterSeconds, uint64(0))
	})

	t.Run("rate limit applies before the directory is consulted", func(t *testing.T) {
		h := newTestHarness(t)

		directoryCalls := 0
		h.directory.authenticateFn = func(_ context.Context, _, _ string) (domain.PhoneNumber, error) {
			directoryCalls++
			return domain.MustPhoneNumber(fmt.Sprintf("+1202555%04d", directoryCalls)), nil
		}

		for i := 0; i < domain.DefaultSessionCreationCapacity; i++ {
			_, err := h.svc.CreateSession(context.Background(), testUsername, testPassword, testClientAddr)
			require.NoError(t, err)
		}
		_, err := h.svc.CreateSession(context.Background(), testUsername, testPassword, testClientAddr)
		require.ErrorIs(t, err, domain.ErrRateLimited)

		assert.Equal(t, domain.DefaultSessionCreationCapacity, directoryCalls,
			"denied request must not hit the directory")
	})

	t.Run("phone bucket limits creation across caller addresses", func(t *testing.T) {
		h := newTestHarness(t)

		for i := 0; i < domain.DefaultSessionCreationCapacity; i++ {
			_, err := h.svc.CreateSession(context.Background(), testUsername, testPassword,
				fmt.Sprintf("198.51.100.%d", i))
			require.NoError(t, err, "create %d within capacity", i)
		}

		_, err := h.svc.CreateSession(context.Background(), testUsername, testPassword, "198.51.100.99")
		assert.ErrorIs(t, err, domain.ErrRateLimited)
	})
}
