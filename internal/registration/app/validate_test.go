package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/registration-gateway/internal/domain"
)

func TestValidateCredentials(t *testing.T) {
	t.Run("resolves the directory phone number", func(t *testing.T) {
		h := newTestHarness(t)

		phone, err := h.svc.ValidateCredentials(context.Background(), testUsername, testPassword)
		require.NoError(t, err)
		assert.Equal(t, testPhoneE164, phone.String())
	})

	t.Run("pure directory check, no session or registration required", func(t *testing.T) {
		h := newTestHarness(t)

		// Nothing committed, no session open. The directory alone decides.
		phone, err := h.svc.ValidateCredentials(context.Background(), testUsername, testPassword)
		require.NoError(t, err)
		assert.Equal(t, testPhoneE164, phone.String())

		_, err = h.store.Get(context.Background(), phone)
		assert.ErrorIs(t, err, domain.ErrNotFound, "validation must not create a record")
	})

	t.Run("auth failures stay distinguishable on this surface", func(t *testing.T) {
		h := newTestHarness(t)

		h.directory.authenticateFn = func(_ context.Context, _, _ string) (domain.PhoneNumber, error) {
			return domain.PhoneNumber{}, domain.ErrUserNotFound
		}
		_, err := h.svc.ValidateCredentials(context.Background(), "ghost@corp", testPassword)
		assert.ErrorIs(t, err, domain.ErrUserNotFound)

		h.directory.authenticateFn = func(_ context.Context, _, _ string) (domain.PhoneNumber, error) {
			return domain.PhoneNumber{}, domain.ErrBadCredentials
		}
		_, err = h.svc.ValidateCredentials(context.Background(), testUsername, "wrong")
		assert.ErrorIs(t, err, domain.ErrBadCredentials)
	})

	t.Run("entry without a phone attribute", func(t *testing.T) {
		h := newTestHarness(t)

		h.directory.authenticateFn = func(_ context.Context, _, _ string) (domain.PhoneNumber, error) {
			return domain.PhoneNumber{}, domain.ErrNoPhoneAttribute
		}
		_, err := h.svc.ValidateCredentials(context.Background(), testUsername, testPassword)
		assert.ErrorIs(t, err, domain.ErrNoPhoneAttribute)
	})

	t.Run("missing credentials rejected", func(t *testing.T) {
		h := newTestHarness(t)

		_, err := h.svc.ValidateCredentials(context.Background(), "", testPassword)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = h.svc.ValidateCredentials(context.Background(), testUsername, "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("directory outage surfaces as a server error", func(t *testing.T) {
		h := newTestHarness(t)
		h.directory.authenticateFn = func(_ context.Context, _, _ string) (domain.PhoneNumber, error) {
			return domain.PhoneNumber{}, domain.ErrUnavailable
		}

		_, err := h.svc.ValidateCredentials(context.Background(), testUsername, testPassword)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrUnavailable)
	})
}
