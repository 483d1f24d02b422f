// Package domain contains pure business logic and types.
// No external dependencies allowed beyond value-object helpers - this is
// the innermost ring of the service.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// SessionID is a value object wrapping the 16-byte opaque session token.
// Tokens are minted from a CSPRNG and are never reused after eviction.
type SessionID struct {
	value [SessionIDLength]byte
}

// NewSessionID validates a raw byte slice as a session ID.
func NewSessionID(raw []byte) (SessionID, error) {
	if len(raw) == 0 {
		return SessionID{}, ErrEmptyID
	}
	if len(raw) != SessionIDLength {
		return SessionID{}, fmt.Errorf("session ID must be %d bytes, got %d: %w",
			SessionIDLength, len(raw), ErrInvalidID)
	}
	var id SessionID
	copy(id.value[:], raw)
	return id, nil
}

// MustSessionID creates a SessionID, panicking on invalid input. Use only in tests.
func MustSessionID(raw []byte) SessionID {
	id, err := NewSessionID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// GenerateSessionID mints a new random session ID from crypto/rand.
func GenerateSessionID() (SessionID, error) {
	var id SessionID
	if _, err := rand.Read(id.value[:]); err != nil {
		return SessionID{}, fmt.Errorf("generate session ID: %w", err)
	}
	return id, nil
}

// Bytes returns the raw 16-byte token as used on the wire.
func (id SessionID) Bytes() []byte {
	out := make([]byte, SessionIDLength)
	copy(out, id.value[:])
	return out
}

// String returns the hex form of the token, suitable as a map key or log field.
func (id SessionID) String() string { return hex.EncodeToString(id.value[:]) }

// IsZero reports whether the ID is the all-zero value. A CSPRNG never
// produces it in practice, so the zero value doubles as "unset".
func (id SessionID) IsZero() bool { return id.value == [SessionIDLength]byte{} }

// RegistrationID is a value object representing the opaque identifier a
// client binds to its committed registration record.
type RegistrationID struct {
	value string
}

// NewRegistrationID creates a RegistrationID from a raw string, validating it
// is a valid UUID.
func NewRegistrationID(raw string) (RegistrationID, error) {
	if raw == "" {
		return RegistrationID{}, ErrEmptyID
	}
	if _, err := uuid.Parse(raw); err != nil {
		return RegistrationID{}, fmt.Errorf("invalid registration ID %q: %w", raw, ErrInvalidID)
	}
	return RegistrationID{value: raw}, nil
}

// MustRegistrationID creates a RegistrationID, panicking on invalid input. Use only in tests.
func MustRegistrationID(raw string) RegistrationID {
	id, err := NewRegistrationID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// GenerateRegistrationID creates a new random RegistrationID.
func GenerateRegistrationID() RegistrationID {
	return RegistrationID{value: uuid.NewString()}
}

func (id RegistrationID) String() string { return id.value }
func (id RegistrationID) IsZero() bool   { return id.value == "" }
