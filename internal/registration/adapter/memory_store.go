package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/registration/app"
)

// MemoryStore is an in-process RegistrationStore for local development and
// tests. Contents vanish with the process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uint64]app.RegistrationRecord
}

var _ app.RegistrationStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uint64]app.RegistrationRecord)}
}

// Put upserts the record keyed by phone number.
func (s *MemoryStore) Put(_ context.Context, record app.RegistrationRecord) error {
	if record.Phone.IsZero() {
		return fmt.Errorf("memory store: put: %w", domain.ErrInvalidPhoneNumber)
	}
	s.mu.Lock()
	s.records[record.Phone.Uint64()] = record
	s.mu.Unlock()
	return nil
}

// Get returns the record for the phone number, or domain.ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, phone domain.PhoneNumber) (*app.RegistrationRecord, error) {
	s.mu.RLock()
	record, ok := s.records[phone.Uint64()]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memory store: get: %w", domain.ErrNotFound)
	}
	return &record, nil
}

// Delete removes the record if present.
func (s *MemoryStore) Delete(_ context.Context, phone domain.PhoneNumber) error {
	s.mu.Lock()
	delete(s.records, phone.Uint64())
	s.mu.Unlock()
	return nil
}
