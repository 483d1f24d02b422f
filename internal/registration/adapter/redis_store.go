package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/redis"
	"github.com/aelexs/registration-gateway/internal/registration/app"
)

// registrationKeyPrefix namespaces registration records in a shared instance.
const registrationKeyPrefix = "registration:"

// redisRecord is the JSON shape stored under each key.
type redisRecord struct {
	Username       string `json:"username"`
	RegistrationID string `json:"registration_id"`
}

// RedisStore persists registration records in Redis, keyed by phone number.
// Records have no TTL; a registration stays until replaced or deleted.
type RedisStore struct {
	rdb    redis.Cmdable
	logger *slog.Logger
}

var _ app.RegistrationStore = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore on the given connection.
func NewRedisStore(rdb redis.Cmdable, logger *slog.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, logger: logger}
}

func (s *RedisStore) Put(ctx context.Context, record app.RegistrationRecord) error {
	ctx, span := tracer.Start(ctx, "RedisStore.Put")
	defer span.End()

	payload, err := json.Marshal(redisRecord{
		Username:       record.Username,
		RegistrationID: record.RegistrationID.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal registration record: %w", err)
	}

	if err := s.rdb.Set(ctx, registrationKey(record.Phone), payload, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("set registration: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, phone domain.PhoneNumber) (*app.RegistrationRecord, error) {
	ctx, span := tracer.Start(ctx, "RedisStore.Get")
	defer span.End()

	payload, err := s.rdb.Get(ctx, registrationKey(phone)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("registration for %d: %w", phone.Uint64(), domain.ErrNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("get registration: %w: %w", domain.ErrUnavailable, err)
	}

	var rec redisRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal registration record: %w", err)
	}
	regID, err := domain.NewRegistrationID(rec.RegistrationID)
	if err != nil {
		return nil, fmt.Errorf("stored registration id: %w", err)
	}
	return &app.RegistrationRecord{
		Phone:          phone,
		Username:       rec.Username,
		RegistrationID: regID,
	}, nil
}

func (s *RedisStore) Delete(ctx context.Context, phone domain.PhoneNumber) error {
	ctx, span := tracer.Start(ctx, "RedisStore.Delete")
	defer span.End()

	if err := s.rdb.Del(ctx, registrationKey(phone)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete registration: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

func registrationKey(phone domain.PhoneNumber) string {
	return registrationKeyPrefix + strconv.FormatUint(phone.Uint64(), 10)
}
