package adapter

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/redis"
)

func redisStoreForTest(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(redis.Config{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client.RDB, slog.Default())
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store := redisStoreForTest(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, sampleRecord()))

	got, err := store.Get(ctx, storePhone)
	require.NoError(t, err)
	assert.Equal(t, storePhone, got.Phone)
	assert.Equal(t, "alice@corp", got.Username)
	assert.Equal(t, storeRegID, got.RegistrationID)
}

func TestRedisStore_GetMissing(t *testing.T) {
	store := redisStoreForTest(t)

	_, err := store.Get(context.Background(), storePhone)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedisStore_PutReplaces(t *testing.T) {
	store := redisStoreForTest(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, sampleRecord()))

	updated := sampleRecord()
	updated.Username = "bob@corp"
	updated.RegistrationID = domain.GenerateRegistrationID()
	require.NoError(t, store.Put(ctx, updated))

	got, err := store.Get(ctx, storePhone)
	require.NoError(t, err)
	assert.Equal(t, "bob@corp", got.Username)
	assert.Equal(t, updated.RegistrationID, got.RegistrationID)
}

func TestRedisStore_Delete(t *testing.T) {
	store := redisStoreForTest(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, sampleRecord()))
	require.NoError(t, store.Delete(ctx, storePhone))

	_, err := store.Get(ctx, storePhone)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Deleting an absent record is not an error.
	require.NoError(t, store.Delete(ctx, storePhone))
}
