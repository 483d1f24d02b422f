package adapter

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/dynamo"
	"github.com/aelexs/registration-gateway/internal/registration/app"
)

// ---------------------------------------------------------------------------
// stubRegistrationDynamo implements registrationDynamoDB for unit tests.
// ---------------------------------------------------------------------------

type stubRegistrationDynamo struct {
	getItemFn    func(ctx context.Context, params *dynamo.GetItemInput, optFns ...func(*dynamo.Options)) (*dynamo.GetItemOutput, error)
	putItemFn    func(ctx context.Context, params *dynamo.PutItemInput, optFns ...func(*dynamo.Options)) (*dynamo.PutItemOutput, error)
	deleteItemFn func(ctx context.Context, params *dynamo.DeleteItemInput, optFns ...func(*dynamo.Options)) (*dynamo.DeleteItemOutput, error)
}

func (s *stubRegistrationDynamo) GetItem(ctx context.Context, params *dynamo.GetItemInput, optFns ...func(*dynamo.Options)) (*dynamo.GetItemOutput, error) {
	return s.getItemFn(ctx, params, optFns...)
}

func (s *stubRegistrationDynamo) PutItem(ctx context.Context, params *dynamo.PutItemInput, optFns ...func(*dynamo.Options)) (*dynamo.PutItemOutput, error) {
	return s.putItemFn(ctx, params, optFns...)
}

func (s *stubRegistrationDynamo) DeleteItem(ctx context.Context, params *dynamo.DeleteItemInput, optFns ...func(*dynamo.Options)) (*dynamo.DeleteItemOutput, error) {
	return s.deleteItemFn(ctx, params, optFns...)
}

var _ registrationDynamoDB = (*stubRegistrationDynamo)(nil)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const registrationsTable = "registrations"

var (
	storePhone = domain.MustPhoneNumber("+12025550123")
	storeRegID = domain.MustRegistrationID("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
)

func dynamoStoreWith(db registrationDynamoDB) *DynamoStore {
	return &DynamoStore{db: db, table: registrationsTable, logger: slog.Default()}
}

func sampleRecord() app.RegistrationRecord {
	return app.RegistrationRecord{
		Phone:          storePhone,
		Username:       "alice@corp",
		RegistrationID: storeRegID,
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestDynamoStore_Put(t *testing.T) {
	t.Run("writes the item keyed by phone number", func(t *testing.T) {
		var captured *dynamo.PutItemInput
		stub := &stubRegistrationDynamo{
			putItemFn: func(_ context.Context, params *dynamo.PutItemInput, _ ...func(*dynamo.Options)) (*dynamo.PutItemOutput, error) {
				captured = params
				return &dynamo.PutItemOutput{}, nil
			},
		}
		store := dynamoStoreWith(stub)

		require.NoError(t, store.Put(context.Background(), sampleRecord()))

		require.NotNil(t, captured)
		assert.Equal(t, registrationsTable, *captured.TableName)

		var item registrationItem
		require.NoError(t, dynamo.UnmarshalMap(captured.Item, &item))
		assert.Equal(t, "12025550123", item.PhoneNumber)
		assert.Equal(t, "alice@corp", item.Username)
		assert.Equal(t, storeRegID.String(), item.RegistrationID)
	})

	t.Run("dynamo error becomes unavailable", func(t *testing.T) {
		stub := &stubRegistrationDynamo{
			putItemFn: func(_ context.Context, _ *dynamo.PutItemInput, _ ...func(*dynamo.Options)) (*dynamo.PutItemOutput, error) {
				return nil, errors.New("throughput exceeded")
			},
		}
		store := dynamoStoreWith(stub)

		err := store.Put(context.Background(), sampleRecord())
		assert.ErrorIs(t, err, domain.ErrUnavailable)
	})
}

func TestDynamoStore_Get(t *testing.T) {
	t.Run("round trips a stored record", func(t *testing.T) {
		stub := &stubRegistrationDynamo{
			getItemFn: func(_ context.Context, params *dynamo.GetItemInput, _ ...func(*dynamo.Options)) (*dynamo.GetItemOutput, error) {
				assert.Equal(t, registrationsTable, *params.TableName)
				require.NotNil(t, params.ConsistentRead)
				assert.True(t, *params.ConsistentRead)

				av, err := dynamo.MarshalMap(registrationItem{
					PhoneNumber:    "12025550123",
					Username:       "alice@corp",
					RegistrationID: storeRegID.String(),
				})
				require.NoError(t, err)
				return &dynamo.GetItemOutput{Item: av}, nil
			},
		}
		store := dynamoStoreWith(stub)

		got, err := store.Get(context.Background(), storePhone)
		require.NoError(t, err)
		assert.Equal(t, storePhone, got.Phone)
		assert.Equal(t, "alice@corp", got.Username)
		assert.Equal(t, storeRegID, got.RegistrationID)
	})

	t.Run("missing item is not found", func(t *testing.T) {
		stub := &stubRegistrationDynamo{
			getItemFn: func(_ context.Context, _ *dynamo.GetItemInput, _ ...func(*dynamo.Options)) (*dynamo.GetItemOutput, error) {
				return &dynamo.GetItemOutput{Item: nil}, nil
			},
		}
		store := dynamoStoreWith(stub)

		_, err := store.Get(context.Background(), storePhone)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("corrupt stored id is surfaced", func(t *testing.T) {
		stub := &stubRegistrationDynamo{
			getItemFn: func(_ context.Context, _ *dynamo.GetItemInput, _ ...func(*dynamo.Options)) (*dynamo.GetItemOutput, error) {
				av, err := dynamo.MarshalMap(registrationItem{
					PhoneNumber:    "12025550123",
					Username:       "alice@corp",
					RegistrationID: "not-a-uuid",
				})
				require.NoError(t, err)
				return &dynamo.GetItemOutput{Item: av}, nil
			},
		}
		store := dynamoStoreWith(stub)

		_, err := store.Get(context.Background(), storePhone)
		assert.ErrorIs(t, err, domain.ErrInvalidID)
	})
}

func TestDynamoStore_Delete(t *testing.T) {
	stub := &stubRegistrationDynamo{
		deleteItemFn: func(_ context.Context, params *dynamo.DeleteItemInput, _ ...func(*dynamo.Options)) (*dynamo.DeleteItemOutput, error) {
			assert.Equal(t, registrationsTable, *params.TableName)
			key, ok := params.Key["phone_number"].(*dynamo.AttributeValueMemberS)
			require.True(t, ok)
			assert.Equal(t, "12025550123", key.Value)
			return &dynamo.DeleteItemOutput{}, nil
		},
	}
	store := dynamoStoreWith(stub)

	require.NoError(t, store.Delete(context.Background(), storePhone))
}
