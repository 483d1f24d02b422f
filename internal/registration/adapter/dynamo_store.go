package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/dynamo"
	"github.com/aelexs/registration-gateway/internal/registration/app"
)

// registrationDynamoDB is the narrow slice of the DynamoDB client the store
// uses. *dynamodb.Client satisfies this via the dynamo.Client.DB field.
type registrationDynamoDB interface {
	GetItem(ctx context.Context, params *dynamo.GetItemInput, optFns ...func(*dynamo.Options)) (*dynamo.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamo.PutItemInput, optFns ...func(*dynamo.Options)) (*dynamo.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamo.DeleteItemInput, optFns ...func(*dynamo.Options)) (*dynamo.DeleteItemOutput, error)
}

// registrationItem is the DynamoDB representation of a registration record.
// The partition key is the E.164 number without the leading '+'.
type registrationItem struct {
	PhoneNumber    string `dynamodbav:"phone_number"`
	Username       string `dynamodbav:"username"`
	RegistrationID string `dynamodbav:"registration_id"`
}

// DynamoStore persists registration records in a DynamoDB table keyed by
// phone number. Put is an unconditional upsert; a re-verified number simply
// replaces the previous binding.
type DynamoStore struct {
	db     registrationDynamoDB
	table  string
	logger *slog.Logger
}

var _ app.RegistrationStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore backed by the given client and table.
func NewDynamoStore(client *dynamo.Client, table string, logger *slog.Logger) *DynamoStore {
	return &DynamoStore{db: client.DB, table: table, logger: logger}
}

func (s *DynamoStore) Put(ctx context.Context, record app.RegistrationRecord) error {
	ctx, span := tracer.Start(ctx, "DynamoStore.Put",
		trace.WithAttributes(attribute.String("dynamo.table", s.table)))
	defer span.End()

	item, err := dynamo.MarshalMap(registrationItem{
		PhoneNumber:    strconv.FormatUint(record.Phone.Uint64(), 10),
		Username:       record.Username,
		RegistrationID: record.RegistrationID.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal registration item: %w", err)
	}

	_, err = s.db.PutItem(ctx, &dynamo.PutItemInput{
		TableName: dynamo.String(s.table),
		Item:      item,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("put registration: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, phone domain.PhoneNumber) (*app.RegistrationRecord, error) {
	ctx, span := tracer.Start(ctx, "DynamoStore.Get",
		trace.WithAttributes(attribute.String("dynamo.table", s.table)))
	defer span.End()

	out, err := s.db.GetItem(ctx, &dynamo.GetItemInput{
		TableName:      dynamo.String(s.table),
		Key:            s.key(phone),
		ConsistentRead: dynamo.Bool(true),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("get registration: %w: %w", domain.ErrUnavailable, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("registration for %d: %w", phone.Uint64(), domain.ErrNotFound)
	}

	var item registrationItem
	if err := dynamo.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal registration item: %w", err)
	}
	return s.toRecord(item)
}

func (s *DynamoStore) Delete(ctx context.Context, phone domain.PhoneNumber) error {
	ctx, span := tracer.Start(ctx, "DynamoStore.Delete",
		trace.WithAttributes(attribute.String("dynamo.table", s.table)))
	defer span.End()

	_, err := s.db.DeleteItem(ctx, &dynamo.DeleteItemInput{
		TableName: dynamo.String(s.table),
		Key:       s.key(phone),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete registration: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

func (s *DynamoStore) key(phone domain.PhoneNumber) map[string]dynamo.AttributeValue {
	return map[string]dynamo.AttributeValue{
		"phone_number": &dynamo.AttributeValueMemberS{
			Value: strconv.FormatUint(phone.Uint64(), 10),
		},
	}
}

func (s *DynamoStore) toRecord(item registrationItem) (*app.RegistrationRecord, error) {
	e164, err := strconv.ParseUint(item.PhoneNumber, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("stored phone number %q: %w", item.PhoneNumber, domain.ErrInvalidPhoneNumber)
	}
	phone, err := domain.PhoneNumberFromUint64(e164)
	if err != nil {
		return nil, fmt.Errorf("stored phone number %q: %w", item.PhoneNumber, err)
	}
	regID, err := domain.NewRegistrationID(item.RegistrationID)
	if err != nil {
		return nil, fmt.Errorf("stored registration id: %w", err)
	}
	return &app.RegistrationRecord{
		Phone:          phone,
		Username:       item.Username,
		RegistrationID: regID,
	}, nil
}
