package adapter

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/registration/app"
)

// snsPublisher is a narrow, consumer-defined interface for the subset of SNS
// operations the transport requires. The real *sns.Client satisfies it.
type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

var _ app.CodeTransport = (*SNSTransport)(nil)

// SNSTransport delivers verification codes via Amazon SNS SMS. SNS has no
// voice channel here, and no provider-side code check; codes are minted
// locally, so Check approves whatever already matched.
type SNSTransport struct {
	client snsPublisher
}

// NewSNSTransport creates an SNSTransport backed by the given SNS client.
func NewSNSTransport(client snsPublisher) *SNSTransport {
	return &SNSTransport{client: client}
}

// Send publishes the verification code to the phone number. Voice requests
// are rejected before any network call.
func (t *SNSTransport) Send(ctx context.Context, phone domain.PhoneNumber, channel domain.CodeChannel, code string) error {
	if channel != domain.ChannelSMS {
		return fmt.Errorf("sns transport has no %s channel: %w", channel, domain.ErrTransportNotAllowed)
	}

	number := phone.String()
	message := fmt.Sprintf("Your verification code is: %s", code)

	_, err := t.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: &number,
		Message:     &message,
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

// Check approves unconditionally; the locally minted code is authoritative.
func (t *SNSTransport) Check(_ context.Context, _ domain.PhoneNumber, _ string) (bool, error) {
	return true, nil
}
