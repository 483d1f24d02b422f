package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/registration/app"
)

// httpDoer is the slice of *http.Client the hosted transport uses.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var _ app.CodeTransport = (*HostedTransport)(nil)

// HostedTransportConfig holds the connection parameters for a hosted
// verification provider with a Twilio-Verify-compatible REST surface.
type HostedTransportConfig struct {
	// BaseURL is the provider API root, e.g. "https://verify.twilio.com".
	BaseURL string
	// ServiceSID selects the provider-side verification service.
	ServiceSID string
	// AccountSID and AuthToken are the basic-auth credentials.
	AccountSID string
	AuthToken  string
}

// HostedTransport delivers verification codes through a hosted provider.
// The locally minted code travels to the provider as a custom code, so the
// provider delivers the same digits the service later compares against.
// Check consults the provider so its own throttling and fraud screening
// stay in the loop.
type HostedTransport struct {
	cfg    HostedTransportConfig
	client httpDoer
	logger *slog.Logger
}

// NewHostedTransport creates a HostedTransport using the given HTTP client.
func NewHostedTransport(cfg HostedTransportConfig, client httpDoer, logger *slog.Logger) *HostedTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HostedTransport{cfg: cfg, client: client, logger: logger}
}

// providerChannel maps the domain channel onto the provider's channel names.
func providerChannel(channel domain.CodeChannel) (string, error) {
	switch channel {
	case domain.ChannelSMS:
		return "sms", nil
	case domain.ChannelVoice:
		return "call", nil
	default:
		return "", fmt.Errorf("channel %d: %w", channel, domain.ErrTransportNotAllowed)
	}
}

// Send asks the provider to deliver the code over the requested channel.
func (t *HostedTransport) Send(ctx context.Context, phone domain.PhoneNumber, channel domain.CodeChannel, code string) error {
	ctx, span := tracer.Start(ctx, "HostedTransport.Send",
		trace.WithAttributes(attribute.String("transport.channel", channel.String())))
	defer span.End()

	name, err := providerChannel(channel)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("To", phone.String())
	form.Set("Channel", name)
	form.Set("CustomCode", code)

	endpoint := fmt.Sprintf("%s/v2/Services/%s/Verifications", t.cfg.BaseURL, t.cfg.ServiceSID)
	body, status, err := t.post(ctx, endpoint, form)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("hosted send: %w: %w", domain.ErrUnavailable, err)
	}
	return t.classifySendStatus(status, body)
}

// Check confirms the candidate with the provider. A definitive non-approved
// answer is (false, nil); transport trouble is an error so the caller does
// not count the attempt against the session.
func (t *HostedTransport) Check(ctx context.Context, phone domain.PhoneNumber, code string) (bool, error) {
	ctx, span := tracer.Start(ctx, "HostedTransport.Check")
	defer span.End()

	form := url.Values{}
	form.Set("To", phone.String())
	form.Set("Code", code)

	endpoint := fmt.Sprintf("%s/v2/Services/%s/VerificationCheck", t.cfg.BaseURL, t.cfg.ServiceSID)
	body, status, err := t.post(ctx, endpoint, form)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("hosted check: %w: %w", domain.ErrUnavailable, err)
	}

	switch {
	case status == http.StatusOK:
		var result struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return false, fmt.Errorf("hosted check: decode response: %w", domain.ErrUnavailable)
		}
		return result.Status == "approved", nil
	case status == http.StatusNotFound:
		// Provider-side verification expired or was already consumed.
		return false, nil
	case status == http.StatusTooManyRequests:
		return false, fmt.Errorf("hosted check throttled: %w", domain.ErrRateLimited)
	default:
		return false, fmt.Errorf("hosted check: provider status %d: %w", status, domain.ErrUnavailable)
	}
}

func (t *HostedTransport) post(ctx context.Context, endpoint string, form url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func (t *HostedTransport) classifySendStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("hosted send throttled: %w", domain.ErrRateLimited)
	case status == http.StatusBadRequest:
		var detail struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &detail)
		return fmt.Errorf("hosted send rejected (provider code %d): %w",
			detail.Code, domain.ErrTransportRejected)
	default:
		return fmt.Errorf("hosted send: provider status %d: %w", status, domain.ErrUnavailable)
	}
}
