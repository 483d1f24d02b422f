package adapter

import (
	"context"
	"log/slog"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/registration/app"
)

var _ app.CodeTransport = (*LogTransport)(nil)

// LogTransport is a fake CodeTransport for local development. It logs code
// delivery instead of sending anything, and approves any locally matched
// candidate. Never wire it in production.
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport creates a LogTransport that writes delivery events to the
// given structured logger.
func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

// Send logs the delivery with a masked phone number. The code itself appears
// at DEBUG only, under a key the redaction layer leaves alone so local
// development can complete a registration.
func (t *LogTransport) Send(ctx context.Context, phone domain.PhoneNumber, channel domain.CodeChannel, code string) error {
	t.logger.InfoContext(ctx, "code delivery (log-only)",
		slog.String("phone", maskPhone(phone.String())),
		slog.String("channel", channel.String()),
	)
	t.logger.DebugContext(ctx, "code delivery payload",
		slog.String("phone", maskPhone(phone.String())),
		slog.String("dev_code", code),
	)
	return nil
}

// Check approves unconditionally.
func (t *LogTransport) Check(_ context.Context, _ domain.PhoneNumber, _ string) (bool, error) {
	return true, nil
}

// maskPhone returns a masked representation of the phone number showing only
// the last 4 digits. Numbers shorter than 5 characters are fully masked.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "***" + phone[len(phone)-4:]
}
