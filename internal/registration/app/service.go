// Package app orchestrates the registration flows: session creation against
// the corporate directory, verification-code delivery and checking, and the
// durable commit of proved phone numbers.
package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/ratelimit"
)

var tracer = otel.Tracer("registration/app")

var (
	sessionsCreatedTotal   metric.Int64Counter
	codesSentTotal         metric.Int64Counter
	codeChecksTotal        metric.Int64Counter
	rateLimitsTotal        metric.Int64Counter
	registrationsTotal     metric.Int64Counter
	directoryFailuresTotal metric.Int64Counter
)

func init() {
	m := otel.Meter("registration/app")

	sessionsCreatedTotal, _ = m.Int64Counter("registration_sessions_created_total",
		metric.WithDescription("Total registration sessions created"))
	codesSentTotal, _ = m.Int64Counter("registration_codes_sent_total",
		metric.WithDescription("Total verification codes sent, by channel"))
	codeChecksTotal, _ = m.Int64Counter("registration_code_checks_total",
		metric.WithDescription("Total verification code checks, by outcome"))
	rateLimitsTotal, _ = m.Int64Counter("security_rate_limits_total",
		metric.WithDescription("Total rate limit hits, by bucket"))
	registrationsTotal, _ = m.Int64Counter("registration_commits_total",
		metric.WithDescription("Total registrations durably committed"))
	directoryFailuresTotal, _ = m.Int64Counter("security_directory_failures_total",
		metric.WithDescription("Total directory authentication failures, by reason"))
}

// DirectoryAuthenticator resolves {username, password} to the phone number
// on the caller's directory entry. Implementations must not retain the
// password beyond the call.
type DirectoryAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (domain.PhoneNumber, error)
}

// CodeTransport delivers verification codes out-of-band and, for hosted
// providers, confirms a candidate code with the provider.
type CodeTransport interface {
	Send(ctx context.Context, phone domain.PhoneNumber, channel domain.CodeChannel, code string) error
	// Check confirms a locally matched candidate with the provider.
	// Transports that mint codes locally approve unconditionally.
	Check(ctx context.Context, phone domain.PhoneNumber, code string) (bool, error)
}

// RegistrationRecord is the durable binding a successful verification
// commits: who proved which number, under which opaque identifier.
type RegistrationRecord struct {
	Phone          domain.PhoneNumber
	Username       string
	RegistrationID domain.RegistrationID
}

// RegistrationStore persists registration records keyed by phone number.
type RegistrationStore interface {
	Put(ctx context.Context, record RegistrationRecord) error
	Get(ctx context.Context, phone domain.PhoneNumber) (*RegistrationRecord, error)
	Delete(ctx context.Context, phone domain.PhoneNumber) error
}

// Policy collects the tunable limits for the registration flow. The config
// package builds one from the environment, falling back to domain defaults.
type Policy struct {
	SessionTTL         time.Duration
	MaxCheckAttempts   int
	CheckLockout       time.Duration
	DelayAfterFirstSMS time.Duration
	MaxVoiceAttempts   int
}

// DefaultPolicy returns the compiled default limits.
func DefaultPolicy() Policy {
	return Policy{
		SessionTTL:         domain.DefaultSessionTTL,
		MaxCheckAttempts:   domain.DefaultMaxCheckAttempts,
		CheckLockout:       domain.DefaultCheckLockout,
		DelayAfterFirstSMS: domain.DefaultDelayAfterFirstSMS,
		MaxVoiceAttempts:   domain.DefaultMaxVoiceAttempts,
	}
}

// Limiters groups the four named bucket families the service consults.
type Limiters struct {
	SessionCreation *ratelimit.Limiter
	SMS             *ratelimit.Limiter
	Voice           *ratelimit.Limiter
	Check           *ratelimit.Limiter
}

// ForgetSession drops the per-session buckets once a session is gone.
// Wired as the registry's eviction hook by the composition root.
func (l Limiters) ForgetSession(id domain.SessionID) {
	key := id.String()
	l.SMS.Forget(key)
	l.Voice.Forget(key)
	l.Check.Forget(key)
}

// ServiceConfig holds the dependencies for Service.
type ServiceConfig struct {
	Registry  *SessionRegistry
	Directory DirectoryAuthenticator
	Transport CodeTransport
	Store     RegistrationStore
	Limiters  Limiters
	Policy    Policy
	Clock     domain.Clock
	Logger    *slog.Logger
}

// Service orchestrates the registration operations: CreateSession,
// GetSessionMetadata, SendVerificationCode, CheckVerificationCode, and the
// secondary ValidateCredentials surface.
type Service struct {
	registry  *SessionRegistry
	directory DirectoryAuthenticator
	transport CodeTransport
	store     RegistrationStore
	limiters  Limiters
	policy    Policy
	clock     domain.Clock
	logger    *slog.Logger
}

// NewService creates a Service with the given dependencies.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		registry:  cfg.Registry,
		directory: cfg.Directory,
		transport: cfg.Transport,
		store:     cfg.Store,
		limiters:  cfg.Limiters,
		policy:    cfg.Policy,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
}
