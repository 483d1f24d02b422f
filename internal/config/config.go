// Package config provides configuration loading using koanf.
// Precedence: environment variables over compiled defaults.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/aelexs/registration-gateway/internal/domain"
)

// Config holds all service configuration.
type Config struct {
	// Environment identifier: "local", "dev", "prod"
	Environment string `koanf:"environment"`

	// Logging configuration
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	Server    ServerConfig    `koanf:"server"`
	Session   SessionConfig   `koanf:"session"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Directory DirectoryConfig `koanf:"directory"`
	Transport TransportConfig `koanf:"transport"`
	Store     StoreConfig     `koanf:"store"`

	// Infrastructure configurations
	DynamoDB DynamoDBConfig `koanf:"dynamodb"`
	Redis    RedisConfig    `koanf:"redis"`
	AWS      AWSConfig      `koanf:"aws"`

	// OpenTelemetry configuration
	OTEL OTELConfig `koanf:"otel"`
}

// ServerConfig holds the listener parameters.
type ServerConfig struct {
	// RPCPort carries the framed binary protocol.
	RPCPort int `koanf:"rpc_port"`
	// HTTPPort serves healthz.
	HTTPPort       int           `koanf:"http_port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// SessionConfig holds the per-session policy knobs.
type SessionConfig struct {
	TTL                time.Duration `koanf:"ttl"`
	MaxCheckAttempts   int           `koanf:"max_check_attempts"`
	CheckLockout       time.Duration `koanf:"check_lockout"`
	DelayAfterFirstSMS time.Duration `koanf:"delay_after_first_sms"`
	MaxVoiceAttempts   int           `koanf:"max_voice_attempts"`
}

// RateLimitConfig holds the bucket policies. Delay schedules are
// comma-separated duration lists, e.g. "0s,60s,120s"; the last entry repeats.
type RateLimitConfig struct {
	SessionCreationCapacity int           `koanf:"session_creation_capacity"`
	SessionCreationRefill   float64       `koanf:"session_creation_refill"`
	SMSDelays               string        `koanf:"sms_delays"`
	VoiceDelays             string        `koanf:"voice_delays"`
	MinCheckDelay           time.Duration `koanf:"min_check_delay"`
	RetainIdle              time.Duration `koanf:"retain_idle"`
}

// DirectoryConfig selects and configures the directory authenticator.
type DirectoryConfig struct {
	// Kind: "ldap" or "entra".
	Kind  string      `koanf:"kind"`
	LDAP  LDAPConfig  `koanf:"ldap"`
	Entra EntraConfig `koanf:"entra"`
}

// LDAPConfig holds LDAP directory parameters.
type LDAPConfig struct {
	URL            string        `koanf:"url"`
	BindDN         string        `koanf:"bind_dn"`
	BindPassword   string        `koanf:"bind_password"`
	BaseDN         string        `koanf:"base_dn"`
	UserFilter     string        `koanf:"user_filter"`
	PhoneAttribute string        `koanf:"phone_attribute"`
	Timeout        time.Duration `koanf:"timeout"`
}

// EntraConfig holds cloud identity provider parameters.
type EntraConfig struct {
	TokenURL    string `koanf:"token_url"`
	ClientID    string `koanf:"client_id"`
	Scope       string `koanf:"scope"`
	UserinfoURL string `koanf:"userinfo_url"`
}

// TransportConfig selects and configures the code transport.
type TransportConfig struct {
	// Kind: "hosted", "sns", or "test".
	Kind   string       `koanf:"kind"`
	Hosted HostedConfig `koanf:"hosted"`
}

// HostedConfig holds the hosted verification provider parameters.
type HostedConfig struct {
	BaseURL    string `koanf:"base_url"`
	ServiceSID string `koanf:"service_sid"`
	AccountSID string `koanf:"account_sid"`
	AuthToken  string `koanf:"auth_token"`
}

// StoreConfig selects the registration store backend.
type StoreConfig struct {
	// Kind: "dynamodb", "redis", or "memory".
	Kind string `koanf:"kind"`
}

// DynamoDBConfig holds DynamoDB configuration.
type DynamoDBConfig struct {
	Endpoint string        `koanf:"endpoint"` // Empty for production (uses default AWS endpoint)
	Table    string        `koanf:"table"`
	Timeout  time.Duration `koanf:"timeout"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Timeout  time.Duration `koanf:"timeout"`
}

// AWSConfig holds AWS SDK configuration.
type AWSConfig struct {
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint"` // LocalStack endpoint for development
}

// OTELConfig holds OpenTelemetry configuration.
type OTELConfig struct {
	Endpoint    string `koanf:"endpoint"` // Empty disables OTLP export
	ServiceName string `koanf:"service_name"`
}

// defaults returns a Config with compiled default values.
func defaults() *Config {
	return &Config{
		Environment: "local",
		LogLevel:    "info",
		LogFormat:   "json",

		Server: ServerConfig{
			RPCPort:        7010,
			HTTPPort:       8080,
			RequestTimeout: domain.DefaultRequestTimeout,
		},
		Session: SessionConfig{
			TTL:                domain.DefaultSessionTTL,
			MaxCheckAttempts:   domain.DefaultMaxCheckAttempts,
			CheckLockout:       domain.DefaultCheckLockout,
			DelayAfterFirstSMS: domain.DefaultDelayAfterFirstSMS,
			MaxVoiceAttempts:   domain.DefaultMaxVoiceAttempts,
		},
		RateLimit: RateLimitConfig{
			SessionCreationCapacity: domain.DefaultSessionCreationCapacity,
			SessionCreationRefill:   domain.DefaultSessionCreationRefill,
			SMSDelays:               formatDelays(domain.DefaultSMSDelays),
			VoiceDelays:             formatDelays(domain.DefaultVoiceDelays),
			MinCheckDelay:           domain.DefaultMinCheckDelay,
			RetainIdle:              domain.DefaultBucketRetainIdle,
		},
		Directory: DirectoryConfig{
			Kind: "ldap",
			LDAP: LDAPConfig{
				UserFilter:     "(&(objectClass=person)(uid=%s))",
				PhoneAttribute: "telephoneNumber",
				Timeout:        domain.DirectoryTimeout,
			},
			Entra: EntraConfig{
				Scope: "User.Read",
			},
		},
		Transport: TransportConfig{
			Kind: "test",
		},
		Store: StoreConfig{
			Kind: "memory",
		},

		DynamoDB: DynamoDBConfig{
			Table:   "registrations",
			Timeout: domain.DynamoDBTimeout,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			DB:      0,
			Timeout: domain.RedisTimeout,
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		OTEL: OTELConfig{
			ServiceName: "registration-gateway",
		},
	}
}

// Load loads configuration following the precedence:
// 1. Environment variables (highest)
// 2. Compiled defaults (lowest)
func Load(ctx context.Context) (*Config, error) {
	k := koanf.New(".")

	cfg := defaults()

	// Load environment variables.
	// Prefix: none (full names like SESSION_TTL, DIRECTORY_LDAP_URL).
	// Delimiter: _ maps to . for nested config.
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks value ranges and required keys. Required key failure is a
// startup failure.
func validate(cfg *Config) error {
	if _, err := cfg.SMSDelaySchedule(); err != nil {
		return err
	}
	if _, err := cfg.VoiceDelaySchedule(); err != nil {
		return err
	}

	switch cfg.Directory.Kind {
	case "ldap":
		if cfg.Environment != "local" && cfg.Directory.LDAP.URL == "" {
			return fmt.Errorf("%w: directory.ldap.url", domain.ErrConfigRequired)
		}
	case "entra":
		if cfg.Directory.Entra.TokenURL == "" || cfg.Directory.Entra.UserinfoURL == "" {
			return fmt.Errorf("%w: directory.entra.token_url, directory.entra.userinfo_url", domain.ErrConfigRequired)
		}
	default:
		return fmt.Errorf("directory.kind %q is not one of ldap, entra: %w",
			cfg.Directory.Kind, domain.ErrInvalidInput)
	}

	switch cfg.Transport.Kind {
	case "hosted":
		h := cfg.Transport.Hosted
		if h.BaseURL == "" || h.ServiceSID == "" || h.AccountSID == "" || h.AuthToken == "" {
			return fmt.Errorf("%w: transport.hosted.*", domain.ErrConfigRequired)
		}
	case "sns", "test":
	default:
		return fmt.Errorf("transport.kind %q is not one of hosted, sns, test: %w",
			cfg.Transport.Kind, domain.ErrInvalidInput)
	}

	switch cfg.Store.Kind {
	case "dynamodb":
		if cfg.DynamoDB.Table == "" {
			return fmt.Errorf("%w: dynamodb.table", domain.ErrConfigRequired)
		}
	case "redis":
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.addr", domain.ErrConfigRequired)
		}
	case "memory":
	default:
		return fmt.Errorf("store.kind %q is not one of dynamodb, redis, memory: %w",
			cfg.Store.Kind, domain.ErrInvalidInput)
	}

	// The log-only transport and the in-memory store must never carry
	// production traffic.
	if cfg.IsProd() {
		if cfg.Transport.Kind == "test" {
			return fmt.Errorf("transport.kind test is not allowed in prod: %w", domain.ErrInvalidInput)
		}
		if cfg.Store.Kind == "memory" {
			return fmt.Errorf("store.kind memory is not allowed in prod: %w", domain.ErrInvalidInput)
		}
	}

	return nil
}

// SMSDelaySchedule parses the SMS delay schedule.
func (c *Config) SMSDelaySchedule() ([]time.Duration, error) {
	return parseDelays("ratelimit.sms_delays", c.RateLimit.SMSDelays)
}

// VoiceDelaySchedule parses the voice delay schedule.
func (c *Config) VoiceDelaySchedule() ([]time.Duration, error) {
	return parseDelays("ratelimit.voice_delays", c.RateLimit.VoiceDelays)
}

func parseDelays(key, raw string) ([]time.Duration, error) {
	parts := strings.Split(raw, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%s entry %q: %w", key, part, domain.ErrInvalidInput)
		}
		if d < 0 {
			return nil, fmt.Errorf("%s entry %q is negative: %w", key, part, domain.ErrInvalidInput)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s is empty: %w", key, domain.ErrInvalidInput)
	}
	return out, nil
}

func formatDelays(delays []time.Duration) string {
	parts := make([]string, len(delays))
	for i, d := range delays {
		parts[i] = d.String()
	}
	return strings.Join(parts, ",")
}

// IsLocal returns true if running in local development environment.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}

// IsProd returns true if running in production environment.
func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}
