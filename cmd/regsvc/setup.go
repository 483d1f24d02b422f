package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/aelexs/registration-gateway/internal/config"
	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/dynamo"
	"github.com/aelexs/registration-gateway/internal/ratelimit"
	"github.com/aelexs/registration-gateway/internal/redis"
	"github.com/aelexs/registration-gateway/internal/registration/adapter"
	"github.com/aelexs/registration-gateway/internal/registration/app"
	"github.com/aelexs/registration-gateway/internal/registration/port"
	"github.com/aelexs/registration-gateway/internal/server"
)

// setup is the regsvc composition root. It builds the rate limiters, the
// session registry, the configured directory / transport / store adapters,
// and the registration service, and hands the lifecycle runner the frame
// handler plus the sweeper loops.
func setup(ctx context.Context, deps server.SetupDeps) (*server.Runtime, error) {
	cfg := deps.Config
	logger := deps.Logger
	clock := domain.RealClock{}

	smsDelays, err := cfg.SMSDelaySchedule()
	if err != nil {
		return nil, err
	}
	voiceDelays, err := cfg.VoiceDelaySchedule()
	if err != nil {
		return nil, err
	}

	// 1. Rate limiter bucket families.
	limiters := app.Limiters{
		SessionCreation: ratelimit.New(ratelimit.BucketSessionCreation, ratelimit.Policy{
			Capacity:     float64(cfg.RateLimit.SessionCreationCapacity),
			RefillPerSec: cfg.RateLimit.SessionCreationRefill,
			MinDelays:    []time.Duration{domain.DefaultSessionCreationMinDelay},
			RetainIdle:   cfg.RateLimit.RetainIdle,
		}, clock),
		SMS: ratelimit.New(ratelimit.BucketSMSPerSession, ratelimit.Policy{
			Capacity:     10,
			RefillPerSec: 1,
			MinDelays:    smsDelays,
			RetainIdle:   cfg.RateLimit.RetainIdle,
		}, clock),
		Voice: ratelimit.New(ratelimit.BucketVoicePerSession, ratelimit.Policy{
			Capacity:     10,
			RefillPerSec: 1,
			MinDelays:    voiceDelays,
			RetainIdle:   cfg.RateLimit.RetainIdle,
		}, clock),
		Check: ratelimit.New(ratelimit.BucketCheckPerSession, ratelimit.Policy{
			Capacity:     float64(cfg.Session.MaxCheckAttempts),
			RefillPerSec: 1.0 / cfg.Session.CheckLockout.Seconds(),
			MinDelays:    []time.Duration{cfg.RateLimit.MinCheckDelay},
			RetainIdle:   cfg.RateLimit.RetainIdle,
		}, clock),
	}

	// 2. Session registry. Eviction drops the per-session buckets.
	registry := app.NewSessionRegistry(app.RegistryConfig{
		Clock:   clock,
		TTL:     cfg.Session.TTL,
		Logger:  logger,
		OnEvict: limiters.ForgetSession,
	})

	// 3. Collaborator adapters, selected by kind.
	directory, err := createDirectory(cfg, logger)
	if err != nil {
		return nil, err
	}
	transport, err := createTransport(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	store, cleanup, err := createStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	// 4. Registration service and frame handler.
	svc := app.NewService(app.ServiceConfig{
		Registry:  registry,
		Directory: directory,
		Transport: transport,
		Store:     store,
		Limiters:  limiters,
		Policy: app.Policy{
			SessionTTL:         cfg.Session.TTL,
			MaxCheckAttempts:   cfg.Session.MaxCheckAttempts,
			CheckLockout:       cfg.Session.CheckLockout,
			DelayAfterFirstSMS: cfg.Session.DelayAfterFirstSMS,
			MaxVoiceAttempts:   cfg.Session.MaxVoiceAttempts,
		},
		Clock:  clock,
		Logger: logger,
	})

	return &server.Runtime{
		Handler: port.NewHandler(svc),
		Background: []func(ctx context.Context) error{
			func(ctx context.Context) error {
				registry.RunSweeper(ctx)
				return nil
			},
			func(ctx context.Context) error {
				limiters.SessionCreation.RunSweeper(ctx, domain.BucketSweepInterval)
				return nil
			},
			func(ctx context.Context) error {
				limiters.SMS.RunSweeper(ctx, domain.BucketSweepInterval)
				return nil
			},
			func(ctx context.Context) error {
				limiters.Voice.RunSweeper(ctx, domain.BucketSweepInterval)
				return nil
			},
			func(ctx context.Context) error {
				limiters.Check.RunSweeper(ctx, domain.BucketSweepInterval)
				return nil
			},
		},
		Cleanup: cleanup,
	}, nil
}

// createDirectory selects the directory authenticator per directory.kind.
func createDirectory(cfg *config.Config, logger *slog.Logger) (app.DirectoryAuthenticator, error) {
	switch cfg.Directory.Kind {
	case "ldap":
		return adapter.NewLDAPDirectory(adapter.LDAPDirectoryConfig{
			URL:            cfg.Directory.LDAP.URL,
			BindDN:         cfg.Directory.LDAP.BindDN,
			BindPassword:   cfg.Directory.LDAP.BindPassword,
			BaseDN:         cfg.Directory.LDAP.BaseDN,
			UserFilter:     cfg.Directory.LDAP.UserFilter,
			PhoneAttribute: cfg.Directory.LDAP.PhoneAttribute,
			Timeout:        cfg.Directory.LDAP.Timeout,
		}, logger), nil
	case "entra":
		return adapter.NewEntraDirectory(adapter.EntraDirectoryConfig{
			TokenURL:    cfg.Directory.Entra.TokenURL,
			ClientID:    cfg.Directory.Entra.ClientID,
			Scope:       cfg.Directory.Entra.Scope,
			UserinfoURL: cfg.Directory.Entra.UserinfoURL,
		}, nil, logger), nil
	default:
		return nil, fmt.Errorf("regsvc setup: unknown directory kind %q", cfg.Directory.Kind)
	}
}

// createTransport selects the code transport per transport.kind.
func createTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (app.CodeTransport, error) {
	switch cfg.Transport.Kind {
	case "hosted":
		return adapter.NewHostedTransport(adapter.HostedTransportConfig{
			BaseURL:    cfg.Transport.Hosted.BaseURL,
			ServiceSID: cfg.Transport.Hosted.ServiceSID,
			AccountSID: cfg.Transport.Hosted.AccountSID,
			AuthToken:  cfg.Transport.Hosted.AuthToken,
		}, nil, logger), nil
	case "sns":
		snsClient, err := createSNSClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("regsvc setup: create sns client: %w", err)
		}
		return adapter.NewSNSTransport(snsClient), nil
	case "test":
		logger.Warn("using the log-only code transport, codes are not delivered")
		return adapter.NewLogTransport(logger), nil
	default:
		return nil, fmt.Errorf("regsvc setup: unknown transport kind %q", cfg.Transport.Kind)
	}
}

// createStore selects the registration store per store.kind and returns a
// cleanup hook for backends holding connections.
func createStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (app.RegistrationStore, func(context.Context) error, error) {
	switch cfg.Store.Kind {
	case "dynamodb":
		client, err := dynamo.NewClient(ctx, dynamo.Config{
			Endpoint: cfg.DynamoDB.Endpoint,
			Region:   cfg.AWS.Region,
			Timeout:  cfg.DynamoDB.Timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("regsvc setup: create dynamo client: %w", err)
		}
		return adapter.NewDynamoStore(client, cfg.DynamoDB.Table, logger), nil, nil
	case "redis":
		client := redis.NewClient(redis.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			ReadTimeout:  cfg.Redis.Timeout,
			WriteTimeout: cfg.Redis.Timeout,
		})
		cleanup := func(context.Context) error { return client.Close() }
		return adapter.NewRedisStore(client.RDB, logger), cleanup, nil
	case "memory":
		logger.Warn("using the in-memory registration store, records are not durable")
		return adapter.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("regsvc setup: unknown store kind %q", cfg.Store.Kind)
	}
}

// createSNSClient builds the SNS client, pointing it at LocalStack when an
// AWS endpoint override is configured.
func createSNSClient(ctx context.Context, cfg *config.Config) (*sns.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, err
	}

	var opts []func(*sns.Options)
	if cfg.AWS.Endpoint != "" {
		endpoint := cfg.AWS.Endpoint
		opts = append(opts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	return sns.NewFromConfig(awsCfg, opts...), nil
}
