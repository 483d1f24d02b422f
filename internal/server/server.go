// Package server provides the service lifecycle runner: signal handling,
// config loading, observability init, the healthz HTTP listener, the
// framed-RPC listener, and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aelexs/registration-gateway/internal/config"
	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/observability"
)

// Startup failure classes. main maps these to exit codes via ExitCode.
var (
	ErrConfig = errors.New("configuration error")
	ErrSetup  = errors.New("upstream initialization failed")
	ErrBind   = errors.New("listener bind failed")
)

// ExitCode maps a Run error to the process exit code:
// 0 clean, 1 config, 2 upstream init, 3 listener bind.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrConfig):
		return 1
	case errors.Is(err, ErrSetup):
		return 2
	case errors.Is(err, ErrBind):
		return 3
	default:
		return 1
	}
}

// SetupDeps is what the composition root receives to wire the service.
type SetupDeps struct {
	Config *config.Config
	Logger *slog.Logger
}

// Runtime is what the composition root hands back: the frame handler for the
// RPC listener, background loops (sweepers) tied to the server lifetime, and
// a cleanup hook run during shutdown.
type Runtime struct {
	Handler    FrameHandler
	Background []func(ctx context.Context) error
	Cleanup    func(ctx context.Context) error
}

// Params configures the lifecycle runner.
type Params struct {
	// Name identifies the service in logs and telemetry.
	Name string

	// Setup is the composition root. It runs after config and observability
	// are initialized.
	Setup func(ctx context.Context, deps SetupDeps) (*Runtime, error)
}

// Listeners optionally injects pre-bound listeners (enables port-0 testing).
// Nil fields are bound from config.
type Listeners struct {
	RPC  net.Listener
	HTTP net.Listener
}

// Run executes the full service lifecycle and blocks until shutdown.
func Run(ctx context.Context, p Params, lns Listeners) error {
	// Signal-based cancellation: ctx.Done() closes on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	// Structured logging with secret redaction.
	logger := observability.InitLogger(observability.LogConfig{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: p.Name,
		Environment: cfg.Environment,
	})

	// --- Startup order: tracer -> metrics -> setup -> listeners ---

	tracerProvider, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName:    p.Name,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("%w: initialize tracer: %w", ErrSetup, err)
	}

	metricsProvider, err := observability.InitMetrics(ctx, observability.MetricsConfig{
		ServiceName:    p.Name,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("%w: initialize metrics: %w", ErrSetup, err)
	}

	runtime, err := p.Setup(ctx, SetupDeps{Config: cfg, Logger: logger})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}

	// Health check shutdown coordination via atomic flag.
	var shuttingDown atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if shuttingDown.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"shutting_down","service":%q}`, p.Name)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","service":%q}`, p.Name)
	})

	httpLn := lns.HTTP
	if httpLn == nil {
		httpLn, err = (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", cfg.Server.HTTPPort))
		if err != nil {
			return fmt.Errorf("%w: http: %w", ErrBind, err)
		}
	}
	rpcLn := lns.RPC
	if rpcLn == nil {
		rpcLn, err = (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", cfg.Server.RPCPort))
		if err != nil {
			return fmt.Errorf("%w: rpc: %w", ErrBind, err)
		}
	}

	httpServer := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	rpcServer := newRPCServer(runtime.Handler, cfg.Server.RequestTimeout, logger)

	// --- Structured concurrency via errgroup ---
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health listener",
			slog.String("addr", httpLn.Addr().String()),
			slog.String("environment", cfg.Environment),
		)
		if serveErr := httpServer.Serve(httpLn); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("starting rpc listener",
			slog.String("addr", rpcLn.Addr().String()),
		)
		return rpcServer.Serve(ctx, rpcLn)
	})

	// Background loops: registry and limiter sweepers. They exit when ctx
	// is cancelled.
	for _, bg := range runtime.Background {
		bg := bg
		g.Go(func() error { return bg(ctx) })
	}

	// Shutdown trigger: waits for cancellation, then drains in reverse
	// startup order.
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("received shutdown signal, starting graceful shutdown")

		// 1. Health checks flip to 503 so load balancers drain us.
		shuttingDown.Store(true)
		time.Sleep(domain.ShutdownDrainDelay)

		// 2. Stop accepting RPC connections and drain in-flight requests.
		_ = rpcLn.Close()
		rpcCtx, rpcCancel := context.WithTimeout(context.Background(), domain.ShutdownRPCTimeout)
		defer rpcCancel()
		if shutdownErr := rpcServer.Shutdown(rpcCtx); shutdownErr != nil {
			logger.Warn("rpc drain incomplete, connections force-closed",
				slog.String("error", shutdownErr.Error()))
		}

		// 3. Drain the health listener.
		httpCtx, httpCancel := context.WithTimeout(context.Background(), domain.ShutdownHTTPTimeout)
		defer httpCancel()
		if shutdownErr := httpServer.Shutdown(httpCtx); shutdownErr != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", shutdownErr.Error()))
		}

		// 4. Service cleanup (store clients and the like).
		if runtime.Cleanup != nil {
			cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), domain.ShutdownHTTPTimeout)
			defer cleanupCancel()
			if cleanupErr := runtime.Cleanup(cleanupCtx); cleanupErr != nil {
				logger.Error("cleanup error", slog.String("error", cleanupErr.Error()))
			}
		}

		// 5. Flush OTEL last (reverse of startup: metrics first, then tracer).
		otelCtx, otelCancel := context.WithTimeout(context.Background(), domain.ShutdownOTELTimeout)
		defer otelCancel()
		if shutdownErr := metricsProvider.Shutdown(otelCtx); shutdownErr != nil {
			logger.Error("failed to shutdown metrics", slog.String("error", shutdownErr.Error()))
		}
		if shutdownErr := tracerProvider.Shutdown(otelCtx); shutdownErr != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", shutdownErr.Error()))
		}

		logger.Info("shutdown complete")
		return nil
	})

	return g.Wait()
}
