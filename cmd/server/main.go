package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dhruvsoni1802/browser-bidi/internal/api"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
	"github.com/dhruvsoni1802/browser-bidi/internal/config"
	"github.com/dhruvsoni1802/browser-bidi/internal/pool"
	"github.com/dhruvsoni1802/browser-bidi/internal/session"
	"github.com/dhruvsoni1802/browser-bidi/internal/storage"
)

const serviceName = "browser-bidi"

// setupLogger builds the process logger. ENV=production switches to JSON and
// LOG_LEVEL overrides the level.
func setupLogger() *slog.Logger {
	var handler slog.Handler

	if os.Getenv("ENV") == "production" {
		// JSON handler for production environment
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(slog.LevelInfo)})
	} else {
		// Text handler for development environment with better formatting
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel(slog.LevelDebug),
			AddSource: false,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				// Format timestamp to be more readable
				if a.Key == slog.TimeKey {
					t := a.Value.Time()
					return slog.String("time", t.Format(time.DateTime))
				}
				return a
			},
		})
	}

	return slog.New(handler)
}

func logLevel(fallback slog.Level) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		return fallback
	}
	return level
}

// setupTracing installs a stdout trace exporter when asked to. The returned
// function flushes and stops it.
func setupTracing(exporter string) (func(context.Context) error, error) {
	if exporter != "stdout" {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Setup the logger
	logger := setupLogger()
	slog.SetDefault(logger)

	var configPath string
	flagSet := pflag.NewFlagSet("bidi-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML config file (overrides BIDI_CONFIG)")
	port := flagSet.String("port", "", "HTTP port to listen on")
	endpoints := flagSet.StringSlice("endpoint", nil, "BiDi endpoint, repeatable (ws://, wss://, http:// or https://)")
	redisEnabled := flagSet.Bool("redis", false, "persist sessions in Redis")
	traceExporter := flagSet.String("trace-exporter", "", "trace exporter: none or stdout")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Flags win over file and environment
	if *port != "" {
		cfg.ServerPort = *port
	}
	if len(*endpoints) > 0 {
		cfg.Endpoints = *endpoints
	}
	if flagSet.Changed("redis") {
		cfg.RedisEnabled = *redisEnabled
	}
	if *traceExporter != "" {
		cfg.TraceExporter = strings.ToLower(*traceExporter)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	slog.Info("BiDi session server starting",
		"server_port", cfg.ServerPort,
		"endpoints", cfg.Endpoints,
		"redis_enabled", cfg.RedisEnabled,
		"trace_exporter", cfg.TraceExporter)

	shutdownTracing, err := setupTracing(cfg.TraceExporter)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Endpoint pool and balancer
	endpointPool, err := pool.NewEndpointPool(cfg.Endpoints, pool.WithProbeTimeout(cfg.HandshakeTimeout))
	if err != nil {
		return fmt.Errorf("failed to create endpoint pool: %w", err)
	}
	healthy := endpointPool.CheckHealth(ctx)
	slog.Info("initial endpoint health check", "healthy", healthy, "total", endpointPool.GetEndpointCount())
	balancer := pool.NewLoadBalancer(endpointPool)

	// Optional Redis persistence
	var repo session.Repository
	var redisClient *storage.RedisClient
	if cfg.RedisEnabled {
		redisClient, err = storage.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		sessionRepo := storage.NewSessionRepository(redisClient, cfg.SessionTTL)
		repo = sessionRepo

		resumable, err := sessionRepo.ListActiveSessions(ctx)
		if err != nil {
			slog.Warn("failed to list persisted sessions", "error", err)
		}
		slog.Info("connected to Redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "persisted_sessions", len(resumable))
	}

	manager := session.NewManager(session.Options{
		Balancer:   balancer,
		Repository: repo,
		Dial: endpointPool.GuardDial(session.DefaultDial(
			bidi.DialOptions{HandshakeTimeout: cfg.HandshakeTimeout},
			bidi.WithLogger(logger),
			bidi.WithDefaultTimeout(cfg.CommandTimeout),
			bidi.WithEventQueueSize(cfg.EventQueueSize),
		)),
		MaxSessions:         cfg.MaxSessions,
		MaxSessionsPerAgent: cfg.MaxSessionsPerAgent,
	})
	manager.StartCleanupWorker(cfg.CleanupInterval, cfg.SessionIdleTimeout)
	endpointPool.StartHealthChecker(ctx, cfg.HealthCheckInterval)

	server := api.NewServer(cfg.ServerPort, manager, balancer, api.WithRateLimit(cfg.RateLimit, cfg.RateBurst))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Phase 1: stop taking requests
		serverErr := server.Shutdown(shutdownCtx)

		// Phase 2: close BiDi transports, keeping persisted sessions resumable
		managerErr := manager.Close(shutdownCtx)

		return errors.Join(serverErr, managerErr, shutdownTracing(shutdownCtx))
	})

	slog.Info("service ready", "status", "awaiting shutdown signal")
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("shutdown complete")
	return nil
}
