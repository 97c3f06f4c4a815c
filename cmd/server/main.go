package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/swasthya/homeo-assistant/internal/config"
	"github.com/swasthya/homeo-assistant/internal/gateway"
	"github.com/swasthya/homeo-assistant/internal/history"
	"github.com/swasthya/homeo-assistant/internal/observability"
	"github.com/swasthya/homeo-assistant/internal/resilience"
	"github.com/swasthya/homeo-assistant/internal/structured"
	"github.com/swasthya/homeo-assistant/internal/voice"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("grpc_port", cfg.GRPCPort).
		Str("model", cfg.ModelName).
		Str("history_backend", cfg.HistoryBackend).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Homeopathy assistant starting")

	if cfg.ModelAPIKey == "" {
		logger.Warn().Msg("API_KEY is not set; queries will fail until it is configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Structured model client
	client := structured.NewClient(structured.Config{
		APIKey:         cfg.ModelAPIKey,
		MaxAttempts:    cfg.RetryMaxAttempts,
		InitialBackoff: time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
	}, structured.NewGeminiInvoker(cfg.ModelAPIKey, cfg.ModelName), logger)

	// History
	store, err := history.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open history store")
	}
	defer store.Close()

	// One breaker for every connection's engine
	breaker := resilience.NewCircuitBreaker(
		"deepgram",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	breaker.OnStateChange = func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
		logger.Warn().Str("service", name).Str("state", state.String()).Msg("Circuit breaker state changed")
	}
	engines := func(connLogger zerolog.Logger) (voice.SpeechEngine, error) {
		return voice.NewDeepgramEngine(voice.DeepgramConfig{
			APIKey: cfg.DeepgramAPIKey,
			Model:  cfg.DeepgramModel,
		}, breaker, connLogger), nil
	}

	readyChecks := map[string]observability.HealthCheckFunc{
		"model": func(ctx context.Context) error {
			if !client.Configured() {
				return errors.New("API_KEY not configured")
			}
			return nil
		},
		"history": store.Ping,
		"speech": func(ctx context.Context) error {
			if cfg.DeepgramAPIKey == "" {
				return errors.New("DEEPGRAM_API_KEY not configured")
			}
			if state, requests, failures, _ := breaker.GetStats(); state == resilience.StateOpen {
				return fmt.Errorf("%w after %d of %d stream starts failed", resilience.ErrCircuitOpen, failures, requests)
			}
			return nil
		},
	}

	router := gateway.NewRouter(gateway.RouterConfig{
		Fetcher:        client,
		Store:          store,
		Engines:        engines,
		ReadyChecks:    readyChecks,
		MetricsEnabled: cfg.MetricsEnabled,
		Logger:         logger,
	})

	// No WriteTimeout: WebSocket connections are long-lived.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws/assistant", cfg.Port)).
			Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// gRPC health service for orchestrators that probe over gRPC
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		logger.Fatal().Err(err).Str("grpc_port", cfg.GRPCPort).Msg("Failed to listen for gRPC")
	}
	go func() {
		logger.Info().Str("grpc_port", cfg.GRPCPort).Msg("gRPC health server listening")
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("gRPC server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	grpcServer.GracefulStop()

	logger.Info().Msg("Server exited gracefully")
}
