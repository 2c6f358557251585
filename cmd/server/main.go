package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/usmanalidev/demo-agent-ai/cmd/mainconfig"
	"github.com/usmanalidev/demo-agent-ai/internal/api/router"
	"github.com/usmanalidev/demo-agent-ai/internal/app/bootstrap"
	appconfig "github.com/usmanalidev/demo-agent-ai/internal/config"
	"github.com/usmanalidev/demo-agent-ai/internal/conversation"
	"github.com/usmanalidev/demo-agent-ai/internal/http/handlers"
	httpmiddleware "github.com/usmanalidev/demo-agent-ai/internal/http/middleware"
	"github.com/usmanalidev/demo-agent-ai/internal/observability/metrics"
	"github.com/usmanalidev/demo-agent-ai/internal/paramstore"
	"github.com/usmanalidev/demo-agent-ai/internal/webchat"
	"github.com/usmanalidev/demo-agent-ai/pkg/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting demo assistant server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go app.run(ctx)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	app.webchat.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	app.close()

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type app struct {
	handler  http.Handler
	registry *conversation.Registry
	webchat  *webchat.Handler
	limiter  *httpmiddleware.RateLimiter
	closers  []func() error
}

// run drives the background sweepers until ctx is cancelled.
func (a *app) run(ctx context.Context) {
	go a.limiter.Run(ctx)
	a.registry.Run(ctx)
}

func (a *app) close() {
	a.registry.CloseAll()
	for _, c := range a.closers {
		_ = c()
	}
}

func newApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	c, err := bootstrap.LoadCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	metricsHandler, m := setupMetrics()

	a := &app{}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		a.closers = append(a.closers, redisClient.Close)
	}
	synth := bootstrap.BuildSynthesizer(cfg, redisClient, m, logger)

	credential, err := resolveCredential(ctx, cfg, logger)
	if err != nil {
		// Speech stays available to clients that bring their own key.
		logger.Warn("default speech credential unavailable", "error", err)
	}

	factory := bootstrap.BuildFactory(cfg, c, synth, credential, m, logger)
	a.registry = conversation.NewRegistry(factory, c, logger).
		WithHighlightInterval(cfg.HighlightInterval).
		WithIdleTTL(cfg.SessionIdleTTL).
		WithSweepInterval(cfg.SessionSweepInterval)
	a.webchat = webchat.NewHandler(factory, c, logger).
		WithHighlightInterval(cfg.HighlightInterval).
		WithPlaybackTimeout(cfg.SpeechPlaybackTimeout)
	a.limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	a.handler = router.New(&router.Config{
		Logger:             logger,
		Demos:              handlers.NewDemosHandler(c),
		Sessions:           handlers.NewSessionsHandler(a.registry, logger),
		WebChat:            a.webchat,
		MetricsHandler:     metricsHandler,
		RateLimiter:        a.limiter,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	return a, nil
}

func setupMetrics() (http.Handler, *metrics.AssistantMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewAssistantMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

// resolveCredential returns the server default speech key from the
// environment, or from Parameter Store when only a parameter name is set.
func resolveCredential(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (string, error) {
	if !cfg.SpeechConfigured() {
		logger.Info("no default speech credential; clients must supply their own key")
		return "", nil
	}
	var store paramstore.Getter
	if cfg.SpeechAPIKey == "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return "", fmt.Errorf("load aws config: %w", err)
		}
		store = paramstore.NewFromConfig(awsCfg)
	}
	return paramstore.ResolveCredential(ctx, cfg.SpeechAPIKey, cfg.SpeechAPIKeyParam, store)
}
