// Package app assembles the report service: configuration, logging,
// telemetry, the job pipeline and the HTTP surface.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reportgen/internal/aggregate"
	"reportgen/internal/charts"
	"reportgen/internal/config"
	"reportgen/internal/document"
	"reportgen/internal/infrastructure"
	"reportgen/internal/pipeline"
	"reportgen/internal/services"
	transporthttp "reportgen/internal/transport/http"
	"reportgen/internal/websocket"
	"reportgen/pkg/contracts"
)

// Application holds all wired components.
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Hub           *websocket.Hub
	Manager       *pipeline.Manager
	Service       *services.ReportService
	Server        *http.Server

	cancelRoot context.CancelFunc
}

// NewApplication loads configuration and wires every component.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	tracer, err := pipeline.NewJobTracer(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create job metrics: %w", err)
	}

	hub := websocket.NewHub(logger)
	notifier := pipeline.NewStatusNotifier(hub, logger)

	sources := aggregate.NewHTTPSources(cfg.Aggregation.SourceBaseURL, nil)
	aggregator := aggregate.NewAggregator(sources.Bundle(), logger,
		aggregate.WithSourceTimeout(cfg.Aggregation.SourceTimeout),
		aggregate.WithCacheTTL(cfg.Aggregation.CacheTTL))

	chartRenderer, err := charts.NewRenderer(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart renderer: %w", err)
	}

	assembler := document.NewAssembler(
		document.NewChromeRenderer(cfg.Renderer.ChromeTimeout), logger)

	manager := pipeline.NewManager(
		pipeline.NewMemoryJobStore(), notifier, aggregator, chartRenderer, assembler, logger,
		pipeline.WithMaxConcurrentPerUser(cfg.Queue.MaxConcurrentPerUser),
		pipeline.WithMaxRetries(cfg.Queue.MaxRetries),
		pipeline.WithRetryDelay(cfg.Queue.RetryDelay),
		pipeline.WithRetention(time.Duration(cfg.Queue.RetentionDays)*24*time.Hour),
		pipeline.WithTracer(tracer))

	service := services.NewReportService(manager, logger)

	router := transporthttp.NewRouter(transporthttp.RouterDeps{
		Service:        service,
		Hub:            hub,
		MetricsHandler: otelProviders.PrometheusHTTP,
		Config:         cfg,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	return &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		Hub:           hub,
		Manager:       manager,
		Service:       service,
		Server:        server,
	}, nil
}

// Start launches background services and the HTTP listener.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.cancelRoot = cancel
	a.Logger.InfoContext(ctx, "starting application",
		slog.String("version", contracts.Version),
		slog.Int("port", a.Config.Server.Port))

	a.Hub.Start()
	a.Manager.Start(ctx)

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// Stop drains the pipeline and shuts everything down in dependency order.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	a.Logger.InfoContext(ctx, "shutting down")

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "error shutting down server", slog.String("error", err.Error()))
	}

	if err := a.Manager.Stop(a.Config.Server.ShutdownTimeout); err != nil {
		a.Logger.ErrorContext(ctx, "error draining job queue", slog.String("error", err.Error()))
	}

	a.Hub.Stop()

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "error shutting down telemetry", slog.String("error", err.Error()))
	}

	infrastructure.CloseLogFile()
	a.Logger.InfoContext(ctx, "shutdown complete")
	return nil
}

// Run runs the application until interrupted.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "received interrupt signal")
	case <-ctx.Done():
	}

	return a.Stop(ctx)
}
