package app

import (
	"context"
	"fmt"
	"log/slog"

	"gqlorm/internal/actions"
	"gqlorm/internal/store"
)

// Init initializes all runtime resources. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			_ = cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, clientMetrics, schemaLoadMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	registry, err := buildRegistry(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to register models: %w", err)
	}

	a.logger.Info("configuring GraphQL endpoint",
		slog.String("url", a.cfg.Endpoint.URL),
		slog.Bool("cache_enabled", a.cfg.Endpoint.CacheEnabled),
		slog.Bool("auth_token_present", a.cfg.Endpoint.AuthToken != ""),
	)
	client, err := buildClient(a.cfg, a.logger, clientMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize GraphQL client: %w", err)
	}
	cleanup.push("response cache", func(_ context.Context) error {
		client.ClearCache()
		return nil
	})

	loader, err := buildLoader(a.cfg, a.logger, client, registry, schemaLoadMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize schema loader: %w", err)
	}

	mem := store.NewMemory(registry, a.logger.Logger)
	service, err := actions.New(actions.Config{
		Loader:   loader,
		Registry: registry,
		Executor: client,
		Store:    mem,
		Logger:   a.logger,
		Metrics:  clientMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize actions: %w", err)
	}

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.clientMetrics = clientMetrics
	a.schemaLoadMetrics = schemaLoadMetrics
	a.tracerProvider = tracerProvider
	a.registry = registry
	a.client = client
	a.loader = loader
	a.store = mem
	a.service = service
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
