package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Start begins watching the endpoint. It loads the schema, starts the
// background refresh loop and, when observability.metrics_listen is set,
// serves /metrics, /health and /admin/reload-schema. It requires Init to
// have completed.
func (a *App) Start(ctx context.Context) (<-chan error, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	a.stateMu.Lock()
	initialized, started, loader := a.initialized, a.started, a.loader
	a.stateMu.Unlock()
	if !initialized {
		return nil, fmt.Errorf("app is not initialized")
	}
	if started {
		a.stateMu.Lock()
		defer a.stateMu.Unlock()
		return a.serverErrors, nil
	}

	snapshot, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial schema load failed: %w", err)
	}
	a.logger.Info("watching GraphQL schema",
		slog.String("fingerprint", snapshot.Fingerprint),
		slog.String("connection_mode", string(snapshot.Mode)),
		slog.Duration("refresh_min_interval", a.cfg.Schema.RefreshMinInterval),
		slog.Duration("refresh_max_interval", a.cfg.Schema.RefreshMaxInterval),
	)

	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	if a.started {
		return a.serverErrors, nil
	}

	refreshCtx, cancel := context.WithCancel(context.Background())
	loader.Start(refreshCtx)
	a.cleanup.push("schema refresh", func(shutdownCtx context.Context) error {
		cancel()
		return loader.Wait(shutdownCtx)
	})

	a.serverErrors = make(chan error, 1)
	if addr := a.cfg.Observability.MetricsListen; addr != "" {
		mux, err := buildRouter(a.cfg, a.logger, loader, a.meterProvider)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to build listener routes: %w", err)
		}
		a.srv = buildServer(addr, wrapHTTPHandler(a.cfg, a.logger, mux))
		srv := a.srv
		a.cleanup.push("HTTP listener", func(shutdownCtx context.Context) error {
			return srv.Shutdown(shutdownCtx)
		})
		startServer(a.cfg, a.logger, srv, a.serverErrors)
	}

	a.started = true
	return a.serverErrors, nil
}

// WaitForStop waits for either an OS signal or a listener error.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (reason string, err error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		serverErrors = a.serverErrors
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", fmt.Errorf("both stop and serverErrors channels are nil")
	}

	// A nil channel never becomes ready, so the select only waits on the
	// channels that were provided.
	select {
	case err := <-serverErrors:
		if err == nil {
			return "server_error", fmt.Errorf("listener stopped unexpectedly")
		}
		return "server_error", fmt.Errorf("listener failed: %w", err)
	case sig := <-stop:
		if a.logger != nil {
			a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		}
		return "signal", nil
	}
}
