// Package app owns the client runtime: observability providers, the
// transport, the schema loader, the store and the action service.
package app

import (
	"fmt"
	"net/http"
	"sync"

	"gqlorm/internal/actions"
	"gqlorm/internal/config"
	"gqlorm/internal/logging"
	"gqlorm/internal/model"
	"gqlorm/internal/observability"
	"gqlorm/internal/schemaload"
	"gqlorm/internal/store"
	"gqlorm/internal/transport"
)

// App owns runtime resources for the gqlorm client lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	meterProvider     *observability.MeterProvider
	clientMetrics     *observability.ClientMetrics
	schemaLoadMetrics *observability.SchemaLoadMetrics
	tracerProvider    *observability.TracerProvider

	registry *model.Registry
	client   *transport.Client
	loader   *schemaload.Loader
	store    *store.Memory
	service  *actions.Service

	srv *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Service returns the action service. It is nil until Init succeeds.
func (a *App) Service() *actions.Service {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.service
}

// Store returns the local record store.
func (a *App) Store() *store.Memory {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.store
}

// Loader returns the schema loader.
func (a *App) Loader() *schemaload.Loader {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.loader
}

// Registry returns the model registry.
func (a *App) Registry() *model.Registry {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.registry
}
