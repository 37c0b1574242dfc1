package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gqlorm/internal/config"
	"gqlorm/internal/logging"
	"gqlorm/internal/middleware"
	"gqlorm/internal/model"
	"gqlorm/internal/naming"
	"gqlorm/internal/observability"
	"gqlorm/internal/schemaload"
	"gqlorm/internal/transport"
)

// InitLogger builds the process logger. When log export is enabled the
// logger also bridges records to the OTLP logger provider.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(otelConfig(cfg, logsConfig))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func otelConfig(cfg *config.Config, otlp config.OTLPConfig) observability.Config {
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          otlp.Endpoint,
			Protocol:          otlp.Protocol,
			Insecure:          otlp.Insecure,
			TLSCertFile:       otlp.TLSCertFile,
			TLSClientCertFile: otlp.TLSClientCertFile,
			TLSClientKeyFile:  otlp.TLSClientKeyFile,
			Headers:           otlp.Headers,
			Timeout:           otlp.Timeout,
			Compression:       otlp.Compression,
			RetryEnabled:      otlp.RetryEnabled,
		},
	}
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.ClientMetrics, *observability.SchemaLoadMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil, nil
	}

	meterProvider, err := observability.InitMeterProvider(otelConfig(cfg, config.OTLPConfig{}))
	if err != nil {
		return nil, nil, nil, err
	}

	clientMetrics, err := observability.InitMetrics(logger.Logger)
	if err != nil {
		return nil, nil, nil, err
	}

	schemaLoadMetrics, err := observability.InitSchemaLoadMetrics(logger.Logger)
	if err != nil {
		return nil, nil, nil, err
	}

	logger.Debug("OpenTelemetry metrics initialized")
	return meterProvider, clientMetrics, schemaLoadMetrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)

	return observability.InitTracerProvider(otelConfig(cfg, tracesConfig))
}

func buildRegistry(cfg *config.Config, logger *logging.Logger) (*model.Registry, error) {
	registry := model.NewRegistry(naming.New(cfg.Naming, logger.Logger), logger.Logger)
	if err := registry.RegisterDeclarations(cfg.Models); err != nil {
		return nil, err
	}
	logger.Debug("models registered", slog.Int("count", len(registry.Models())))
	return registry, nil
}

func buildClient(cfg *config.Config, logger *logging.Logger, metrics *observability.ClientMetrics) (*transport.Client, error) {
	return transport.New(transport.Config{
		URL:          cfg.Endpoint.URL,
		Headers:      cfg.Endpoint.Headers,
		Timeout:      cfg.Endpoint.Timeout,
		AuthToken:    cfg.Endpoint.AuthToken,
		CacheEnabled: cfg.Endpoint.CacheEnabled,
		CacheSize:    cfg.Endpoint.CacheSize,
	},
		transport.WithLogger(logger.Logger),
		transport.WithMetrics(metrics),
	)
}

func buildLoader(cfg *config.Config, logger *logging.Logger, executor transport.Executor, registry *model.Registry, metrics *observability.SchemaLoadMetrics) (*schemaload.Loader, error) {
	mode, err := cfg.Schema.Mode()
	if err != nil {
		return nil, err
	}
	return schemaload.NewLoader(schemaload.Config{
		Executor:    executor,
		Registry:    registry,
		Mode:        mode,
		Logger:      logger,
		Metrics:     metrics,
		MinInterval: cfg.Schema.RefreshMinInterval,
		MaxInterval: cfg.Schema.RefreshMaxInterval,
	})
}

func buildRouter(cfg *config.Config, logger *logging.Logger, loader *schemaload.Loader, meterProvider *observability.MeterProvider) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(loader))

	reload := http.Handler(schemaReloadHandler(loader))
	if token := cfg.Observability.AdminToken; token != "" {
		requireToken, err := middleware.AdminToken(middleware.AdminTokenConfig{Token: token})
		if err != nil {
			return nil, err
		}
		reload = requireToken(reload)
	}
	mux.Handle("/admin/reload-schema", reload)

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle("/metrics", meterProvider.Handler())
		logger.Debug("metrics endpoint enabled", slog.String("path", "/metrics"))
	}

	return mux, nil
}

// wrapHTTPHandler adds request logging and, when tracing is on, a server
// span around it.
func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	handler = middleware.Logging(logger)(handler)
	if !cfg.Observability.TracingEnabled {
		return handler
	}
	logger.Debug("HTTP instrumentation enabled")
	return otelhttp.NewHandler(handler, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return httpRootSpanName(r)
		}),
	)
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}

	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}

	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/health", "/metrics", "/admin/reload-schema":
		return rawPath
	default:
		return "/*"
	}
}

func buildServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverErrors chan<- error) {
	go func() {
		logAttrs := []any{
			slog.String("address", srv.Addr),
			slog.String("health_endpoint", "/health"),
			slog.String("reload_endpoint", "/admin/reload-schema"),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", "/metrics"))
		}
		logger.Info("listener starting", logAttrs...)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("listener failed: %w", err)
		}
	}()
}

// healthHandler reports healthy once a schema snapshot is loaded.
func healthHandler(loader *schemaload.Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		state := loader.State()
		if loader.CurrentSnapshot() == nil {
			reqLogger.Warn("health check failed", slog.String("schema_state", state))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, `{"status":"unhealthy","schema":%q}`, state)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"healthy","schema":%q}`, state)
	}
}

func schemaReloadHandler(loader *schemaload.Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			_, _ = fmt.Fprint(w, `{"error":"method not allowed"}`)
			return
		}

		reqLogger.Info("admin endpoint accessed",
			slog.String("operation", "schema_reload"),
			slog.String("remote_addr", r.RemoteAddr),
		)

		refreshCtx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		changed, err := loader.RefreshNow(refreshCtx)
		if err != nil {
			reqLogger.Error("schema reload failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = fmt.Fprint(w, `{"status":"error","message":"schema reload failed"}`)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","changed":%t}`, changed)
	}
}
