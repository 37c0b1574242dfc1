package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"gqlorm/internal/config"
	"gqlorm/internal/middleware"
	"gqlorm/internal/observability"
	"gqlorm/internal/schemaload"
)

func newTestLoader(t *testing.T, cfg *config.Config) *schemaload.Loader {
	t.Helper()
	registry, err := buildRegistry(cfg, testLogger())
	require.NoError(t, err)
	client, err := buildClient(cfg, testLogger(), nil)
	require.NoError(t, err)
	loader, err := buildLoader(cfg, testLogger(), client, registry, nil)
	require.NoError(t, err)
	return loader
}

func serve(handler http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestBuildRouter_HealthFollowsSchemaState(t *testing.T) {
	cfg := testConfig(fixtureServerURL(t))
	loader := newTestLoader(t, cfg)
	mux, err := buildRouter(cfg, testLogger(), loader, nil)
	require.NoError(t, err)

	rec := serve(mux, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","schema":"not_started"}`, rec.Body.String())

	_, err = loader.Load(context.Background())
	require.NoError(t, err)

	rec = serve(mux, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","schema":"loaded"}`, rec.Body.String())
}

func TestBuildRouter_ReloadSchema(t *testing.T) {
	cfg := testConfig(fixtureServerURL(t))
	loader := newTestLoader(t, cfg)
	mux, err := buildRouter(cfg, testLogger(), loader, nil)
	require.NoError(t, err)

	rec := serve(mux, http.MethodGet, "/admin/reload-schema")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(mux, http.MethodPost, "/admin/reload-schema")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","changed":false}`, rec.Body.String())
	assert.NotNil(t, loader.CurrentSnapshot())
}

func TestBuildRouter_ReloadFailure(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1/graphql")
	loader := newTestLoader(t, cfg)
	mux, err := buildRouter(cfg, testLogger(), loader, nil)
	require.NoError(t, err)

	rec := serve(mux, http.MethodPost, "/admin/reload-schema")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "127.0.0.1")
}

func TestBuildRouter_Metrics(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1/graphql")
	loader := newTestLoader(t, cfg)

	t.Run("disabled", func(t *testing.T) {
		mux, err := buildRouter(cfg, testLogger(), loader, nil)
	require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, serve(mux, http.MethodGet, "/metrics").Code)
	})

	t.Run("enabled", func(t *testing.T) {
		mp, err := observability.InitMeterProvider(observability.Config{ServiceName: "gqlorm-test"})
		require.NoError(t, err)
		t.Cleanup(func() { _ = mp.Shutdown(context.Background(), testLogger().Logger) })

		enabled := testConfig("http://127.0.0.1:1/graphql")
		enabled.Observability.MetricsEnabled = true
		mux, err := buildRouter(enabled, testLogger(), loader, mp)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, serve(mux, http.MethodGet, "/metrics").Code)
	})
}

func TestWrapHTTPHandler_UsesHTTPRootSpanName(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	tp.RegisterSpanProcessor(recorder)
	originalTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(originalTP)
	})

	cfg := &config.Config{Observability: config.ObservabilityConfig{TracingEnabled: true}}
	handler := wrapHTTPHandler(cfg, testLogger(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := serve(handler, http.MethodGet, "/health")
	require.Equal(t, http.StatusNoContent, rec.Code)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, "GET /health")
}

func TestWrapHTTPHandler_PassThroughWithoutTracing(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := wrapHTTPHandler(&config.Config{}, testLogger(), inner)
	assert.Equal(t, http.StatusOK, serve(handler, http.MethodGet, "/health").Code)
}

func TestNormalizeHTTPSpanRoute(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "health", input: "/health", expected: "/health"},
		{name: "metrics", input: "/metrics", expected: "/metrics"},
		{name: "admin", input: "/admin/reload-schema", expected: "/admin/reload-schema"},
		{name: "unknown", input: "/users/123", expected: "/*"},
		{name: "empty", input: "", expected: "/*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeHTTPSpanRoute(tt.input))
		})
	}
}

func TestHTTPRootSpanName_NilRequest(t *testing.T) {
	assert.Equal(t, "HTTP /*", httpRootSpanName(nil))
}

func TestBuildRegistry_RejectsBadDeclarations(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1/graphql")
	cfg.Models = append(cfg.Models, cfg.Models[0])
	_, err := buildRegistry(cfg, testLogger())
	assert.Error(t, err)
}

func TestBuildRouter_ReloadRequiresAdminToken(t *testing.T) {
	cfg := testConfig(fixtureServerURL(t))
	cfg.Observability.AdminToken = "reload-secret"
	loader := newTestLoader(t, cfg)
	mux, err := buildRouter(cfg, testLogger(), loader, nil)
	require.NoError(t, err)

	rec := serve(mux, http.MethodPost, "/admin/reload-schema")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, loader.CurrentSnapshot())

	req := httptest.NewRequest(http.MethodPost, "/admin/reload-schema", nil)
	req.Header.Set(middleware.DefaultAdminTokenHeader, "reload-secret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(mux, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code, "health stays open")
}

func TestWrapHTTPHandler_SetsRequestID(t *testing.T) {
	handler := wrapHTTPHandler(&config.Config{}, testLogger(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := serve(handler, http.MethodGet, "/health")
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}
