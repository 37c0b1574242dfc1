// Package transport executes GraphQL documents over HTTP. Identical requests
// in flight share one round trip and query responses may be served from an
// in-memory cache.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/printer"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"gqlorm/internal/gqlrequest"
	"gqlorm/internal/logging"
	"gqlorm/internal/observability"
	"gqlorm/internal/record"
)

// RequestIDHeader carries the correlation id of each request.
const RequestIDHeader = "X-Request-ID"

// DefaultCacheSize bounds the number of cached query responses.
const DefaultCacheSize = 512

// ExecuteOptions controls a single execution.
type ExecuteOptions struct {
	// UseCache allows serving the response from cache. Responses are still
	// deduplicated and stored when false.
	UseCache bool
}

// Executor runs a parsed document and returns the data object of the
// response. GraphQL errors and transport failures are returned as errors.
type Executor interface {
	Execute(ctx context.Context, doc *ast.Document, variables *record.Record, opts ExecuteOptions) (*record.Record, error)
}

// Config describes the endpoint.
type Config struct {
	URL          string
	Headers      map[string]string
	Timeout      time.Duration
	AuthToken    string
	CacheEnabled bool
	CacheSize    int
}

// Client is the HTTP implementation of Executor.
type Client struct {
	url        string
	headers    map[string]string
	httpClient *http.Client
	cache      *lru.Cache[string, []byte]
	group      singleflight.Group
	logger     *slog.Logger
	metrics    *observability.ClientMetrics
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default client. Auth is not
// applied to a client passed this way.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records request metrics.
func WithMetrics(metrics *observability.ClientMetrics) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// New creates a client for cfg.URL.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("graphql endpoint url is required")
	}

	c := &Client{
		url:        cfg.URL,
		headers:    cfg.Headers,
		httpClient: newHTTPClient(cfg),
		logger:     slog.Default(),
	}
	if cfg.CacheEnabled {
		size := cfg.CacheSize
		if size <= 0 {
			size = DefaultCacheSize
		}
		cache, err := lru.New[string, []byte](size)
		if err != nil {
			return nil, fmt.Errorf("failed to create response cache: %w", err)
		}
		c.cache = cache
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newHTTPClient(cfg Config) *http.Client {
	base := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "graphql.http " + r.Method
			}),
		),
	}
	client := base
	if cfg.AuthToken != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.AuthToken,
			TokenType:   "Bearer",
		}))
	}
	client.Timeout = cfg.Timeout
	return client
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	if c.cache != nil {
		c.cache.Purge()
	}
}

// Execute implements Executor.
func (c *Client) Execute(ctx context.Context, doc *ast.Document, variables *record.Record, opts ExecuteOptions) (result *record.Record, err error) {
	if doc == nil {
		return nil, fmt.Errorf("document is required")
	}
	started := time.Now()

	analysis := analysisFor(ctx, doc)
	if err := analysis.Err(); err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}
	text, ok := printer.Print(doc).(string)
	if !ok {
		return nil, fmt.Errorf("unexpected printed document type")
	}
	analysis.Envelope = gqlrequest.Envelope{Query: text, OperationName: analysis.OperationName, Variables: variables}

	meta, _ := gqlrequest.ExecMetaFromContext(ctx)
	ctx, span := observability.StartSpan(ctx, "graphql.execute", observability.GraphQLSpanAttributes(analysis, meta)...)
	defer func() { observability.FinishSpan(span, err) }()

	c.metrics.IncrementActiveRequests(ctx)
	defer c.metrics.DecrementActiveRequests(ctx)
	defer func() {
		c.metrics.RecordRequest(ctx, time.Since(started), err != nil, analysis.OperationType)
	}()

	key, err := gqlrequest.RequestKey(analysis.OperationHash, variables)
	if err != nil {
		return nil, err
	}
	isQuery := analysis.OperationType == string(ast.OperationTypeQuery)
	cacheable := c.cache != nil && isQuery

	if cacheable && opts.UseCache {
		body, hit := c.cache.Get(key)
		c.metrics.RecordCacheLookup(ctx, hit, analysis.OperationType)
		if hit {
			c.logger.Debug("graphql response served from cache", observability.GraphQLLogFields(ctx, analysis, meta)...)
			return decodeResponse(body)
		}
	}

	var body []byte
	if isQuery {
		// The first caller's context governs a shared round trip.
		value, doErr, shared := c.group.Do(key, func() (any, error) {
			return c.send(ctx, analysis.Envelope)
		})
		if shared {
			c.metrics.RecordSharedRequest(ctx, analysis.OperationType)
		}
		body, _ = value.([]byte)
		err = doErr
	} else {
		// Every mutation is a separate write and reaches the server.
		body, err = c.send(ctx, analysis.Envelope)
	}
	if err != nil {
		c.logger.Warn("graphql request failed",
			append(observability.GraphQLLogFields(ctx, analysis, meta), slog.String("error", err.Error()))...)
		return nil, err
	}

	// Every caller decodes its own copy, so shared and cached bodies are
	// never aliased.
	result, err = decodeResponse(body)
	if err != nil {
		return nil, err
	}
	if cacheable {
		c.cache.Add(key, body)
	}
	c.logger.Debug("graphql request completed",
		append(observability.GraphQLLogFields(ctx, analysis, meta), slog.Duration("duration", time.Since(started)))...)
	return result, nil
}

// analysisFor reuses the analysis the builder attached to ctx when it
// describes doc, and analyzes doc otherwise.
func analysisFor(ctx context.Context, doc *ast.Document) *gqlrequest.Analysis {
	if attached := gqlrequest.AnalysisFromContext(ctx); attached != nil && attached.Document == doc && attached.Err() == nil {
		reused := *attached
		return &reused
	}
	return gqlrequest.AnalyzeDocument(doc, "")
}

func (c *Client) send(ctx context.Context, env gqlrequest.Envelope) ([]byte, error) {
	payload, err := env.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	requestID := logging.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graphql request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func decodeResponse(body []byte) (*record.Record, error) {
	payload, err := record.DecodeObject(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if gqlErrs := parseErrors(payload.Value("errors")); len(gqlErrs) > 0 {
		return nil, gqlErrs
	}
	data, ok := record.AsRecord(payload.Value("data"))
	if !ok {
		return record.New(), nil
	}
	return data, nil
}

func parseErrors(v any) GraphQLErrors {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	out := make(GraphQLErrors, 0, len(items))
	for _, item := range items {
		entry, ok := record.AsRecord(item)
		if !ok {
			out = append(out, GraphQLError{Message: fmt.Sprint(item)})
			continue
		}
		message, _ := entry.Value("message").(string)
		path, _ := entry.Value("path").([]any)
		out = append(out, GraphQLError{Message: message, Path: path})
	}
	return out
}
