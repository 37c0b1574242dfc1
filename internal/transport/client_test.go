package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gqlorm/internal/gqlrequest"
	"gqlorm/internal/logging"
	"gqlorm/internal/record"
	"gqlorm/internal/schema"
	"gqlorm/internal/testutil/gqlfixture"
)

const postQuery = `query Post($id: ID!) { post(id: $id) { id title } }`

func mustParse(t *testing.T, text string) *ast.Document {
	t.Helper()
	doc, err := gqlrequest.Parse(text)
	require.NoError(t, err)
	return doc
}

// countingServer serves the fixture schema and counts requests.
func countingServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	h, err := gqlfixture.NewHandler(schema.ModeNodes, gqlfixture.NewData())
	require.NoError(t, err)
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestExecute_Query(t *testing.T) {
	srv, _ := countingServer(t)
	client, err := New(Config{URL: srv.URL})
	require.NoError(t, err)

	data, err := client.Execute(context.Background(), mustParse(t, postQuery), record.FromPairs("id", "1"), ExecuteOptions{})
	require.NoError(t, err)

	post, ok := record.AsRecord(data.Value("post"))
	require.True(t, ok)
	assert.Equal(t, "1", post.Value("id"))
	assert.Equal(t, "GraphQL", post.Value("title"))
	assert.Equal(t, []string{"id", "title"}, post.Keys())
}

func TestExecute_Cache(t *testing.T) {
	srv, hits := countingServer(t)
	client, err := New(Config{URL: srv.URL, CacheEnabled: true})
	require.NoError(t, err)
	ctx := context.Background()
	doc := mustParse(t, postQuery)
	vars := record.FromPairs("id", "1")

	first, err := client.Execute(ctx, doc, vars, ExecuteOptions{UseCache: true})
	require.NoError(t, err)
	first.Set("post", "mutated")

	second, err := client.Execute(ctx, doc, vars, ExecuteOptions{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), hits.Load())
	_, ok := record.AsRecord(second.Value("post"))
	assert.True(t, ok, "cache hits decode a fresh copy")

	_, err = client.Execute(ctx, doc, vars, ExecuteOptions{UseCache: false})
	require.NoError(t, err)
	assert.Equal(t, int64(2), hits.Load())

	_, err = client.Execute(ctx, doc, record.FromPairs("id", "2"), ExecuteOptions{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), hits.Load(), "different variables are a different request")

	client.ClearCache()
	_, err = client.Execute(ctx, doc, vars, ExecuteOptions{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, int64(4), hits.Load())
}

func TestExecute_MutationsAreNotCached(t *testing.T) {
	srv, hits := countingServer(t)
	client, err := New(Config{URL: srv.URL, CacheEnabled: true})
	require.NoError(t, err)
	doc := mustParse(t, `mutation DeletePost($id: ID!) { deletePost(id: $id) { id } }`)

	for i := 0; i < 2; i++ {
		_, err := client.Execute(context.Background(), doc, record.FromPairs("id", "3"), ExecuteOptions{UseCache: true})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(2), hits.Load())
}

func TestExecute_DeduplicatesInFlightRequests(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"status":"ok"}}`))
	}))
	t.Cleanup(srv.Close)

	client, err := New(Config{URL: srv.URL})
	require.NoError(t, err)
	doc := mustParse(t, `query Status { status }`)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*record.Record, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = client.Execute(context.Background(), doc, nil, ExecuteOptions{})
		}(i)
	}

	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), hits.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "ok", results[i].Value("status"))
	}
	results[0].Set("status", "changed")
	assert.Equal(t, "ok", results[1].Value("status"))
}

func TestExecute_MutationsAreNotDeduplicated(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"createComment":{"id":"1"}}}`))
	}))
	t.Cleanup(srv.Close)

	client, err := New(Config{URL: srv.URL})
	require.NoError(t, err)
	doc := mustParse(t, `mutation CreateComment($content: String!) { createComment(content: $content) { id } }`)

	const callers = 2
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Execute(context.Background(), doc, record.FromPairs("content", "same"), ExecuteOptions{})
		}(i)
	}

	require.Eventually(t, func() bool { return hits.Load() == callers }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(callers), hits.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
	}
}

func TestExecute_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr func(t *testing.T, err error)
	}{
		{
			name:   "graphql errors",
			status: http.StatusOK,
			body:   `{"data":null,"errors":[{"message":"Cannot query field \"nope\"","path":["post","nope"]}]}`,
			wantErr: func(t *testing.T, err error) {
				var gqlErrs GraphQLErrors
				require.True(t, errors.As(err, &gqlErrs))
				require.Len(t, gqlErrs, 1)
				assert.Equal(t, `Cannot query field "nope"`, gqlErrs[0].Message)
				assert.Equal(t, []any{"post", "nope"}, gqlErrs[0].Path)
			},
		},
		{
			name:   "bad status",
			status: http.StatusBadGateway,
			body:   "upstream unavailable",
			wantErr: func(t *testing.T, err error) {
				var statusErr *HTTPStatusError
				require.True(t, errors.As(err, &statusErr))
				assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
				assert.Contains(t, err.Error(), "upstream unavailable")
			},
		},
		{
			name:   "malformed body",
			status: http.StatusOK,
			body:   `{"data":`,
			wantErr: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "failed to decode response")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, err := New(Config{URL: srv.URL, CacheEnabled: true})
			require.NoError(t, err)
			_, err = client.Execute(context.Background(), mustParse(t, postQuery), record.FromPairs("id", "1"), ExecuteOptions{UseCache: true})
			require.Error(t, err)
			tt.wantErr(t, err)
		})
	}
}

func TestExecute_RequestShape(t *testing.T) {
	var captured *http.Request
	var envelope gqlrequest.Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		var err error
		envelope, err = gqlrequest.DecodeEnvelope(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"post":null}}`))
	}))
	defer srv.Close()

	client, err := New(Config{
		URL:       srv.URL,
		AuthToken: "secret-token",
		Headers:   map[string]string{"X-Tenant": "acme"},
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)

	ctx := logging.WithRequestIDContext(context.Background(), "req-42")
	vars := record.FromPairs("id", "7")
	data, err := client.Execute(ctx, mustParse(t, postQuery), vars, ExecuteOptions{})
	require.NoError(t, err)
	assert.Nil(t, data.Value("post"))

	require.NotNil(t, captured)
	assert.Equal(t, http.MethodPost, captured.Method)
	assert.Equal(t, "Bearer secret-token", captured.Header.Get("Authorization"))
	assert.Equal(t, "acme", captured.Header.Get("X-Tenant"))
	assert.Equal(t, "req-42", captured.Header.Get(RequestIDHeader))
	assert.Equal(t, "Post", envelope.OperationName)
	assert.Equal(t, "7", envelope.Variables.Value("id"))
	assert.Contains(t, envelope.Query, "post(id: $id)")
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestExecute_InvalidDocument(t *testing.T) {
	client, err := New(Config{URL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	doc := mustParse(t, `query A { status } query B { status }`)
	_, err = client.Execute(context.Background(), doc, nil, ExecuteOptions{})
	assert.ErrorContains(t, err, "invalid document")
}

func TestAnalysisFor(t *testing.T) {
	doc := mustParse(t, postQuery)
	attached := gqlrequest.AnalyzeDocument(doc, "")
	ctx := gqlrequest.WithAnalysis(context.Background(), attached)

	reused := analysisFor(ctx, doc)
	assert.Equal(t, attached.OperationHash, reused.OperationHash)
	reused.Envelope.Query = "changed"
	assert.Empty(t, attached.Envelope.Query, "the attached analysis is not mutated")

	other := mustParse(t, `query Other { status }`)
	fresh := analysisFor(ctx, other)
	assert.Equal(t, "Other", fresh.OperationName)
	assert.Same(t, other, fresh.Document)
}
