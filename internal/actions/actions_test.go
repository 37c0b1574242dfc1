package actions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"gqlorm/internal/builder"
	"gqlorm/internal/logging"
	"gqlorm/internal/model"
	"gqlorm/internal/record"
	"gqlorm/internal/schema"
	"gqlorm/internal/schemaload"
	"gqlorm/internal/store"
	"gqlorm/internal/testutil/gqlfixture"
	"gqlorm/internal/transport"
)

type harness struct {
	svc    *Service
	store  *store.Memory
	data   *gqlfixture.Data
	client *transport.Client
	config Config
}

func newHarness(t *testing.T, mode schema.ConnectionMode) *harness {
	t.Helper()
	data := gqlfixture.NewData()
	srv, err := gqlfixture.NewServer(mode, data)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	logger := &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	client, err := transport.New(transport.Config{URL: srv.URL, CacheEnabled: true}, transport.WithLogger(logger.Logger))
	require.NoError(t, err)
	reg, err := gqlfixture.NewRegistry()
	require.NoError(t, err)
	loader, err := schemaload.NewLoader(schemaload.Config{Executor: client, Registry: reg, Logger: logger})
	require.NoError(t, err)
	mem := store.NewMemory(reg, logger.Logger)

	cfg := Config{Loader: loader, Registry: reg, Executor: client, Store: mem, Logger: logger}
	svc, err := New(cfg)
	require.NoError(t, err)
	return &harness{svc: svc, store: mem, data: data, client: client, config: cfg}
}

func (h *harness) all(t *testing.T, entity string) []*record.Record {
	t.Helper()
	recs, err := h.store.All(entity)
	require.NoError(t, err)
	return recs
}

func TestFetch_All(t *testing.T) {
	h := newHarness(t, schema.ModeNodes)
	inserted, err := h.svc.Fetch(context.Background(), "posts", FetchParams{})
	require.NoError(t, err)
	assert.Len(t, inserted["posts"], 3)

	assert.Len(t, h.all(t, "posts"), 3)
	assert.Len(t, h.all(t, "users"), 2)
	assert.Len(t, h.all(t, "profiles"), 2)
	assert.Len(t, h.all(t, "comments"), 2)

	post, err := h.store.Find("posts", 1, "author.profile", "comments")
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, float64(1), post.Value("authorId"))
	assert.Equal(t, float64(123), post.Value("otherId"))
	assert.Equal(t, true, post.Value(model.MetaPersisted))

	author, ok := record.AsRecord(post.Value("author"))
	require.True(t, ok)
	assert.Equal(t, "Charlie Brown", author.Value("name"))
	profile, ok := record.AsRecord(author.Value("profile"))
	require.True(t, ok)
	assert.Equal(t, float64(8), profile.Value("age"))

	comments, ok := post.Value("comments").([]any)
	require.True(t, ok)
	assert.Len(t, comments, 2)
}

func TestFetch_Filter(t *testing.T) {
	h := newHarness(t, schema.ModeNodes)
	_, err := h.svc.Fetch(context.Background(), "posts", FetchParams{Filter: record.FromPairs("title", "Vue")})
	require.NoError(t, err)

	posts := h.all(t, "posts")
	require.Len(t, posts, 1)
	assert.Equal(t, "Vue", posts[0].Value("title"))
	assert.Equal(t, float64(2), posts[0].Value("authorId"))
}

func TestFetch_ByID(t *testing.T) {
	h := newHarness(t, schema.ModeNodes)
	inserted, err := h.svc.Fetch(context.Background(), "post", FetchParams{Filter: record.FromPairs("id", "2")})
	require.NoError(t, err)
	require.Len(t, inserted["posts"], 1)
	assert.Equal(t, "Vue", inserted["posts"][0].Value("title"))
	assert.Len(t, h.all(t, "posts"), 1)
}

func TestFetch_EdgesMode(t *testing.T) {
	h := newHarness(t, schema.ModeEdges)
	_, err := h.svc.Fetch(context.Background(), "users", FetchParams{BypassCache: true})
	require.NoError(t, err)

	users := h.all(t, "users")
	require.Len(t, users, 2)
	assert.Equal(t, "Charlie Brown", users[0].Value("name"))
	assert.Equal(t, float64(1), users[0].Value("profileId"))
	assert.Len(t, h.all(t, "profiles"), 2)
}

func TestPersist(t *testing.T) {
	h := newHarness(t, schema.ModeNodes)
	ctx := context.Background()

	local, err := h.store.Create("posts", record.FromPairs("title", "Fresh", "content", "Hello", "authorId", "1"))
	require.NoError(t, err)
	localID := local.Value(model.MetaID)

	saved, err := h.svc.Persist(ctx, "posts", localID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, float64(4), saved.Value("id"))
	assert.Equal(t, "Fresh", saved.Value("title"))
	assert.Equal(t, true, saved.Value(model.MetaPersisted))

	gone, err := h.store.Find("posts", localID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.Equal(t, "Fresh", h.data.Get("posts", "4")["title"])

	users := h.all(t, "users")
	require.Len(t, users, 1)
	assert.Equal(t, "Charlie Brown", users[0].Value("name"))
}

// fixedMutationExecutor answers mutations with a canned response and sends
// everything else to the wrapped client.
type fixedMutationExecutor struct {
	next *transport.Client
	data *record.Record
}

func (e fixedMutationExecutor) Execute(ctx context.Context, doc *ast.Document, vars *record.Record, opts transport.ExecuteOptions) (*record.Record, error) {
	if len(doc.Definitions) > 0 {
		if op, ok := doc.Definitions[0].(*ast.OperationDefinition); ok && op.Operation == ast.OperationTypeMutation {
			return record.CloneRecord(e.data), nil
		}
	}
	return e.next.Execute(ctx, doc, vars, opts)
}

func TestPersist_KeepsLocalRecordOnFailure(t *testing.T) {
	h := newHarness(t, schema.ModeNodes)
	cfg := h.config
	cfg.Executor = fixedMutationExecutor{
		next: h.client,
		data: record.FromPairs("createPost", record.FromPairs("id", "not-a-number")),
	}
	svc, err := New(cfg)
	require.NoError(t, err)

	local, err := h.store.Create("posts", record.FromPairs("title", "Fresh", "content", "Hello", "authorId", "1"))
	require.NoError(t, err)
	localID := local.Value(model.MetaID)

	saved, err := svc.Persist(context.Background(), "posts", localID)
	require.Error(t, err)
	assert.Nil(t, saved)

	kept, err := h.store.Find("posts", localID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, "Fresh", kept.Value("title"))
}

func TestPersist_MissingRecord(t *testing.T) {
	h := newHarness(t, schema.ModeNodes)
	_, err := h.svc.Persist(context.Background(), "posts", "$uid9")
	var notFound *store.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "$uid9", notFound.ID)
}

func TestPush(t *testing.T) {
	h := newHarness(t, schema.ModeNodes)
	ctx := context.Background()
	_, err := h.svc.Fetch(ctx, "post", FetchParams{Filter: record.FromPairs("id", "1")})
	require.NoError(t, err)

	post, err := h.store.Find("posts", 1)
	require.NoError(t, err)
	require.NotNil(t, post)
	post.Set("title", "Renamed")

	saved, err := h.svc.Push(ctx, "posts", post)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "Renamed", saved.Value("title"))
	assert.Equal(t, "Renamed", h.data.Get("posts", "1")["title"])
}

func TestDestroy(t *testing.T) {
	h := newHarness(t, schema.ModeNodes)
	ctx := context.Background()
	_, err := h.svc.Fetch(ctx, "posts", FetchParams{})
	require.NoError(t, err)

	require.NoError(t, h.svc.Destroy(ctx, "posts", "2"))
	assert.Nil(t, h.data.Get("posts", "2"))

	post, err := h.store.Find("posts", 2)
	require.NoError(t, err)
	assert.Nil(t, post)
	assert.Len(t, h.all(t, "posts"), 2)
}

func TestQuery_Custom(t *testing.T) {
	h := newHarness(t, schema.ModeNodes)
	inserted, err := h.svc.Query(context.Background(), "posts", "unpublishedPosts", QueryParams{
		Filter:   record.FromPairs("authorId", "1"),
		Multiple: true,
	})
	require.NoError(t, err)
	require.Len(t, inserted["posts"], 1)

	posts := h.all(t, "posts")
	require.Len(t, posts, 1)
	assert.Equal(t, "Draft", posts[0].Value("title"))
	assert.Equal(t, false, posts[0].Value("published"))
}

func TestMutate_Custom(t *testing.T) {
	h := newHarness(t, schema.ModeNodes)
	ctx := context.Background()

	inserted, err := h.svc.Mutate(ctx, "posts", "publishPosts", record.FromPairs("authorId", "1"))
	require.NoError(t, err)
	require.Len(t, inserted["posts"], 1)
	assert.Equal(t, true, inserted["posts"][0].Value("published"))
	assert.Equal(t, true, h.data.Get("posts", "3")["published"])

	inserted, err = h.svc.Mutate(ctx, "posts", "upvotePost", record.FromPairs("captchaToken", "abc", "id", "1"))
	require.NoError(t, err)
	require.Len(t, inserted["posts"], 1)
	assert.Equal(t, "GraphQL", inserted["posts"][0].Value("title"))

	_, err = h.svc.Mutate(ctx, "posts", "archivePost", record.FromPairs("id", "1"))
	var missing *schema.SchemaMutationNotFoundError
	assert.True(t, errors.As(err, &missing))
}

func TestSimpleQueryAndMutation(t *testing.T) {
	h := newHarness(t, schema.ModeNodes)
	ctx := context.Background()

	data, err := h.svc.SimpleQuery(ctx, "query Status { status }", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "ok", data.Value("status"))

	data, err = h.svc.SimpleMutation(ctx, `mutation Delete($id: ID!) { deletePost(id: $id) { id title } }`, record.FromPairs("id", "3"))
	require.NoError(t, err)
	deleted, ok := record.AsRecord(data.Value("deletePost"))
	require.True(t, ok)
	assert.Equal(t, "Draft", deleted.Value("title"))
	assert.Nil(t, h.data.Get("posts", "3"))
	assert.Empty(t, h.all(t, "posts"), "simple actions leave the store alone")

	_, err = h.svc.SimpleQuery(ctx, "query {", nil, false)
	var syntaxErr *builder.DocumentSyntaxError
	assert.True(t, errors.As(err, &syntaxErr))
}

func TestFetch_Errors(t *testing.T) {
	h := newHarness(t, schema.ModeNodes)
	_, err := h.svc.Fetch(context.Background(), "reviews", FetchParams{})
	var notFound *model.ModelNotFoundError
	assert.True(t, errors.As(err, &notFound))

	_, err = h.svc.Query(context.Background(), "posts", "draftPosts", QueryParams{Multiple: true})
	var missing *schema.SchemaQueryNotFoundError
	assert.True(t, errors.As(err, &missing))
}

func TestFetch_Span(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	tp.RegisterSpanProcessor(recorder)
	old := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(old)
	})

	h := newHarness(t, schema.ModeNodes)
	_, err := h.svc.Fetch(context.Background(), "users", FetchParams{})
	require.NoError(t, err)

	var found bool
	for _, span := range recorder.Ended() {
		if span.Name() != "gqlorm.fetch" {
			continue
		}
		found = true
		assert.Contains(t, span.Attributes(), attribute.String("gqlorm.entity", "users"))
		assert.Contains(t, span.Attributes(), attribute.String("gqlorm.outcome", "success"))
	}
	assert.True(t, found)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestBuildFetch_DoesNotExecute(t *testing.T) {
	h := newHarness(t, schema.ModeNodes)
	doc, err := h.svc.BuildFetch(context.Background(), "posts", FetchParams{Filter: record.FromPairs("title", "Vue")})
	require.NoError(t, err)
	assert.Equal(t, builder.KindQuery, doc.Kind)
	assert.Contains(t, doc.Text, "posts")
	assert.Empty(t, h.all(t, "posts"))
}
