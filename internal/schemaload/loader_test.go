package schemaload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gqlorm/internal/logging"
	"gqlorm/internal/model"
	"gqlorm/internal/naming"
	"gqlorm/internal/record"
	"gqlorm/internal/schema"
	"gqlorm/internal/testutil/gqlfixture"
	"gqlorm/internal/transport"
)

type fakeExecutor struct {
	mu       sync.Mutex
	calls    int
	payloads [][]byte
	errs     []error
	gate     chan struct{}
	useCache []bool
}

func (f *fakeExecutor) Execute(_ context.Context, _ *ast.Document, _ *record.Record, opts transport.ExecuteOptions) (*record.Record, error) {
	f.mu.Lock()
	n := f.calls
	f.calls++
	f.useCache = append(f.useCache, opts.UseCache)
	f.mu.Unlock()

	if f.gate != nil {
		<-f.gate
	}
	if n < len(f.errs) && f.errs[n] != nil {
		return nil, f.errs[n]
	}
	payload, err := record.DecodeObject(f.payloads[min(n, len(f.payloads)-1)])
	if err != nil {
		return nil, err
	}
	data, _ := record.AsRecord(payload.Value("data"))
	return data, nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() *logging.Logger {
	return &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func introspectionPayload(t *testing.T, mode schema.ConnectionMode) []byte {
	t.Helper()
	payload, err := gqlfixture.IntrospectionJSON(mode)
	require.NoError(t, err)
	return payload
}

func newTestLoader(t *testing.T, exec transport.Executor, reg *model.Registry, mode schema.ConnectionMode) *Loader {
	t.Helper()
	if reg == nil {
		var err error
		reg, err = gqlfixture.NewRegistry()
		require.NoError(t, err)
	}
	loader, err := NewLoader(Config{Executor: exec, Registry: reg, Mode: mode, Logger: testLogger()})
	require.NoError(t, err)
	return loader
}

func TestLoad_AgainstServer(t *testing.T) {
	srv, err := gqlfixture.NewServer(schema.ModeEdges, gqlfixture.NewData())
	require.NoError(t, err)
	defer srv.Close()

	client, err := transport.New(transport.Config{URL: srv.URL})
	require.NoError(t, err)
	reg, err := gqlfixture.NewRegistry()
	require.NoError(t, err)
	loader := newTestLoader(t, client, reg, schema.ModeAuto)

	assert.Equal(t, "not_started", loader.State())
	assert.Nil(t, loader.CurrentSnapshot())

	snapshot, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schema.ModeEdges, snapshot.Mode)
	assert.NotEmpty(t, snapshot.Fingerprint)
	assert.False(t, snapshot.LoadedAt.IsZero())
	assert.True(t, reg.Processed())
	assert.Equal(t, "loaded", loader.State())
	assert.Same(t, snapshot, loader.CurrentSnapshot())

	_, err = snapshot.Index.GetQuery("posts", false)
	assert.NoError(t, err)
}

func TestLoad_ConcurrentCallersShareOneIntrospection(t *testing.T) {
	exec := &fakeExecutor{
		payloads: [][]byte{introspectionPayload(t, schema.ModeNodes)},
		gate:     make(chan struct{}),
	}
	loader := newTestLoader(t, exec, nil, schema.ModeAuto)

	const callers = 8
	var wg sync.WaitGroup
	snapshots := make([]*Snapshot, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snapshots[i], errs[i] = loader.Load(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return loader.State() == "loading" }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(exec.gate)
	wg.Wait()

	assert.Equal(t, 1, exec.callCount())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, snapshots[0], snapshots[i])
	}
	assert.Equal(t, []bool{false}, exec.useCache)

	again, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, snapshots[0], again)
	assert.Equal(t, 1, exec.callCount())
}

func TestLoad_FailureResetsCell(t *testing.T) {
	boom := errors.New("connection refused")
	exec := &fakeExecutor{
		payloads: [][]byte{introspectionPayload(t, schema.ModeNodes)},
		errs:     []error{boom},
	}
	reg, err := gqlfixture.NewRegistry()
	require.NoError(t, err)
	loader := newTestLoader(t, exec, reg, schema.ModeAuto)

	_, err = loader.Load(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "not_started", loader.State())
	assert.False(t, reg.Processed())

	snapshot, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schema.ModeNodes, snapshot.Mode)
	assert.Equal(t, 2, exec.callCount())
	assert.True(t, reg.Processed())
}

func TestLoad_WaiterHonorsContext(t *testing.T) {
	exec := &fakeExecutor{
		payloads: [][]byte{introspectionPayload(t, schema.ModeNodes)},
		gate:     make(chan struct{}),
	}
	loader := newTestLoader(t, exec, nil, schema.ModeAuto)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = loader.Load(context.Background())
	}()
	require.Eventually(t, func() bool { return loader.State() == "loading" }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := loader.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(exec.gate)
	<-done
	assert.Equal(t, "loaded", loader.State())
}

func TestLoad_ReconcilesSkipFields(t *testing.T) {
	decls := gqlfixture.Declarations()
	for i := range decls {
		if decls[i].Entity == "posts" {
			decls[i].Fields = append(decls[i].Fields, model.FieldDeclaration{Name: "subtitle", Type: "string"})
		}
	}
	decls = append(decls, model.Declaration{
		Entity: "tags",
		Fields: []model.FieldDeclaration{{Name: "id", Type: "increment"}, {Name: "label", Type: "string"}},
	})
	reg := model.NewRegistry(naming.Default(), nil)
	require.NoError(t, reg.RegisterDeclarations(decls))

	exec := &fakeExecutor{payloads: [][]byte{introspectionPayload(t, schema.ModeNodes)}}
	loader := newTestLoader(t, exec, reg, schema.ModeAuto)
	_, err := loader.Load(context.Background())
	require.NoError(t, err)

	post, err := reg.Get("post")
	require.NoError(t, err)
	assert.Equal(t, []string{"subtitle"}, post.SkippedFields())
	assert.NotContains(t, post.GetQueryFields(), "subtitle")
	assert.True(t, post.SkipField("subtitle"))

	tag, err := reg.Get("tag")
	require.NoError(t, err)
	assert.Empty(t, tag.SkippedFields())
}

func TestLoad_ConfiguredModeWins(t *testing.T) {
	exec := &fakeExecutor{payloads: [][]byte{introspectionPayload(t, schema.ModeNodes)}}
	loader := newTestLoader(t, exec, nil, schema.ModePlain)

	snapshot, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schema.ModePlain, snapshot.Mode)
}

func TestRefreshNow(t *testing.T) {
	exec := &fakeExecutor{payloads: [][]byte{
		introspectionPayload(t, schema.ModeNodes),
		introspectionPayload(t, schema.ModeNodes),
		introspectionPayload(t, schema.ModeEdges),
	}}
	loader := newTestLoader(t, exec, nil, schema.ModeAuto)
	ctx := context.Background()

	first, err := loader.Load(ctx)
	require.NoError(t, err)

	changed, err := loader.RefreshNow(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Same(t, first, loader.CurrentSnapshot())

	changed, err = loader.RefreshNow(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, schema.ModeEdges, loader.CurrentSnapshot().Mode)
	assert.NotEqual(t, first.Fingerprint, loader.CurrentSnapshot().Fingerprint)
}

func TestStartStopsWithContext(t *testing.T) {
	exec := &fakeExecutor{payloads: [][]byte{introspectionPayload(t, schema.ModeNodes)}}
	loader := newTestLoader(t, exec, nil, schema.ModeAuto)

	ctx, cancel := context.WithCancel(context.Background())
	loader.Start(ctx)
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	assert.NoError(t, loader.Wait(waitCtx))
}

func TestNextInterval(t *testing.T) {
	minInterval := 10 * time.Second
	maxInterval := 30 * time.Second

	assert.Equal(t, minInterval, nextInterval(time.Second, minInterval, maxInterval))
	assert.Equal(t, 15*time.Second, nextInterval(minInterval, minInterval, maxInterval))
	assert.Equal(t, maxInterval, nextInterval(25*time.Second, minInterval, maxInterval))
}

func TestNewLoader_Validation(t *testing.T) {
	_, err := NewLoader(Config{})
	assert.Error(t, err)

	_, err = NewLoader(Config{Executor: &fakeExecutor{}})
	assert.Error(t, err)
}
