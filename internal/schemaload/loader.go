// Package schemaload introspects the GraphQL endpoint once, reconciles the
// registered models with the live schema and hands every caller the same
// snapshot.
package schemaload

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gqlorm/internal/gqlrequest"
	"gqlorm/internal/introspection"
	"gqlorm/internal/logging"
	"gqlorm/internal/model"
	"gqlorm/internal/observability"
	"gqlorm/internal/schema"
	"gqlorm/internal/transport"
)

// Snapshot is an immutable view of one introspection result.
type Snapshot struct {
	Index       *schema.Index
	Mode        schema.ConnectionMode
	Fingerprint string
	LoadedAt    time.Time
}

// Config controls schema loading.
type Config struct {
	Executor transport.Executor
	Registry *model.Registry
	// Mode overrides connection mode detection unless empty or auto.
	Mode    schema.ConnectionMode
	Logger  *logging.Logger
	Metrics *observability.SchemaLoadMetrics
	// MinInterval and MaxInterval bound the background refresh backoff.
	MinInterval time.Duration
	MaxInterval time.Duration
}

type loadState int

const (
	stateNotStarted loadState = iota
	stateLoading
	stateLoaded
)

func (s loadState) String() string {
	switch s {
	case stateLoading:
		return "loading"
	case stateLoaded:
		return "loaded"
	default:
		return "not_started"
	}
}

type pendingLoad struct {
	done     chan struct{}
	snapshot *Snapshot
	err      error
}

// Loader is a single-assignment cell for the schema snapshot. Concurrent
// callers of Load share one introspection round trip; a failed load
// resets the cell so a later call retries.
type Loader struct {
	executor    transport.Executor
	registry    *model.Registry
	mode        schema.ConnectionMode
	logger      *logging.Logger
	metrics     *observability.SchemaLoadMetrics
	minInterval time.Duration
	maxInterval time.Duration

	mu       sync.Mutex
	state    loadState
	pending  *pendingLoad
	snapshot *Snapshot
	wg       sync.WaitGroup
}

// NewLoader creates a loader. Nothing is fetched until Load is called.
func NewLoader(cfg Config) (*Loader, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("schema loader requires an executor")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("schema loader requires a model registry")
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}

	minInterval := cfg.MinInterval
	maxInterval := cfg.MaxInterval
	if minInterval <= 0 {
		minInterval = 30 * time.Second
	}
	if maxInterval <= 0 {
		maxInterval = 5 * time.Minute
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}

	return &Loader{
		executor:    cfg.Executor,
		registry:    cfg.Registry,
		mode:        cfg.Mode,
		logger:      cfg.Logger.WithFields(slog.String("component", "schema_load")),
		metrics:     cfg.Metrics,
		minInterval: minInterval,
		maxInterval: maxInterval,
	}, nil
}

// Load returns the snapshot, introspecting on first use.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	l.mu.Lock()
	switch l.state {
	case stateLoaded:
		snapshot := l.snapshot
		l.mu.Unlock()
		return snapshot, nil
	case stateLoading:
		pending := l.pending
		l.mu.Unlock()
		select {
		case <-pending.done:
			return pending.snapshot, pending.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	pending := &pendingLoad{done: make(chan struct{})}
	l.pending = pending
	l.state = stateLoading
	l.mu.Unlock()

	snapshot, err := l.load(ctx, "startup")

	l.mu.Lock()
	if err != nil {
		l.state = stateNotStarted
	} else {
		l.state = stateLoaded
		l.snapshot = snapshot
	}
	l.pending = nil
	pending.snapshot, pending.err = snapshot, err
	close(pending.done)
	l.mu.Unlock()

	return snapshot, err
}

// CurrentSnapshot returns the loaded snapshot or nil.
func (l *Loader) CurrentSnapshot() *Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot
}

// State reports the cell state: not_started, loading or loaded.
func (l *Loader) State() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.String()
}

// RefreshNow introspects again and swaps the snapshot when the schema
// changed. Skip fields are reconciled only on the first load, so a changed
// schema that drops declared fields needs a restart to take effect.
func (l *Loader) RefreshNow(ctx context.Context) (changed bool, err error) {
	current, err := l.Load(ctx)
	if err != nil {
		return false, err
	}

	next, err := l.load(ctx, "refresh")
	if err != nil {
		return false, err
	}
	if next.Fingerprint == current.Fingerprint {
		return false, nil
	}

	l.mu.Lock()
	l.snapshot = next
	l.mu.Unlock()
	l.logger.Info("schema change detected",
		slog.String("fingerprint", next.Fingerprint),
		slog.String("previous_fingerprint", current.Fingerprint),
		slog.String("connection_mode", string(next.Mode)),
	)
	return true, nil
}

// Start polls for schema changes in the background until ctx is done.
func (l *Loader) Start(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.refreshLoop(ctx)
	}()
}

// Wait blocks until the refresh loop exits or the context is canceled.
func (l *Loader) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loader) refreshLoop(ctx context.Context) {
	interval := l.minInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("schema refresh stopped")
			return
		case <-timer.C:
			changed, err := l.RefreshNow(ctx)
			switch {
			case err != nil:
				l.logger.Warn("schema refresh failed", slog.String("error", err.Error()))
				interval = l.minInterval
			case changed:
				interval = l.minInterval
			default:
				interval = nextInterval(interval, l.minInterval, l.maxInterval)
			}
			timer.Reset(interval)
		}
	}
}

func (l *Loader) load(ctx context.Context, trigger string) (snapshot *Snapshot, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "schema.load")
	defer func() { observability.FinishSpan(span, err) }()

	mode := l.mode
	defer func() {
		l.metrics.RecordLoad(ctx, time.Since(start), err == nil, string(mode))
	}()

	doc, err := gqlrequest.Parse(introspection.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse introspection query: %w", err)
	}
	data, err := l.executor.Execute(ctx, doc, nil, transport.ExecuteOptions{UseCache: false})
	if err != nil {
		return nil, fmt.Errorf("introspection request failed: %w", err)
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode introspection result: %w", err)
	}
	index, err := schema.Load(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to index schema: %w", err)
	}

	if mode == "" || mode == schema.ModeAuto {
		mode, err = index.DetermineQueryMode()
		if err != nil {
			return nil, err
		}
	}

	if !l.registry.Processed() {
		if err := l.process(index); err != nil {
			return nil, err
		}
	}

	l.logger.Debug("schema loaded",
		slog.String("trigger", trigger),
		slog.String("fingerprint", index.Fingerprint()),
		slog.String("connection_mode", string(mode)),
		slog.Duration("duration", time.Since(start)),
	)
	return &Snapshot{
		Index:       index,
		Mode:        mode,
		Fingerprint: index.Fingerprint(),
		LoadedAt:    time.Now(),
	}, nil
}

// process drops every declared attribute the live schema lacks and moves
// the registry to the processed state.
func (l *Loader) process(index *schema.Index) error {
	skip := make(map[string][]string)
	for _, m := range l.registry.Models() {
		t, err := index.GetType(m.SingularName(), true)
		if err != nil {
			return err
		}
		if t == nil {
			l.logger.Warn("model has no type in the graphql schema, it will never be queried",
				slog.String("model", m.SingularName()),
			)
			continue
		}
		for _, f := range m.Fields() {
			if f.IsAttribute() && !t.HasField(f.Name) {
				skip[m.SingularName()] = append(skip[m.SingularName()], f.Name)
			}
		}
		if fields := skip[m.SingularName()]; len(fields) > 0 {
			l.logger.Debug("skipping fields missing from schema",
				slog.String("model", m.SingularName()),
				slog.Any("fields", fields),
			)
		}
	}
	return l.registry.ApplySkipFields(skip)
}

func nextInterval(current, minInterval, maxInterval time.Duration) time.Duration {
	if current < minInterval {
		return minInterval
	}
	next := current + current/2
	if next > maxInterval {
		return maxInterval
	}
	return next
}
