package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gqlorm/internal/logging"
)

// cleanupStack releases resources in the reverse order they were acquired.
type cleanupStack []cleanupStep

type cleanupStep struct {
	component string
	release   func(context.Context) error
}

func (s *cleanupStack) push(component string, release func(context.Context) error) {
	*s = append(*s, cleanupStep{component: component, release: release})
}

// run releases every step, even after failures, and returns the failures
// joined.
func (s cleanupStack) run(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(s) - 1; i >= 0; i-- {
		step := s[i]
		if logger != nil {
			logger.Debug("releasing " + step.component)
		}
		err := step.release(ctx)
		if err == nil {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", step.component, err))
		if logger != nil {
			logger.Warn("cleanup failed",
				slog.String("component", step.component),
				slog.String("error", err.Error()),
			)
		}
	}
	return errors.Join(errs...)
}

// Shutdown stops background work and releases everything Init and Start
// acquired. Later calls return the result of the first.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.cleanup = nil
		a.started = false
		a.stateMu.Unlock()

		a.shutdownErr = cleanup.run(ctx, a.logger)
	})
	return a.shutdownErr
}
