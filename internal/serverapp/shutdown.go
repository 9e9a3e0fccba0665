package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tablegraph/internal/logging"
)

// cleanupStack releases resources in reverse order of acquisition.
type cleanupStack struct {
	items []cleanupItem
}

type cleanupItem struct {
	name string
	fn   func(context.Context) error
}

func (s *cleanupStack) push(name string, fn func(context.Context) error) {
	s.items = append(s.items, cleanupItem{name: name, fn: fn})
}

// run calls every cleanup even when earlier ones fail and returns the
// failures joined.
func (s *cleanupStack) run(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(s.items) - 1; i >= 0; i-- {
		item := s.items[i]
		start := time.Now()
		err := item.fn(ctx)
		if err != nil {
			logger.Warn("cleanup failed",
				slog.String("component", item.name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", item.name, err))
			continue
		}
		logger.Debug("released "+item.name, slog.Duration("took", time.Since(start)))
	}
	return errors.Join(errs...)
}

// Shutdown releases everything Init acquired. Only the first call does work;
// later calls return nil.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.started = false
		a.stateMu.Unlock()

		err = cleanup.run(ctx, a.logger)
	})
	return err
}
