package schemacache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tablegraph/internal/logging"
	"tablegraph/internal/observability"
	"tablegraph/internal/store"
)

// Watcher polls table metadata and invalidates the cache when it changes.
// Polling backs off from MinInterval to MaxInterval while nothing changes.
type Watcher struct {
	cache       *Cache
	store       store.TableStore
	databases   []string
	minInterval time.Duration
	maxInterval time.Duration
	logger      *logging.Logger
	metrics     *observability.SchemaWatchMetrics

	fingerprint string
	wg          sync.WaitGroup
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Cache       *Cache
	Store       store.TableStore
	Databases   []string
	MinInterval time.Duration
	MaxInterval time.Duration
	Logger      *logging.Logger
	// Metrics is optional.
	Metrics *observability.SchemaWatchMetrics
}

// NewWatcher validates cfg and returns an idle watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Cache == nil || cfg.Store == nil {
		return nil, fmt.Errorf("schema watcher requires a cache and a store")
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}
	minInterval, maxInterval := cfg.MinInterval, cfg.MaxInterval
	if minInterval <= 0 {
		minInterval = 30 * time.Second
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}
	return &Watcher{
		cache:       cfg.Cache,
		store:       cfg.Store,
		databases:   append([]string(nil), cfg.Databases...),
		minInterval: minInterval,
		maxInterval: maxInterval,
		logger:      cfg.Logger.WithFields(slog.String("component", "schema_watcher")),
		metrics:     cfg.Metrics,
	}, nil
}

// Start records the current fingerprint and begins polling until ctx ends.
func (w *Watcher) Start(ctx context.Context) {
	fingerprint, err := Fingerprint(ctx, w.store, w.databases)
	if err != nil {
		w.logger.Warn("initial schema fingerprint failed", slog.String("error", err.Error()))
	}
	w.fingerprint = fingerprint

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()
}

// Wait blocks until the poll loop exits or ctx is done.
func (w *Watcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Watcher) loop(ctx context.Context) {
	interval := w.minInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("schema watcher stopped")
			return
		case <-timer.C:
			interval = w.poll(ctx, interval)
			timer.Reset(interval)
		}
	}
}

// poll checks once and returns the next interval.
func (w *Watcher) poll(ctx context.Context, interval time.Duration) time.Duration {
	start := time.Now()
	fingerprint, err := Fingerprint(ctx, w.store, w.databases)
	if err != nil {
		w.metrics.RecordCheck(ctx, time.Since(start), observability.SchemaCheckError)
		w.logger.Warn("schema fingerprint check failed", slog.String("error", err.Error()))
		return w.minInterval
	}
	if fingerprint == w.fingerprint {
		w.metrics.RecordCheck(ctx, time.Since(start), observability.SchemaCheckUnchanged)
		return nextInterval(interval, w.minInterval, w.maxInterval)
	}
	w.metrics.RecordCheck(ctx, time.Since(start), observability.SchemaCheckChanged)
	w.logger.Info("table metadata changed, invalidating compiled schemas",
		slog.String("previous", w.fingerprint),
		slog.String("current", fingerprint),
	)
	w.fingerprint = fingerprint
	w.cache.Invalidate()
	w.metrics.RecordInvalidation(ctx, observability.InvalidationTriggerWatch)
	return w.minInterval
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

// Fingerprint hashes the metadata of every table in databases.
func Fingerprint(ctx context.Context, st store.TableStore, databases []string) (string, error) {
	hash := sha256.New()
	enc := json.NewEncoder(hash)
	for _, db := range databases {
		tables, err := st.ListTables(ctx, db)
		if err != nil {
			return "", fmt.Errorf("list tables in %s: %w", db, err)
		}
		if err := enc.Encode(tables); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
