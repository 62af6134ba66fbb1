// Package staycache is a process-wide cache manager for marketplace UI data.
// It decides what to store, for how long, when to evict, when to proactively
// refresh, and how to invalidate related entries when a write occurs
// elsewhere. Callers supply loaders for reads and writers for mutations; the
// cache treats both as opaque producers of keyed byte payloads.
package staycache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/stayfinder/go-stay-cache/config"
	"github.com/stayfinder/go-stay-cache/internal/compress"
	"github.com/stayfinder/go-stay-cache/internal/events"
	"github.com/stayfinder/go-stay-cache/internal/invalidate"
	"github.com/stayfinder/go-stay-cache/internal/metrics"
	"github.com/stayfinder/go-stay-cache/internal/persist"
	"github.com/stayfinder/go-stay-cache/internal/scheduler"
	"github.com/stayfinder/go-stay-cache/internal/store"
	"github.com/stayfinder/go-stay-cache/internal/telemetry"
	"github.com/stayfinder/go-stay-cache/model"
)

// Pattern is a partial key matcher used to bulk-remove related entries after
// a write. See invalidate.Pattern.
type Pattern = invalidate.Pattern

type Cache struct {
	cls       context.CancelFunc
	cfg       *config.Config
	logger    *slog.Logger
	clock     clock.Clock
	policies  *model.PolicyRegistry
	bus       *events.Bus
	collector *metrics.Collector
	store     *store.Store
	engine    *invalidate.Engine
	sched     *scheduler.Scheduler
	logs      *telemetry.Logs
	backend   persist.Backend
	writer    *persist.Writer
	flight    singleflight.Group
}

// New wires the cache from config. Persistence failures at startup degrade
// the cache to memory-only rather than failing construction.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) *Cache {
	ctx, cancel := context.WithCancel(ctx)
	cfg.AdjustConfig()

	c := &Cache{
		cls:      cancel,
		cfg:      cfg,
		logger:   logger,
		clock:    clock.New(),
		policies: cfg.Registry(),
	}

	c.collector = metrics.New()
	c.bus = events.New(logger, c.collector.RecordListenerError)
	c.bus.AddListener(c.collector.Observe)

	level := 0
	if cfg.Compression.Enabled() {
		level = cfg.Compression.Level
	}
	codec := compress.New(level)

	if cfg.Persistence.Enabled() {
		backend, err := persist.OpenSQLite(cfg.Persistence.Path)
		if err != nil {
			logger.Error("cache persistence unavailable, running memory-only",
				"path", cfg.Persistence.Path, "err", err)
		} else {
			c.backend = backend
			c.writer = persist.NewWriter(ctx, backend, cfg.Persistence.QueueSize, c.onStorageError)
		}
	}

	c.store = store.New(c.clock, c.policies, codec, c.bus, logger, c.writer)
	c.sched = scheduler.New(ctx, cfg.Refresh, c.clock, logger, c.store, c.bus, &c.flight, cfg.LoaderTimeout)
	c.engine = invalidate.New(c.store, c.bus, c.clock, logger, c.sched.Forget)

	if c.backend != nil && cfg.Persistence.WarmStart {
		restored := c.store.RestoreFrom(ctx, c.backend)
		logger.Info("cache warm start completed", "restored", restored)
	}

	if cfg.Telemetry.Enabled() {
		c.logs = telemetry.New(ctx, logger, c.collector, c.store, c.sched, cfg.Telemetry.Interval)
	}

	return c
}

// GetOrLoad returns the cached fresh value, or invokes loader on a miss and
// stores the result. Concurrent calls for one key collapse into a single
// loader invocation. When the loader fails and a stale value is still inside
// the category's stale window, the stale value is returned and a background
// refresh is scheduled instead of surfacing the failure.
func (c *Cache) GetOrLoad(ctx context.Context, key model.Key, loader model.Loader) ([]byte, error) {
	payload, status := c.store.Get(key)
	if status == store.StatusFresh {
		c.trackRefetch(key, loader)
		return payload, nil
	}
	stalePayload, hasStale := payload, status == store.StatusStale

	v, err, _ := c.flight.Do(key.Canonical(), func() (any, error) {
		p, loadErr := c.runLoader(ctx, loader)
		if loadErr != nil {
			return nil, loadErr
		}
		c.store.Set(key, p)
		return p, nil
	})
	if err != nil {
		if hasStale {
			c.sched.Schedule(key, loader)
			return stalePayload, nil
		}
		return nil, err
	}

	c.trackRefetch(key, loader)
	return v.([]byte), nil
}

// Mutate runs writer against the external system of record and, only on
// success, invalidates every entry matching the given patterns. A failed
// write never invalidates: the cache still reflects the true external state.
func (c *Cache) Mutate(ctx context.Context, writer model.Writer, patterns ...Pattern) (any, error) {
	res, err := writer(ctx)
	if err != nil {
		return nil, err
	}
	if len(patterns) > 0 {
		c.engine.InvalidateMany(patterns)
	}
	return res, nil
}

// Warm schedules a background load when the key is missing or stale. Never
// blocks and never surfaces loader failures to the caller.
func (c *Cache) Warm(key model.Key, loader model.Loader) {
	if c.store.Peek(key) == store.StatusFresh {
		return
	}
	c.sched.Schedule(key, loader)
	c.trackRefetch(key, loader)
}

// Invalidate removes entries matching the pattern and returns the count.
func (c *Cache) Invalidate(p Pattern) int {
	return c.engine.Invalidate(p)
}

// InvalidateMany removes the union of matches; each key removed at most once.
func (c *Cache) InvalidateMany(patterns []Pattern) int {
	return c.engine.InvalidateMany(patterns)
}

// Delete removes one key and stops any background refresh tracking it.
func (c *Cache) Delete(key model.Key) bool {
	c.sched.Forget(key)
	return c.store.Delete(key)
}

// Metrics returns a read-only counters snapshot for monitoring collaborators.
func (c *Cache) Metrics() model.MetricsSnapshot {
	return c.collector.Snapshot(c.store.Len(), c.store.Mem(), c.store)
}

// AddListener registers an event listener; the token removes it again.
func (c *Cache) AddListener(fn events.Listener) uint64 { return c.bus.AddListener(fn) }

func (c *Cache) RemoveListener(id uint64) { c.bus.RemoveListener(id) }

func (c *Cache) Len() int64 { return c.store.Len() }
func (c *Cache) Mem() int64 { return c.store.Mem() }

func (c *Cache) Close() error {
	c.cls()
	if c.writer != nil {
		c.writer.Wait()
	}
	if c.backend != nil {
		return c.backend.Close()
	}
	return nil
}

/**
 * Private API.
 */

func (c *Cache) runLoader(ctx context.Context, loader model.Loader) ([]byte, error) {
	lctx, cancel := context.WithTimeout(ctx, c.cfg.LoaderTimeout)
	defer cancel()

	payload, err := loader(lctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", model.ErrLoaderTimeout, err)
		}
		return nil, err
	}
	return payload, nil
}

// trackRefetch registers periodic proactive refresh for categories with a
// refetch interval configured.
func (c *Cache) trackRefetch(key model.Key, loader model.Loader) {
	if interval := c.policies.Lookup(key.Category()).RefetchInterval; interval > 0 {
		c.sched.Track(key, loader, interval)
	}
}

func (c *Cache) onStorageError(canonical string, err error) {
	c.bus.Publish(model.Event{
		Type: model.EventError, Key: canonical, At: c.clock.Now(),
		Err: fmt.Errorf("storage backend: %w", err),
	})
}
