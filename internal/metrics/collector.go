// Package metrics aggregates cache lifecycle events into process-wide and
// per-category counters. The collector is passive: it observes events and
// never mutates cache state.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/stayfinder/go-stay-cache/model"
)

// slowOpCapacity is the size of the slowest-operations ring.
const slowOpCapacity = 32

type categoryCounters struct {
	hits          atomic.Int64
	misses        atomic.Int64
	evictions     atomic.Int64
	invalidations atomic.Int64
}

type Collector struct {
	hits           atomic.Int64
	misses         atomic.Int64
	evictions      atomic.Int64
	invalidations  atomic.Int64
	warms          atomic.Int64
	errors         atomic.Int64
	listenerErrors atomic.Int64

	catMu sync.RWMutex
	cats  map[model.Category]*categoryCounters

	slowMu sync.Mutex
	slow   []model.SlowOp
}

func New() *Collector {
	return &Collector{
		cats: make(map[model.Category]*categoryCounters),
		slow: make([]model.SlowOp, 0, slowOpCapacity),
	}
}

// Observe consumes one lifecycle event. Registered as the first bus listener
// so counters reflect every event regardless of user listeners.
func (c *Collector) Observe(ev model.Event) {
	switch ev.Type {
	case model.EventHit:
		c.hits.Add(1)
		c.category(ev.Category).hits.Add(1)
	case model.EventMiss:
		c.misses.Add(1)
		c.category(ev.Category).misses.Add(1)
	case model.EventEvict:
		c.evictions.Add(1)
		c.category(ev.Category).evictions.Add(1)
	case model.EventInvalidate:
		c.invalidations.Add(1)
		c.category(ev.Category).invalidations.Add(1)
	case model.EventWarm:
		c.warms.Add(1)
	case model.EventError:
		c.errors.Add(1)
	}

	if ev.Duration > 0 {
		c.recordSlow(ev)
	}
}

// RecordListenerError counts one contained listener failure.
func (c *Collector) RecordListenerError() {
	c.listenerErrors.Add(1)
	c.errors.Add(1)
}

func (c *Collector) category(cat model.Category) *categoryCounters {
	c.catMu.RLock()
	cc, ok := c.cats[cat]
	c.catMu.RUnlock()
	if ok {
		return cc
	}

	c.catMu.Lock()
	defer c.catMu.Unlock()
	if cc, ok = c.cats[cat]; ok {
		return cc
	}
	cc = &categoryCounters{}
	c.cats[cat] = cc
	return cc
}

// recordSlow keeps the slowest operations seen so far, replacing the current
// fastest once the ring is full.
func (c *Collector) recordSlow(ev model.Event) {
	op := model.SlowOp{Key: ev.Key, Op: ev.Type, Duration: ev.Duration, At: ev.At}

	c.slowMu.Lock()
	defer c.slowMu.Unlock()

	if len(c.slow) < slowOpCapacity {
		c.slow = append(c.slow, op)
		return
	}

	fastest := 0
	for i := 1; i < len(c.slow); i++ {
		if c.slow[i].Duration < c.slow[fastest].Duration {
			fastest = i
		}
	}
	if op.Duration > c.slow[fastest].Duration {
		c.slow[fastest] = op
	}
}

// CategoryUsage supplies live entry counts and sizes at snapshot time.
// Implemented by the entry store.
type CategoryUsage interface {
	CategoryStats() map[model.Category]model.CategoryStats
}

// Snapshot returns a consistent read-only view. entryCount and sizeBytes
// are the store's current gauges; usage fills per-category gauges.
func (c *Collector) Snapshot(entryCount, sizeBytes int64, usage CategoryUsage) model.MetricsSnapshot {
	hits, misses := c.hits.Load(), c.misses.Load()

	snap := model.MetricsSnapshot{
		Hits:           hits,
		Misses:         misses,
		Evictions:      c.evictions.Load(),
		Invalidations:  c.invalidations.Load(),
		Warms:          c.warms.Load(),
		Errors:         c.errors.Load(),
		ListenerErrors: c.listenerErrors.Load(),
		EntryCount:     entryCount,
		TotalSizeBytes: sizeBytes,
		PerCategory:    make(map[model.Category]model.CategoryMetrics),
	}
	if total := hits + misses; total > 0 {
		snap.HitRate = float64(hits) / float64(total)
	}

	c.catMu.RLock()
	for cat, cc := range c.cats {
		snap.PerCategory[cat] = model.CategoryMetrics{
			Hits:          cc.hits.Load(),
			Misses:        cc.misses.Load(),
			Evictions:     cc.evictions.Load(),
			Invalidations: cc.invalidations.Load(),
		}
	}
	c.catMu.RUnlock()

	if usage != nil {
		for cat, st := range usage.CategoryStats() {
			cm := snap.PerCategory[cat]
			cm.EntryCount = st.EntryCount
			cm.SizeBytes = st.SizeBytes
			snap.PerCategory[cat] = cm
		}
	}

	c.slowMu.Lock()
	snap.SlowOps = append([]model.SlowOp(nil), c.slow...)
	c.slowMu.Unlock()

	return snap
}
