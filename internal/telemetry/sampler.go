package telemetry

import (
	"github.com/stayfinder/go-stay-cache/internal/metrics"
	"github.com/stayfinder/go-stay-cache/internal/scheduler"
	"github.com/stayfinder/go-stay-cache/internal/store"
)

type sampler struct {
	collector *metrics.Collector
	store     *store.Store
	scheduler *scheduler.Scheduler
}

// snapshot holds cumulative counters (monotonic).
type snapshot struct {
	hits          int64
	misses        int64
	evictions     int64
	invalidations int64
	warms         int64
	errors        int64

	schedScans     int64
	schedHits      int64
	schedRefreshed int64
	schedRetries   int64
	schedFailed    int64
}

func (s sampler) snapshot() snapshot {
	m := s.collector.Snapshot(s.store.Len(), s.store.Mem(), nil)
	scans, hits, refreshed, retries, failed := s.scheduler.Metrics()

	return snapshot{
		hits:          m.Hits,
		misses:        m.Misses,
		evictions:     m.Evictions,
		invalidations: m.Invalidations,
		warms:         m.Warms,
		errors:        m.Errors,

		schedScans:     scans,
		schedHits:      hits,
		schedRefreshed: refreshed,
		schedRetries:   retries,
		schedFailed:    failed,
	}
}

// deltaSnapshot converts cumulative snapshots to per-interval deltas.
// If counters reset (cur < prev), it treats cur as the delta.
func deltaSnapshot(prev, cur snapshot) snapshot {
	return snapshot{
		hits:          delta(prev.hits, cur.hits),
		misses:        delta(prev.misses, cur.misses),
		evictions:     delta(prev.evictions, cur.evictions),
		invalidations: delta(prev.invalidations, cur.invalidations),
		warms:         delta(prev.warms, cur.warms),
		errors:        delta(prev.errors, cur.errors),

		schedScans:     delta(prev.schedScans, cur.schedScans),
		schedHits:      delta(prev.schedHits, cur.schedHits),
		schedRefreshed: delta(prev.schedRefreshed, cur.schedRefreshed),
		schedRetries:   delta(prev.schedRetries, cur.schedRetries),
		schedFailed:    delta(prev.schedFailed, cur.schedFailed),
	}
}

func delta(prev, cur int64) int64 {
	if cur >= prev {
		return cur - prev
	}
	return cur
}
