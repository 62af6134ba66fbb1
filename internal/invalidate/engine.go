package invalidate

import (
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/stayfinder/go-stay-cache/internal/events"
	"github.com/stayfinder/go-stay-cache/internal/store"
	"github.com/stayfinder/go-stay-cache/model"
)

type Engine struct {
	store  *store.Store
	bus    *events.Bus
	clock  clock.Clock
	logger *slog.Logger
	forget func(model.Key) // stops background refresh of removed keys
}

func New(st *store.Store, bus *events.Bus, clk clock.Clock, logger *slog.Logger, forget func(model.Key)) *Engine {
	if forget == nil {
		forget = func(model.Key) {}
	}
	return &Engine{store: st, bus: bus, clock: clk, logger: logger, forget: forget}
}

// Invalidate removes every live entry matching the pattern and returns the
// count removed.
func (e *Engine) Invalidate(p Pattern) int {
	return e.InvalidateMany([]Pattern{p})
}

// InvalidateMany removes the union of matches across patterns; each key is
// removed at most once. The walk runs over a snapshot of live entries and
// re-checks entry identity before deleting, so a set that lands after the
// snapshot survives patterns that predate it.
func (e *Engine) InvalidateMany(patterns []Pattern) int {
	if len(patterns) == 0 {
		return 0
	}
	start := e.clock.Now()

	var matched []*store.Entry
	seen := make(map[string]struct{})
	e.store.Iterate(func(ent *store.Entry) bool {
		key := ent.Key()
		if _, dup := seen[key.Canonical()]; dup {
			return true
		}
		for _, p := range patterns {
			if p.Matches(key) {
				seen[key.Canonical()] = struct{}{}
				matched = append(matched, ent)
				break
			}
		}
		return true
	})

	removed := 0
	for _, ent := range matched {
		if !e.store.CompareAndDelete(ent) {
			// replaced or already gone since the snapshot
			continue
		}
		removed++
		e.forget(ent.Key())
		e.bus.Publish(model.Event{
			Type: model.EventInvalidate, Key: ent.Key().Canonical(),
			Category: ent.Key().Category(), At: start, Size: ent.SizeBytes(),
		})
	}

	if removed > 0 {
		e.logger.Debug("cache invalidation completed",
			"patterns", len(patterns), "removed", removed,
			"took", e.clock.Since(start).String())
	}
	return removed
}
