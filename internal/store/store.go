// Package store is the entry store: the single shared mutable resource of
// the cache. It owns entry storage, freshness decisions, per-category LRU
// eviction and the optional write-behind persistence.
package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/stayfinder/go-stay-cache/internal/compress"
	"github.com/stayfinder/go-stay-cache/internal/events"
	"github.com/stayfinder/go-stay-cache/internal/persist"
	"github.com/stayfinder/go-stay-cache/model"
)

// Status classifies a lookup result. Stale means past hard expiry but still
// inside the category's stale window; such a payload is returned only so
// callers that opt in can serve it while a refresh runs.
type Status int

const (
	StatusMiss Status = iota
	StatusFresh
	StatusStale
)

type Store struct {
	clock    clock.Clock
	policies *model.PolicyRegistry
	codec    *compress.Codec
	bus      *events.Bus
	logger   *slog.Logger
	writer   *persist.Writer // nil when persistence is disabled

	shards [shardCount]*shard

	catMu sync.RWMutex
	cats  map[model.Category]*catState

	len atomic.Int64
	mem atomic.Int64
}

func New(clk clock.Clock, policies *model.PolicyRegistry, codec *compress.Codec, bus *events.Bus, logger *slog.Logger, writer *persist.Writer) *Store {
	s := &Store{
		clock:    clk,
		policies: policies,
		codec:    codec,
		bus:      bus,
		logger:   logger,
		writer:   writer,
		cats:     make(map[model.Category]*catState),
	}
	for i := range s.shards {
		s.shards[i] = newShard()
	}
	return s
}

// Get returns the stored payload and its freshness. Expired entries past the
// stale window are removed and reported as a miss. The payload is returned
// decompressed regardless of how it is stored.
func (s *Store) Get(key model.Key) ([]byte, Status) {
	start := s.clock.Now()

	e, ok := s.lookup(key)
	if !ok {
		s.publish(model.Event{Type: model.EventMiss, Key: key.Canonical(), Category: key.Category(), At: start})
		return nil, StatusMiss
	}

	pol := s.policies.Lookup(key.Category())
	now := start.UnixNano()
	if now > e.expiresAt()+int64(pol.StaleWindow) {
		s.expire(e)
		s.publish(model.Event{Type: model.EventMiss, Key: key.Canonical(), Category: key.Category(), At: start})
		return nil, StatusMiss
	}

	payload, err := s.materialize(e)
	if err != nil {
		// Corrupt stored payload: drop it and treat the lookup as a miss.
		s.logger.Error("cache payload decompression failed", "key", key.Canonical(), "err", err)
		s.expire(e)
		s.publish(model.Event{Type: model.EventError, Key: key.Canonical(), Category: key.Category(), At: start, Err: err})
		s.publish(model.Event{Type: model.EventMiss, Key: key.Canonical(), Category: key.Category(), At: start})
		return nil, StatusMiss
	}

	e.touch(start)
	cs := s.cat(key.Category())
	cs.mu.Lock()
	cs.touch(key.Hash())
	cs.mu.Unlock()

	if now > e.expiresAt() {
		// Inside the stale window: the value is usable as fallback only, so
		// the lookup still counts as a miss.
		s.publish(model.Event{Type: model.EventMiss, Key: key.Canonical(), Category: key.Category(), At: start})
		return payload, StatusStale
	}

	s.publish(model.Event{
		Type: model.EventHit, Key: key.Canonical(), Category: key.Category(),
		At: start, Duration: s.clock.Since(start), Size: e.SizeBytes(),
	})
	return payload, StatusFresh
}

// Peek classifies a key without touching recency, counters or events. Used
// by the scheduler to decide whether a warm or refresh is still needed.
func (s *Store) Peek(key model.Key) Status {
	e, ok := s.lookup(key)
	if !ok {
		return StatusMiss
	}
	pol := s.policies.Lookup(key.Category())
	now := s.clock.Now().UnixNano()
	switch {
	case now > e.expiresAt()+int64(pol.StaleWindow):
		return StatusMiss
	case now > e.expiresAt():
		return StatusStale
	default:
		return StatusFresh
	}
}

// Set stores payload under key, compressing above the category threshold and
// evicting per-category LRU victims when at capacity. Storage-medium
// failures degrade the entry to memory-only; Set itself never fails.
func (s *Store) Set(key model.Key, payload []byte) {
	start := s.clock.Now()
	pol := s.policies.Lookup(key.Category())

	stored, compressed := s.maybeCompress(key, payload, pol)
	e := newEntry(key, stored, compressed, start, pol.TTL)

	hash := key.Hash()
	sh := s.shard(hash)
	cs := s.cat(key.Category())

	var victims []*Entry
	cs.mu.Lock()
	if old, ok := sh.get(hash); ok && old.Key().Equal(key) {
		sh.set(hash, e)
		s.mem.Add(cs.replace(hash, e))
	} else {
		if pol.MaxEntries > 0 {
			victims = s.evictLocked(cs, pol.MaxEntries)
		}
		sh.set(hash, e)
		cs.insert(hash, e)
		s.len.Add(1)
		s.mem.Add(e.SizeBytes())
	}
	cs.mu.Unlock()

	for _, victim := range victims {
		if s.writer != nil {
			s.writer.Delete(victim.Key().Canonical())
		}
		s.publish(model.Event{
			Type: model.EventEvict, Key: victim.Key().Canonical(),
			Category: victim.Key().Category(), At: start, Size: victim.SizeBytes(),
		})
	}

	s.writeBehind(e)

	s.publish(model.Event{
		Type: model.EventSet, Key: key.Canonical(), Category: key.Category(),
		At: start, Duration: s.clock.Since(start), Size: e.SizeBytes(),
	})
}

// Delete removes the key if present.
func (s *Store) Delete(key model.Key) bool {
	e, ok := s.lookup(key)
	if !ok {
		return false
	}
	if !s.detach(e) {
		return false
	}
	s.publish(model.Event{Type: model.EventDelete, Key: key.Canonical(), Category: key.Category(), At: s.clock.Now()})
	return true
}

// CompareAndDelete removes e only while it is still the live entry for its
// key. A set that landed after the caller snapshotted e wins and survives.
func (s *Store) CompareAndDelete(e *Entry) bool {
	return s.detach(e)
}

// Iterate walks a point-in-time snapshot of live entries without holding any
// lock across the traversal. fn returning false stops the walk.
func (s *Store) Iterate(fn func(e *Entry) bool) {
	for _, sh := range s.shards {
		for _, e := range sh.snapshot() {
			if !fn(e) {
				return
			}
		}
	}
}

// IsExpired reports hard expiry per the entry's captured TTL.
func (s *Store) IsExpired(e *Entry) bool {
	return s.clock.Now().UnixNano() > e.expiresAt()
}

// IsStale reports expiry inside the category's stale window.
func (s *Store) IsStale(e *Entry) bool {
	pol := s.policies.Lookup(e.Key().Category())
	now := s.clock.Now().UnixNano()
	return now > e.expiresAt() && now <= e.expiresAt()+int64(pol.StaleWindow)
}

func (s *Store) Len() int64 { return s.len.Load() }
func (s *Store) Mem() int64 { return s.mem.Load() }

// CategoryStats reports live usage gauges per category.
func (s *Store) CategoryStats() map[model.Category]model.CategoryStats {
	s.catMu.RLock()
	defer s.catMu.RUnlock()

	out := make(map[model.Category]model.CategoryStats, len(s.cats))
	for cat, cs := range s.cats {
		cs.mu.Lock()
		out[cat] = model.CategoryStats{EntryCount: int64(cs.count()), SizeBytes: cs.bytes}
		cs.mu.Unlock()
	}
	return out
}

// RestoreFrom reloads unexpired records from the backend at startup.
// Restored entries keep their original creation time so TTLs survive a
// restart; records past their stale window are skipped.
func (s *Store) RestoreFrom(ctx context.Context, backend persist.Backend) (restored int) {
	err := backend.Restore(ctx, func(canonical string, rec persist.Record) bool {
		key, err := rec.Key()
		if err != nil {
			s.logger.Warn("skipping unrestorable cache record", "key", canonical, "err", err)
			return true
		}
		pol := s.policies.Lookup(key.Category())
		e := newEntry(key, rec.Payload, rec.Compressed, rec.CreatedAt, rec.TTL)
		if s.clock.Now().UnixNano() > e.expiresAt()+int64(pol.StaleWindow) {
			return true
		}

		hash := key.Hash()
		cs := s.cat(key.Category())
		cs.mu.Lock()
		if pol.MaxEntries > 0 && cs.count() >= pol.MaxEntries {
			cs.mu.Unlock()
			return true
		}
		s.shard(hash).set(hash, e)
		cs.insert(hash, e)
		s.len.Add(1)
		s.mem.Add(e.SizeBytes())
		cs.mu.Unlock()

		restored++
		return true
	})
	if err != nil {
		s.logger.Error("cache warm start failed", "err", err)
	}
	return restored
}

/**
 * Private API.
 */

func (s *Store) shard(hash uint64) *shard { return s.shards[hash%shardCount] }

func (s *Store) cat(c model.Category) *catState {
	s.catMu.RLock()
	cs, ok := s.cats[c]
	s.catMu.RUnlock()
	if ok {
		return cs
	}

	s.catMu.Lock()
	defer s.catMu.Unlock()
	if cs, ok = s.cats[c]; ok {
		return cs
	}
	cs = newCatState()
	s.cats[c] = cs
	return cs
}

func (s *Store) lookup(key model.Key) (*Entry, bool) {
	e, ok := s.shard(key.Hash()).get(key.Hash())
	if !ok || !e.Key().Equal(key) {
		// absent, or a hash collision with another canonical key
		return nil, false
	}
	return e, true
}

func (s *Store) maybeCompress(key model.Key, payload []byte, pol model.Policy) (stored []byte, compressed bool) {
	size := int64(len(payload))
	if pol.CompressionThresholdBytes <= 0 || size <= pol.CompressionThresholdBytes {
		return payload, false
	}

	cp, err := s.codec.Compress(payload)
	if err != nil {
		// Compression failure falls back to uncompressed storage.
		s.logger.Warn("payload compression failed, storing raw", "key", key.Canonical(), "err", err)
		s.publish(model.Event{Type: model.EventError, Key: key.Canonical(), Category: key.Category(), At: s.clock.Now(), Err: err})
		return payload, false
	}
	if int64(len(cp)) >= size {
		// incompressible payload
		return payload, false
	}

	s.publish(model.Event{
		Type: model.EventCompress, Key: key.Canonical(), Category: key.Category(),
		At: s.clock.Now(), Size: int64(len(cp)),
	})
	return cp, true
}

func (s *Store) materialize(e *Entry) ([]byte, error) {
	if !e.Compressed() {
		return e.payload, nil
	}
	return s.codec.Decompress(e.payload)
}

// evictLocked removes LRU victims until the category is below maxEntries and
// returns them for event emission outside the lock. Caller holds cs.mu; the
// batch is atomic from the inserting caller's view.
func (s *Store) evictLocked(cs *catState, maxEntries int) (victims []*Entry) {
	for cs.count() >= maxEntries {
		victim := cs.victim()
		if victim == nil {
			return victims
		}
		hash := victim.Key().Hash()
		s.shard(hash).compareAndRemove(hash, victim)
		cs.remove(hash)
		s.len.Add(-1)
		s.mem.Add(-victim.SizeBytes())
		victims = append(victims, victim)
	}
	return victims
}

// detach removes e from the shard, category accounting and backend, if it is
// still the live entry for its key.
func (s *Store) detach(e *Entry) bool {
	hash := e.Key().Hash()
	cs := s.cat(e.Key().Category())

	cs.mu.Lock()
	if !s.shard(hash).compareAndRemove(hash, e) {
		cs.mu.Unlock()
		return false
	}
	cs.remove(hash)
	s.len.Add(-1)
	s.mem.Add(-e.SizeBytes())
	cs.mu.Unlock()

	if s.writer != nil {
		s.writer.Delete(e.Key().Canonical())
	}
	return true
}

// expire drops an entry past its stale window, discovered during a lookup.
func (s *Store) expire(e *Entry) {
	if s.detach(e) {
		s.publish(model.Event{Type: model.EventDelete, Key: e.Key().Canonical(), Category: e.Key().Category(), At: s.clock.Now()})
	}
}

func (s *Store) writeBehind(e *Entry) {
	if s.writer == nil {
		return
	}
	rec := persist.NewRecord(e.Key(), e.payload, e.Compressed(), e.CreatedAt(), e.TTL())
	if !s.writer.Put(e.Key().Canonical(), rec) {
		e.memoryOnly.Store(true)
	}
}

func (s *Store) publish(ev model.Event) { s.bus.Publish(ev) }
