package store

import "sync"

const shardCount = 64 // power of two, indexed by the low hash bits

// shard is one independent segment of the hash-partitioned entry map.
type shard struct {
	mu    sync.RWMutex
	items map[uint64]*Entry
}

func newShard() *shard {
	return &shard{items: make(map[uint64]*Entry)}
}

func (sh *shard) get(hash uint64) (*Entry, bool) {
	sh.mu.RLock()
	e, ok := sh.items[hash]
	sh.mu.RUnlock()
	return e, ok
}

func (sh *shard) set(hash uint64, e *Entry) {
	sh.mu.Lock()
	sh.items[hash] = e
	sh.mu.Unlock()
}

func (sh *shard) remove(hash uint64) (*Entry, bool) {
	sh.mu.Lock()
	e, ok := sh.items[hash]
	if ok {
		delete(sh.items, hash)
	}
	sh.mu.Unlock()
	return e, ok
}

// compareAndRemove deletes only while the stored entry is still the expected
// pointer, so a concurrent replacement survives a stale removal attempt.
func (sh *shard) compareAndRemove(hash uint64, expected *Entry) bool {
	sh.mu.Lock()
	e, ok := sh.items[hash]
	if !ok || e != expected {
		sh.mu.Unlock()
		return false
	}
	delete(sh.items, hash)
	sh.mu.Unlock()
	return true
}

// snapshot copies the shard's live entries without holding the lock beyond
// the copy.
func (sh *shard) snapshot() []*Entry {
	sh.mu.RLock()
	out := make([]*Entry, 0, len(sh.items))
	for _, e := range sh.items {
		out = append(out, e)
	}
	sh.mu.RUnlock()
	return out
}
