package store

import (
	"container/list"
	"sync"
)

// tieScanDepth bounds how many tail entries are compared when breaking
// recency ties by access count.
const tieScanDepth = 4

// catState tracks recency and usage for one category. The store holds mu
// around every mutation so per-key updates within a category are serialized.
type catState struct {
	mu    sync.Mutex
	ll    *list.List // front = most recently used, values are *Entry
	idx   map[uint64]*list.Element
	bytes int64
}

func newCatState() *catState {
	return &catState{ll: list.New(), idx: make(map[uint64]*list.Element)}
}

// Methods below assume cs.mu is held by the caller.

func (cs *catState) count() int { return cs.ll.Len() }

func (cs *catState) insert(hash uint64, e *Entry) {
	cs.idx[hash] = cs.ll.PushFront(e)
	cs.bytes += e.SizeBytes()
}

func (cs *catState) replace(hash uint64, e *Entry) (bytesDelta int64) {
	el, ok := cs.idx[hash]
	if !ok {
		cs.insert(hash, e)
		return e.SizeBytes()
	}
	old := el.Value.(*Entry)
	el.Value = e
	cs.ll.MoveToFront(el)
	bytesDelta = e.SizeBytes() - old.SizeBytes()
	cs.bytes += bytesDelta
	return bytesDelta
}

func (cs *catState) touch(hash uint64) {
	if el, ok := cs.idx[hash]; ok {
		cs.ll.MoveToFront(el)
	}
}

func (cs *catState) remove(hash uint64) (e *Entry, ok bool) {
	el, ok := cs.idx[hash]
	if !ok {
		return nil, false
	}
	delete(cs.idx, hash)
	e = cs.ll.Remove(el).(*Entry)
	cs.bytes -= e.SizeBytes()
	return e, true
}

// victim picks the least-recently-used entry. Entries sharing the tail's
// last-access instant are tie-broken by lowest access count.
func (cs *catState) victim() *Entry {
	back := cs.ll.Back()
	if back == nil {
		return nil
	}
	best := back.Value.(*Entry)
	ref := best.lastAccessNano()

	el := back.Prev()
	for i := 1; i < tieScanDepth && el != nil; i++ {
		e := el.Value.(*Entry)
		if e.lastAccessNano() == ref && e.AccessCount() < best.AccessCount() {
			best = e
		}
		el = el.Prev()
	}
	return best
}
