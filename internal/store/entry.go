package store

import (
	"sync/atomic"
	"time"

	"github.com/stayfinder/go-stay-cache/model"
)

// Entry owns one cached payload and its bookkeeping. The payload is
// immutable after construction; a set over an existing key replaces the
// whole entry so concurrent snapshot holders keep a stable view.
type Entry struct {
	key        model.Key
	payload    []byte // stored form, compressed when compressed is true
	createdAt  int64  // unix nanos
	ttl        time.Duration
	sizeBytes  int64
	compressed bool

	accessCount  atomic.Int64
	lastAccessAt atomic.Int64 // unix nanos
	memoryOnly   atomic.Bool
}

func newEntry(key model.Key, payload []byte, compressed bool, createdAt time.Time, ttl time.Duration) *Entry {
	e := &Entry{
		key:        key,
		payload:    payload,
		createdAt:  createdAt.UnixNano(),
		ttl:        ttl,
		sizeBytes:  int64(len(payload)),
		compressed: compressed,
	}
	e.lastAccessAt.Store(e.createdAt)
	return e
}

func (e *Entry) Key() model.Key { return e.key }
func (e *Entry) TTL() time.Duration { return e.ttl }
func (e *Entry) SizeBytes() int64 { return e.sizeBytes }
func (e *Entry) Compressed() bool { return e.compressed }
func (e *Entry) AccessCount() int64 { return e.accessCount.Load() }
func (e *Entry) MemoryOnly() bool { return e.memoryOnly.Load() }
func (e *Entry) CreatedAt() time.Time {
	return time.Unix(0, e.createdAt)
}
func (e *Entry) LastAccessAt() time.Time {
	return time.Unix(0, e.lastAccessAt.Load())
}

func (e *Entry) touch(now time.Time) {
	e.accessCount.Add(1)
	e.lastAccessAt.Store(now.UnixNano())
}

func (e *Entry) lastAccessNano() int64 { return e.lastAccessAt.Load() }

// expiresAt is the hard expiry instant in unix nanos.
func (e *Entry) expiresAt() int64 { return e.createdAt + int64(e.ttl) }
