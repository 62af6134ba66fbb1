package model

import "time"

// EventType names one cache lifecycle transition.
type EventType string

const (
	EventHit        EventType = "hit"
	EventMiss       EventType = "miss"
	EventSet        EventType = "set"
	EventDelete     EventType = "delete"
	EventEvict      EventType = "evict"
	EventWarm       EventType = "warm"
	EventInvalidate EventType = "invalidate"
	EventCompress   EventType = "compress"
	EventError      EventType = "error"
)

// Event is an immutable record of one cache lifecycle transition. Events are
// produced by the store, invalidation engine and scheduler and consumed only
// by bus listeners; the cache never retains them.
type Event struct {
	Type     EventType
	Key      string // canonical key; empty for events not tied to one key
	Category Category
	At       time.Time
	Duration time.Duration
	Size     int64
	Err      error
}
