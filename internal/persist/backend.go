// Package persist implements the optional write-behind storage backend.
// The backend mirrors the in-memory store; it is never the source of truth.
package persist

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/stayfinder/go-stay-cache/model"
)

var ErrNotFound = errors.New("record not found")

// Record is the durable shape of one cache entry. Params holds the
// url-encoded canonical parameter string so keys can be rebuilt on restore.
type Record struct {
	Category   string
	Scope      string
	Entity     string
	Params     string
	Payload    []byte
	Compressed bool
	CreatedAt  time.Time
	TTL        time.Duration
}

// NewRecord captures a key and its stored payload.
func NewRecord(key model.Key, payload []byte, compressed bool, createdAt time.Time, ttl time.Duration) Record {
	vals := url.Values{}
	for name, v := range key.Params() {
		vals.Set(name, v)
	}
	return Record{
		Category:   string(key.Category()),
		Scope:      key.Scope(),
		Entity:     key.Entity(),
		Params:     vals.Encode(),
		Payload:    payload,
		Compressed: compressed,
		CreatedAt:  createdAt,
		TTL:        ttl,
	}
}

// Key rebuilds the structured key. Fails when the record's category is no
// longer registered.
func (r Record) Key() (model.Key, error) {
	var params map[string]string
	if r.Params != "" {
		vals, err := url.ParseQuery(r.Params)
		if err != nil {
			return model.Key{}, err
		}
		params = make(map[string]string, len(vals))
		for name := range vals {
			params[name] = vals.Get(name)
		}
	}
	return model.NewKey(model.Category(r.Category), r.Scope, r.Entity, params)
}

// Backend is the external key-value medium behind the write-behind queue.
type Backend interface {
	Put(ctx context.Context, canonical string, rec Record) error
	Get(ctx context.Context, canonical string) (Record, error)
	Delete(ctx context.Context, canonical string) error
	// Restore streams every stored record; fn returning false stops the walk.
	Restore(ctx context.Context, fn func(canonical string, rec Record) bool) error
	Close() error
}
