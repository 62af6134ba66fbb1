package model

import (
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/zeebo/xxh3"
)

var ErrInvalidCategory = errors.New("invalid cache category")

// Category is the closed set of data classes the cache understands.
// Categories must be registered before keys referencing them can be built.
type Category string

const (
	CategoryProfile           Category = "profile"
	CategoryListing           Category = "listing"
	CategoryListingSearch     Category = "listing-search"
	CategoryLocationHierarchy Category = "location-hierarchy"
	CategoryAuthSession       Category = "auth-session"
	CategoryMessaging         Category = "messaging"
)

var (
	categoriesMu sync.RWMutex
	categories   = map[Category]struct{}{
		CategoryProfile:           {},
		CategoryListing:           {},
		CategoryListingSearch:     {},
		CategoryLocationHierarchy: {},
		CategoryAuthSession:       {},
		CategoryMessaging:         {},
	}
)

// RegisterCategory adds a category to the closed set. Intended to be called
// once during process start, before any keys are constructed.
func RegisterCategory(c Category) {
	categoriesMu.Lock()
	categories[c] = struct{}{}
	categoriesMu.Unlock()
}

// IsRegistered reports whether c is part of the closed category set.
func IsRegistered(c Category) bool {
	categoriesMu.RLock()
	_, ok := categories[c]
	categoriesMu.RUnlock()
	return ok
}

// Key identifies one cached value. Two keys are equal iff category, scope,
// entity and the canonicalized params are equal; param ordering never
// affects equality.
type Key struct {
	category  Category
	scope     string
	entity    string
	params    map[string]string
	canonical string
	hash      uint64
}

// NewKey builds a key, failing with ErrInvalidCategory when the category is
// not registered. Params are copied and canonicalized at construction.
func NewKey(category Category, scope, entity string, params map[string]string) (Key, error) {
	if !IsRegistered(category) {
		return Key{}, ErrInvalidCategory
	}

	var cp map[string]string
	if len(params) > 0 {
		cp = make(map[string]string, len(params))
		for k, v := range params {
			cp[k] = v
		}
	}

	k := Key{category: category, scope: scope, entity: entity, params: cp}
	k.canonical = buildCanonical(category, scope, entity, cp)
	k.hash = xxh3.HashString(k.canonical)
	return k, nil
}

// MustKey is NewKey that panics on an unregistered category. For static keys
// whose category is known at compile time.
func MustKey(category Category, scope, entity string, params map[string]string) Key {
	k, err := NewKey(category, scope, entity, params)
	if err != nil {
		panic(err)
	}
	return k
}

func (k Key) Category() Category { return k.category }
func (k Key) Scope() string { return k.scope }
func (k Key) Entity() string { return k.entity }

// Param returns one query parameter by name.
func (k Key) Param(name string) (string, bool) {
	v, ok := k.params[name]
	return v, ok
}

// Params returns a copy of the canonicalized parameter map.
func (k Key) Params() map[string]string {
	if len(k.params) == 0 {
		return nil
	}
	cp := make(map[string]string, len(k.params))
	for name, v := range k.params {
		cp[name] = v
	}
	return cp
}

// Canonical returns the stable string form used as the storage index and
// for pattern matching. Params are sorted lexicographically by name.
func (k Key) Canonical() string { return k.canonical }

// Hash returns the xxh3 hash of the canonical form, used for shard selection.
func (k Key) Hash() uint64 { return k.hash }

// IsZero reports whether the key was never constructed through NewKey.
func (k Key) IsZero() bool { return k.canonical == "" }

func (k Key) Equal(other Key) bool { return k.canonical == other.canonical }

func buildCanonical(category Category, scope, entity string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(url.QueryEscape(string(category)))
	b.WriteByte('|')
	b.WriteString(url.QueryEscape(scope))
	b.WriteByte('|')
	b.WriteString(url.QueryEscape(entity))
	b.WriteByte('|')

	if len(params) > 0 {
		names := make([]string, 0, len(params))
		for name := range params {
			names = append(names, name)
		}
		sort.Strings(names)
		for i, name := range names {
			if i > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(name))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(params[name]))
		}
	}
	return b.String()
}
