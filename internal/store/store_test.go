package store

import (
	"bytes"
	"compress/gzip"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/stayfinder/go-stay-cache/internal/compress"
	"github.com/stayfinder/go-stay-cache/internal/events"
	"github.com/stayfinder/go-stay-cache/model"
)

type recorder struct {
	mu  sync.Mutex
	evs []model.Event
}

func (r *recorder) observe(ev model.Event) {
	r.mu.Lock()
	r.evs = append(r.evs, ev)
	r.mu.Unlock()
}

func (r *recorder) count(typ model.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.evs {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(policies map[model.Category]model.Policy) (*Store, *clock.Mock, *recorder) {
	mock := clock.NewMock()
	rec := &recorder{}
	bus := events.New(testLogger(), nil)
	bus.AddListener(rec.observe)
	s := New(mock, model.NewPolicyRegistry(policies), compress.New(gzip.BestSpeed), bus, testLogger(), nil)
	return s, mock, rec
}

func listingKey(entity string, params map[string]string) model.Key {
	return model.MustKey(model.CategoryListing, "user", entity, params)
}

func TestSetIsIdempotent(t *testing.T) {
	s, _, _ := newTestStore(map[model.Category]model.Policy{
		model.CategoryListing: {TTL: time.Minute},
	})
	k := listingKey("42", nil)

	s.Set(k, []byte("v1"))
	s.Set(k, []byte("v2"))

	require.Equal(t, int64(1), s.Len())
	payload, status := s.Get(k)
	require.Equal(t, StatusFresh, status)
	require.Equal(t, []byte("v2"), payload)
}

func TestTTLExpiry(t *testing.T) {
	s, mock, _ := newTestStore(map[model.Category]model.Policy{
		model.CategoryListing: {TTL: 100 * time.Millisecond},
	})
	k := listingKey("42", nil)
	s.Set(k, []byte("payload"))

	mock.Add(150 * time.Millisecond)

	payload, status := s.Get(k)
	require.Equal(t, StatusMiss, status)
	require.Nil(t, payload)
	require.Zero(t, s.Len(), "hard-expired entry should be removed")
}

func TestStaleWindow(t *testing.T) {
	s, mock, _ := newTestStore(map[model.Category]model.Policy{
		model.CategoryListing: {TTL: 10 * time.Millisecond, StaleWindow: time.Second},
	})
	k := listingKey("42", nil)
	s.Set(k, []byte("payload"))

	mock.Add(20 * time.Millisecond)
	payload, status := s.Get(k)
	require.Equal(t, StatusStale, status)
	require.Equal(t, []byte("payload"), payload)

	mock.Add(2 * time.Second)
	_, status = s.Get(k)
	require.Equal(t, StatusMiss, status)
}

func TestEvictionLRU(t *testing.T) {
	s, mock, rec := newTestStore(map[model.Category]model.Policy{
		model.CategoryListing: {TTL: time.Hour, MaxEntries: 3},
	})

	k1, k2, k3, k4 := listingKey("1", nil), listingKey("2", nil), listingKey("3", nil), listingKey("4", nil)
	s.Set(k1, []byte("a"))
	mock.Add(time.Millisecond)
	s.Set(k2, []byte("b"))
	mock.Add(time.Millisecond)
	s.Set(k3, []byte("c"))

	// Touch k1 and k3 so k2 becomes least recently used.
	mock.Add(time.Millisecond)
	s.Get(k1)
	mock.Add(time.Millisecond)
	s.Get(k3)

	mock.Add(time.Millisecond)
	s.Set(k4, []byte("d"))

	require.Equal(t, int64(3), s.Len())
	_, status := s.Get(k2)
	require.Equal(t, StatusMiss, status)
	for _, k := range []model.Key{k1, k3, k4} {
		_, status = s.Get(k)
		require.Equal(t, StatusFresh, status, "key %s should survive", k.Canonical())
	}
	require.Equal(t, 1, rec.count(model.EventEvict))
}

func TestEvictionTieBreakByAccessCount(t *testing.T) {
	s, _, _ := newTestStore(map[model.Category]model.Policy{
		model.CategoryListing: {TTL: time.Hour, MaxEntries: 3},
	})

	// Same mock instant for every access: recency ties everywhere, so the
	// victim is picked by lowest access count within the tail window.
	k1, k2, k3 := listingKey("1", nil), listingKey("2", nil), listingKey("3", nil)
	s.Set(k1, []byte("a"))
	s.Set(k2, []byte("b"))
	s.Set(k3, []byte("c"))

	s.Get(k1)
	s.Get(k1)
	s.Get(k2)
	s.Get(k3)

	// List order is now [k3, k2, k1] with access counts 1, 1, 2: the tail
	// entry k1 ties with k2 on last access and loses on access count.
	s.Set(listingKey("4", nil), []byte("d"))

	_, status := s.Get(k2)
	require.Equal(t, StatusMiss, status)
	_, status = s.Get(k1)
	require.Equal(t, StatusFresh, status)
}

func TestCompressionAboveThreshold(t *testing.T) {
	s, _, rec := newTestStore(map[model.Category]model.Policy{
		model.CategoryListing: {TTL: time.Hour, CompressionThresholdBytes: 64},
	})

	small := []byte("tiny")
	big := bytes.Repeat([]byte("listing description "), 256)

	kSmall, kBig := listingKey("small", nil), listingKey("big", nil)
	s.Set(kSmall, small)
	s.Set(kBig, big)

	var smallCompressed, bigCompressed bool
	s.Iterate(func(e *Entry) bool {
		switch e.Key().Entity() {
		case "small":
			smallCompressed = e.Compressed()
		case "big":
			bigCompressed = e.Compressed()
		}
		return true
	})
	require.False(t, smallCompressed)
	require.True(t, bigCompressed)
	require.Equal(t, 1, rec.count(model.EventCompress))

	// Transparent to readers.
	payload, status := s.Get(kBig)
	require.Equal(t, StatusFresh, status)
	require.Equal(t, big, payload)

	payload, status = s.Get(kSmall)
	require.Equal(t, StatusFresh, status)
	require.Equal(t, small, payload)
}

func TestCompareAndDeleteLastWriteWins(t *testing.T) {
	s, _, _ := newTestStore(map[model.Category]model.Policy{
		model.CategoryListing: {TTL: time.Hour},
	})
	k := listingKey("42", nil)
	s.Set(k, []byte("v1"))

	var snapshotted *Entry
	s.Iterate(func(e *Entry) bool {
		snapshotted = e
		return false
	})
	require.NotNil(t, snapshotted)

	// A set landing after the snapshot must survive a stale delete.
	s.Set(k, []byte("v2"))
	require.False(t, s.CompareAndDelete(snapshotted))

	payload, status := s.Get(k)
	require.Equal(t, StatusFresh, status)
	require.Equal(t, []byte("v2"), payload)
}

func TestDelete(t *testing.T) {
	s, _, rec := newTestStore(map[model.Category]model.Policy{
		model.CategoryListing: {TTL: time.Hour},
	})
	k := listingKey("42", nil)
	s.Set(k, []byte("payload"))

	require.True(t, s.Delete(k))
	require.False(t, s.Delete(k))
	require.Zero(t, s.Len())
	require.Zero(t, s.Mem())
	require.Equal(t, 1, rec.count(model.EventDelete))
}

func TestCategoryStats(t *testing.T) {
	s, _, _ := newTestStore(map[model.Category]model.Policy{
		model.CategoryListing: {TTL: time.Hour},
		model.CategoryProfile: {TTL: time.Hour},
	})
	s.Set(listingKey("1", nil), []byte("abcd"))
	s.Set(listingKey("2", nil), []byte("efgh"))
	s.Set(model.MustKey(model.CategoryProfile, "user", "9", nil), []byte("xy"))

	stats := s.CategoryStats()
	require.Equal(t, int64(2), stats[model.CategoryListing].EntryCount)
	require.Equal(t, int64(8), stats[model.CategoryListing].SizeBytes)
	require.Equal(t, int64(1), stats[model.CategoryProfile].EntryCount)
	require.Equal(t, int64(2), stats[model.CategoryProfile].SizeBytes)
	require.Equal(t, int64(3), s.Len())
	require.Equal(t, int64(10), s.Mem())
}

func TestFallbackPolicyForUnknownCategory(t *testing.T) {
	s, mock, _ := newTestStore(nil)
	k := model.MustKey(model.CategoryAuthSession, "user", "s1", nil)
	s.Set(k, []byte("session"))

	_, status := s.Get(k)
	require.Equal(t, StatusFresh, status)

	mock.Add(model.FallbackPolicy.TTL + time.Second)
	_, status = s.Get(k)
	require.Equal(t, StatusMiss, status)
}
