package scheduler

import (
	"compress/gzip"
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/singleflight"

	"github.com/stayfinder/go-stay-cache/config"
	"github.com/stayfinder/go-stay-cache/internal/compress"
	"github.com/stayfinder/go-stay-cache/internal/events"
	"github.com/stayfinder/go-stay-cache/internal/store"
	"github.com/stayfinder/go-stay-cache/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	sched *Scheduler
	store *store.Store
	bus   *events.Bus

	mu     sync.Mutex
	events []model.Event
}

func newFixture(t *testing.T, cfg *config.RefreshCfg) *fixture {
	t.Helper()

	f := &fixture{}
	f.bus = events.New(testLogger(), nil)
	f.bus.AddListener(func(ev model.Event) {
		f.mu.Lock()
		f.events = append(f.events, ev)
		f.mu.Unlock()
	})

	registry := model.NewPolicyRegistry(map[model.Category]model.Policy{
		model.CategoryListing: {TTL: time.Hour, StaleWindow: time.Hour},
	})
	clk := clock.New()
	f.store = store.New(clk, registry, compress.New(gzip.BestSpeed), f.bus, testLogger(), nil)

	var flight singleflight.Group
	f.sched = New(testContext(t), cfg, clk, testLogger(), f.store, f.bus, &flight, time.Second)
	t.Cleanup(func() { _ = f.sched.Close() })
	return f
}

func (f *fixture) eventCount(typ model.EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (f *fixture) pendingTasks() int {
	f.sched.mu.Lock()
	defer f.sched.mu.Unlock()
	return len(f.sched.tasks)
}

func fastCfg() *config.RefreshCfg {
	return &config.RefreshCfg{
		Rate:           200,
		Workers:        2,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestScheduleLoadsMissingKey(t *testing.T) {
	f := newFixture(t, fastCfg())
	k := model.MustKey(model.CategoryListing, "user", "42", nil)

	var invokes atomic.Int64
	f.sched.Schedule(k, func(ctx context.Context) ([]byte, error) {
		invokes.Add(1)
		return []byte("loaded"), nil
	})

	require.Eventually(t, func() bool {
		return f.store.Peek(k) == store.StatusFresh
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, int64(1), invokes.Load())
	require.Equal(t, 1, f.eventCount(model.EventWarm))
}

func TestScheduleSkipsFreshEntry(t *testing.T) {
	f := newFixture(t, fastCfg())
	k := model.MustKey(model.CategoryListing, "user", "42", nil)
	f.store.Set(k, []byte("fresh"))

	var invokes atomic.Int64
	f.sched.Schedule(k, func(ctx context.Context) ([]byte, error) {
		invokes.Add(1)
		return []byte("should not happen"), nil
	})

	require.Eventually(t, func() bool {
		return f.pendingTasks() == 0
	}, 2*time.Second, 5*time.Millisecond)
	require.Zero(t, invokes.Load())

	payload, status := f.store.Get(k)
	require.Equal(t, store.StatusFresh, status)
	require.Equal(t, []byte("fresh"), payload)
}

func TestScheduleDeduplicatesPendingKey(t *testing.T) {
	f := newFixture(t, fastCfg())
	k := model.MustKey(model.CategoryListing, "user", "42", nil)

	release := make(chan struct{})
	loader := func(ctx context.Context) ([]byte, error) {
		<-release
		return []byte("loaded"), nil
	}

	f.sched.Schedule(k, loader)
	f.sched.Schedule(k, loader)
	f.sched.Schedule(k, loader)
	require.Equal(t, 1, f.eventCount(model.EventWarm))

	close(release)
	require.Eventually(t, func() bool {
		return f.store.Peek(k) == store.StatusFresh
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRetriesExhaustedEmitsErrorEvent(t *testing.T) {
	f := newFixture(t, fastCfg())
	k := model.MustKey(model.CategoryListing, "user", "42", nil)

	var invokes atomic.Int64
	f.sched.Schedule(k, func(ctx context.Context) ([]byte, error) {
		invokes.Add(1)
		return nil, errors.New("upstream down")
	})

	require.Eventually(t, func() bool {
		return f.eventCount(model.EventError) == 1 && f.pendingTasks() == 0
	}, 5*time.Second, 5*time.Millisecond)

	// Initial attempt plus MaxRetries retries.
	require.Equal(t, int64(3), invokes.Load())
	_, _, _, retries, failed := f.sched.Metrics()
	require.Equal(t, int64(3), retries)
	require.Equal(t, int64(1), failed)
}

func TestTrackRefreshesPeriodically(t *testing.T) {
	f := newFixture(t, fastCfg())
	k := model.MustKey(model.CategoryListing, "user", "42", nil)
	f.store.Set(k, []byte("seed"))

	var invokes atomic.Int64
	f.sched.Track(k, func(ctx context.Context) ([]byte, error) {
		invokes.Add(1)
		return []byte("refetched"), nil
	}, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return invokes.Load() >= 2
	}, 5*time.Second, 5*time.Millisecond)

	payload, status := f.store.Get(k)
	require.Equal(t, store.StatusFresh, status)
	require.Equal(t, []byte("refetched"), payload)
	require.Equal(t, 1, f.pendingTasks(), "periodic task should stay registered")
}

func TestForgetDropsTask(t *testing.T) {
	f := newFixture(t, fastCfg())
	k := model.MustKey(model.CategoryListing, "user", "42", nil)

	f.sched.Track(k, func(ctx context.Context) ([]byte, error) {
		return []byte("x"), nil
	}, time.Hour)
	require.Equal(t, 1, f.pendingTasks())

	f.sched.Forget(k)
	require.Zero(t, f.pendingTasks())
}

// testContext mirrors Go 1.24's t.Context(): a context canceled at test cleanup.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
