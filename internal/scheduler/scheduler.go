// Package scheduler runs background refresh and cache warming. Tasks retry
// with exponential backoff and never surface failures to foreground callers;
// exhausted retries are reported only through an error event.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/stayfinder/go-stay-cache/config"
	"github.com/stayfinder/go-stay-cache/internal/events"
	"github.com/stayfinder/go-stay-cache/internal/shared/rate"
	"github.com/stayfinder/go-stay-cache/internal/store"
	"github.com/stayfinder/go-stay-cache/model"
)

// Task lifecycle: Idle -> Running -> (Success -> Idle | Failure -> Backoff
// -> Idle). Exhausted retries park the task in Failed.
type taskState int32

const (
	stateIdle taskState = iota
	stateRunning
	stateFailed
)

type task struct {
	key      model.Key
	loader   model.Loader
	periodic bool
	interval time.Duration

	state   atomic.Int32
	retries int       // touched only by the executing worker
	nextAt  time.Time // guarded by Scheduler.mu
	bo      *backoff.ExponentialBackOff
}

func (t *task) setState(s taskState) { t.state.Store(int32(s)) }
func (t *task) is(s taskState) bool { return taskState(t.state.Load()) == s }

type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.RefreshCfg
	clock  clock.Clock
	logger *slog.Logger
	store  *store.Store
	bus    *events.Bus
	flight *singleflight.Group

	loaderTimeout time.Duration
	jitter        *rate.Jitter

	mu    sync.Mutex
	tasks map[string]*task

	counters *schedulerCounters
	invokeCh chan *task
}

// New starts the scheduler. flight is shared with the facade so a background
// refresh and a foreground load of the same key collapse into one loader
// invocation.
func New(
	ctx context.Context,
	cfg *config.RefreshCfg,
	clk clock.Clock,
	logger *slog.Logger,
	st *store.Store,
	bus *events.Bus,
	flight *singleflight.Group,
	loaderTimeout time.Duration,
) *Scheduler {
	if !cfg.Enabled() {
		cfg = cfg.Default()
	}
	ctx, cancel := context.WithCancel(ctx)

	s := &Scheduler{
		ctx:           ctx,
		cancel:        cancel,
		cfg:           cfg,
		clock:         clk,
		logger:        logger,
		store:         st,
		bus:           bus,
		flight:        flight,
		loaderTimeout: loaderTimeout,
		jitter:        rate.NewJitter(ctx, cfg.Rate),
		tasks:         make(map[string]*task),
		counters:      newSchedulerCounters(),
		invokeCh:      make(chan *task, cfg.Workers*2),
	}
	return s.run()
}

// Schedule registers a one-shot background load for a missing or stale key.
// A key with a task already pending is not scheduled twice. Never blocks.
func (s *Scheduler) Schedule(key model.Key, loader model.Loader) {
	if s.register(key, loader, false, 0) {
		s.bus.Publish(model.Event{Type: model.EventWarm, Key: key.Canonical(), Category: key.Category(), At: s.clock.Now()})
	}
}

// Track registers a periodic proactive refresh for the key. Used for
// categories with a refetch interval; the first registration wins.
func (s *Scheduler) Track(key model.Key, loader model.Loader, interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.register(key, loader, true, interval)
}

// Forget drops any task for the key. Called when the key is deleted or
// invalidated so tracked refreshes do not resurrect removed data.
func (s *Scheduler) Forget(key model.Key) {
	s.mu.Lock()
	delete(s.tasks, key.Canonical())
	s.mu.Unlock()
}

// Metrics reports cumulative scheduler counters.
func (s *Scheduler) Metrics() (scans, hits, refreshed, retries, failed int64) {
	return s.counters.snapshot()
}

func (s *Scheduler) Close() error {
	s.cancel()
	return nil
}

func (s *Scheduler) register(key model.Key, loader model.Loader, periodic bool, interval time.Duration) bool {
	t := &task{key: key, loader: loader, periodic: periodic, interval: interval}
	t.bo = s.newBackoff()
	now := s.clock.Now()
	if periodic {
		t.nextAt = now.Add(interval)
	} else {
		t.nextAt = now
	}

	s.mu.Lock()
	if _, exists := s.tasks[key.Canonical()]; exists {
		s.mu.Unlock()
		return false
	}
	s.tasks[key.Canonical()] = t
	s.mu.Unlock()
	return true
}

func (s *Scheduler) newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.InitialBackoff
	bo.MaxInterval = s.cfg.MaxBackoff
	bo.MaxElapsedTime = 0 // retries bounded by count, not wall time
	bo.Reset()
	return bo
}

func (s *Scheduler) run() *Scheduler {
	s.logger.Info("cache scheduler is running", "rate", s.cfg.Rate, "workers", s.cfg.Workers, "max_retries", s.cfg.MaxRetries)

	go func() {
		defer s.logger.Info("cache scheduler is stopped")
		var wg sync.WaitGroup
		for i := 0; i < s.cfg.Workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.consumer()
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.provider()
		}()
		wg.Wait()
	}()

	return s
}

// provider scans for due tasks once per jitter tick and hands them to workers.
func (s *Scheduler) provider() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.jitter.Chan():
			for _, t := range s.dueTasks() {
				select {
				case <-s.ctx.Done():
					return
				case s.invokeCh <- t:
					s.counters.scanHits.Add(1)
				}
			}
		}
	}
}

func (s *Scheduler) dueTasks() []*task {
	now := s.clock.Now()
	s.counters.scans.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*task
	for _, t := range s.tasks {
		if t.is(stateIdle) && !t.nextAt.After(now) {
			t.setState(stateRunning)
			due = append(due, t)
		}
	}
	return due
}

func (s *Scheduler) consumer() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case t := <-s.invokeCh:
			s.execute(t)
		}
	}
}

func (s *Scheduler) execute(t *task) {
	// Warming never overwrites an entry that is still fresh.
	if !t.periodic && s.store.Peek(t.key) == store.StatusFresh {
		s.complete(t)
		return
	}

	payload, err := s.load(t)
	if err != nil {
		s.failure(t, err)
		return
	}

	s.store.Set(t.key, payload)
	s.counters.refreshed.Add(1)
	s.complete(t)
}

// load runs the task's loader under the configured timeout, collapsing with
// any concurrent foreground load of the same key.
func (s *Scheduler) load(t *task) ([]byte, error) {
	v, err, _ := s.flight.Do(t.key.Canonical(), func() (any, error) {
		ctx, cancel := context.WithTimeout(s.ctx, s.loaderTimeout)
		defer cancel()

		payload, loadErr := t.loader(ctx)
		if loadErr != nil && errors.Is(loadErr, context.DeadlineExceeded) {
			return nil, model.ErrLoaderTimeout
		}
		return payload, loadErr
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (s *Scheduler) complete(t *task) {
	t.retries = 0
	t.bo.Reset()

	if !t.periodic {
		s.Forget(t.key)
		return
	}
	s.mu.Lock()
	t.nextAt = s.clock.Now().Add(t.interval)
	s.mu.Unlock()
	t.setState(stateIdle)
}

func (s *Scheduler) failure(t *task, err error) {
	t.retries++
	s.counters.retries.Add(1)

	if t.retries > s.cfg.MaxRetries {
		s.counters.failed.Add(1)
		t.setState(stateFailed)
		s.logger.Warn("background refresh failed permanently",
			"key", t.key.Canonical(), "retries", t.retries-1, "err", err)
		s.bus.Publish(model.Event{
			Type: model.EventError, Key: t.key.Canonical(),
			Category: t.key.Category(), At: s.clock.Now(), Err: err,
		})

		if !t.periodic {
			s.Forget(t.key)
			return
		}
		// Periodic tasks resume a fresh retry budget on the next interval.
		t.retries = 0
		t.bo.Reset()
		s.mu.Lock()
		t.nextAt = s.clock.Now().Add(t.interval)
		s.mu.Unlock()
		t.setState(stateIdle)
		return
	}

	s.mu.Lock()
	t.nextAt = s.clock.Now().Add(t.bo.NextBackOff())
	s.mu.Unlock()
	t.setState(stateIdle)
}
