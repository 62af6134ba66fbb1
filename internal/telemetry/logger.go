// Package telemetry periodically logs cache activity for operators.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/stayfinder/go-stay-cache/internal/metrics"
	"github.com/stayfinder/go-stay-cache/internal/scheduler"
	"github.com/stayfinder/go-stay-cache/internal/shared/bytes"
	"github.com/stayfinder/go-stay-cache/internal/store"
)

type Logs struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
	s        sampler
	interval time.Duration
}

func New(
	ctx context.Context,
	logger *slog.Logger,
	collector *metrics.Collector,
	st *store.Store,
	sched *scheduler.Scheduler,
	interval time.Duration,
) *Logs {
	ctx, cancel := context.WithCancel(ctx)
	l := &Logs{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		s:        sampler{collector: collector, store: st, scheduler: sched},
		interval: interval,
	}
	if interval > 0 {
		go l.loop()
	}
	return l
}

func (l *Logs) Interval() time.Duration { return l.interval }

func (l *Logs) Close() error {
	l.cancel()
	return nil
}

func (l *Logs) loop() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	prev := l.s.snapshot()

	for {
		select {
		case <-l.ctx.Done():
			return

		case <-ticker.C:
			cur := l.s.snapshot()
			d := deltaSnapshot(prev, cur)
			prev = cur

			common := []any{"interval", l.interval.String()}

			l.logger.Info("cache_activity",
				append(common,
					"hits", d.hits,
					"misses", d.misses,
					"evictions", d.evictions,
					"invalidations", d.invalidations,
					"warms", d.warms,
					"errors", d.errors,
				)...,
			)

			if d.schedScans > 0 || d.schedRefreshed > 0 {
				l.logger.Info("cache_scheduler",
					append(common,
						"scans", d.schedScans,
						"dispatched", d.schedHits,
						"refreshed", d.schedRefreshed,
						"retries", d.schedRetries,
						"failed", d.schedFailed,
					)...,
				)
			}

			l.logger.Info("cache_storage",
				append(common,
					"entries", l.s.store.Len(),
					"size", bytes.FmtMem(uint64(max(l.s.store.Mem(), 0))),
				)...,
			)
		}
	}
}
