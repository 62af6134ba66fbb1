package scheduler

import "sync/atomic"

type schedulerCounters struct {
	scans     atomic.Int64
	scanHits  atomic.Int64
	refreshed atomic.Int64
	retries   atomic.Int64
	failed    atomic.Int64
}

func newSchedulerCounters() *schedulerCounters {
	return &schedulerCounters{}
}

func (c *schedulerCounters) snapshot() (scans, hits, refreshed, retries, failed int64) {
	return c.scans.Load(), c.scanHits.Load(), c.refreshed.Load(), c.retries.Load(), c.failed.Load()
}
