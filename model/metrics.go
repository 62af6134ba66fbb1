package model

import "time"

// CategoryMetrics is the per-category slice of the process-wide counters.
type CategoryMetrics struct {
	Hits          int64
	Misses        int64
	Evictions     int64
	Invalidations int64
	EntryCount    int64
	SizeBytes     int64
}

// CategoryStats are the live usage gauges of one category.
type CategoryStats struct {
	EntryCount int64
	SizeBytes  int64
}

// SlowOp describes one of the slowest recorded operations.
type SlowOp struct {
	Key      string
	Op       EventType
	Duration time.Duration
	At       time.Time
}

// MetricsSnapshot is a read-only view of the cache counters. HitRate is
// hits/(hits+misses), zero when both are zero.
type MetricsSnapshot struct {
	Hits           int64
	Misses         int64
	Evictions      int64
	Invalidations  int64
	Warms          int64
	Errors         int64
	ListenerErrors int64
	EntryCount     int64
	TotalSizeBytes int64
	HitRate        float64
	PerCategory    map[Category]CategoryMetrics
	SlowOps        []SlowOp
}
