package model

import "context"

// Loader fetches one value from the external data source on a cache miss or
// refresh. It must not touch the cache itself; the cache stores the result.
type Loader func(ctx context.Context) ([]byte, error)

// Writer performs the actual mutation against the external system of record.
// Invalidation runs only after a Writer returns without error.
type Writer func(ctx context.Context) (any, error)
