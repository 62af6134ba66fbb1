package model

import "errors"

// ErrLoaderTimeout marks a loader that exceeded its configured timeout.
// Callers may still receive stale fallback data after this error.
var ErrLoaderTimeout = errors.New("loader timed out")
