package stats

import (
	"errors"

	"jobstats/internal/store"
)

var (
	// ErrUnsupportedDriver means the event came from a driver outside the
	// allow-list. Silent skip.
	ErrUnsupportedDriver = errors.New("stats: unsupported driver")

	// ErrNotOptedIn means the handler does not implement Collector. Silent skip.
	ErrNotOptedIn = errors.New("stats: handler not opted in")

	ErrIdentityResolution = errors.New("stats: cannot resolve job identity")
	ErrInvalidAttempt     = errors.New("stats: invalid attempt number")
	ErrAttemptFinalized   = errors.New("stats: attempt already finalized")

	// Repository sentinels re-exported so callers of this package need
	// not import the store.
	ErrJobNotFound      = store.ErrJobNotFound
	ErrAttemptNotFound  = store.ErrAttemptNotFound
	ErrDuplicateAttempt = store.ErrDuplicateAttempt
)
