package rate

import "errors"

var (
	// ErrRateLimited is returned when a counter exceeds its window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures while reading or updating counters.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
