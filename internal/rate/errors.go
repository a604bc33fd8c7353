package rate

import "errors"

var (
	// ErrRateLimited is returned when a principal or IP has used its failure
	// budget for the current window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
