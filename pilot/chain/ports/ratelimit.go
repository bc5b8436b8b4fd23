package chainports

import "context"

// RateLimiter coordinates throughput to the generation backend.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
