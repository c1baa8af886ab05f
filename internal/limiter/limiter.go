// Package limiter defines interfaces and implementations for claim-attempt lockout.
package limiter

import (
	"context"
	"time"
)

// Limiter counts failed claims per client address hash and places temporary blocks.
type Limiter interface {
	// Allow reports whether a claim is currently allowed and an optional retry-after.
	Allow(ctx context.Context, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful claim.
	Success(ctx context.Context, ipHash []byte) error
	// Failure records a failed claim; may place a temporary block.
	Failure(ctx context.Context, ipHash []byte) (bool, time.Duration, error)
}
