package lease

import (
	"context"
	"time"
)

// Repository manages lease documents with compare-and-swap semantics. Both
// methods must be safe to call from any number of processes concurrently.
type Repository interface {
	// Acquire attempts to take the named lease for owner/runID. Contention is
	// reported through the result, never through the error; a non-nil error
	// means the store itself failed.
	Acquire(ctx context.Context, key, owner, runID string, ttl time.Duration) (*AcquireResult, error)

	// Release marks the (key, owner) lease released and expired. Best-effort:
	// an unreleased lease is still reclaimable once it expires.
	Release(ctx context.Context, key, owner string) error
}
