// Package lease models the document-backed mutual-exclusion lease that
// serializes close and settlement work for a business date across worker
// processes. At most one valid lease exists per key, where valid means
// released_at is unset and expires_at is in the future.
package lease

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTTL applies when the caller passes a non-positive duration
	DefaultTTL = 10 * time.Minute
	// MinTTL and MaxTTL bound the lease duration regardless of configuration
	MinTTL = 10 * time.Second
	MaxTTL = 24 * time.Hour
)

// ClampTTL normalizes a requested lease duration into [MinTTL, MaxTTL],
// substituting DefaultTTL for non-positive values.
func ClampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	if ttl < MinTTL {
		return MinTTL
	}
	if ttl > MaxTTL {
		return MaxTTL
	}
	return ttl
}

// Lease is the stored lock document, one per key. It is never hard-deleted;
// expiry or release makes it reclaimable.
type Lease struct {
	Key        string     `json:"key" bson:"key"`
	Owner      string     `json:"owner" bson:"owner"`
	RunID      string     `json:"run_id" bson:"run_id"`
	AcquiredAt time.Time  `json:"acquired_at" bson:"acquired_at"`
	ExpiresAt  time.Time  `json:"expires_at" bson:"expires_at"`
	ReleasedAt *time.Time `json:"released_at" bson:"released_at"`
	UpdatedAt  time.Time  `json:"updated_at" bson:"updated_at"`
}

// AcquireMode distinguishes a fresh insert from reclaiming a dead holder's lease
type AcquireMode string

const (
	ModeInsert   AcquireMode = "insert"
	ModeTakeover AcquireMode = "takeover"
)

// ReasonLockHeld is the only non-acquisition outcome; contention is an
// expected result, not an error.
const ReasonLockHeld = "LOCK_HELD"

// AcquireResult reports the outcome of an acquisition attempt. OK=false means
// another live owner holds the lease; HeldBy and ExpiresAt describe it.
type AcquireResult struct {
	OK        bool
	Mode      AcquireMode
	Lease     *Lease
	Reason    string
	HeldBy    string
	ExpiresAt time.Time
}

// NewOwner builds an opaque owner identity unique to this process instance
func NewOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString())
}
