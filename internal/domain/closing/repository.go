package closing

import (
	"context"
	"fmt"
)

// Repository persists ledger-close records
type Repository interface {
	// GetByDate returns the close for a business date, or ErrCloseNotFound
	GetByDate(ctx context.Context, businessDate string) (*Close, error)

	// UpsertRunning creates or resets the close record to running with a
	// fresh run id and window. A failed record from an earlier attempt is
	// overwritten; a closed one must never reach this call.
	UpsertRunning(ctx context.Context, businessDate string, window Window, runID string) (*Close, error)

	// FinalizeClosed transitions the record to closed, conditional on it
	// still carrying (businessDate, runID, status=running). Returns
	// ErrStaleRun when a newer run superseded this one.
	FinalizeClosed(ctx context.Context, businessDate, runID string, totals Totals, perAccount []AccountBalance, audit Audit) error

	// MarkFailed records a failed close attempt with the captured cause
	MarkFailed(ctx context.Context, businessDate, runID, cause string) error

	// FindRecentClosed returns the most recently closed records, newest
	// first, for settlement backlog catch-up.
	FindRecentClosed(ctx context.Context, limit int) ([]*Close, error)
}

// ErrCloseNotFound indicates no close record exists for the business date
type ErrCloseNotFound struct {
	BusinessDate string
}

func (e ErrCloseNotFound) Error() string {
	return "ledger close not found: " + e.BusinessDate
}

// Is implements the errors.Is interface for ErrCloseNotFound
func (e ErrCloseNotFound) Is(target error) bool {
	t, ok := target.(ErrCloseNotFound)
	if !ok {
		return false
	}
	if t.BusinessDate == "" {
		return true
	}
	return e.BusinessDate == t.BusinessDate
}

// ErrStaleRun indicates a finalize attempt by a run that no longer owns the
// close record (a newer run id took over, or the status moved on).
type ErrStaleRun struct {
	BusinessDate string
	RunID        string
}

func (e ErrStaleRun) Error() string {
	return fmt.Sprintf("stale close run %s for %s", e.RunID, e.BusinessDate)
}

// Is implements the errors.Is interface for ErrStaleRun
func (e ErrStaleRun) Is(target error) bool {
	t, ok := target.(ErrStaleRun)
	if !ok {
		return false
	}
	if t.BusinessDate == "" && t.RunID == "" {
		return true
	}
	return e.BusinessDate == t.BusinessDate && e.RunID == t.RunID
}
