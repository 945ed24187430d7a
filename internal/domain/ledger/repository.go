package ledger

import (
	"context"
	"time"
)

// AccountFlow is the in-window movement of a single account: credits summed
// as inflow, debits as outflow.
type AccountFlow struct {
	AccountKey string `bson:"_id"`
	Inflow     int64  `bson:"inflow"`
	Outflow    int64  `bson:"outflow"`
}

// Net is the signed movement for the flow
func (f AccountFlow) Net() int64 {
	return f.Inflow - f.Outflow
}

// AccountOpening is the balance of an account accumulated strictly before a
// point in time (credits minus debits since inception).
type AccountOpening struct {
	AccountKey string `bson:"_id"`
	Opening    int64  `bson:"opening"`
}

// WindowAudit carries the audit counters recorded alongside a daily close
type WindowAudit struct {
	LedgerCount int64      `bson:"ledger_count"`
	MaxPostedAt *time.Time `bson:"max_posted_at"`
}

// Repository exposes the read-only aggregations the close and settlement
// computations need. Entries themselves are never mutated through this
// interface.
type Repository interface {
	// SumWindowByAccount groups entries posted in [from, to) by account key.
	// An empty category matches all entries; a non-empty one restricts the
	// aggregation to that category.
	SumWindowByAccount(ctx context.Context, from, to time.Time, category string) ([]AccountFlow, error)

	// SumOpeningByAccount accumulates credits minus debits per account for
	// entries posted strictly before the given instant.
	SumOpeningByAccount(ctx context.Context, before time.Time) ([]AccountOpening, error)

	// AuditWindow counts entries in [from, to) and finds the latest posting
	AuditWindow(ctx context.Context, from, to time.Time) (*WindowAudit, error)
}
