// Package closing defines the ledger-close record written once per business
// date by the daily-close worker, and the balance shapes it carries.
package closing

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrMalformedEvent marks a change-feed event that could not be decoded into
// a Close. The feed itself is still healthy; consumers log and skip the event.
var ErrMalformedEvent = errors.New("malformed close change event")

// Status is the lifecycle of a ledger-close record
type Status string

const (
	StatusRunning Status = "running"
	// StatusClosed is terminal and triggers settlement
	StatusClosed Status = "closed"
	// StatusFailed is recoverable; a later run with a fresh run id may retry
	StatusFailed Status = "failed"
)

// Window is the half-open UTC interval [From, To) a close covers, with the
// ISO renderings kept for human inspection of the stored document.
type Window struct {
	From    time.Time `json:"from" bson:"from"`
	To      time.Time `json:"to" bson:"to"`
	FromISO string    `json:"from_iso" bson:"from_iso"`
	ToISO   string    `json:"to_iso" bson:"to_iso"`
}

// Totals sums movement across all accounts for the window
type Totals struct {
	Inflow  int64 `json:"inflow" bson:"inflow"`
	Outflow int64 `json:"outflow" bson:"outflow"`
	Net     int64 `json:"net" bson:"net"`
}

// AccountBalance is one account's line in the close: balance carried in,
// movement during the window, and the resulting closing balance.
type AccountBalance struct {
	AccountKey string `json:"account_key" bson:"account_key"`
	Opening    int64  `json:"opening" bson:"opening"`
	Inflow     int64  `json:"inflow" bson:"inflow"`
	Outflow    int64  `json:"outflow" bson:"outflow"`
	Net        int64  `json:"net" bson:"net"`
	Closing    int64  `json:"closing" bson:"closing"`
}

// Audit records what the aggregation actually saw, for later reconciliation
type Audit struct {
	LedgerCount int64      `json:"ledger_count" bson:"ledger_count"`
	MaxPostedAt *time.Time `json:"max_posted_at" bson:"max_posted_at"`
}

// Close is the per-business-date close record. BusinessDate is unique; the
// document is upserted to running under the daily-close lease and finalized
// with a conditional update keyed on (business date, run id, running).
type Close struct {
	ID           primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	BusinessDate string             `json:"business_date" bson:"business_date"`
	Status       Status             `json:"status" bson:"status"`
	Window       Window             `json:"window" bson:"window"`
	Totals       Totals             `json:"totals" bson:"totals"`
	PerAccount   []AccountBalance   `json:"per_account" bson:"per_account"`
	Audit        Audit              `json:"audit" bson:"audit"`
	RunID        string             `json:"run_id" bson:"run_id"`
	Error        string             `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at" bson:"updated_at"`
}
