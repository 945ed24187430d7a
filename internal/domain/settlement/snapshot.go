package settlement

import (
	"time"

	"github.com/marketplace-ledger/settlement-engine/internal/domain/closing"
)

// AccountSnapshot is the per-account balance projection, keyed by
// (business date, account key). Fully replaced on every run.
type AccountSnapshot struct {
	BusinessDate string    `json:"business_date" bson:"business_date"`
	AccountKey   string    `json:"account_key" bson:"account_key"`
	Opening      int64     `json:"opening" bson:"opening"`
	Inflow       int64     `json:"inflow" bson:"inflow"`
	Outflow      int64     `json:"outflow" bson:"outflow"`
	Net          int64     `json:"net" bson:"net"`
	Closing      int64     `json:"closing" bson:"closing"`
	RunID        string    `json:"run_id" bson:"run_id"`
	ComputedAt   time.Time `json:"computed_at" bson:"computed_at"`
}

// SellerTotals is a per-seller credit/debit/net line
type SellerTotals struct {
	SellerID string `json:"seller_id" bson:"seller_id"`
	Credit   int64  `json:"credit" bson:"credit"`
	Debit    int64  `json:"debit" bson:"debit"`
	Net      int64  `json:"net" bson:"net"`
}

// CODSnapshot totals cash-on-delivery activity for the date, globally and
// broken down per seller. Keyed by business date.
type CODSnapshot struct {
	BusinessDate string         `json:"business_date" bson:"business_date"`
	Credit       int64          `json:"credit" bson:"credit"`
	Debit        int64          `json:"debit" bson:"debit"`
	Net          int64          `json:"net" bson:"net"`
	PerSeller    []SellerTotals `json:"per_seller" bson:"per_seller"`
	RunID        string         `json:"run_id" bson:"run_id"`
	ComputedAt   time.Time      `json:"computed_at" bson:"computed_at"`
}

// SellerSnapshot is the per-seller payout projection across all categories,
// keyed by (business date, seller id).
type SellerSnapshot struct {
	BusinessDate string    `json:"business_date" bson:"business_date"`
	SellerID     string    `json:"seller_id" bson:"seller_id"`
	Credit       int64     `json:"credit" bson:"credit"`
	Debit        int64     `json:"debit" bson:"debit"`
	Net          int64     `json:"net" bson:"net"`
	RunID        string    `json:"run_id" bson:"run_id"`
	ComputedAt   time.Time `json:"computed_at" bson:"computed_at"`
}

// CommissionSnapshot totals the platform commission account for the date.
// Keyed by business date.
type CommissionSnapshot struct {
	BusinessDate string    `json:"business_date" bson:"business_date"`
	AccountKey   string    `json:"account_key" bson:"account_key"`
	Credit       int64     `json:"credit" bson:"credit"`
	Debit        int64     `json:"debit" bson:"debit"`
	Net          int64     `json:"net" bson:"net"`
	RunID        string    `json:"run_id" bson:"run_id"`
	ComputedAt   time.Time `json:"computed_at" bson:"computed_at"`
}

// ReportSection summarizes one snapshot collection inside the daily report
type ReportSection struct {
	Count int64 `json:"count" bson:"count"`
	Net   int64 `json:"net" bson:"net"`
}

// DailyReport is the consolidated report assembled from the four snapshot
// collections; it never re-reads the ledger. Keyed by business date.
type DailyReport struct {
	BusinessDate string         `json:"business_date" bson:"business_date"`
	Window       closing.Window `json:"window" bson:"window"`
	Accounts     ReportSection  `json:"accounts" bson:"accounts"`
	COD          ReportSection  `json:"cod" bson:"cod"`
	Sellers      ReportSection  `json:"sellers" bson:"sellers"`
	Commission   ReportSection  `json:"commission" bson:"commission"`
	RunID        string         `json:"run_id" bson:"run_id"`
	ComputedAt   time.Time      `json:"computed_at" bson:"computed_at"`
}
