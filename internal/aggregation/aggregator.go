// Package aggregation computes daily-close balances from the immutable
// ledger. The computation is a pure function of ledger state and the window:
// re-running it over an unchanged ledger yields identical output, which is
// what makes close retries and settlement re-runs safe.
package aggregation

import (
	"context"
	"log/slog"
	"sort"

	"github.com/marketplace-ledger/settlement-engine/internal/domain/closing"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/ledger"
)

// Result is the full output of one daily-close computation
type Result struct {
	Totals     closing.Totals
	PerAccount []closing.AccountBalance
	Audit      closing.Audit
}

// Aggregator derives per-account balances and totals for a close window
type Aggregator struct {
	ledgerRepo ledger.Repository
	logger     *slog.Logger
}

// NewAggregator creates an aggregator over the given ledger repository
func NewAggregator(logger *slog.Logger, ledgerRepo ledger.Repository) *Aggregator {
	return &Aggregator{
		ledgerRepo: ledgerRepo,
		logger:     logger,
	}
}

// ComputeDailyClose runs two independent aggregations, movement within
// [from, to) and balances accumulated strictly before from, and merges them:
// closing = opening + inflow - outflow. Accounts with history before the
// window but no activity inside it are omitted from PerAccount.
func (a *Aggregator) ComputeDailyClose(ctx context.Context, window closing.Window) (*Result, error) {
	flows, err := a.ledgerRepo.SumWindowByAccount(ctx, window.From, window.To, "")
	if err != nil {
		return nil, err
	}

	openings, err := a.ledgerRepo.SumOpeningByAccount(ctx, window.From)
	if err != nil {
		return nil, err
	}

	audit, err := a.ledgerRepo.AuditWindow(ctx, window.From, window.To)
	if err != nil {
		return nil, err
	}

	result := Merge(flows, openings)
	result.Audit = closing.Audit{
		LedgerCount: audit.LedgerCount,
		MaxPostedAt: audit.MaxPostedAt,
	}

	a.logger.Debug("Computed daily close",
		"from", window.FromISO,
		"to", window.ToISO,
		"accounts", len(result.PerAccount),
		"ledger_count", result.Audit.LedgerCount,
	)

	return result, nil
}

// Merge combines window flows with opening balances into per-account lines
// and grand totals, sorted by account key for deterministic output.
func Merge(flows []ledger.AccountFlow, openings []ledger.AccountOpening) *Result {
	openingByAccount := make(map[string]int64, len(openings))
	for _, op := range openings {
		openingByAccount[op.AccountKey] = op.Opening
	}

	result := &Result{PerAccount: make([]closing.AccountBalance, 0, len(flows))}
	for _, flow := range flows {
		net := flow.Net()
		opening := openingByAccount[flow.AccountKey]
		result.PerAccount = append(result.PerAccount, closing.AccountBalance{
			AccountKey: flow.AccountKey,
			Opening:    opening,
			Inflow:     flow.Inflow,
			Outflow:    flow.Outflow,
			Net:        net,
			Closing:    opening + net,
		})
		result.Totals.Inflow += flow.Inflow
		result.Totals.Outflow += flow.Outflow
	}
	result.Totals.Net = result.Totals.Inflow - result.Totals.Outflow

	sort.Slice(result.PerAccount, func(i, j int) bool {
		return result.PerAccount[i].AccountKey < result.PerAccount[j].AccountKey
	})

	return result
}
