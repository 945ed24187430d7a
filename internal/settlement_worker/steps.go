package settlement_worker

import (
	"context"
	"sort"
	"time"

	"github.com/marketplace-ledger/settlement-engine/internal/domain/closing"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/ledger"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/settlement"
)

// snapshotAccounts projects the daily-close balance computation into the
// per-account snapshot collection. It recomputes from the ledger rather than
// copying the close record, so a settlement retry after a backfill reflects
// the ledger as it stands.
func (p *Processor) snapshotAccounts(ctx context.Context, businessDate string, window closing.Window, runID string) (map[string]any, error) {
	result, err := p.aggregator.ComputeDailyClose(ctx, window)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	snapshots := make([]settlement.AccountSnapshot, 0, len(result.PerAccount))
	for _, balance := range result.PerAccount {
		snapshots = append(snapshots, settlement.AccountSnapshot{
			BusinessDate: businessDate,
			AccountKey:   balance.AccountKey,
			Opening:      balance.Opening,
			Inflow:       balance.Inflow,
			Outflow:      balance.Outflow,
			Net:          balance.Net,
			Closing:      balance.Closing,
			RunID:        runID,
			ComputedAt:   now,
		})
	}

	if err := p.snapshotRepo.UpsertAccountSnapshots(ctx, snapshots); err != nil {
		return nil, err
	}

	return map[string]any{
		"accounts": len(snapshots),
		"net":      result.Totals.Net,
	}, nil
}

// snapshotCOD totals cash-on-delivery entries for the window, globally and
// per seller.
func (p *Processor) snapshotCOD(ctx context.Context, businessDate string, window closing.Window, runID string) (map[string]any, error) {
	flows, err := p.ledgerRepo.SumWindowByAccount(ctx, window.From, window.To, ledger.CategoryCODMarkedPaid)
	if err != nil {
		return nil, err
	}

	snapshot := &settlement.CODSnapshot{
		BusinessDate: businessDate,
		RunID:        runID,
		ComputedAt:   time.Now().UTC(),
	}
	perSeller := map[string]*settlement.SellerTotals{}
	for _, flow := range flows {
		snapshot.Credit += flow.Inflow
		snapshot.Debit += flow.Outflow
		sellerID, ok := ledger.SellerID(flow.AccountKey)
		if !ok {
			continue
		}
		totals, found := perSeller[sellerID]
		if !found {
			totals = &settlement.SellerTotals{SellerID: sellerID}
			perSeller[sellerID] = totals
		}
		totals.Credit += flow.Inflow
		totals.Debit += flow.Outflow
	}
	snapshot.Net = snapshot.Credit - snapshot.Debit

	snapshot.PerSeller = make([]settlement.SellerTotals, 0, len(perSeller))
	for _, totals := range perSeller {
		totals.Net = totals.Credit - totals.Debit
		snapshot.PerSeller = append(snapshot.PerSeller, *totals)
	}
	sort.Slice(snapshot.PerSeller, func(i, j int) bool {
		return snapshot.PerSeller[i].SellerID < snapshot.PerSeller[j].SellerID
	})

	if err := p.snapshotRepo.UpsertCODSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}

	return map[string]any{
		"sellers": len(snapshot.PerSeller),
		"net":     snapshot.Net,
	}, nil
}

// snapshotSeller folds all in-window movement on seller accounts into one
// payout line per seller, across every entry category.
func (p *Processor) snapshotSeller(ctx context.Context, businessDate string, window closing.Window, runID string) (map[string]any, error) {
	flows, err := p.ledgerRepo.SumWindowByAccount(ctx, window.From, window.To, "")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	snapshots := make([]settlement.SellerSnapshot, 0, len(flows))
	for _, flow := range flows {
		sellerID, ok := ledger.SellerID(flow.AccountKey)
		if !ok {
			continue
		}
		snapshots = append(snapshots, settlement.SellerSnapshot{
			BusinessDate: businessDate,
			SellerID:     sellerID,
			Credit:       flow.Inflow,
			Debit:        flow.Outflow,
			Net:          flow.Net(),
			RunID:        runID,
			ComputedAt:   now,
		})
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].SellerID < snapshots[j].SellerID
	})

	if err := p.snapshotRepo.UpsertSellerSnapshots(ctx, snapshots); err != nil {
		return nil, err
	}

	return map[string]any{"sellers": len(snapshots)}, nil
}

// snapshotCommission totals the platform commission account for the window.
// A day with no commission activity still writes a zero-valued snapshot so
// the report step always finds one.
func (p *Processor) snapshotCommission(ctx context.Context, businessDate string, window closing.Window, runID string) (map[string]any, error) {
	flows, err := p.ledgerRepo.SumWindowByAccount(ctx, window.From, window.To, "")
	if err != nil {
		return nil, err
	}

	snapshot := &settlement.CommissionSnapshot{
		BusinessDate: businessDate,
		AccountKey:   ledger.CommissionAccountKey,
		RunID:        runID,
		ComputedAt:   time.Now().UTC(),
	}
	for _, flow := range flows {
		if flow.AccountKey != ledger.CommissionAccountKey {
			continue
		}
		snapshot.Credit = flow.Inflow
		snapshot.Debit = flow.Outflow
		snapshot.Net = flow.Net()
		break
	}

	if err := p.snapshotRepo.UpsertCommissionSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}

	return map[string]any{"net": snapshot.Net}, nil
}

// finalReport assembles the consolidated daily report from the four snapshot
// collections written by the earlier steps. It never re-reads the ledger.
func (p *Processor) finalReport(ctx context.Context, businessDate string, window closing.Window, runID string) (map[string]any, error) {
	accounts, err := p.snapshotRepo.GetAccountSnapshots(ctx, businessDate)
	if err != nil {
		return nil, err
	}
	cod, err := p.snapshotRepo.GetCODSnapshot(ctx, businessDate)
	if err != nil {
		return nil, err
	}
	sellers, err := p.snapshotRepo.GetSellerSnapshots(ctx, businessDate)
	if err != nil {
		return nil, err
	}
	commission, err := p.snapshotRepo.GetCommissionSnapshot(ctx, businessDate)
	if err != nil {
		return nil, err
	}

	report := &settlement.DailyReport{
		BusinessDate: businessDate,
		Window:       window,
		RunID:        runID,
		ComputedAt:   time.Now().UTC(),
	}
	for _, snap := range accounts {
		report.Accounts.Count++
		report.Accounts.Net += snap.Net
	}
	if cod != nil {
		report.COD = settlement.ReportSection{
			Count: int64(len(cod.PerSeller)),
			Net:   cod.Net,
		}
	}
	for _, snap := range sellers {
		report.Sellers.Count++
		report.Sellers.Net += snap.Net
	}
	if commission != nil {
		report.Commission = settlement.ReportSection{Count: 1, Net: commission.Net}
	}

	if err := p.snapshotRepo.UpsertDailyReport(ctx, report); err != nil {
		return nil, err
	}

	return map[string]any{
		"accounts": report.Accounts.Count,
		"sellers":  report.Sellers.Count,
		"net":      report.Accounts.Net,
	}, nil
}
