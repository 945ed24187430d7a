package aggregation

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marketplace-ledger/settlement-engine/internal/domain/closing"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/ledger"
)

type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) SumWindowByAccount(ctx context.Context, from, to time.Time, category string) ([]ledger.AccountFlow, error) {
	args := m.Called(ctx, from, to, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.AccountFlow), args.Error(1)
}

func (m *MockLedgerRepository) SumOpeningByAccount(ctx context.Context, before time.Time) ([]ledger.AccountOpening, error) {
	args := m.Called(ctx, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.AccountOpening), args.Error(1)
}

func (m *MockLedgerRepository) AuditWindow(ctx context.Context, from, to time.Time) (*ledger.WindowAudit, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.WindowAudit), args.Error(1)
}

func testWindow() closing.Window {
	from := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	return closing.Window{
		From:    from,
		To:      to,
		FromISO: from.Format(time.RFC3339),
		ToISO:   to.Format(time.RFC3339),
	}
}

func TestMerge(t *testing.T) {
	flows := []ledger.AccountFlow{
		{AccountKey: "seller:2", Inflow: 300, Outflow: 120},
		{AccountKey: "seller:1", Inflow: 1000, Outflow: 0},
		{AccountKey: "platform:commission", Inflow: 600, Outflow: 50},
	}
	openings := []ledger.AccountOpening{
		{AccountKey: "seller:1", Opening: 250},
		{AccountKey: "dormant:9", Opening: 9000}, // no window activity
	}

	result := Merge(flows, openings)

	// Accounts active only before the window carry no line
	require.Len(t, result.PerAccount, 3)

	// Output is sorted by account key
	assert.Equal(t, "platform:commission", result.PerAccount[0].AccountKey)
	assert.Equal(t, "seller:1", result.PerAccount[1].AccountKey)
	assert.Equal(t, "seller:2", result.PerAccount[2].AccountKey)

	seller1 := result.PerAccount[1]
	assert.Equal(t, int64(250), seller1.Opening)
	assert.Equal(t, int64(1000), seller1.Net)
	assert.Equal(t, int64(1250), seller1.Closing)

	commission := result.PerAccount[0]
	assert.Equal(t, int64(0), commission.Opening)
	assert.Equal(t, int64(550), commission.Net)
	assert.Equal(t, int64(550), commission.Closing)

	assert.Equal(t, int64(1900), result.Totals.Inflow)
	assert.Equal(t, int64(170), result.Totals.Outflow)
	assert.Equal(t, int64(1730), result.Totals.Net)
}

func TestMerge_Deterministic(t *testing.T) {
	flows := []ledger.AccountFlow{
		{AccountKey: "b", Inflow: 2, Outflow: 1},
		{AccountKey: "a", Inflow: 5, Outflow: 0},
	}
	openings := []ledger.AccountOpening{{AccountKey: "a", Opening: 10}}

	first := Merge(flows, openings)
	second := Merge(flows, openings)

	assert.Equal(t, first, second, "merging the same inputs twice must be identical")
}

func TestMerge_BalanceContinuity(t *testing.T) {
	// Closing of day D must equal the opening the next day's aggregation
	// would compute, which is opening(D) plus net(D).
	dayOne := Merge(
		[]ledger.AccountFlow{{AccountKey: "seller:1", Inflow: 500, Outflow: 100}},
		[]ledger.AccountOpening{{AccountKey: "seller:1", Opening: 50}},
	)
	closingDayOne := dayOne.PerAccount[0].Closing
	assert.Equal(t, int64(450), closingDayOne)

	dayTwo := Merge(
		[]ledger.AccountFlow{{AccountKey: "seller:1", Inflow: 10, Outflow: 0}},
		[]ledger.AccountOpening{{AccountKey: "seller:1", Opening: closingDayOne}},
	)
	assert.Equal(t, closingDayOne, dayTwo.PerAccount[0].Opening)
	assert.Equal(t, int64(460), dayTwo.PerAccount[0].Closing)
}

func TestComputeDailyClose(t *testing.T) {
	window := testWindow()
	maxPosted := window.To.Add(-time.Hour)

	mockRepo := &MockLedgerRepository{}
	mockRepo.On("SumWindowByAccount", mock.Anything, window.From, window.To, "").
		Return([]ledger.AccountFlow{{AccountKey: "seller:1", Inflow: 100, Outflow: 40}}, nil).Once()
	mockRepo.On("SumOpeningByAccount", mock.Anything, window.From).
		Return([]ledger.AccountOpening{{AccountKey: "seller:1", Opening: 25}}, nil).Once()
	mockRepo.On("AuditWindow", mock.Anything, window.From, window.To).
		Return(&ledger.WindowAudit{LedgerCount: 7, MaxPostedAt: &maxPosted}, nil).Once()

	aggregator := NewAggregator(slog.Default(), mockRepo)
	result, err := aggregator.ComputeDailyClose(context.Background(), window)

	require.NoError(t, err)
	require.Len(t, result.PerAccount, 1)
	assert.Equal(t, int64(85), result.PerAccount[0].Closing)
	assert.Equal(t, int64(7), result.Audit.LedgerCount)
	assert.Equal(t, &maxPosted, result.Audit.MaxPostedAt)
	mockRepo.AssertExpectations(t)
}

func TestComputeDailyClose_RepositoryError(t *testing.T) {
	window := testWindow()

	mockRepo := &MockLedgerRepository{}
	mockRepo.On("SumWindowByAccount", mock.Anything, window.From, window.To, "").
		Return(nil, errors.New("aggregation pipeline failed")).Once()

	aggregator := NewAggregator(slog.Default(), mockRepo)
	_, err := aggregator.ComputeDailyClose(context.Background(), window)

	assert.Error(t, err)
	mockRepo.AssertExpectations(t)
}
