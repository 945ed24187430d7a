package settlement_worker

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/marketplace-ledger/settlement-engine/internal/domain/closing"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/lease"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/ledger"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/outbox"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/settlement"
)

type MockLeaseRepository struct {
	mock.Mock
}

func (m *MockLeaseRepository) Acquire(ctx context.Context, key, owner, runID string, ttl time.Duration) (*lease.AcquireResult, error) {
	args := m.Called(ctx, key, owner, runID, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lease.AcquireResult), args.Error(1)
}

func (m *MockLeaseRepository) Release(ctx context.Context, key, owner string) error {
	args := m.Called(ctx, key, owner)
	return args.Error(0)
}

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

type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) GetByDate(ctx context.Context, businessDate string) (*settlement.Run, error) {
	args := m.Called(ctx, businessDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Run), args.Error(1)
}

func (m *MockRunRepository) UpsertRun(ctx context.Context, businessDate string, closeID primitive.ObjectID, window closing.Window, runID string) (*settlement.Run, error) {
	args := m.Called(ctx, businessDate, closeID, window, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Run), args.Error(1)
}

func (m *MockRunRepository) MarkRunRunning(ctx context.Context, businessDate string) error {
	args := m.Called(ctx, businessDate)
	return args.Error(0)
}

func (m *MockRunRepository) MarkStepRunning(ctx context.Context, businessDate string, step settlement.StepName) (int, error) {
	args := m.Called(ctx, businessDate, step)
	return args.Int(0), args.Error(1)
}

func (m *MockRunRepository) MarkStepCompleted(ctx context.Context, businessDate string, step settlement.StepName, result map[string]any) error {
	args := m.Called(ctx, businessDate, step, result)
	return args.Error(0)
}

func (m *MockRunRepository) MarkRunCompleted(ctx context.Context, businessDate string) error {
	args := m.Called(ctx, businessDate)
	return args.Error(0)
}

func (m *MockRunRepository) MarkRunFailed(ctx context.Context, businessDate string, step settlement.StepName, cause string) error {
	args := m.Called(ctx, businessDate, step, cause)
	return args.Error(0)
}

type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) UpsertAccountSnapshots(ctx context.Context, snapshots []settlement.AccountSnapshot) error {
	args := m.Called(ctx, snapshots)
	return args.Error(0)
}

func (m *MockSnapshotRepository) UpsertCODSnapshot(ctx context.Context, snapshot *settlement.CODSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockSnapshotRepository) UpsertSellerSnapshots(ctx context.Context, snapshots []settlement.SellerSnapshot) error {
	args := m.Called(ctx, snapshots)
	return args.Error(0)
}

func (m *MockSnapshotRepository) UpsertCommissionSnapshot(ctx context.Context, snapshot *settlement.CommissionSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockSnapshotRepository) UpsertDailyReport(ctx context.Context, report *settlement.DailyReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockSnapshotRepository) GetAccountSnapshots(ctx context.Context, businessDate string) ([]settlement.AccountSnapshot, error) {
	args := m.Called(ctx, businessDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.AccountSnapshot), args.Error(1)
}

func (m *MockSnapshotRepository) GetCODSnapshot(ctx context.Context, businessDate string) (*settlement.CODSnapshot, error) {
	args := m.Called(ctx, businessDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.CODSnapshot), args.Error(1)
}

func (m *MockSnapshotRepository) GetSellerSnapshots(ctx context.Context, businessDate string) ([]settlement.SellerSnapshot, error) {
	args := m.Called(ctx, businessDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.SellerSnapshot), args.Error(1)
}

func (m *MockSnapshotRepository) GetCommissionSnapshot(ctx context.Context, businessDate string) (*settlement.CommissionSnapshot, error) {
	args := m.Called(ctx, businessDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.CommissionSnapshot), args.Error(1)
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Create(ctx context.Context, event *outbox.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockRunProcessor struct {
	mock.Mock
}

func (m *MockRunProcessor) ProcessRun(ctx context.Context, close *closing.Close) error {
	args := m.Called(ctx, close)
	return args.Error(0)
}
