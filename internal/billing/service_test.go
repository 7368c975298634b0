package billing

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepo is an in-memory Repository/TxRepository double.
type memoryRepo struct {
	configs    map[int64]*BillingConfig
	agentHours map[int64][]AgentHours
	costs      map[int64]JobCosts
	expenses   []Expense
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		configs:    make(map[int64]*BillingConfig),
		agentHours: make(map[int64][]AgentHours),
		costs:      make(map[int64]JobCosts),
		nextID:     1,
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTxRepo{repo: m})
}

func (m *memoryRepo) GetBillingConfig(_ context.Context, jobID int64) (*BillingConfig, error) {
	cfg, ok := m.configs[jobID]
	if !ok {
		return nil, nil
	}
	cp := *cfg
	return &cp, nil
}

func (m *memoryRepo) ListAgentHours(_ context.Context, jobID int64) ([]AgentHours, error) {
	return m.agentHours[jobID], nil
}

func (m *memoryRepo) GetJobCosts(_ context.Context, jobID int64) (JobCosts, error) {
	return m.costs[jobID], nil
}

func (m *memoryRepo) CreateExpense(_ context.Context, input CreateExpenseInput) (Expense, error) {
	vat := input.AmountNet.Mul(input.VATRate).Round(2)
	e := Expense{
		ID:          m.nextID,
		JobID:       input.JobID,
		Description: input.Description,
		AmountNet:   input.AmountNet,
		VATRate:     input.VATRate,
		VATAmount:   vat,
		AmountGross: input.AmountNet.Add(vat),
		IncurredOn:  input.IncurredOn,
		CreatedAt:   time.Now(),
	}
	m.nextID++
	m.expenses = append(m.expenses, e)
	return e, nil
}

func (m *memoryRepo) ListExpenses(_ context.Context, jobID *int64) ([]Expense, error) {
	if jobID == nil {
		return m.expenses, nil
	}
	var out []Expense
	for _, e := range m.expenses {
		if e.JobID != nil && *e.JobID == *jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memoryTxRepo struct {
	repo *memoryRepo
}

func (t *memoryTxRepo) GetBillingConfigForUpdate(ctx context.Context, jobID int64) (*BillingConfig, error) {
	return t.repo.GetBillingConfig(ctx, jobID)
}

func (t *memoryTxRepo) UpdateCalculatedHours(_ context.Context, jobID int64, hours HoursResult) error {
	cfg, ok := t.repo.configs[jobID]
	if !ok {
		return ErrInvalidInput
	}
	cfg.BillableHoursCalculated = hours.TotalHours
	cfg.FirstHourUnits = hours.FirstHourUnits
	return nil
}

func (t *memoryTxRepo) WriteSnapshot(_ context.Context, jobID int64, snap RevenueSnapshot, pinnedHours decimal.Decimal) error {
	cfg, ok := t.repo.configs[jobID]
	if !ok || cfg.Snapshot != nil {
		return ErrInvalidInput
	}
	cfg.Snapshot = &snap
	cfg.BillableHoursOverride = &pinnedHours
	return nil
}

func (t *memoryTxRepo) ClearSnapshot(_ context.Context, jobID int64) error {
	if cfg, ok := t.repo.configs[jobID]; ok {
		cfg.Snapshot = nil
	}
	return nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, testPolicy(), slog.Default(), nil)
}

func configuredJob(repo *memoryRepo, jobID int64) {
	repo.configs[jobID] = &BillingConfig{
		JobID:             jobID,
		HourlyRateNet:     dec("45"),
		FirstHourRateNet:  decPtr("120"),
		NoticeFeeNet:      dec("75"),
		VATRate:           dec("0.20"),
		PlannedAgentCount: 3,
	}
}

func TestAggregateHoursPersistsDerivedFields(t *testing.T) {
	repo := newMemoryRepo()
	configuredJob(repo, 1)
	repo.agentHours[1] = []AgentHours{
		{AgentID: 10, Hours: dec("12")},
		{AgentID: 11, Hours: dec("10")},
		{AgentID: 12, Hours: dec("8")},
	}
	svc := newTestService(repo)

	got, err := svc.AggregateHours(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.True(t, got.TotalHours.Equal(dec("30")))
	assert.Equal(t, 3, got.FirstHourUnits)
	assert.Empty(t, got.Warnings)

	cfg := repo.configs[1]
	assert.True(t, cfg.BillableHoursCalculated.Equal(dec("30")))
	assert.Equal(t, 3, cfg.FirstHourUnits)
}

func TestAggregateHoursHeadcountMismatchWarns(t *testing.T) {
	repo := newMemoryRepo()
	configuredJob(repo, 1)
	repo.agentHours[1] = []AgentHours{{AgentID: 10, Hours: dec("8")}}
	svc := newTestService(repo)

	got, err := svc.AggregateHours(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Warnings, 1)
	assert.Contains(t, got.Warnings[0], "1 distinct agents")
	assert.Contains(t, got.Warnings[0], "3 planned")
}

func TestAggregateHoursMissingConfigIsNilNotError(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	got, err := svc.AggregateHours(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAggregateHoursRejectsBadJobID(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	_, err := svc.AggregateHours(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRevenueMissingConfigIsNil(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	got, err := svc.Revenue(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLockSnapshotIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	configuredJob(repo, 1)
	repo.configs[1].BillableHoursCalculated = dec("30")
	repo.configs[1].FirstHourUnits = 3
	svc := newTestService(repo)
	ctx := context.Background()

	first, locked, err := svc.LockSnapshot(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, locked)
	assert.True(t, first.Net.Equal(dec("1650")), "net %s", first.Net)
	assert.True(t, first.VAT.Equal(dec("330.00")))
	assert.True(t, first.Gross.Equal(dec("1980.00")))

	// Later invoice edits move the live inputs.
	repo.configs[1].BillableHoursCalculated = dec("99")

	second, locked, err := svc.LockSnapshot(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.False(t, locked, "second lock must be a no-op")
	assert.True(t, second.Net.Equal(first.Net))
	assert.True(t, second.VAT.Equal(first.VAT))
	assert.True(t, second.Gross.Equal(first.Gross))
}

func TestLockSnapshotPinsHours(t *testing.T) {
	repo := newMemoryRepo()
	configuredJob(repo, 1)
	repo.configs[1].BillableHoursCalculated = dec("30")
	svc := newTestService(repo)

	_, _, err := svc.LockSnapshot(context.Background(), 1)
	require.NoError(t, err)

	cfg := repo.configs[1]
	require.NotNil(t, cfg.BillableHoursOverride)
	assert.True(t, cfg.BillableHoursOverride.Equal(dec("30")))
}

func TestLockSnapshotMissingConfig(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	snap, locked, err := svc.LockSnapshot(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.False(t, locked)
}

func TestReopenSnapshotMakesJobCalculableAgain(t *testing.T) {
	repo := newMemoryRepo()
	configuredJob(repo, 1)
	repo.configs[1].BillableHoursCalculated = dec("30")
	svc := newTestService(repo)
	ctx := context.Background()

	_, _, err := svc.LockSnapshot(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, svc.ReopenSnapshot(ctx, 1))

	view, err := svc.Revenue(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.False(t, view.Locked)
	assert.Nil(t, view.Snapshot)
}

func TestProfitUsesSnapshotWhenLocked(t *testing.T) {
	repo := newMemoryRepo()
	configuredJob(repo, 1)
	repo.configs[1].BillableHoursCalculated = dec("30")
	repo.configs[1].FirstHourUnits = 3
	repo.costs[1] = JobCosts{InvoicedNet: dec("600"), InvoicedGross: dec("600")}
	svc := newTestService(repo)
	ctx := context.Background()

	_, _, err := svc.LockSnapshot(ctx, 1)
	require.NoError(t, err)

	// Post-lock edits must not move reported profit.
	repo.configs[1].BillableHoursCalculated = dec("500")
	repo.configs[1].BillableHoursOverride = nil

	got, err := svc.Profit(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Revenue.Net.Equal(dec("1650")), "net %s", got.Revenue.Net)
	assert.True(t, got.ProfitNet.Equal(dec("1050")), "profit %s", got.ProfitNet)
}

func TestCreateExpenseDerivesVAT(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	got, err := svc.CreateExpense(context.Background(), CreateExpenseInput{
		Description: "fuel",
		AmountNet:   dec("100"),
		VATRate:     dec("0.20"),
		IncurredOn:  time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, got.VATAmount.Equal(dec("20.00")))
	assert.True(t, got.AmountGross.Equal(dec("120.00")))
}

func TestCreateExpenseRejectsNegativeAmount(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	_, err := svc.CreateExpense(context.Background(), CreateExpenseInput{AmountNet: dec("-1"), VATRate: dec("0.20")})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
