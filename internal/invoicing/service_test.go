package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepo is an in-memory Repository/TxRepository double. It enforces the
// same uniqueness rules the database schema does, raising the internal
// duplicate markers so the service's conflict handling is exercised end to
// end.
type memoryRepo struct {
	invoices       map[int64]*Invoice
	nextInvoiceID  int64
	nextLineID     int64
	agentSequences map[int64]int64
	docSequences   map[string]int64
	usedNumbers    map[int64]map[int64]bool // agentID -> number -> taken
	claimed        map[int64]int64          // assignmentID -> invoiceID
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		invoices:       make(map[int64]*Invoice),
		nextInvoiceID:  1,
		nextLineID:     1,
		agentSequences: make(map[int64]int64),
		docSequences:   make(map[string]int64),
		usedNumbers:    make(map[int64]map[int64]bool),
		claimed:        make(map[int64]int64),
	}
}

type memorySnapshot struct {
	invoiceCount int
	claimCount   int
	agentSeq     map[int64]int64
	docSeq       map[string]int64
}

func (m *memoryRepo) snapshot() memorySnapshot {
	snap := memorySnapshot{
		invoiceCount: len(m.invoices),
		claimCount:   len(m.claimed),
		agentSeq:     make(map[int64]int64, len(m.agentSequences)),
		docSeq:       make(map[string]int64, len(m.docSequences)),
	}
	for k, v := range m.agentSequences {
		snap.agentSeq[k] = v
	}
	for k, v := range m.docSequences {
		snap.docSeq[k] = v
	}
	return snap
}

// WithTx runs fn against a throwaway copy-on-failure view: on error the
// repository rolls back to the pre-transaction snapshot, matching the real
// all-or-nothing transaction.
func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	before := m.snapshot()
	beforeInvoices := make(map[int64]*Invoice, len(m.invoices))
	for id, inv := range m.invoices {
		cp := *inv
		beforeInvoices[id] = &cp
	}
	beforeClaims := make(map[int64]int64, len(m.claimed))
	for k, v := range m.claimed {
		beforeClaims[k] = v
	}
	beforeUsed := make(map[int64]map[int64]bool, len(m.usedNumbers))
	for agent, numbers := range m.usedNumbers {
		cp := make(map[int64]bool, len(numbers))
		for n, taken := range numbers {
			cp[n] = taken
		}
		beforeUsed[agent] = cp
	}

	if err := fn(ctx, &memoryTxRepo{repo: m}); err != nil {
		m.invoices = beforeInvoices
		m.claimed = beforeClaims
		m.usedNumbers = beforeUsed
		m.agentSequences = before.agentSeq
		m.docSequences = before.docSeq
		m.nextInvoiceID = int64(before.invoiceCount) + 1
		return err
	}
	return nil
}

func (m *memoryRepo) GetInvoice(_ context.Context, id int64) (Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return Invoice{}, ErrNotFound
	}
	return *inv, nil
}

func (m *memoryRepo) GetAgentSequence(_ context.Context, agentID int64) (int64, error) {
	return m.agentSequences[agentID], nil
}

func (m *memoryRepo) ClaimedAssignments(_ context.Context, assignmentIDs []int64) ([]int64, error) {
	var out []int64
	for _, id := range assignmentIDs {
		if _, ok := m.claimed[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

type memoryTxRepo struct {
	repo *memoryRepo
}

func (t *memoryTxRepo) NextSequence(_ context.Context, prefix string, year int) (int64, error) {
	key := fmt.Sprintf("%s-%d", prefix, year)
	current, ok := t.repo.docSequences[key]
	if !ok {
		current = 1
	}
	t.repo.docSequences[key] = current + 1
	return current, nil
}

func (t *memoryTxRepo) AgentSequenceForUpdate(_ context.Context, agentID int64) (int64, error) {
	return t.repo.agentSequences[agentID], nil
}

func (t *memoryTxRepo) SetAgentSequence(_ context.Context, agentID, value int64) error {
	t.repo.agentSequences[agentID] = value
	return nil
}

func (t *memoryTxRepo) InsertInvoice(_ context.Context, inv *Invoice) error {
	if inv.Kind == KindAgent && inv.AgentID != nil && inv.AgentNumber != nil {
		used := t.repo.usedNumbers[*inv.AgentID]
		if used[*inv.AgentNumber] {
			return errDuplicateNumber
		}
		if used == nil {
			used = make(map[int64]bool)
			t.repo.usedNumbers[*inv.AgentID] = used
		}
		used[*inv.AgentNumber] = true
	}
	inv.ID = t.repo.nextInvoiceID
	t.repo.nextInvoiceID++
	now := time.Now()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	cp := *inv
	t.repo.invoices[inv.ID] = &cp
	return nil
}

func (t *memoryTxRepo) InsertLineItem(_ context.Context, line *LineItem) error {
	if _, ok := t.repo.claimed[line.JobAssignmentID]; ok {
		return errDuplicateClaim
	}
	line.ID = t.repo.nextLineID
	t.repo.nextLineID++
	t.repo.claimed[line.JobAssignmentID] = line.InvoiceID
	if inv, ok := t.repo.invoices[line.InvoiceID]; ok {
		inv.Lines = append(inv.Lines, *line)
	}
	return nil
}

func (t *memoryTxRepo) MarkVoid(_ context.Context, invoiceID int64) error {
	inv, ok := t.repo.invoices[invoiceID]
	if !ok || inv.Status == StatusVoid {
		return ErrNotFound
	}
	inv.Status = StatusVoid
	for i := range inv.Lines {
		inv.Lines[i].Voided = true
		delete(t.repo.claimed, inv.Lines[i].JobAssignmentID)
	}
	return nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, slog.Default(), nil)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func agentLines(assignmentIDs ...int64) []LineItemInput {
	lines := make([]LineItemInput, 0, len(assignmentIDs))
	for _, id := range assignmentIDs {
		lines = append(lines, LineItemInput{
			JobAssignmentID: id,
			HoursWorked:     dec("8"),
			RateNet:         dec("45"),
			Headcount:       1,
		})
	}
	return lines
}

func TestSuggestAgentNumberStartsAtOne(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	suggestion, err := svc.SuggestAgentNumber(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(0), suggestion.Current)
	assert.Equal(t, int64(1), suggestion.Suggested)
}

func TestCreateAgentInvoiceUsesSuggestionWhenNoOverride(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	first, err := svc.CreateAgentInvoice(ctx, CreateAgentInvoiceInput{AgentID: 7, Lines: agentLines(101)})
	require.NoError(t, err)
	require.NotNil(t, first.AgentNumber)
	assert.Equal(t, int64(1), *first.AgentNumber)

	second, err := svc.CreateAgentInvoice(ctx, CreateAgentInvoiceInput{AgentID: 7, Lines: agentLines(102)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), *second.AgentNumber)
}

func TestCreateAgentInvoiceOverrideAdvancesCounterToMax(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	jump := int64(50)
	_, err := svc.CreateAgentInvoice(ctx, CreateAgentInvoiceInput{AgentID: 7, RequestedNumber: &jump, Lines: agentLines(101)})
	require.NoError(t, err)

	// Counter followed the jump: the next suggestion continues from 50.
	suggestion, err := svc.SuggestAgentNumber(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(51), suggestion.Suggested)

	next, err := svc.CreateAgentInvoice(ctx, CreateAgentInvoiceInput{AgentID: 7, Lines: agentLines(102)})
	require.NoError(t, err)
	assert.Equal(t, int64(51), *next.AgentNumber)
}

func TestCreateAgentInvoiceBackfillBelowCounterKeepsCounter(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	jump := int64(10)
	_, err := svc.CreateAgentInvoice(ctx, CreateAgentInvoiceInput{AgentID: 7, RequestedNumber: &jump, Lines: agentLines(101)})
	require.NoError(t, err)

	backfill := int64(3)
	_, err = svc.CreateAgentInvoice(ctx, CreateAgentInvoiceInput{AgentID: 7, RequestedNumber: &backfill, Lines: agentLines(102)})
	require.NoError(t, err)

	// Filling an old gap must not move the counter backward.
	suggestion, err := svc.SuggestAgentNumber(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(11), suggestion.Suggested)
}

func TestCreateAgentInvoiceDuplicateNumberReportsFreshSuggestion(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	taken := int64(4)
	_, err := svc.CreateAgentInvoice(ctx, CreateAgentInvoiceInput{AgentID: 7, RequestedNumber: &taken, Lines: agentLines(101)})
	require.NoError(t, err)

	_, err = svc.CreateAgentInvoice(ctx, CreateAgentInvoiceInput{AgentID: 7, RequestedNumber: &taken, Lines: agentLines(102)})
	var dup *DuplicateNumberError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, int64(4), dup.Requested)
	assert.Equal(t, int64(4), dup.Current)
	assert.Equal(t, int64(5), dup.Suggested)

	// The failed attempt left nothing behind: assignment 102 is still free.
	claimed, err := repo.ClaimedAssignments(ctx, []int64{102})
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestCreateAgentInvoiceClaimConflictNamesAssignments(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreateAgentInvoice(ctx, CreateAgentInvoiceInput{AgentID: 7, Lines: agentLines(101, 102)})
	require.NoError(t, err)

	_, err = svc.CreateAgentInvoice(ctx, CreateAgentInvoiceInput{AgentID: 8, Lines: agentLines(102, 103)})
	var dup *DuplicateClaimError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, []int64{102}, dup.AssignmentIDs)

	// Rollback covers the whole document: 103 was not claimed either.
	claimed, err := repo.ClaimedAssignments(ctx, []int64{103})
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestCreateAgentInvoiceDerivesTotals(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	rate := dec("0.20")

	inv, err := svc.CreateAgentInvoice(context.Background(), CreateAgentInvoiceInput{
		AgentID: 7,
		VATRate: &rate,
		Lines: []LineItemInput{
			{JobAssignmentID: 101, HoursWorked: dec("7.5"), RateNet: dec("45"), Headcount: 1},
			{JobAssignmentID: 102, HoursWorked: dec("8"), RateNet: dec("52.5"), Headcount: 2},
		},
	})
	require.NoError(t, err)

	// 7.5*45 = 337.50, 8*52.5 = 420.00
	assert.True(t, inv.NetAmount.Equal(dec("757.50")), "net %s", inv.NetAmount)
	require.NotNil(t, inv.VATAmount)
	assert.True(t, inv.VATAmount.Equal(dec("151.50")), "vat %s", inv.VATAmount)
	assert.True(t, inv.TotalAmount.Equal(dec("909.00")), "total %s", inv.TotalAmount)
	require.Len(t, inv.Lines, 2)
	assert.True(t, inv.Lines[0].LineNet.Equal(dec("337.50")))
}

func TestCreateAgentInvoiceRejectsBadInput(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.CreateAgentInvoice(ctx, CreateAgentInvoiceInput{AgentID: 0, Lines: agentLines(101)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateAgentInvoice(ctx, CreateAgentInvoiceInput{AgentID: 7})
	assert.ErrorIs(t, err, ErrInvalidInput)

	bad := int64(-1)
	_, err = svc.CreateAgentInvoice(ctx, CreateAgentInvoiceInput{AgentID: 7, RequestedNumber: &bad, Lines: agentLines(101)})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateSupplierInvoiceNumbersAreStrictAndFormatted(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	first, err := svc.CreateSupplierInvoice(ctx, CreateSupplierInvoiceInput{
		SupplierID: 3, Prefix: "INV", Year: 2026, Lines: agentLines(201),
	})
	require.NoError(t, err)
	require.NotNil(t, first.DocNumber)
	assert.Equal(t, "INV2026-0001", *first.DocNumber)

	second, err := svc.CreateSupplierInvoice(ctx, CreateSupplierInvoiceInput{
		SupplierID: 3, Prefix: "INV", Year: 2026, Lines: agentLines(202),
	})
	require.NoError(t, err)
	assert.Equal(t, "INV2026-0002", *second.DocNumber)

	// A different (prefix, year) key runs its own sequence.
	other, err := svc.CreateSupplierInvoice(ctx, CreateSupplierInvoiceInput{
		SupplierID: 3, Prefix: "INV", Year: 2027, Lines: agentLines(203),
	})
	require.NoError(t, err)
	assert.Equal(t, "INV2027-0001", *other.DocNumber)
}

func TestCreateSupplierInvoiceRejectsBadYear(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	_, err := svc.CreateSupplierInvoice(context.Background(), CreateSupplierInvoiceInput{
		SupplierID: 3, Prefix: "INV", Year: 199, Lines: agentLines(201),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestVoidInvoiceReleasesClaimsButNotNumber(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	inv, err := svc.CreateAgentInvoice(ctx, CreateAgentInvoiceInput{AgentID: 7, Lines: agentLines(101)})
	require.NoError(t, err)

	require.NoError(t, svc.VoidInvoice(ctx, inv.ID))

	got, err := svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVoid, got.Status)

	// The assignment can be billed again on a fresh document.
	rebilled, err := svc.CreateAgentInvoice(ctx, CreateAgentInvoiceInput{AgentID: 7, Lines: agentLines(101)})
	require.NoError(t, err)

	// But the voided number stays consumed.
	assert.Equal(t, int64(2), *rebilled.AgentNumber)
	reuse := int64(1)
	_, err = svc.CreateAgentInvoice(ctx, CreateAgentInvoiceInput{AgentID: 7, RequestedNumber: &reuse, Lines: agentLines(103)})
	var dup *DuplicateNumberError
	require.ErrorAs(t, err, &dup)
}

func TestVoidInvoiceNotFound(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	err := svc.VoidInvoice(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetInvoiceNotFound(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	_, err := svc.GetInvoice(context.Background(), 12345)
	assert.True(t, errors.Is(err, ErrNotFound))
}
