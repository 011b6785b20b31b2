package ledger

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gearbox-erp/gearbox-erp/internal/billing"
	"github.com/gearbox-erp/gearbox-erp/internal/shared"
)

type fakeState struct {
	invoices    map[int64]Invoice
	payments    []Payment
	allocations []PaymentAllocation
	nextID      int64
}

func (s *fakeState) clone() *fakeState {
	c := &fakeState{
		invoices: make(map[int64]Invoice, len(s.invoices)),
		nextID:   s.nextID,
	}
	for id, inv := range s.invoices {
		inv.Lines = append([]billing.LineItem(nil), inv.Lines...)
		c.invoices[id] = inv
	}
	c.payments = append(c.payments, s.payments...)
	c.allocations = append(c.allocations, s.allocations...)
	return c
}

// fakeRepo rolls the state back when a transaction closure fails, matching
// the all-or-nothing contract of the real repository.
type fakeRepo struct {
	state *fakeState
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{state: &fakeState{invoices: make(map[int64]Invoice), nextID: 1}}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := f.state.clone()
	if err := fn(ctx, f); err != nil {
		f.state = snapshot
		return err
	}
	return nil
}

func (f *fakeRepo) nextID() int64 {
	id := f.state.nextID
	f.state.nextID++
	return id
}

func (f *fakeRepo) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, ok := f.state.invoices[id]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, nil
}

func (f *fakeRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return f.GetInvoice(ctx, id)
}

func (f *fakeRepo) GetInvoiceByWorkOrder(ctx context.Context, workOrderID int64) (Invoice, error) {
	for _, inv := range f.state.invoices {
		if inv.WorkOrderID != nil && *inv.WorkOrderID == workOrderID {
			return inv, nil
		}
	}
	return Invoice{}, ErrInvoiceNotFound
}

func (f *fakeRepo) outstandingByPayer(payerType PayerType, payerID int64) []Invoice {
	var out []Invoice
	for _, inv := range f.state.invoices {
		if inv.PayerType == payerType && inv.PayerID == payerID && inv.Outstanding() {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (f *fakeRepo) ListUnpaid(ctx context.Context) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range f.state.invoices {
		if inv.Status == InvoiceIssued || inv.Status == InvoicePartial {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) ListOutstandingByPayer(ctx context.Context, payerType PayerType, payerID int64) ([]Invoice, error) {
	return f.outstandingByPayer(payerType, payerID), nil
}

func (f *fakeRepo) ListOutstandingByPayerForUpdate(ctx context.Context, payerType PayerType, payerID int64) ([]Invoice, error) {
	return f.outstandingByPayer(payerType, payerID), nil
}

func (f *fakeRepo) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	if inv.WorkOrderID != nil {
		for _, existing := range f.state.invoices {
			if existing.WorkOrderID != nil && *existing.WorkOrderID == *inv.WorkOrderID {
				return Invoice{}, ErrWorkOrderAlreadyInvoiced
			}
		}
	}
	inv.ID = f.nextID()
	f.state.invoices[inv.ID] = inv
	return inv, nil
}

func (f *fakeRepo) InsertInvoiceLine(ctx context.Context, invoiceID int64, line billing.LineItem) (billing.LineItem, error) {
	line.ID = f.nextID()
	inv := f.state.invoices[invoiceID]
	inv.Lines = append(inv.Lines, line)
	f.state.invoices[invoiceID] = inv
	return line, nil
}

func (f *fakeRepo) UpdateInvoiceTotals(ctx context.Context, id int64, total, remaining decimal.Decimal) error {
	inv, ok := f.state.invoices[id]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.TotalAmount = total
	inv.RemainingBalance = remaining
	f.state.invoices[id] = inv
	return nil
}

func (f *fakeRepo) UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error {
	inv, ok := f.state.invoices[id]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.Status = status
	f.state.invoices[id] = inv
	return nil
}

func (f *fakeRepo) ApplyAllocationToInvoice(ctx context.Context, id int64, remaining decimal.Decimal, status InvoiceStatus) error {
	inv, ok := f.state.invoices[id]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.RemainingBalance = remaining
	inv.Status = status
	f.state.invoices[id] = inv
	return nil
}

func (f *fakeRepo) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	p.ID = f.nextID()
	f.state.payments = append(f.state.payments, p)
	return p, nil
}

func (f *fakeRepo) InsertAllocation(ctx context.Context, a PaymentAllocation) (PaymentAllocation, error) {
	a.ID = f.nextID()
	f.state.allocations = append(f.state.allocations, a)
	return a, nil
}

func (f *fakeRepo) ListPayments(ctx context.Context, payerType PayerType, payerID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range f.state.payments {
		if p.PayerType == payerType && p.PayerID == payerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListAllocationsByInvoice(ctx context.Context, invoiceID int64) ([]PaymentAllocation, error) {
	var out []PaymentAllocation
	for _, a := range f.state.allocations {
		if a.InvoiceID == invoiceID {
			out = append(out, a)
		}
	}
	return out, nil
}

func testLocker(t *testing.T) *shared.Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return shared.NewLocker(rdb, 5*time.Second)
}

func newTestService(t *testing.T, repo *fakeRepo) *Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, repo, testLocker(t))
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedIssuedInvoice(t *testing.T, repo *fakeRepo, payerID int64, total string, date time.Time) Invoice {
	t.Helper()
	inv, err := repo.InsertInvoice(context.Background(), Invoice{
		PayerType:        PayerClient,
		PayerID:          payerID,
		Date:             date,
		Status:           InvoiceIssued,
		TotalAmount:      d(total),
		RemainingBalance: d(total),
	})
	require.NoError(t, err)
	return inv
}

func TestPaymentLifecycleToPaid(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()
	inv := seedIssuedInvoice(t, repo, 1, "1000.00", time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))

	result, err := svc.RecordPayment(ctx, PaymentInput{
		PayerType:   PayerClient,
		PayerID:     1,
		Amount:      d("600.00"),
		Allocations: []AllocationRequest{{InvoiceID: inv.ID, Amount: d("600.00")}},
	})
	require.NoError(t, err)
	require.True(t, result.UnallocatedAmount.IsZero())

	got, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.True(t, got.RemainingBalance.Equal(d("400.00")))
	require.Equal(t, InvoicePartial, got.Status)

	_, err = svc.RecordPayment(ctx, PaymentInput{
		PayerType:   PayerClient,
		PayerID:     1,
		Amount:      d("400.00"),
		Allocations: []AllocationRequest{{InvoiceID: inv.ID, Amount: d("400.00")}},
	})
	require.NoError(t, err)

	got, err = svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.True(t, got.RemainingBalance.IsZero())
	require.Equal(t, InvoicePaid, got.Status)

	_, err = svc.RecordPayment(ctx, PaymentInput{
		PayerType:   PayerClient,
		PayerID:     1,
		Amount:      d("0.01"),
		Allocations: []AllocationRequest{{InvoiceID: inv.ID, Amount: d("0.01")}},
	})
	var overAlloc *OverAllocationError
	require.ErrorAs(t, err, &overAlloc)
	require.Equal(t, inv.ID, overAlloc.InvoiceID)
}

func TestAllocationsExceedingPaymentRollBack(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()
	inv := seedIssuedInvoice(t, repo, 1, "1000.00", time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.RecordPayment(ctx, PaymentInput{
		PayerType:   PayerClient,
		PayerID:     1,
		Amount:      d("300.00"),
		Allocations: []AllocationRequest{{InvoiceID: inv.ID, Amount: d("350.00")}},
	})
	require.ErrorIs(t, err, ErrAllocationExceedsPayment)

	payments, err := svc.ListPayments(ctx, PayerClient, 1)
	require.NoError(t, err)
	require.Empty(t, payments)

	got, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.True(t, got.RemainingBalance.Equal(d("1000.00")))
	require.Equal(t, InvoiceIssued, got.Status)
}

func TestOverAllocationRollsBackEverything(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()
	first := seedIssuedInvoice(t, repo, 1, "100.00", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	second := seedIssuedInvoice(t, repo, 1, "50.00", time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))

	// First allocation is fine, second exceeds its invoice. Neither may
	// stick.
	_, err := svc.RecordPayment(ctx, PaymentInput{
		PayerType: PayerClient,
		PayerID:   1,
		Amount:    d("200.00"),
		Allocations: []AllocationRequest{
			{InvoiceID: first.ID, Amount: d("100.00")},
			{InvoiceID: second.ID, Amount: d("80.00")},
		},
	})
	var overAlloc *OverAllocationError
	require.ErrorAs(t, err, &overAlloc)
	require.Equal(t, second.ID, overAlloc.InvoiceID)

	got, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, got.RemainingBalance.Equal(d("100.00")))

	payments, err := svc.ListPayments(ctx, PayerClient, 1)
	require.NoError(t, err)
	require.Empty(t, payments)
}

func TestAutoAllocationOldestFirst(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()
	oldest := seedIssuedInvoice(t, repo, 1, "100.00", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	middle := seedIssuedInvoice(t, repo, 1, "200.00", time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))
	newest := seedIssuedInvoice(t, repo, 1, "300.00", time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))

	result, err := svc.RecordPayment(ctx, PaymentInput{
		PayerType: PayerClient,
		PayerID:   1,
		Amount:    d("250.00"),
	})
	require.NoError(t, err)
	require.Len(t, result.Allocations, 2)
	require.Equal(t, oldest.ID, result.Allocations[0].InvoiceID)
	require.True(t, result.Allocations[0].Amount.Equal(d("100.00")))
	require.Equal(t, middle.ID, result.Allocations[1].InvoiceID)
	require.True(t, result.Allocations[1].Amount.Equal(d("150.00")))
	require.True(t, result.UnallocatedAmount.IsZero())

	got, err := svc.Get(ctx, newest.ID)
	require.NoError(t, err)
	require.True(t, got.RemainingBalance.Equal(d("300.00")))
}

func TestAutoAllocationReportsUnallocatedRemainder(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()
	inv := seedIssuedInvoice(t, repo, 1, "100.00", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))

	result, err := svc.RecordPayment(ctx, PaymentInput{
		PayerType: PayerClient,
		PayerID:   1,
		Amount:    d("150.00"),
	})
	require.NoError(t, err)
	require.True(t, result.UnallocatedAmount.Equal(d("50.00")))

	got, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, InvoicePaid, got.Status)
}

func TestRecordPaymentValidationOrder(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()
	mine := seedIssuedInvoice(t, repo, 1, "100.00", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	theirs := seedIssuedInvoice(t, repo, 2, "100.00", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.RecordPayment(ctx, PaymentInput{PayerType: PayerClient, PayerID: 1, Amount: d("0")})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.RecordPayment(ctx, PaymentInput{PayerType: "VENDOR", PayerID: 1, Amount: d("10")})
	require.ErrorIs(t, err, ErrInvalidPayer)

	_, err = svc.RecordPayment(ctx, PaymentInput{
		PayerType:   PayerClient,
		PayerID:     1,
		Amount:      d("10"),
		Allocations: []AllocationRequest{{InvoiceID: theirs.ID, Amount: d("10")}},
	})
	require.ErrorIs(t, err, ErrPayerMismatch)

	_, err = svc.RecordPayment(ctx, PaymentInput{
		PayerType:   PayerClient,
		PayerID:     1,
		Amount:      d("10"),
		Allocations: []AllocationRequest{{InvoiceID: mine.ID, Amount: d("-5")}},
	})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAllocationAgainstDraftInvoice(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	draft, err := repo.InsertInvoice(ctx, Invoice{
		PayerType:        PayerClient,
		PayerID:          1,
		Date:             time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Status:           InvoiceDraft,
		TotalAmount:      d("100.00"),
		RemainingBalance: d("100.00"),
	})
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, PaymentInput{
		PayerType:   PayerClient,
		PayerID:     1,
		Amount:      d("50.00"),
		Allocations: []AllocationRequest{{InvoiceID: draft.ID, Amount: d("50.00")}},
	})
	require.ErrorIs(t, err, ErrInvoiceNotIssued)
}

func TestInvoiceDraftLifecycle(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	woID := int64(7)
	line, err := billing.NewLineItem(1, "brake service", d("2"), d("150.00"), decimal.Zero)
	require.NoError(t, err)

	inv, err := svc.CreateFromWorkOrder(ctx, InvoiceSeed{
		PayerType:   PayerClient,
		PayerID:     1,
		WorkOrderID: &woID,
		Date:        time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC),
		Lines:       []billing.LineItem{line},
	})
	require.NoError(t, err)
	require.Equal(t, InvoiceDraft, inv.Status)
	require.True(t, inv.TotalAmount.Equal(d("300.00")))
	require.True(t, inv.RemainingBalance.Equal(d("300.00")))

	inv, err = svc.AddLine(ctx, inv.ID, 2, "oil filter", d("1"), d("40.00"), d("10"))
	require.NoError(t, err)
	require.True(t, inv.TotalAmount.Equal(d("336.00")))

	issued, err := svc.Issue(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceIssued, issued.Status)

	_, err = svc.AddLine(ctx, inv.ID, 3, "late line", d("1"), d("10.00"), decimal.Zero)
	require.ErrorIs(t, err, ErrNotDraft)

	_, err = svc.Issue(ctx, inv.ID)
	require.ErrorIs(t, err, ErrNotDraft)
}

func TestCancelOnlyDraftOrIssued(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()
	inv := seedIssuedInvoice(t, repo, 1, "100.00", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.RecordPayment(ctx, PaymentInput{
		PayerType:   PayerClient,
		PayerID:     1,
		Amount:      d("40.00"),
		Allocations: []AllocationRequest{{InvoiceID: inv.ID, Amount: d("40.00")}},
	})
	require.NoError(t, err)

	err = svc.Cancel(ctx, inv.ID)
	require.ErrorIs(t, err, ErrCancelNotAllowed)

	fresh := seedIssuedInvoice(t, repo, 1, "10.00", time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, svc.Cancel(ctx, fresh.ID))
}

func TestOutstandingTotalSumsBalances(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()
	seedIssuedInvoice(t, repo, 1, "100.00", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	seedIssuedInvoice(t, repo, 1, "250.50", time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))
	seedIssuedInvoice(t, repo, 2, "999.00", time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))

	total, err := svc.OutstandingTotal(ctx, PayerClient, 1)
	require.NoError(t, err)
	require.True(t, total.Equal(d("350.50")))
}

func TestCreateFromWorkOrderIsUniquePerOrder(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()
	workOrderID := int64(7)

	line, err := billing.NewLineItem(1, "Oil change", d("1"), d("25.00"), decimal.Zero)
	require.NoError(t, err)
	seed := InvoiceSeed{
		PayerType:   PayerClient,
		PayerID:     3,
		WorkOrderID: &workOrderID,
		Lines:       []billing.LineItem{line},
	}

	first, err := svc.CreateFromWorkOrder(ctx, seed)
	require.NoError(t, err)

	_, err = svc.CreateFromWorkOrder(ctx, seed)
	require.ErrorIs(t, err, ErrWorkOrderAlreadyInvoiced)

	got, err := svc.InvoiceByWorkOrder(ctx, workOrderID)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
}
