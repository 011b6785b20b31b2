package workorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gearbox-erp/gearbox-erp/internal/billing"
	"github.com/gearbox-erp/gearbox-erp/internal/ledger"
	"github.com/gearbox-erp/gearbox-erp/internal/pricing"
	"github.com/gearbox-erp/gearbox-erp/internal/stock"
)

type storedLine struct {
	kind LineKind
	line billing.LineItem
}

type fakeOrder struct {
	wo    WorkOrder
	lines []storedLine
}

type fakeRepo struct {
	orders map[int64]*fakeOrder
	nextID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: make(map[int64]*fakeOrder), nextID: 1}
}

func (f *fakeRepo) clone() map[int64]*fakeOrder {
	c := make(map[int64]*fakeOrder, len(f.orders))
	for id, o := range f.orders {
		cp := &fakeOrder{wo: o.wo}
		cp.lines = append(cp.lines, o.lines...)
		c[id] = cp
	}
	return c
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := f.clone()
	if err := fn(ctx, f); err != nil {
		f.orders = snapshot
		return err
	}
	return nil
}

func (f *fakeRepo) assemble(o *fakeOrder) WorkOrder {
	wo := o.wo
	wo.ServiceLines = nil
	wo.ProductLines = nil
	for _, sl := range o.lines {
		if sl.kind == LineService {
			wo.ServiceLines = append(wo.ServiceLines, sl.line)
		} else {
			wo.ProductLines = append(wo.ProductLines, sl.line)
		}
	}
	return wo
}

func (f *fakeRepo) Get(ctx context.Context, id int64) (WorkOrder, error) {
	o, ok := f.orders[id]
	if !ok {
		return WorkOrder{}, ErrNotFound
	}
	return f.assemble(o), nil
}

func (f *fakeRepo) GetForUpdate(ctx context.Context, id int64) (WorkOrder, error) {
	return f.Get(ctx, id)
}

func (f *fakeRepo) List(ctx context.Context, status Status) ([]WorkOrder, error) {
	var out []WorkOrder
	for _, o := range f.orders {
		if status == "" || o.wo.Status == status {
			out = append(out, f.assemble(o))
		}
	}
	return out, nil
}

func (f *fakeRepo) Create(ctx context.Context, wo WorkOrder) (WorkOrder, error) {
	wo.ID = f.nextID
	f.nextID++
	f.orders[wo.ID] = &fakeOrder{wo: wo}
	return wo, nil
}

func (f *fakeRepo) InsertLine(ctx context.Context, workOrderID int64, kind LineKind, line billing.LineItem) (billing.LineItem, error) {
	o, ok := f.orders[workOrderID]
	if !ok {
		return billing.LineItem{}, ErrNotFound
	}
	line.ID = f.nextID
	f.nextID++
	o.lines = append(o.lines, storedLine{kind: kind, line: line})
	return line, nil
}

func (f *fakeRepo) DeleteLine(ctx context.Context, workOrderID int64, kind LineKind, lineID int64) error {
	o, ok := f.orders[workOrderID]
	if !ok {
		return ErrNotFound
	}
	for i, sl := range o.lines {
		if sl.line.ID == lineID && sl.kind == kind {
			o.lines = append(o.lines[:i], o.lines[i+1:]...)
			return nil
		}
	}
	return ErrLineNotFound
}

func (f *fakeRepo) UpdateStatusFrom(ctx context.Context, id int64, from, to Status) (bool, error) {
	o, ok := f.orders[id]
	if !ok || o.wo.Status != from {
		return false, nil
	}
	o.wo.Status = to
	return true, nil
}

type fakePrices struct {
	prices map[pricing.EntityRef]decimal.Decimal
}

func (f *fakePrices) CurrentPrice(ctx context.Context, ref pricing.EntityRef, kind pricing.PriceKind) (decimal.Decimal, error) {
	p, ok := f.prices[ref]
	if !ok {
		return decimal.Zero, pricing.ErrNoActivePrice
	}
	return p, nil
}

type fakeStock struct {
	movements []stock.MovementInput
	failAfter int // fail on the nth call when > 0
	calls     int
}

func (f *fakeStock) RecordMovement(ctx context.Context, in stock.MovementInput) (stock.Movement, error) {
	f.calls++
	if f.failAfter > 0 && f.calls == f.failAfter {
		return stock.Movement{}, errors.New("stock write failed")
	}
	f.movements = append(f.movements, in)
	return stock.Movement{ProductID: in.ProductID, Kind: in.Kind, Delta: in.Delta}, nil
}

type fakeCatalog struct{}

func (fakeCatalog) ServiceName(ctx context.Context, serviceID int64) (string, error) {
	return "labor", nil
}

func (fakeCatalog) ProductName(ctx context.Context, productID int64) (string, error) {
	return "part", nil
}

type fakeInvoices struct {
	created []ledger.InvoiceSeed
	err     error
}

func (f *fakeInvoices) invoiceAt(i int) ledger.Invoice {
	seed := f.created[i]
	return ledger.Invoice{
		ID:               int64(i + 1),
		PayerType:        seed.PayerType,
		PayerID:          seed.PayerID,
		WorkOrderID:      seed.WorkOrderID,
		Status:           ledger.InvoiceDraft,
		Lines:            seed.Lines,
		TotalAmount:      billing.SumLineTotals(seed.Lines),
		RemainingBalance: billing.SumLineTotals(seed.Lines),
	}
}

func (f *fakeInvoices) CreateFromWorkOrder(ctx context.Context, seed ledger.InvoiceSeed) (ledger.Invoice, error) {
	if f.err != nil {
		return ledger.Invoice{}, f.err
	}
	if seed.WorkOrderID != nil {
		for _, existing := range f.created {
			if existing.WorkOrderID != nil && *existing.WorkOrderID == *seed.WorkOrderID {
				return ledger.Invoice{}, ledger.ErrWorkOrderAlreadyInvoiced
			}
		}
	}
	f.created = append(f.created, seed)
	return f.invoiceAt(len(f.created) - 1), nil
}

func (f *fakeInvoices) InvoiceByWorkOrder(ctx context.Context, workOrderID int64) (ledger.Invoice, error) {
	for i, seed := range f.created {
		if seed.WorkOrderID != nil && *seed.WorkOrderID == workOrderID {
			return f.invoiceAt(i), nil
		}
	}
	return ledger.Invoice{}, ledger.ErrInvoiceNotFound
}

type fixture struct {
	svc      *Service
	repo     *fakeRepo
	stock    *fakeStock
	invoices *fakeInvoices
	prices   *fakePrices
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newFakeRepo(),
		stock:    &fakeStock{},
		invoices: &fakeInvoices{},
		prices: &fakePrices{prices: map[pricing.EntityRef]decimal.Decimal{
			{Type: pricing.EntityService, ID: 1}: d("150.00"),
			{Type: pricing.EntityProduct, ID: 2}: d("200.00"),
			{Type: pricing.EntityProduct, ID: 3}: d("40.00"),
		}},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(logger, f.repo, f.prices, f.stock, fakeCatalog{}, f.invoices)
	return f
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) openOrder(t *testing.T) WorkOrder {
	t.Helper()
	ctx := context.Background()
	wo, err := f.svc.Create(ctx, 1, 1, time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	wo, err = f.svc.Transition(ctx, wo.ID, StatusOpen)
	require.NoError(t, err)
	wo, err = f.svc.Transition(ctx, wo.ID, StatusInProgress)
	require.NoError(t, err)
	return wo
}

func TestStateMachineRejectsSkips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wo, err := f.svc.Create(ctx, 1, 1, time.Time{}, "")
	require.NoError(t, err)
	require.Equal(t, StatusDraft, wo.Status)

	_, err = f.svc.Transition(ctx, wo.ID, StatusInProgress)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Transition(ctx, wo.ID, StatusInvoiced)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Transition(ctx, wo.ID, StatusCancelled)
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, wo.ID, StatusOpen)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLinesSnapshotCurrentPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wo := f.openOrder(t)

	line, err := f.svc.AddProductLine(ctx, wo.ID, 2, d("3"), d("10"))
	require.NoError(t, err)
	require.True(t, line.StandardPrice.Equal(d("200.00")))
	require.True(t, line.FinalUnitPrice.Equal(d("180.00")))
	require.True(t, line.LineTotal.Equal(d("540.00")))

	// A later price change must not alter the stored snapshot.
	f.prices.prices[pricing.EntityRef{Type: pricing.EntityProduct, ID: 2}] = d("999.00")
	got, err := f.svc.Get(ctx, wo.ID)
	require.NoError(t, err)
	require.True(t, got.ProductLines[0].StandardPrice.Equal(d("200.00")))
	require.True(t, got.ProductLines[0].LineTotal.Equal(d("540.00")))
}

func TestServiceLinesCarryNoDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wo := f.openOrder(t)

	line, err := f.svc.AddServiceLine(ctx, wo.ID, 1, d("2"))
	require.NoError(t, err)
	require.True(t, line.DiscountPercent.IsZero())
	require.True(t, line.LineTotal.Equal(d("300.00")))
}

func TestTotalsBreakdown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wo := f.openOrder(t)

	_, err := f.svc.AddServiceLine(ctx, wo.ID, 1, d("2"))
	require.NoError(t, err)
	_, err = f.svc.AddProductLine(ctx, wo.ID, 2, d("3"), d("10"))
	require.NoError(t, err)
	_, err = f.svc.AddProductLine(ctx, wo.ID, 3, d("1"), decimal.Zero)
	require.NoError(t, err)

	totals, err := f.svc.Totals(ctx, wo.ID)
	require.NoError(t, err)
	require.True(t, totals.ServicesSubtotal.Equal(d("300.00")), "services %s", totals.ServicesSubtotal)
	require.True(t, totals.ProductsBeforeDiscount.Equal(d("640.00")), "before %s", totals.ProductsBeforeDiscount)
	require.True(t, totals.ProductsDiscountTotal.Equal(d("60.00")), "discount %s", totals.ProductsDiscountTotal)
	require.True(t, totals.ProductsAfterDiscount.Equal(d("580.00")), "after %s", totals.ProductsAfterDiscount)
	require.True(t, totals.GrandTotal.Equal(d("880.00")), "grand %s", totals.GrandTotal)
}

func TestRemoveLineGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wo := f.openOrder(t)

	line, err := f.svc.AddProductLine(ctx, wo.ID, 2, d("1"), decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, f.svc.RemoveLine(ctx, wo.ID, LineProduct, line.ID))
	require.ErrorIs(t, f.svc.RemoveLine(ctx, wo.ID, LineProduct, line.ID), ErrLineNotFound)

	_, err = f.svc.Transition(ctx, wo.ID, StatusCancelled)
	require.NoError(t, err)

	_, err = f.svc.AddProductLine(ctx, wo.ID, 2, d("1"), decimal.Zero)
	require.ErrorIs(t, err, ErrWorkOrderClosed)
	require.ErrorIs(t, f.svc.RemoveLine(ctx, wo.ID, LineProduct, line.ID), ErrWorkOrderClosed)
}

func TestCompletePostsConsumption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wo := f.openOrder(t)

	_, err := f.svc.AddServiceLine(ctx, wo.ID, 1, d("1"))
	require.NoError(t, err)
	_, err = f.svc.AddProductLine(ctx, wo.ID, 2, d("3"), decimal.Zero)
	require.NoError(t, err)
	_, err = f.svc.AddProductLine(ctx, wo.ID, 3, d("2"), decimal.Zero)
	require.NoError(t, err)

	got, err := f.svc.Complete(ctx, wo.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)

	// One CONSUMPTION per product line, none for the service line.
	require.Len(t, f.stock.movements, 2)
	for _, m := range f.stock.movements {
		require.Equal(t, stock.KindConsumption, m.Kind)
		require.Equal(t, "WORK_ORDER", m.SourceType)
		require.True(t, m.Delta.IsNegative())
	}
	require.True(t, f.stock.movements[0].Delta.Equal(d("-3")))
	require.True(t, f.stock.movements[1].Delta.Equal(d("-2")))
}

func TestCompleteReversesOnPartialFailure(t *testing.T) {
	f := newFixture(t)
	f.stock.failAfter = 2
	ctx := context.Background()
	wo := f.openOrder(t)

	_, err := f.svc.AddProductLine(ctx, wo.ID, 2, d("3"), decimal.Zero)
	require.NoError(t, err)
	_, err = f.svc.AddProductLine(ctx, wo.ID, 3, d("2"), decimal.Zero)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, wo.ID)
	require.Error(t, err)

	got, err := f.svc.Get(ctx, wo.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, got.Status)

	// The first consumption succeeded and must be compensated by an equal
	// and opposite adjustment.
	require.Len(t, f.stock.movements, 2)
	require.Equal(t, stock.KindConsumption, f.stock.movements[0].Kind)
	require.Equal(t, stock.KindAdjustment, f.stock.movements[1].Kind)
	require.True(t, f.stock.movements[0].Delta.Neg().Equal(f.stock.movements[1].Delta))
}

func TestGenerateInvoiceAdoptsOrphanedInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wo := f.openOrder(t)

	_, err := f.svc.AddServiceLine(ctx, wo.ID, 1, d("2"))
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, wo.ID)
	require.NoError(t, err)

	// An earlier run minted the invoice but the INVOICED transition was
	// lost, leaving the order COMPLETED next to an existing invoice.
	orphan, err := f.invoices.CreateFromWorkOrder(ctx, ledger.InvoiceSeed{
		PayerType:   ledger.PayerClient,
		PayerID:     wo.ClientID,
		WorkOrderID: &wo.ID,
	})
	require.NoError(t, err)

	invoice, err := f.svc.GenerateInvoice(ctx, wo.ID, "", 0)
	require.NoError(t, err)
	require.Equal(t, orphan.ID, invoice.ID)
	require.Len(t, f.invoices.created, 1)

	got, err := f.svc.Get(ctx, wo.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInvoiced, got.Status)
}

func TestGenerateInvoiceOncePerOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wo := f.openOrder(t)

	_, err := f.svc.AddServiceLine(ctx, wo.ID, 1, d("2"))
	require.NoError(t, err)
	_, err = f.svc.AddProductLine(ctx, wo.ID, 2, d("3"), d("10"))
	require.NoError(t, err)

	_, err = f.svc.GenerateInvoice(ctx, wo.ID, "", 0)
	require.ErrorIs(t, err, ErrWorkOrderNotCompleted)

	_, err = f.svc.Complete(ctx, wo.ID)
	require.NoError(t, err)

	invoice, err := f.svc.GenerateInvoice(ctx, wo.ID, "", 0)
	require.NoError(t, err)
	require.Equal(t, ledger.PayerClient, invoice.PayerType)
	require.Equal(t, wo.ClientID, invoice.PayerID)
	require.Len(t, invoice.Lines, 2)
	require.True(t, invoice.TotalAmount.Equal(d("840.00")), "total %s", invoice.TotalAmount)

	got, err := f.svc.Get(ctx, wo.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInvoiced, got.Status)

	_, err = f.svc.GenerateInvoice(ctx, wo.ID, "", 0)
	require.ErrorIs(t, err, ErrAlreadyInvoiced)
	require.Len(t, f.invoices.created, 1)
}

func TestGenerateInvoicePayerOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wo := f.openOrder(t)

	_, err := f.svc.AddServiceLine(ctx, wo.ID, 1, d("1"))
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, wo.ID)
	require.NoError(t, err)

	invoice, err := f.svc.GenerateInvoice(ctx, wo.ID, ledger.PayerCompany, 42)
	require.NoError(t, err)
	require.Equal(t, ledger.PayerCompany, invoice.PayerType)
	require.Equal(t, int64(42), invoice.PayerID)
}

func TestGenerateInvoiceRollsBackOnCreateFailure(t *testing.T) {
	f := newFixture(t)
	f.invoices.err = errors.New("ledger unavailable")
	ctx := context.Background()
	wo := f.openOrder(t)

	_, err := f.svc.AddServiceLine(ctx, wo.ID, 1, d("1"))
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, wo.ID)
	require.NoError(t, err)

	_, err = f.svc.GenerateInvoice(ctx, wo.ID, "", 0)
	require.Error(t, err)

	// The failed attempt must leave the order COMPLETED so it can be
	// retried.
	got, err := f.svc.Get(ctx, wo.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)

	f.invoices.err = nil
	_, err = f.svc.GenerateInvoice(ctx, wo.ID, "", 0)
	require.NoError(t, err)
}
