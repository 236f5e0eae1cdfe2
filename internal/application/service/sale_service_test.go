package service

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tillworks/fiscal-pos-api/internal/domain/entity"
	"github.com/tillworks/fiscal-pos-api/internal/domain/enum"
	"github.com/tillworks/fiscal-pos-api/internal/fiscal/devicesim"
	"github.com/tillworks/fiscal-pos-api/internal/fiscal/driver"
	"github.com/tillworks/fiscal-pos-api/internal/fiscal/queue"
	"github.com/tillworks/fiscal-pos-api/internal/infrastructure/repository/memory"
	"github.com/tillworks/fiscal-pos-api/pkg/alert"
	"github.com/tillworks/fiscal-pos-api/pkg/fiscal"
	"github.com/tillworks/fiscal-pos-api/pkg/transport"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fixture wires the full fiscal core against a simulated printer.
type fixture struct {
	sim      *devicesim.Device
	drv      *driver.Driver
	q        *queue.Queue
	store    *memory.Store
	sessions *SessionService
	sales    *SaleService
	device   *DeviceService
}

func newFixture(t *testing.T, startQueue bool) *fixture {
	t.Helper()
	sim := devicesim.New()
	tr := transport.NewLoopback(func(conn net.Conn) { sim.Handle(conn) })
	drv := driver.New(driver.Config{
		DeviceID:       "test-printer",
		CommandTimeout: 100 * time.Millisecond,
		MaxAttempts:    2,
		BackoffBase:    time.Millisecond,
		BackoffCap:     5 * time.Millisecond,
		ReconnectEvery: time.Millisecond,
	}, tr, alert.NopNotifier{}, zap.NewNop())

	store := memory.NewStore()
	log := zap.NewNop()
	q := queue.New(drv, store.Jobs(), alert.NopNotifier{}, log)
	sessions := NewSessionService(store.Sessions(), log)
	sales := NewSaleService(store.Sales(), q, sessions, log)
	device := NewDeviceService(drv, q, store.Jobs(), log)
	q.SetObserver(sales)

	if startQueue {
		require.NoError(t, q.Start(context.Background()))
		t.Cleanup(q.Stop)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return &fixture{sim: sim, drv: drv, q: q, store: store, sessions: sessions, sales: sales, device: device}
}

func (f *fixture) openSession(t *testing.T, till string, float decimal.Decimal) *entity.CashSession {
	t.Helper()
	session, err := f.sessions.Open(context.Background(), till, "op-1", float)
	require.NoError(t, err)
	return session
}

// buildSale creates an open sale with one line and one matching payment.
func (f *fixture) buildSale(t *testing.T, till string, method enum.PaymentMethod, amount string) *entity.SaleTransaction {
	t.Helper()
	ctx := context.Background()
	sale, err := f.sales.CreateSale(ctx, &CreateSaleInput{TillID: till, OperatorID: "op-1", DocType: enum.DocumentTypeReceipt})
	require.NoError(t, err)
	_, err = f.sales.AddLine(ctx, sale.ID, &AddLineInput{
		ProductRef: "sku-1", Name: "Item", Quantity: 1, UnitPrice: dec(amount), Discount: decimal.Zero,
	})
	require.NoError(t, err)
	_, err = f.sales.AddPayment(ctx, sale.ID, &AddPaymentInput{Method: method, Amount: dec(amount)})
	require.NoError(t, err)
	return sale
}

func (f *fixture) waitStatus(t *testing.T, saleID uuid.UUID, want enum.SaleStatus) *entity.SaleTransaction {
	t.Helper()
	require.Eventually(t, func() bool {
		sale, err := f.sales.GetSale(context.Background(), saleID)
		return err == nil && sale.Status == want
	}, 5*time.Second, 10*time.Millisecond, "sale never reached %s", want)
	sale, err := f.sales.GetSale(context.Background(), saleID)
	require.NoError(t, err)
	return sale
}

func TestSaleLifecycleWithTransientFailureAndBalancedClose(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.openSession(t, "till-1", dec("100.00"))

	sale := f.buildSale(t, "till-1", enum.PaymentMethodCash, "35.50")

	// The device swallows the first line item; the driver times out,
	// retries, and the emission succeeds.
	f.sim.FailNext(fiscal.KindAddLineItem, devicesim.FailSilent)

	result, err := f.sales.Commit(ctx, sale.ID)
	require.NoError(t, err)
	assert.False(t, result.Duplicate)

	emitted := f.waitStatus(t, sale.ID, enum.SaleStatusFiscallyEmitted)
	require.NotNil(t, emitted.FiscalNumber)
	assert.Equal(t, int64(1), *emitted.FiscalNumber)
	assert.True(t, emitted.Total.Equal(dec("35.50")))

	// The settled cash is in the drawer: closing with float + sale total
	// reports a discrepancy of exactly zero.
	require.Eventually(t, func() bool {
		session, err := f.sessions.Current(ctx, "till-1")
		return err == nil && len(session.Entries) == 1
	}, 5*time.Second, 10*time.Millisecond)

	closed, err := f.sessions.Close(ctx, "till-1", dec("135.50"))
	require.NoError(t, err)
	require.NotNil(t, closed.Discrepancy)
	assert.True(t, closed.Discrepancy.IsZero(), "discrepancy = %s", closed.Discrepancy)
	assert.True(t, closed.ExpectedBalance.Equal(dec("135.50")))
}

func TestCommitIsIdempotent(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.openSession(t, "till-1", dec("100.00"))
	sale := f.buildSale(t, "till-1", enum.PaymentMethodCash, "10.00")

	first, err := f.sales.Commit(ctx, sale.ID)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	f.waitStatus(t, sale.ID, enum.SaleStatusFiscallyEmitted)

	// Re-committing after emission reuses the settled job.
	again, err := f.sales.Commit(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, enum.JobStatusSucceeded, again.JobStatus)
	assert.Equal(t, uint32(1), f.sim.LastFiscalNumber(), "retried commit must not re-emit")
}

func TestConcurrentCommitsEmitOnce(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.openSession(t, "till-1", dec("100.00"))
	sale := f.buildSale(t, "till-1", enum.PaymentMethodCard, "20.00")

	const workers = 8
	var duplicates int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.sales.Commit(ctx, sale.ID)
			assert.NoError(t, err)
			if result != nil && result.Duplicate {
				mu.Lock()
				duplicates++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers-1, duplicates, "exactly one commit must create the print job")
	f.waitStatus(t, sale.ID, enum.SaleStatusFiscallyEmitted)
	assert.Equal(t, uint32(1), f.sim.LastFiscalNumber())
}

func TestCommitValidation(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.openSession(t, "till-1", dec("100.00"))

	// No line items.
	empty, err := f.sales.CreateSale(ctx, &CreateSaleInput{TillID: "till-1", OperatorID: "op-1"})
	require.NoError(t, err)
	_, err = f.sales.Commit(ctx, empty.ID)
	assert.Error(t, err)

	// Tendered below total.
	short, err := f.sales.CreateSale(ctx, &CreateSaleInput{TillID: "till-1", OperatorID: "op-1"})
	require.NoError(t, err)
	_, err = f.sales.AddLine(ctx, short.ID, &AddLineInput{
		ProductRef: "sku-1", Name: "Item", Quantity: 1, UnitPrice: dec("9.99"), Discount: decimal.Zero,
	})
	require.NoError(t, err)
	_, err = f.sales.AddPayment(ctx, short.ID, &AddPaymentInput{Method: enum.PaymentMethodCash, Amount: dec("5.00")})
	require.NoError(t, err)
	_, err = f.sales.Commit(ctx, short.ID)
	assert.Error(t, err)

	// No open session on the till.
	orphan := f.buildSale(t, "till-2", enum.PaymentMethodCash, "5.00")
	_, err = f.sales.Commit(ctx, orphan.ID)
	assert.Error(t, err)
}

func TestCommittedSaleIsFrozen(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.openSession(t, "till-1", dec("100.00"))
	sale := f.buildSale(t, "till-1", enum.PaymentMethodCash, "10.00")
	_, err := f.sales.Commit(ctx, sale.ID)
	require.NoError(t, err)

	_, err = f.sales.AddLine(ctx, sale.ID, &AddLineInput{
		ProductRef: "sku-2", Name: "Late", Quantity: 1, UnitPrice: dec("1.00"), Discount: decimal.Zero,
	})
	assert.Error(t, err)
	_, err = f.sales.AddPayment(ctx, sale.ID, &AddPaymentInput{Method: enum.PaymentMethodCash, Amount: dec("1.00")})
	assert.Error(t, err)
}

func TestFiscalFaultDeadLettersAndOperatorVoidsFailsSale(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.openSession(t, "till-1", dec("100.00"))
	sale := f.buildSale(t, "till-1", enum.PaymentMethodCash, "15.00")

	f.sim.FailNext(fiscal.KindOpenDocument, devicesim.FailNakFiscal)

	_, err := f.sales.Commit(ctx, sale.ID)
	require.NoError(t, err)

	// The job dead-letters, the device faults, and the sale stays pending:
	// a dead-letter is an operator problem, not a sale failure.
	require.Eventually(t, f.q.Halted, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, driver.StateFaulted, f.drv.State())

	pending, err := f.sales.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.SaleStatusFiscallyPending, pending.Status)

	job, err := f.store.Jobs().GetByKey(ctx, pending.IdempotencyKey())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, enum.JobStatusDeadLettered, job.Status)

	// Operator gives up on the document: the sale fails, nothing was
	// emitted, and the till's expected balance is unchanged.
	f.device.ClearFault()
	_, err = f.device.VoidJob(ctx, job.ID)
	require.NoError(t, err)

	f.waitStatus(t, sale.ID, enum.SaleStatusFailed)
	assert.Equal(t, uint32(0), f.sim.LastFiscalNumber())

	closed, err := f.sessions.Close(ctx, "till-1", dec("100.00"))
	require.NoError(t, err)
	assert.True(t, closed.Discrepancy.IsZero())
}

func TestFiscalFaultDeadLettersAndOperatorRetries(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.openSession(t, "till-1", dec("100.00"))
	sale := f.buildSale(t, "till-1", enum.PaymentMethodCash, "15.00")

	f.sim.FailNext(fiscal.KindOpenDocument, devicesim.FailNakFiscal)

	_, err := f.sales.Commit(ctx, sale.ID)
	require.NoError(t, err)
	require.Eventually(t, f.q.Halted, 5*time.Second, 10*time.Millisecond)

	job, err := f.store.Jobs().GetByKey(ctx, sale.IdempotencyKey())
	require.NoError(t, err)
	require.NotNil(t, job)

	f.device.ClearFault()
	_, err = f.device.RetryJob(ctx, job.ID)
	require.NoError(t, err)

	emitted := f.waitStatus(t, sale.ID, enum.SaleStatusFiscallyEmitted)
	require.NotNil(t, emitted.FiscalNumber)
	assert.Equal(t, int64(1), *emitted.FiscalNumber)
}

func TestVoidBeforeCommit(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.openSession(t, "till-1", dec("100.00"))
	sale := f.buildSale(t, "till-1", enum.PaymentMethodCash, "10.00")

	voided, err := f.sales.Void(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.SaleStatusVoided, voided.Status)

	// A voided sale cannot be committed.
	_, err = f.sales.Commit(ctx, sale.ID)
	assert.Error(t, err)
}

func TestVoidWithdrawsQueuedJob(t *testing.T) {
	// The queue is not started, so the committed job deterministically
	// stays Queued and the void withdraws it before dispatch.
	f := newFixture(t, false)
	ctx := context.Background()

	f.openSession(t, "till-1", dec("100.00"))
	sale := f.buildSale(t, "till-1", enum.PaymentMethodCash, "10.00")

	result, err := f.sales.Commit(ctx, sale.ID)
	require.NoError(t, err)
	require.Equal(t, enum.JobStatusQueued, result.JobStatus)

	voided, err := f.sales.Void(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.SaleStatusVoided, voided.Status)

	job, err := f.store.Jobs().GetByKey(ctx, sale.IdempotencyKey())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, enum.JobStatusFailed, job.Status)
	assert.Equal(t, uint32(0), f.sim.LastFiscalNumber())
}

func TestVoidAfterEmissionIsRejected(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.openSession(t, "till-1", dec("100.00"))
	sale := f.buildSale(t, "till-1", enum.PaymentMethodCash, "10.00")
	_, err := f.sales.Commit(ctx, sale.ID)
	require.NoError(t, err)
	f.waitStatus(t, sale.ID, enum.SaleStatusFiscallyEmitted)

	_, err = f.sales.Void(ctx, sale.ID)
	assert.Error(t, err)
}

func TestRefundReducesExpectedBalance(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.openSession(t, "till-1", dec("100.00"))

	refund, err := f.sales.CreateSale(ctx, &CreateSaleInput{
		TillID: "till-1", OperatorID: "op-1", DocType: enum.DocumentTypeRefund,
	})
	require.NoError(t, err)
	_, err = f.sales.AddLine(ctx, refund.ID, &AddLineInput{
		ProductRef: "sku-1", Name: "Returned item", Quantity: 1, UnitPrice: dec("20.00"), Discount: decimal.Zero,
	})
	require.NoError(t, err)
	_, err = f.sales.AddPayment(ctx, refund.ID, &AddPaymentInput{Method: enum.PaymentMethodCash, Amount: dec("20.00")})
	require.NoError(t, err)

	_, err = f.sales.Commit(ctx, refund.ID)
	require.NoError(t, err)
	f.waitStatus(t, refund.ID, enum.SaleStatusFiscallyEmitted)

	require.Eventually(t, func() bool {
		session, err := f.sessions.Current(ctx, "till-1")
		return err == nil && len(session.Entries) == 1
	}, 5*time.Second, 10*time.Millisecond)

	closed, err := f.sessions.Close(ctx, "till-1", dec("80.00"))
	require.NoError(t, err)
	assert.True(t, closed.ExpectedBalance.Equal(dec("80.00")))
	assert.True(t, closed.Discrepancy.IsZero())
}

func TestCardPaymentsDoNotMoveCash(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.openSession(t, "till-1", dec("100.00"))
	sale := f.buildSale(t, "till-1", enum.PaymentMethodCard, "42.00")

	_, err := f.sales.Commit(ctx, sale.ID)
	require.NoError(t, err)
	f.waitStatus(t, sale.ID, enum.SaleStatusFiscallyEmitted)

	require.Eventually(t, func() bool {
		session, err := f.sessions.Current(ctx, "till-1")
		return err == nil && len(session.Entries) == 1
	}, 5*time.Second, 10*time.Millisecond)

	closed, err := f.sessions.Close(ctx, "till-1", dec("100.00"))
	require.NoError(t, err)
	assert.True(t, closed.ExpectedBalance.Equal(dec("100.00")))
	assert.True(t, closed.Discrepancy.IsZero())
}
