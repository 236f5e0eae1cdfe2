package queue

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
	"github.com/tillworks/fiscal-pos-api/internal/infrastructure/repository/memory"
	"github.com/tillworks/fiscal-pos-api/pkg/alert"
	"github.com/tillworks/fiscal-pos-api/pkg/fiscal"
	"github.com/tillworks/fiscal-pos-api/pkg/transport"
)

// settleRecorder captures terminal job notifications in settlement order.
type settleRecorder struct {
	ch chan *entity.PrintJob
}

func newSettleRecorder() *settleRecorder {
	return &settleRecorder{ch: make(chan *entity.PrintJob, 16)}
}

func (r *settleRecorder) JobSettled(job *entity.PrintJob) {
	r.ch <- job
}

func (r *settleRecorder) wait(t *testing.T) *entity.PrintJob {
	t.Helper()
	select {
	case job := <-r.ch:
		return job
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job to settle")
		return nil
	}
}

func (r *settleRecorder) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case job := <-r.ch:
		t.Fatalf("unexpected settlement of job %s (%s)", job.ID, job.Status)
	case <-time.After(d):
	}
}

type queueFixture struct {
	sim   *devicesim.Device
	drv   *driver.Driver
	store *memory.Store
	q     *Queue
	obs   *settleRecorder
}

func newQueueFixture(t *testing.T) *queueFixture {
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
	obs := newSettleRecorder()
	q := New(drv, store.Jobs(), alert.NopNotifier{}, zap.NewNop())
	q.SetObserver(obs)

	t.Cleanup(func() { _ = tr.Close() })
	return &queueFixture{sim: sim, drv: drv, store: store, q: q, obs: obs}
}

func (f *queueFixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.q.Start(context.Background()))
	t.Cleanup(f.q.Stop)
}

func makeJob(t *testing.T, key string) *entity.PrintJob {
	t.Helper()
	job := &entity.PrintJob{
		IdempotencyKey: key,
		SaleID:         uuid.New(),
	}
	err := job.SetDocument(&entity.DocumentPayload{
		DocType:  enum.DocumentTypeReceipt,
		Operator: "op-1",
		Till:     "till-1",
		Lines: []entity.PayloadLine{
			{Name: "Espresso", Quantity: 2, UnitPrice: decimal.RequireFromString("3.50"), Discount: decimal.Zero},
		},
		Payments: []entity.PayloadPayment{
			{Method: enum.PaymentMethodCash, Amount: decimal.RequireFromString("7.00")},
		},
	})
	require.NoError(t, err)
	return job
}

func TestEnqueueProcessesJob(t *testing.T) {
	f := newQueueFixture(t)
	f.start(t)

	status, dup, err := f.q.Enqueue(context.Background(), makeJob(t, "sale-a"))
	require.NoError(t, err)
	assert.Equal(t, enum.JobStatusQueued, status)
	assert.False(t, dup)

	settled := f.obs.wait(t)
	assert.Equal(t, enum.JobStatusSucceeded, settled.Status)
	require.NotNil(t, settled.FiscalNumber)
	assert.Equal(t, int64(1), *settled.FiscalNumber)
	assert.Equal(t, uint32(1), f.sim.LastFiscalNumber())
	assert.Equal(t, 0, f.q.Depth())
}

func TestEnqueueIsIdempotent(t *testing.T) {
	f := newQueueFixture(t)
	f.start(t)

	_, dup, err := f.q.Enqueue(context.Background(), makeJob(t, "sale-a"))
	require.NoError(t, err)
	require.False(t, dup)
	f.obs.wait(t)

	// Re-enqueueing the same key after settlement reuses the stored job.
	status, dup, err := f.q.Enqueue(context.Background(), makeJob(t, "sale-a"))
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, enum.JobStatusSucceeded, status)
	assert.Equal(t, uint32(1), f.sim.LastFiscalNumber(), "duplicate enqueue must not re-emit")
	f.obs.expectNone(t, 200*time.Millisecond)
}

func TestConcurrentEnqueueEmitsOnce(t *testing.T) {
	f := newQueueFixture(t)
	f.start(t)

	const workers = 10
	var created int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, dup, err := f.q.Enqueue(context.Background(), makeJob(t, "sale-race"))
			assert.NoError(t, err)
			if !dup {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created, "exactly one enqueue must create the job")
	settled := f.obs.wait(t)
	assert.Equal(t, enum.JobStatusSucceeded, settled.Status)
	assert.Equal(t, uint32(1), f.sim.LastFiscalNumber())
}

func TestJobsSettleInEnqueueOrder(t *testing.T) {
	f := newQueueFixture(t)
	f.start(t)

	keys := []string{"sale-1", "sale-2", "sale-3"}
	for _, key := range keys {
		_, _, err := f.q.Enqueue(context.Background(), makeJob(t, key))
		require.NoError(t, err)
	}

	for i, key := range keys {
		settled := f.obs.wait(t)
		assert.Equal(t, key, settled.IdempotencyKey)
		require.NotNil(t, settled.FiscalNumber)
		assert.Equal(t, int64(i+1), *settled.FiscalNumber)
	}
}

func TestDeadLetterHaltsQueueUntilRetry(t *testing.T) {
	f := newQueueFixture(t)
	f.start(t)

	f.sim.FailNext(fiscal.KindOpenDocument, devicesim.FailNakFiscal)

	j1, j2 := makeJob(t, "sale-1"), makeJob(t, "sale-2")
	_, _, err := f.q.Enqueue(context.Background(), j1)
	require.NoError(t, err)

	require.Eventually(t, f.q.Halted, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, driver.StateFaulted, f.drv.State())

	// Dead-lettered jobs do not settle; the sale stays pending.
	f.obs.expectNone(t, 100*time.Millisecond)

	// The halted queue accepts but does not dispatch subsequent jobs.
	status, dup, err := f.q.Enqueue(context.Background(), j2)
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, enum.JobStatusQueued, status)
	f.obs.expectNone(t, 100*time.Millisecond)

	// Operator clears the fault and retries the parked job; both jobs then
	// flow in order.
	f.drv.ClearFault()
	require.NoError(t, f.q.RetryNow(context.Background(), j1.ID))

	first := f.obs.wait(t)
	assert.Equal(t, "sale-1", first.IdempotencyKey)
	assert.Equal(t, enum.JobStatusSucceeded, first.Status)
	second := f.obs.wait(t)
	assert.Equal(t, "sale-2", second.IdempotencyKey)
	assert.Equal(t, enum.JobStatusSucceeded, second.Status)
	assert.False(t, f.q.Halted())
}

func TestVoidJobFailsItAndResumesQueue(t *testing.T) {
	f := newQueueFixture(t)
	f.start(t)

	f.sim.FailNext(fiscal.KindOpenDocument, devicesim.FailNakFiscal)

	j1, j2 := makeJob(t, "sale-1"), makeJob(t, "sale-2")
	_, _, err := f.q.Enqueue(context.Background(), j1)
	require.NoError(t, err)
	require.Eventually(t, f.q.Halted, 5*time.Second, 10*time.Millisecond)

	_, _, err = f.q.Enqueue(context.Background(), j2)
	require.NoError(t, err)

	f.drv.ClearFault()
	require.NoError(t, f.q.VoidJob(context.Background(), j1.ID))

	first := f.obs.wait(t)
	assert.Equal(t, "sale-1", first.IdempotencyKey)
	assert.Equal(t, enum.JobStatusFailed, first.Status)
	assert.Equal(t, "voided by operator", first.LastError)

	second := f.obs.wait(t)
	assert.Equal(t, "sale-2", second.IdempotencyKey)
	assert.Equal(t, enum.JobStatusSucceeded, second.Status)
	assert.Equal(t, uint32(1), f.sim.LastFiscalNumber(), "the voided document must never be emitted")
}

func TestWithdrawQueuedJob(t *testing.T) {
	// Unstarted queue: no worker, so the job deterministically stays Queued.
	f := newQueueFixture(t)

	job := makeJob(t, "sale-a")
	status, _, err := f.q.Enqueue(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, enum.JobStatusQueued, status)

	require.NoError(t, f.q.Withdraw(context.Background(), "sale-a"))
	assert.Equal(t, 0, f.q.Depth())

	stored, err := f.store.Jobs().GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, enum.JobStatusFailed, stored.Status)
	assert.Equal(t, "withdrawn before dispatch", stored.LastError)

	err = f.q.Withdraw(context.Background(), "missing-key")
	assert.Error(t, err)
}

func TestWithdrawDispatchedJobConflicts(t *testing.T) {
	f := newQueueFixture(t)
	f.start(t)

	_, _, err := f.q.Enqueue(context.Background(), makeJob(t, "sale-a"))
	require.NoError(t, err)
	f.obs.wait(t)

	err = f.q.Withdraw(context.Background(), "sale-a")
	assert.Error(t, err)
	assert.Equal(t, uint32(1), f.sim.LastFiscalNumber())
}

func TestStartReloadsPendingJobs(t *testing.T) {
	f := newQueueFixture(t)

	// A job left InFlight by a crash is requeued and completed on startup.
	job := makeJob(t, "sale-recovered")
	job.DeviceID = "test-printer"
	job.Status = enum.JobStatusInFlight
	job.Attempts = 1
	require.NoError(t, f.store.Jobs().Create(context.Background(), job))

	f.start(t)

	settled := f.obs.wait(t)
	assert.Equal(t, "sale-recovered", settled.IdempotencyKey)
	assert.Equal(t, enum.JobStatusSucceeded, settled.Status)
	assert.Equal(t, uint32(1), f.sim.LastFiscalNumber())
}
