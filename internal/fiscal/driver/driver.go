// Package driver owns the connection to one fiscal printer. All commands are
// executed strictly one at a time: fiscal devices require command ordering,
// and a status query racing a document close can corrupt device state.
package driver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tillworks/fiscal-pos-api/pkg/alert"
	"github.com/tillworks/fiscal-pos-api/pkg/fiscal"
	"github.com/tillworks/fiscal-pos-api/pkg/transport"
)

// State is the device session state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateBusy
	StateFaulted
)

func (s State) String() string {
	return [...]string{"Disconnected", "Connecting", "Ready", "Busy", "Faulted"}[s]
}

// Config holds the driver's timing and retry policy.
type Config struct {
	DeviceID       string
	CommandTimeout time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	ReconnectEvery time.Duration
}

func (c Config) withDefaults() Config {
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 3 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 100 * time.Millisecond
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 2 * time.Second
	}
	if c.ReconnectEvery <= 0 {
		c.ReconnectEvery = 250 * time.Millisecond
	}
	return c
}

// Driver executes fiscal commands against one device over one transport.
// There is exactly one live device session per physical printer; the driver
// is its sole owner and writer.
type Driver struct {
	cfg    Config
	tr     transport.Transport
	alerts alert.Notifier
	log    *zap.Logger

	// mu serializes Submit: no two commands are ever in flight at once.
	mu        sync.Mutex
	state     atomic.Int32
	dec       fiscal.Decoder
	reconnect *rate.Limiter
}

// New creates a driver for one device. The transport is exclusively owned by
// the driver from this point on.
func New(cfg Config, tr transport.Transport, alerts alert.Notifier, log *zap.Logger) *Driver {
	cfg = cfg.withDefaults()
	d := &Driver{
		cfg:       cfg,
		tr:        tr,
		alerts:    alerts,
		log:       log.With(zap.String("device_id", cfg.DeviceID)),
		reconnect: rate.NewLimiter(rate.Every(cfg.ReconnectEvery), 1),
	}
	return d
}

// DeviceID returns the identifier of the device this driver owns.
func (d *Driver) DeviceID() string { return d.cfg.DeviceID }

// State returns the current device session state.
func (d *Driver) State() State { return State(d.state.Load()) }

func (d *Driver) setState(s State) { d.state.Store(int32(s)) }

// ClearFault acknowledges a fiscal fault and returns the device to the
// Disconnected state so the next command reconnects cleanly. It is a no-op
// if the device is not faulted.
func (d *Driver) ClearFault() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State() != StateFaulted {
		return
	}
	_ = d.tr.Close()
	d.dec.Reset()
	d.setState(StateDisconnected)
	d.log.Info("device fault cleared by operator")
}

// Submit executes one command, applying the retry policy: transient errors
// and timeouts back off exponentially up to the attempt budget, link loss
// triggers a reconnect before the next retry, and fiscal faults surface
// immediately and fault the device. A timed-out close-document is resolved
// through a status query before any retry, so an emitted document is never
// re-sent against fiscal memory.
func (d *Driver) Submit(ctx context.Context, cmd fiscal.Command) (fiscal.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State() == StateFaulted {
		return nil, ErrFaulted
	}

	// Snapshot the fiscal counter before a close so an ambiguous timeout
	// can be reconciled instead of guessed at.
	var closeSnapshot *uint32
	if _, isClose := cmd.(fiscal.CloseDocument); isClose {
		if reply, err := d.exchange(ctx, fiscal.StatusQuery{}); err == nil {
			if status, ok := reply.(fiscal.StatusReply); ok {
				n := status.LastFiscalNumber
				closeSnapshot = &n
			}
		}
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := d.backoff(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		resp, err := d.exchange(ctx, cmd)
		if err == nil {
			if nak, isNak := resp.(fiscal.Nak); isNak {
				if nak.Code.IsFiscalFault() {
					d.fault(nak.Code)
					return nil, &DeviceError{Kind: ErrorFiscalFault, Code: nak.Code}
				}
				lastErr = &DeviceError{Kind: ErrorTransient, Code: nak.Code}
				d.log.Warn("device rejected command",
					zap.Stringer("command", cmd.Kind()),
					zap.Stringer("code", nak.Code),
					zap.Int("attempt", attempt))
				continue
			}
			return resp, nil
		}

		lastErr = err
		if errors.Is(err, ErrTimeout) {
			d.log.Warn("command timed out",
				zap.Stringer("command", cmd.Kind()),
				zap.Int("attempt", attempt))
			if closeSnapshot != nil {
				if resp, emitted := d.reconcileClose(ctx, *closeSnapshot); emitted {
					d.log.Info("close-document reconciled as emitted after timeout")
					return resp, nil
				}
			}
			continue
		}
		d.log.Warn("link failure",
			zap.Stringer("command", cmd.Kind()),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return nil, lastErr
}

// exchange performs a single connect-if-needed, write, read cycle with the
// per-command timeout.
func (d *Driver) exchange(ctx context.Context, cmd fiscal.Command) (fiscal.Response, error) {
	if err := d.ensureConnected(ctx); err != nil {
		return nil, err
	}

	frame, err := fiscal.EncodeCommand(cmd)
	if err != nil {
		return nil, err
	}

	d.setState(StateBusy)
	defer func() {
		if d.State() == StateBusy {
			d.setState(StateReady)
		}
	}()

	if _, err := d.tr.Write(frame); err != nil {
		d.drop()
		return nil, &DeviceError{Kind: ErrorDisconnected, Err: err}
	}

	deadline := time.Now().Add(d.cfg.CommandTimeout)
	if err := d.tr.SetReadDeadline(deadline); err != nil {
		d.drop()
		return nil, &DeviceError{Kind: ErrorDisconnected, Err: err}
	}

	buf := make([]byte, 512)
	for {
		payload, err := d.dec.Next()
		if err == nil {
			return fiscal.DecodeResponse(payload)
		}
		if errors.Is(err, fiscal.ErrCorruptFrame) {
			// Discarded and resynchronized; keep reading within the window.
			d.log.Warn("corrupt frame discarded")
			continue
		}

		n, err := d.tr.Read(buf)
		if err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				// After a timeout the response window is lost: a late reply
				// would desynchronize request/response pairing, so drop the
				// link and let the retry reconnect cleanly.
				d.drop()
				return nil, ErrTimeout
			}
			d.drop()
			return nil, &DeviceError{Kind: ErrorDisconnected, Err: err}
		}
		d.dec.Feed(buf[:n])
	}
}

// ensureConnected opens the transport if needed, throttled so a dead device
// is not hammered with dials.
func (d *Driver) ensureConnected(ctx context.Context) error {
	if d.tr.IsOpen() {
		return nil
	}
	d.setState(StateConnecting)
	if err := d.reconnect.Wait(ctx); err != nil {
		d.setState(StateDisconnected)
		return err
	}
	if err := d.tr.Open(); err != nil {
		d.setState(StateDisconnected)
		return &DeviceError{Kind: ErrorDisconnected, Err: err}
	}
	d.dec.Reset()
	d.setState(StateReady)
	d.log.Info("device connected")
	return nil
}

// drop tears the link down after a failure, leaving the session Disconnected.
func (d *Driver) drop() {
	_ = d.tr.Close()
	d.dec.Reset()
	d.setState(StateDisconnected)
}

// fault moves the device to Faulted and raises the operator alert. The state
// is terminal until ClearFault.
func (d *Driver) fault(code fiscal.DeviceCode) {
	d.setState(StateFaulted)
	d.log.Error("device faulted", zap.Stringer("code", code))
	d.alerts.DeviceFaulted(d.cfg.DeviceID, code.String(), "fiscal fault reported by device")
}

// reconcileClose asks the device whether the timed-out close actually
// executed. If the fiscal counter advanced past the pre-dispatch snapshot and
// no document is open, the close succeeded and its acknowledgment was lost.
func (d *Driver) reconcileClose(ctx context.Context, snapshot uint32) (fiscal.Response, bool) {
	reply, err := d.exchange(ctx, fiscal.StatusQuery{})
	if err != nil {
		return nil, false
	}
	status, ok := reply.(fiscal.StatusReply)
	if !ok {
		return nil, false
	}
	if !status.DocumentOpen && status.LastFiscalNumber > snapshot {
		return fiscal.Ack{FiscalNumber: status.LastFiscalNumber}, true
	}
	return nil, false
}

// backoff sleeps for the exponential delay of the given retry, honoring
// context cancellation.
func (d *Driver) backoff(ctx context.Context, retry int) error {
	delay := d.cfg.BackoffBase << (retry - 1)
	if delay > d.cfg.BackoffCap {
		delay = d.cfg.BackoffCap
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
