// Package devicesim implements a fiscal printer device in process. It speaks
// the real frame protocol over a net.Conn, keeps a fiscal counter and an
// open-document flag, and can be scripted to misbehave. Deployments without
// hardware run the driver against it over a loopback transport; the driver
// and queue tests script it to exercise every failure path.
package devicesim

import (
	"net"
	"sync"

	"github.com/tillworks/fiscal-pos-api/pkg/fiscal"
)

// FailureMode scripts how the device mishandles one command.
type FailureMode int

const (
	// FailSilent swallows the command without executing it. The driver
	// observes a timeout; no device state changes.
	FailSilent FailureMode = iota
	// FailNakBusy rejects the command with a transient busy code.
	FailNakBusy
	// FailNakFiscal rejects the command with a fiscal-memory fault.
	FailNakFiscal
	// FailExecuteSilent executes the command but drops the response. On a
	// close-document this produces the ambiguous case where the document
	// was emitted but the driver saw a timeout.
	FailExecuteSilent
	// FailDisconnect drops the link without responding.
	FailDisconnect
)

// Device is a simulated fiscal printer. One Device may serve many
// connections over its lifetime (reconnects), but only one at a time.
type Device struct {
	mu         sync.Mutex
	docOpen    bool
	lastFiscal uint32
	script     map[fiscal.CommandKind][]FailureMode
}

// New creates a simulated device with an empty fiscal counter.
func New() *Device {
	return &Device{script: map[fiscal.CommandKind][]FailureMode{}}
}

// FailNext schedules a failure for the next command of the given kind.
// Multiple calls queue up in order.
func (d *Device) FailNext(kind fiscal.CommandKind, mode FailureMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script[kind] = append(d.script[kind], mode)
}

// LastFiscalNumber returns the number of the most recently emitted document.
func (d *Device) LastFiscalNumber() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastFiscal
}

// Handle serves one connection until it closes. It is the handler shape
// transport.NewLoopback expects.
func (d *Device) Handle(conn net.Conn) {
	defer conn.Close()

	var dec fiscal.Decoder
	buf := make([]byte, 512)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		dec.Feed(buf[:n])
		for {
			payload, err := dec.Next()
			if err != nil {
				// NeedMoreData and CorruptFrame both mean: keep reading.
				break
			}
			cmd, err := fiscal.DecodeCommand(payload)
			if err != nil {
				continue
			}
			resp, disconnect := d.execute(cmd)
			if disconnect {
				return
			}
			if resp == nil {
				continue
			}
			frame, err := fiscal.EncodeResponse(resp)
			if err != nil {
				continue
			}
			if _, err := conn.Write(frame); err != nil {
				return
			}
		}
	}
}

// execute applies one command to the device state, honoring any scripted
// failure. A nil response means the device stays silent.
func (d *Device) execute(cmd fiscal.Command) (fiscal.Response, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	mode, scripted := d.popFailure(cmd.Kind())
	if scripted {
		switch mode {
		case FailSilent:
			return nil, false
		case FailNakBusy:
			return fiscal.Nak{Code: fiscal.CodeBusy}, false
		case FailNakFiscal:
			return fiscal.Nak{Code: fiscal.CodeFiscalMemory}, false
		case FailDisconnect:
			return nil, true
		case FailExecuteSilent:
			d.apply(cmd)
			return nil, false
		}
	}
	return d.apply(cmd), false
}

func (d *Device) apply(cmd fiscal.Command) fiscal.Response {
	switch cmd.(type) {
	case fiscal.OpenDocument:
		// Opening while a document is open discards the stale document,
		// matching hardware that resets its transaction buffer on open.
		d.docOpen = true
		return fiscal.Ack{}
	case fiscal.AddLineItem, fiscal.AddPayment:
		if !d.docOpen {
			return fiscal.Nak{Code: fiscal.CodeInvalidSequence}
		}
		return fiscal.Ack{}
	case fiscal.CloseDocument:
		if !d.docOpen {
			return fiscal.Nak{Code: fiscal.CodeInvalidSequence}
		}
		d.docOpen = false
		d.lastFiscal++
		return fiscal.Ack{FiscalNumber: d.lastFiscal}
	case fiscal.CancelDocument:
		d.docOpen = false
		return fiscal.Ack{}
	case fiscal.StatusQuery:
		return fiscal.StatusReply{
			DocumentOpen:     d.docOpen,
			LastFiscalNumber: d.lastFiscal,
		}
	}
	return fiscal.Nak{Code: fiscal.CodeInvalidSequence}
}

func (d *Device) popFailure(kind fiscal.CommandKind) (FailureMode, bool) {
	queue := d.script[kind]
	if len(queue) == 0 {
		return 0, false
	}
	d.script[kind] = queue[1:]
	return queue[0], true
}
