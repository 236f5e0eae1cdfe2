package fiscal

import (
	"fmt"
	"strconv"
)

// Device error codes carried by a Nak. Codes below 0x20 are transient device
// conditions; codes at or above 0x20 indicate a fiscal fault that must never
// be retried blindly.
type DeviceCode byte

const (
	CodeBusy            DeviceCode = 0x01
	CodeBufferFull      DeviceCode = 0x02
	CodePaperOut        DeviceCode = 0x03
	CodeInvalidSequence DeviceCode = 0x21
	CodeFiscalMemory    DeviceCode = 0x22
	CodeDocumentLimit   DeviceCode = 0x23
)

// IsFiscalFault reports whether the code is a fiscal fault rather than a
// transient condition.
func (c DeviceCode) IsFiscalFault() bool { return c >= 0x20 }

func (c DeviceCode) String() string {
	switch c {
	case CodeBusy:
		return "busy"
	case CodeBufferFull:
		return "buffer-full"
	case CodePaperOut:
		return "paper-out"
	case CodeInvalidSequence:
		return "invalid-document-sequence"
	case CodeFiscalMemory:
		return "fiscal-memory-error"
	case CodeDocumentLimit:
		return "document-limit-reached"
	}
	return fmt.Sprintf("device-code-0x%02X", byte(c))
}

// Response is the closed set of device replies.
type Response interface {
	respKind() byte
}

const (
	respAck    byte = 'A'
	respNak    byte = 'N'
	respStatus byte = 'Q'
)

// Ack acknowledges a successful command. FiscalNumber is the emitted document
// number and is only meaningful on a close-document acknowledgment.
type Ack struct {
	FiscalNumber uint32
}

func (Ack) respKind() byte { return respAck }

// Nak rejects a command with a device error code.
type Nak struct {
	Code DeviceCode
}

func (Nak) respKind() byte { return respNak }

// StatusReply describes the device's current state. LastFiscalNumber is the
// number of the most recently emitted document; the driver compares it
// against a pre-dispatch snapshot to resolve ambiguous close timeouts.
type StatusReply struct {
	DocumentOpen     bool
	LastFiscalNumber uint32
	FaultCode        DeviceCode
}

func (StatusReply) respKind() byte { return respStatus }

// EncodeResponse serializes a response into a complete device frame. Real
// hardware produces these; in this codebase the simulated device does.
func EncodeResponse(resp Response) ([]byte, error) {
	var fields []string
	switch r := resp.(type) {
	case Ack:
		fields = []string{strconv.FormatUint(uint64(r.FiscalNumber), 10)}
	case Nak:
		fields = []string{strconv.Itoa(int(r.Code))}
	case StatusReply:
		open := "0"
		if r.DocumentOpen {
			open = "1"
		}
		fields = []string{
			open,
			strconv.FormatUint(uint64(r.LastFiscalNumber), 10),
			strconv.Itoa(int(r.FaultCode)),
		}
	default:
		return nil, fmt.Errorf("fiscal: unknown response type %T", resp)
	}
	return encodeFrame(resp.respKind(), fields), nil
}

// DecodeResponse parses a frame payload into a response.
func DecodeResponse(payload []byte) (Response, error) {
	kind, fields, err := splitPayload(payload)
	if err != nil {
		return nil, err
	}
	switch kind {
	case respAck:
		if len(fields) != 1 {
			return nil, fmt.Errorf("fiscal: ack expects 1 field, got %d", len(fields))
		}
		n, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("fiscal: bad fiscal number %q: %w", fields[0], err)
		}
		return Ack{FiscalNumber: uint32(n)}, nil
	case respNak:
		if len(fields) != 1 {
			return nil, fmt.Errorf("fiscal: nak expects 1 field, got %d", len(fields))
		}
		code, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("fiscal: bad device code %q: %w", fields[0], err)
		}
		return Nak{Code: DeviceCode(code)}, nil
	case respStatus:
		if len(fields) != 3 {
			return nil, fmt.Errorf("fiscal: status reply expects 3 fields, got %d", len(fields))
		}
		n, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("fiscal: bad fiscal number %q: %w", fields[1], err)
		}
		code, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("fiscal: bad fault code %q: %w", fields[2], err)
		}
		return StatusReply{
			DocumentOpen:     fields[0] == "1",
			LastFiscalNumber: uint32(n),
			FaultCode:        DeviceCode(code),
		}, nil
	}
	return nil, fmt.Errorf("fiscal: unknown response kind 0x%02X", kind)
}
