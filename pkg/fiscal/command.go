package fiscal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Document types understood by the device.
const (
	DocReceipt byte = 0
	DocRefund  byte = 1
)

// Payment method codes understood by the device.
const (
	PayCash   byte = 0
	PayCard   byte = 1
	PayMobile byte = 2
)

// Command is a closed set of fiscal printer commands. Every variant is
// matched exhaustively in the codec and the driver.
type Command interface {
	// Kind returns the single-byte command discriminator used on the wire.
	Kind() CommandKind
}

// CommandKind is the wire discriminator for a command.
type CommandKind byte

const (
	KindOpenDocument   CommandKind = 'O'
	KindAddLineItem    CommandKind = 'L'
	KindAddPayment     CommandKind = 'P'
	KindCloseDocument  CommandKind = 'C'
	KindCancelDocument CommandKind = 'X'
	KindStatusQuery    CommandKind = 'S'
)

func (k CommandKind) String() string {
	switch k {
	case KindOpenDocument:
		return "open-document"
	case KindAddLineItem:
		return "add-line-item"
	case KindAddPayment:
		return "add-payment"
	case KindCloseDocument:
		return "close-document"
	case KindCancelDocument:
		return "cancel-document"
	case KindStatusQuery:
		return "status-query"
	}
	return fmt.Sprintf("unknown(0x%02X)", byte(k))
}

// OpenDocument starts a fiscal document on the device.
type OpenDocument struct {
	DocType  byte
	Operator string
	Till     string
}

func (OpenDocument) Kind() CommandKind { return KindOpenDocument }

// AddLineItem appends a line item to the open document.
type AddLineItem struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
}

func (AddLineItem) Kind() CommandKind { return KindAddLineItem }

// AddPayment registers a payment against the open document.
type AddPayment struct {
	Method byte
	Amount decimal.Decimal
}

func (AddPayment) Kind() CommandKind { return KindAddPayment }

// CloseDocument finalizes and emits the open document. This is the command
// that advances the device's fiscal counter.
type CloseDocument struct{}

func (CloseDocument) Kind() CommandKind { return KindCloseDocument }

// CancelDocument aborts the open document without emitting it.
type CancelDocument struct{}

func (CancelDocument) Kind() CommandKind { return KindCancelDocument }

// StatusQuery asks the device for its current state. It never mutates fiscal
// memory, so it is safe to issue at any point.
type StatusQuery struct{}

func (StatusQuery) Kind() CommandKind { return KindStatusQuery }

// EncodeCommand serializes a command into a complete device frame.
func EncodeCommand(cmd Command) ([]byte, error) {
	var fields []string
	switch c := cmd.(type) {
	case OpenDocument:
		fields = []string{strconv.Itoa(int(c.DocType)), sanitize(c.Operator), sanitize(c.Till)}
	case AddLineItem:
		if c.Quantity <= 0 {
			return nil, fmt.Errorf("fiscal: line item quantity must be positive, got %d", c.Quantity)
		}
		fields = []string{
			sanitize(c.Name),
			strconv.Itoa(c.Quantity),
			c.UnitPrice.StringFixed(2),
			c.Discount.StringFixed(2),
		}
	case AddPayment:
		fields = []string{strconv.Itoa(int(c.Method)), c.Amount.StringFixed(2)}
	case CloseDocument, CancelDocument, StatusQuery:
		// No fields.
	default:
		return nil, fmt.Errorf("fiscal: unknown command type %T", cmd)
	}
	return encodeFrame(byte(cmd.Kind()), fields), nil
}

// DecodeCommand parses a frame payload back into a command. It is the inverse
// of EncodeCommand and is used by simulated devices and round-trip tests.
func DecodeCommand(payload []byte) (Command, error) {
	kind, fields, err := splitPayload(payload)
	if err != nil {
		return nil, err
	}
	switch CommandKind(kind) {
	case KindOpenDocument:
		if len(fields) != 3 {
			return nil, fmt.Errorf("fiscal: open-document expects 3 fields, got %d", len(fields))
		}
		docType, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("fiscal: bad document type %q: %w", fields[0], err)
		}
		return OpenDocument{DocType: byte(docType), Operator: fields[1], Till: fields[2]}, nil
	case KindAddLineItem:
		if len(fields) != 4 {
			return nil, fmt.Errorf("fiscal: add-line-item expects 4 fields, got %d", len(fields))
		}
		qty, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("fiscal: bad quantity %q: %w", fields[1], err)
		}
		price, err := decimal.NewFromString(fields[2])
		if err != nil {
			return nil, fmt.Errorf("fiscal: bad unit price %q: %w", fields[2], err)
		}
		discount, err := decimal.NewFromString(fields[3])
		if err != nil {
			return nil, fmt.Errorf("fiscal: bad discount %q: %w", fields[3], err)
		}
		return AddLineItem{Name: fields[0], Quantity: qty, UnitPrice: price, Discount: discount}, nil
	case KindAddPayment:
		if len(fields) != 2 {
			return nil, fmt.Errorf("fiscal: add-payment expects 2 fields, got %d", len(fields))
		}
		method, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("fiscal: bad payment method %q: %w", fields[0], err)
		}
		amount, err := decimal.NewFromString(fields[1])
		if err != nil {
			return nil, fmt.Errorf("fiscal: bad amount %q: %w", fields[1], err)
		}
		return AddPayment{Method: byte(method), Amount: amount}, nil
	case KindCloseDocument:
		return CloseDocument{}, nil
	case KindCancelDocument:
		return CancelDocument{}, nil
	case KindStatusQuery:
		return StatusQuery{}, nil
	}
	return nil, fmt.Errorf("fiscal: unknown command kind 0x%02X", kind)
}

// sanitize strips control bytes from free-text fields so they can never
// collide with the frame's field separator or framing bytes.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 {
			return ' '
		}
		return r
	}, s)
}
