package fiscal

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decodeOne(t *testing.T, frame []byte) []byte {
	t.Helper()
	var d Decoder
	d.Feed(frame)
	payload, err := d.Next()
	require.NoError(t, err)
	return payload
}

func TestCommandRoundTrip(t *testing.T) {
	commands := []Command{
		OpenDocument{DocType: DocReceipt, Operator: "op-7", Till: "till-1"},
		OpenDocument{DocType: DocRefund, Operator: "op-2", Till: "till-3"},
		AddLineItem{Name: "Espresso", Quantity: 2, UnitPrice: dec("3.50"), Discount: dec("0.00")},
		AddLineItem{Name: "Croissant", Quantity: 1, UnitPrice: dec("2.75"), Discount: dec("0.25")},
		AddPayment{Method: PayCash, Amount: dec("35.50")},
		AddPayment{Method: PayCard, Amount: dec("10.00")},
		CloseDocument{},
		CancelDocument{},
		StatusQuery{},
	}

	for _, cmd := range commands {
		t.Run(cmd.Kind().String(), func(t *testing.T) {
			frame, err := EncodeCommand(cmd)
			require.NoError(t, err)

			got, err := DecodeCommand(decodeOne(t, frame))
			require.NoError(t, err)

			switch want := cmd.(type) {
			case AddLineItem:
				gotLine := got.(AddLineItem)
				assert.Equal(t, want.Name, gotLine.Name)
				assert.Equal(t, want.Quantity, gotLine.Quantity)
				assert.True(t, want.UnitPrice.Equal(gotLine.UnitPrice))
				assert.True(t, want.Discount.Equal(gotLine.Discount))
			case AddPayment:
				gotPay := got.(AddPayment)
				assert.Equal(t, want.Method, gotPay.Method)
				assert.True(t, want.Amount.Equal(gotPay.Amount))
			default:
				assert.Equal(t, cmd, got)
			}
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	responses := []Response{
		Ack{FiscalNumber: 1042},
		Nak{Code: CodeBusy},
		Nak{Code: CodeFiscalMemory},
		StatusReply{DocumentOpen: true, LastFiscalNumber: 99, FaultCode: 0},
		StatusReply{DocumentOpen: false, LastFiscalNumber: 100, FaultCode: CodeDocumentLimit},
	}

	for _, resp := range responses {
		frame, err := EncodeResponse(resp)
		require.NoError(t, err)

		got, err := DecodeResponse(decodeOne(t, frame))
		require.NoError(t, err)
		assert.Equal(t, resp, got)
	}
}

func TestEncodeRejectsNonPositiveQuantity(t *testing.T) {
	_, err := EncodeCommand(AddLineItem{Name: "Bag", Quantity: 0, UnitPrice: dec("1.00"), Discount: dec("0.00")})
	assert.Error(t, err)

	_, err = EncodeCommand(AddLineItem{Name: "Bag", Quantity: -1, UnitPrice: dec("1.00"), Discount: dec("0.00")})
	assert.Error(t, err)
}

func TestSanitizeStripsControlBytes(t *testing.T) {
	// A product name containing the field separator must not shift the
	// remaining fields on the wire.
	frame, err := EncodeCommand(AddLineItem{
		Name:      "Milk\x1c2L\x02",
		Quantity:  1,
		UnitPrice: dec("4.20"),
		Discount:  dec("0.00"),
	})
	require.NoError(t, err)

	got, err := DecodeCommand(decodeOne(t, frame))
	require.NoError(t, err)
	assert.Equal(t, "Milk 2L ", got.(AddLineItem).Name)
	assert.Equal(t, 1, got.(AddLineItem).Quantity)
}

func TestDecoderByteAtATime(t *testing.T) {
	frame, err := EncodeCommand(OpenDocument{DocType: DocReceipt, Operator: "op", Till: "t1"})
	require.NoError(t, err)

	var d Decoder
	for i, b := range frame {
		d.Feed([]byte{b})
		payload, err := d.Next()
		if i < len(frame)-1 {
			require.ErrorIs(t, err, ErrNeedMoreData, "byte %d", i)
			continue
		}
		require.NoError(t, err)
		cmd, err := DecodeCommand(payload)
		require.NoError(t, err)
		assert.Equal(t, OpenDocument{DocType: DocReceipt, Operator: "op", Till: "t1"}, cmd)
	}
}

func TestDecoderMultipleFramesInOneFeed(t *testing.T) {
	first, err := EncodeResponse(Ack{FiscalNumber: 1})
	require.NoError(t, err)
	second, err := EncodeResponse(Ack{FiscalNumber: 2})
	require.NoError(t, err)

	var d Decoder
	d.Feed(append(first, second...))

	for want := uint32(1); want <= 2; want++ {
		payload, err := d.Next()
		require.NoError(t, err)
		resp, err := DecodeResponse(payload)
		require.NoError(t, err)
		assert.Equal(t, Ack{FiscalNumber: want}, resp)
	}

	_, err = d.Next()
	assert.ErrorIs(t, err, ErrNeedMoreData)
}

func TestDecoderResyncsAfterCorruptFrame(t *testing.T) {
	good, err := EncodeResponse(Ack{FiscalNumber: 7})
	require.NoError(t, err)

	bad := make([]byte, len(good))
	copy(bad, good)
	bad[4] ^= 0xFF // flip a payload byte, CRC no longer matches

	var d Decoder
	d.Feed(bad)
	d.Feed(good)

	_, err = d.Next()
	assert.ErrorIs(t, err, ErrCorruptFrame)

	payload, err := d.Next()
	require.NoError(t, err)
	resp, err := DecodeResponse(payload)
	require.NoError(t, err)
	assert.Equal(t, Ack{FiscalNumber: 7}, resp)
}

func TestDecoderSkipsInterFrameNoise(t *testing.T) {
	frame, err := EncodeResponse(Nak{Code: CodePaperOut})
	require.NoError(t, err)

	var d Decoder
	d.Feed([]byte{0x00, 0xFF, 0x10})
	d.Feed(frame)

	payload, err := d.Next()
	require.NoError(t, err)
	resp, err := DecodeResponse(payload)
	require.NoError(t, err)
	assert.Equal(t, Nak{Code: CodePaperOut}, resp)
}

func TestDecoderRejectsOversizedLength(t *testing.T) {
	frame, err := EncodeResponse(Ack{FiscalNumber: 3})
	require.NoError(t, err)

	oversized := make([]byte, len(frame))
	copy(oversized, frame)
	oversized[1] = 0xFF
	oversized[2] = 0xFF

	var d Decoder
	d.Feed(oversized)
	_, err = d.Next()
	assert.ErrorIs(t, err, ErrCorruptFrame)

	// A well-formed frame fed afterwards still decodes.
	d.Feed(frame)
	payload, err := d.Next()
	require.NoError(t, err)
	resp, err := DecodeResponse(payload)
	require.NoError(t, err)
	assert.Equal(t, Ack{FiscalNumber: 3}, resp)
}

func TestDeviceCodeClassification(t *testing.T) {
	assert.False(t, CodeBusy.IsFiscalFault())
	assert.False(t, CodeBufferFull.IsFiscalFault())
	assert.False(t, CodePaperOut.IsFiscalFault())
	assert.True(t, CodeInvalidSequence.IsFiscalFault())
	assert.True(t, CodeFiscalMemory.IsFiscalFault())
	assert.True(t, CodeDocumentLimit.IsFiscalFault())
}
