// Package fiscal implements the wire codec for the fiscal printer protocol:
// a stateless encoder for commands and responses, and a partial-frame-aware
// streaming decoder.
//
// Frame layout:
//
//	STX | LEN(2, big-endian) | PAYLOAD | CRC16-CCITT(2, over payload) | ETX
//
// The payload is a kind byte followed by FS-separated text fields. Decoding
// is deterministic and side-effect free: feeding the same bytes always yields
// the same result.
package fiscal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	stx byte = 0x02
	etx byte = 0x03
	fs  byte = 0x1C // field separator inside the payload

	frameOverhead = 6 // STX + LEN(2) + CRC(2) + ETX
	maxPayloadLen = 4096
)

var (
	// ErrNeedMoreData indicates the buffered bytes do not yet contain a
	// complete frame. Feed more bytes and call Next again.
	ErrNeedMoreData = errors.New("fiscal: need more data")

	// ErrCorruptFrame indicates checksum or framing validation failed. The
	// decoder has already discarded the bad bytes and resynchronized; the
	// caller may simply continue reading.
	ErrCorruptFrame = errors.New("fiscal: corrupt frame")
)

// crc16 computes CRC16-CCITT (poly 0x1021, init 0xFFFF) over p. The device's
// BCC field is two bytes wide, which rules out the stdlib 32-bit tables.
func crc16(p []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range p {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// encodeFrame wraps a kind byte and its fields into a complete frame.
func encodeFrame(kind byte, fields []string) []byte {
	payload := []byte{kind}
	for _, f := range fields {
		payload = append(payload, fs)
		payload = append(payload, f...)
	}

	frame := make([]byte, 0, len(payload)+frameOverhead)
	frame = append(frame, stx)
	frame = binary.BigEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, payload...)
	frame = binary.BigEndian.AppendUint16(frame, crc16(payload))
	frame = append(frame, etx)
	return frame
}

// splitPayload separates a frame payload into its kind byte and fields.
func splitPayload(payload []byte) (byte, []string, error) {
	if len(payload) == 0 {
		return 0, nil, fmt.Errorf("fiscal: empty payload")
	}
	kind := payload[0]
	if len(payload) == 1 {
		return kind, nil, nil
	}
	if payload[1] != fs {
		return 0, nil, fmt.Errorf("fiscal: malformed payload after kind 0x%02X", kind)
	}
	return kind, strings.Split(string(payload[2:]), string(fs)), nil
}

// Decoder accumulates raw bytes from the transport and extracts complete
// frame payloads. It tolerates frames arriving one byte at a time and
// resynchronizes on corrupt input instead of failing permanently.
//
// The zero value is ready to use. A Decoder is not safe for concurrent use.
type Decoder struct {
	buf []byte
}

// Feed appends raw bytes to the decoder's buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next extracts the next complete frame payload from the buffer. It returns
// ErrNeedMoreData when the buffer holds only a partial frame, and
// ErrCorruptFrame when framing or checksum validation fails (the offending
// bytes are discarded so the next call resumes at the following frame).
func (d *Decoder) Next() ([]byte, error) {
	// Skip inter-frame noise up to the next STX.
	if i := bytes.IndexByte(d.buf, stx); i > 0 {
		d.buf = d.buf[i:]
	} else if i < 0 {
		noise := len(d.buf) > 0
		d.buf = d.buf[:0]
		if noise {
			return nil, ErrCorruptFrame
		}
		return nil, ErrNeedMoreData
	}

	if len(d.buf) < 3 {
		return nil, ErrNeedMoreData
	}
	plen := int(binary.BigEndian.Uint16(d.buf[1:3]))
	if plen == 0 || plen > maxPayloadLen {
		return nil, d.resync()
	}
	total := plen + frameOverhead
	if len(d.buf) < total {
		return nil, ErrNeedMoreData
	}

	frame := d.buf[:total]
	payload := frame[3 : 3+plen]
	wantCRC := binary.BigEndian.Uint16(frame[3+plen : 5+plen])
	if frame[total-1] != etx || crc16(payload) != wantCRC {
		return nil, d.resync()
	}

	out := make([]byte, plen)
	copy(out, payload)
	d.buf = d.buf[total:]
	return out, nil
}

// resync discards the current (bad) STX and scans forward to the next one.
func (d *Decoder) resync() error {
	if i := bytes.IndexByte(d.buf[1:], stx); i >= 0 {
		d.buf = d.buf[i+1:]
	} else {
		d.buf = d.buf[:0]
	}
	return ErrCorruptFrame
}

// Reset discards all buffered bytes. The driver calls it after a reconnect so
// stale half-frames from the previous link never corrupt the new one.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}
