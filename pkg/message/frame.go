package message

import (
	"encoding/binary"
	"fmt"

	"github.com/mosaicsys/go-secs2hsms/pkg/header"
)

// MinFrameBytes is the smallest legal frame: 4 length bytes + a 10-byte
// header with no payload.
const MinFrameBytes = 14

// Frame is the wire unit: a 4-byte big-endian length prefix (counting the
// 10-byte header and any payload), the header, and the payload bytes.
// Spec §3 "Frame".
type Frame struct {
	Header  header.Header
	Payload []byte
}

// NewFrame validates and builds a Frame. Per spec §3, payload MUST be
// empty for every SType other than DataMessage.
func NewFrame(h header.Header, payload []byte) (Frame, error) {
	if h.SType != header.STypeDataMessage && len(payload) != 0 {
		return Frame{}, fmt.Errorf("%w: SType %s must carry an empty payload", ErrProtocolViolation, h.SType)
	}
	return Frame{Header: h, Payload: payload}, nil
}

// Encode serializes f as length-prefixed wire bytes.
func (f Frame) Encode() []byte {
	headerBytes := f.Header.Encode()
	total := len(headerBytes) + len(f.Payload)

	out := make([]byte, 0, 4+total)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(total))
	out = append(out, lenBuf[:]...)
	out = append(out, headerBytes[:]...)
	out = append(out, f.Payload...)
	return out
}

// PeekLength reads the 4-byte length prefix from b, returning the total
// frame length (4 + the prefix value) and ok=false if b is too short to
// contain the prefix.
func PeekLength(b []byte) (totalFrameLen int, ok bool) {
	if len(b) < 4 {
		return 0, false
	}
	payloadAndHeaderLen := binary.BigEndian.Uint32(b[0:4])
	return 4 + int(payloadAndHeaderLen), true
}

// DecodeFrame parses a single complete frame from b (b must contain
// exactly one frame's bytes: the 4-byte length prefix, header, and
// payload). maxBodySize bounds the accepted header+payload length
// (spec §6 MaximumMesgBodySize, applied as header+payload here per spec
// §4.3's framing rule "length ∈ [10, MaximumMesgBodySize + 10]").
func DecodeFrame(b []byte, maxBodySize int) (Frame, error) {
	total, ok := PeekLength(b)
	if !ok {
		return Frame{}, fmt.Errorf("%w: too short to contain a length prefix", ErrProtocolViolation)
	}
	if total != len(b) {
		return Frame{}, fmt.Errorf("%w: declared length %d does not match %d available bytes", ErrProtocolViolation, total, len(b))
	}
	bodyLen := total - 4
	if bodyLen < 10 || bodyLen > maxBodySize+10 {
		return Frame{}, fmt.Errorf("%w: frame body length %d outside [10, %d]", ErrProtocolViolation, bodyLen, maxBodySize+10)
	}

	var headerBytes [10]byte
	copy(headerBytes[:], b[4:14])
	h := header.Decode(headerBytes)
	payload := append([]byte{}, b[14:]...)

	return NewFrame(h, payload)
}
