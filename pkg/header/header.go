// Package header implements the HSMS/SECS-II 10-byte message header
// (spec §3 "TenByteHeader", §4.2) as a plain value type: no derived state
// is recomputed after field assignment, matching spec §4.2's POD
// requirement. It is directly descended from the teacher library's
// ast.ControlMessage header-byte packing (pkg/ast/hsms.go), generalized
// from a family of per-SType constructors into one struct with
// Encode/Decode.
package header

import "encoding/binary"

// SType identifies the HSMS frame kind, spec §6.
type SType byte

const (
	STypeDataMessage SType = 0
	STypeSelectReq   SType = 1
	STypeSelectRsp   SType = 2
	STypeDeselectReq SType = 3
	STypeDeselectRsp SType = 4
	STypeLinktestReq SType = 5
	STypeLinktestRsp SType = 6
	STypeRejectReq   SType = 7
	STypeSeparateReq SType = 9
)

func (t SType) String() string {
	switch t {
	case STypeDataMessage:
		return "DataMessage"
	case STypeSelectReq:
		return "Select.req"
	case STypeSelectRsp:
		return "Select.rsp"
	case STypeDeselectReq:
		return "Deselect.req"
	case STypeDeselectRsp:
		return "Deselect.rsp"
	case STypeLinktestReq:
		return "Linktest.req"
	case STypeLinktestRsp:
		return "Linktest.rsp"
	case STypeRejectReq:
		return "Reject.req"
	case STypeSeparateReq:
		return "Separate.req"
	default:
		return "Unknown"
	}
}

// LinktestSessionID is the SessionID HSMS-SS requires on Linktest frames,
// and uses on DataMessage frames whose session is otherwise unaddressed.
const LinktestSessionID uint16 = 0xFFFF

// Select/Deselect response status codes, spec §6.
const (
	SelectStatusEstablished   byte = 0
	SelectStatusAlreadyActive byte = 1
	SelectStatusNotReady      byte = 2
	SelectStatusExhaust       byte = 3

	DeselectStatusEnded          byte = 0
	DeselectStatusNotEstablished byte = 1
	DeselectStatusBusy           byte = 2
)

// Reject reason codes, spec §6.
const (
	RejectReasonSTypeNotSupported     byte = 1
	RejectReasonPTypeNotSupported     byte = 2
	RejectReasonTransactionNotOpen    byte = 3
	RejectReasonEntityNotSelected     byte = 4
)

// Header is the 10-byte HSMS/SECS-I header, addressed B0..B9 per spec §3.
type Header struct {
	SessionID   uint16 // B0..B1
	Stream      byte   // B2 low 7 bits
	W           bool   // B2 high bit: reply expected
	Function    byte   // B3
	PType       byte   // B4; 0 = SECS-II
	SType       SType  // B5
	SystemBytes uint32 // B6..B9
}

// Encode packs h into the 10-byte wire layout.
func (h Header) Encode() [10]byte {
	var out [10]byte
	binary.BigEndian.PutUint16(out[0:2], h.SessionID)
	out[2] = h.Stream & 0x7F
	if h.W {
		out[2] |= 0x80
	}
	out[3] = h.Function
	out[4] = h.PType
	out[5] = byte(h.SType)
	binary.BigEndian.PutUint32(out[6:10], h.SystemBytes)
	return out
}

// Decode unpacks the 10-byte wire layout into a Header.
func Decode(b [10]byte) Header {
	return Header{
		SessionID:   binary.BigEndian.Uint16(b[0:2]),
		Stream:      b[2] & 0x7F,
		W:           b[2]&0x80 != 0,
		Function:    b[3],
		PType:       b[4],
		SType:       SType(b[5]),
		SystemBytes: binary.BigEndian.Uint32(b[6:10]),
	}
}

// IsPrimary reports whether this header belongs to a primary message
// (odd Function).
func (h Header) IsPrimary() bool { return h.Function&1 != 0 }

// IsFaultReply reports whether a DataMessage frame with this header must
// be treated as a transaction-abort/error reply routed by SystemBytes
// rather than dispatched as a primary, spec §4.3: "if function == 0 or
// stream == 9, treat as a fault reply". Stream 9 (S9, equipment-reported
// communication errors such as S9F1 Unrecognized Device ID) carries odd
// function numbers but is never a dispatchable primary.
func (h Header) IsFaultReply() bool { return h.Function == 0 || h.Stream == 9 }

// ExpectsReply reports whether the sender set the W bit.
func (h Header) ExpectsReply() bool { return h.W }

// IsReplyOf reports whether h is the reply to primary, per spec §4.2:
// same stream, Function = primary.Function+1, W unset.
func (h Header) IsReplyOf(primary Header) bool {
	return primary.Stream == h.Stream && primary.Function+1 == h.Function && !h.W
}

// MakeReplyHeader returns the header for this primary's reply: same
// SessionID and SystemBytes, Function+1, W cleared, SType=DataMessage.
func (h Header) MakeReplyHeader() Header {
	return Header{
		SessionID:   h.SessionID,
		Stream:      h.Stream,
		W:           false,
		Function:    h.Function + 1,
		PType:       h.PType,
		SType:       STypeDataMessage,
		SystemBytes: h.SystemBytes,
	}
}

// TransactionAbortReply returns the generic S<n>/F0 transaction-abort
// reply header for this primary.
func (h Header) TransactionAbortReply() Header {
	return Header{
		SessionID:   h.SessionID,
		Stream:      h.Stream,
		W:           false,
		Function:    0,
		PType:       h.PType,
		SType:       STypeDataMessage,
		SystemBytes: h.SystemBytes,
	}
}
