package header

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	h := Header{
		SessionID:   42,
		Stream:      6,
		W:           true,
		Function:    11,
		PType:       0,
		SType:       STypeDataMessage,
		SystemBytes: 0xDEADBEEF,
	}
	got := Decode(h.Encode())
	assert.Equal(t, h, got)
}

func TestMakeReplyHeader(t *testing.T) {
	primary := Header{SessionID: 1, Stream: 6, Function: 11, W: true, SystemBytes: 7}
	reply := primary.MakeReplyHeader()

	require.True(t, reply.IsReplyOf(primary))
	assert.Equal(t, primary.Stream, reply.Stream)
	assert.Equal(t, primary.Function+1, reply.Function)
	assert.False(t, reply.W)
	assert.Equal(t, primary.SystemBytes, reply.SystemBytes)
}

func TestTransactionAbortReply(t *testing.T) {
	primary := Header{SessionID: 1, Stream: 3, Function: 17, W: true, SystemBytes: 9}
	abort := primary.TransactionAbortReply()
	assert.Equal(t, byte(0), abort.Function)
	assert.False(t, abort.W)
	assert.Equal(t, primary.SystemBytes, abort.SystemBytes)
}

func TestIsPrimary(t *testing.T) {
	assert.True(t, Header{Function: 13}.IsPrimary())
	assert.False(t, Header{Function: 14}.IsPrimary())
}

func TestIsFaultReply(t *testing.T) {
	assert.True(t, Header{Stream: 1, Function: 0}.IsFaultReply())
	assert.True(t, Header{Stream: 9, Function: 1}.IsFaultReply())
	assert.True(t, Header{Stream: 9, Function: 5}.IsFaultReply())
	assert.False(t, Header{Stream: 6, Function: 11}.IsFaultReply())
	assert.False(t, Header{Stream: 6, Function: 12}.IsFaultReply())
}

func TestEncode_PacksWBitAndStream(t *testing.T) {
	h := Header{Stream: 0x06, W: true, Function: 11}
	b := h.Encode()
	assert.Equal(t, byte(0x86), b[2])
	assert.Equal(t, byte(11), b[3])
}
