package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicsys/go-secs2hsms/pkg/header"
	"github.com/mosaicsys/go-secs2hsms/pkg/item"
	"github.com/mosaicsys/go-secs2hsms/pkg/sfparser"
)

func TestNew_RejectsWaitBitOnReply(t *testing.T) {
	_, err := New(sfparser.StreamFunction{Stream: 1, Function: 14, W: true}, item.None())
	assert.Error(t, err)
}

func TestMessage_Reply(t *testing.T) {
	primary, err := New(sfparser.StreamFunction{Stream: 1, Function: 13, W: true}, item.List())
	require.NoError(t, err)

	reply, err := primary.Reply(item.List(item.U1(0), item.List()))
	require.NoError(t, err)

	assert.Equal(t, 1, reply.StreamFunction().Stream)
	assert.Equal(t, 14, reply.StreamFunction().Function)
	assert.False(t, reply.StreamFunction().W)
}

func TestFrame_EncodeDecode_RoundTrip(t *testing.T) {
	h := header.Header{SessionID: 5, Stream: 6, Function: 11, W: true, SystemBytes: 99}
	payload := []byte{0x01, 0x00}
	f, err := NewFrame(h, payload)
	require.NoError(t, err)

	encoded := f.Encode()
	decoded, err := DecodeFrame(encoded, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, f.Header, decoded.Header)
	assert.Equal(t, f.Payload, decoded.Payload)
}

func TestNewFrame_RejectsPayloadOnControlSType(t *testing.T) {
	h := header.Header{SType: header.STypeLinktestReq}
	_, err := NewFrame(h, []byte{1})
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestDecodeFrame_RejectsShortLength(t *testing.T) {
	// Declares a length of 4 (< 10 header bytes).
	b := []byte{0x00, 0x00, 0x00, 0x04, 0, 0, 0, 0}
	_, err := DecodeFrame(b, 1<<20)
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestPendingSend_CompleteIsIdempotent(t *testing.T) {
	msg, err := New(sfparser.StreamFunction{Stream: 6, Function: 11, W: true}, item.None())
	require.NoError(t, err)
	p := NewPendingSend(1, msg, time.Now())

	reply, err := msg.Reply(item.U1(0))
	require.NoError(t, err)

	p.Complete(SendResult{Reply: &reply})
	p.Complete(SendResult{Err: assert.AnError}) // must not panic or overwrite

	result := p.Wait()
	require.NotNil(t, result.Reply)
	assert.Equal(t, reply, *result.Reply)
}
