// Package message implements the application-facing SECS-II Message
// (spec §3 "Message") and the wire Frame it is carried in (spec §3
// "Frame"), plus the PendingSend record a SessionEngine uses to match a
// posted request with its eventual reply.
//
// Spec §9 describes the teacher's mutable Message with guard properties
// that panic on reassignment (Port, SeqNum, ContentBytes, Reply) and asks
// for a typestate-builder re-architecture instead. This package goes
// further: Message itself carries none of that assign-once mutable
// state. A Message is a plain immutable value (stream/function, wait
// bit, content, a high-rate hint). The SystemBytes and send-posted time
// of a request awaiting a reply live on PendingSend, which SessionEngine
// owns; the engine builds the wire header into the outbound Frame, and
// the reply is delivered as the PendingSend's SendResult, instead of
// through guarded setters on a shared object.
package message

import (
	"fmt"

	"github.com/mosaicsys/go-secs2hsms/pkg/item"
	"github.com/mosaicsys/go-secs2hsms/pkg/sfparser"
)

// Message is an immutable application-level SECS-II message: a
// Stream/Function designator, its wait-bit, and a content item.
type Message struct {
	sf         sfparser.StreamFunction
	content    item.Value
	isHighRate bool
}

// New creates a Message. sf.W indicates whether the sender expects a
// reply; a reply message (even Function) must have sf.W == false.
func New(sf sfparser.StreamFunction, content item.Value, opts ...Option) (Message, error) {
	if sf.W && sf.Function%2 == 0 {
		return Message{}, fmt.Errorf("message: wait bit cannot be set on a reply (S%dF%d)", sf.Stream, sf.Function)
	}
	m := Message{sf: sf, content: content}
	for _, opt := range opts {
		opt(&m)
	}
	return m, nil
}

// Option configures optional Message fields at construction.
type Option func(*Message)

// HighRate marks the message as high-rate: a hint session logging uses to
// choose a quieter log level (spec §4.4 "high-rate stream/function
// keys").
func HighRate() Option {
	return func(m *Message) { m.isHighRate = true }
}

// StreamFunction returns the message's Stream/Function/W designator.
func (m Message) StreamFunction() sfparser.StreamFunction { return m.sf }

// Content returns the message's payload item tree.
func (m Message) Content() item.Value { return m.content }

// IsHighRate reports the high-rate logging hint.
func (m Message) IsHighRate() bool { return m.isHighRate }

// Reply builds the reply Message to m (Function+1, W=false), per spec
// §4.2's is_reply_of/make_reply_header relationship lifted to the
// application-message level.
func (m Message) Reply(content item.Value) (Message, error) {
	return New(sfparser.StreamFunction{Stream: m.sf.Stream, Function: m.sf.Function + 1, W: false}, content)
}
