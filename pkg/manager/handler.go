package manager

import (
	"context"
	"fmt"

	"github.com/mosaicsys/go-secs2hsms/pkg/item"
	"github.com/mosaicsys/go-secs2hsms/pkg/message"
	"github.com/mosaicsys/go-secs2hsms/pkg/sfparser"
)

// Handler processes one received primary message. Returning ok=false
// means either the handler has no reply to give (a non-W primary), or
// it is deferring its reply to a later, independently-posted Send, spec
// §4.4 "If it does not assign a reply message ... the handler is
// responsible for arranging a later send."
type Handler func(ctx context.Context, primary message.Message) (reply item.Value, ok bool)

type handlerKey struct {
	stream   int
	function int
}

// RegisterHandler installs h for the exact (stream, function) pair.
// Registering with function == 0 installs a whole-stream fallback handler,
// spec §4.4 "Whole-stream fallback handler registered with function = 0".
func (m *Manager) RegisterHandler(stream, function int, h Handler) error {
	if stream < 1 || stream > 255 {
		return fmt.Errorf("manager: stream %d out of range 1..255", stream)
	}
	if function < 0 || function > 255 {
		return fmt.Errorf("manager: function %d out of range 0..255", function)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[handlerKey{stream, function}] = h
	return nil
}

func (m *Manager) lookupHandler(stream, function int) (Handler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.handlers[handlerKey{stream, function}]; ok {
		return h, true
	}
	if function != 0 {
		if h, ok := m.handlers[handlerKey{stream, 0}]; ok {
			return h, true
		}
	}
	return nil, false
}

// Dispatch implements session.Dispatcher, spec §4.4's handler-table
// lookup, synchronous invocation, and fault conversion.
func (m *Manager) Dispatch(ctx context.Context, primary message.Message) (reply *message.Message, ok bool) {
	sf := primary.StreamFunction()
	highRate := m.isHighRate(sf)

	handler, found := m.lookupHandler(sf.Stream, sf.Function)
	if !found {
		if !sf.W {
			m.debugOrInfo(ctx, highRate, "no handler registered", sf)
			return nil, false
		}
		return m.abortReply(primary), true
	}

	content, handlerOK, recovered := m.invoke(ctx, handler, primary)
	if recovered != nil {
		m.log.ErrorContext(ctx, "handler panicked", "streamFunction", sf.String(), "panic", recovered)
		if sf.W {
			return m.abortReply(primary), true
		}
		return nil, false
	}
	if !handlerOK {
		return nil, false
	}

	r, err := primary.Reply(content)
	if err != nil {
		m.log.ErrorContext(ctx, "handler reply rejected", "streamFunction", sf.String(), "error", err)
		return nil, false
	}
	return &r, true
}

// invoke calls handler, converting a panic into a recovered value rather
// than letting it escape and take down the port's dispatch goroutine,
// spec §4.4 "Any exception escaping a handler is caught, logged...".
func (m *Manager) invoke(ctx context.Context, handler Handler, primary message.Message) (content item.Value, ok bool, recovered any) {
	defer func() {
		recovered = recover()
	}()
	content, ok = handler(ctx, primary)
	return content, ok, nil
}

// abortReply builds the generic S<n>/F0 transaction-abort reply, spec
// §4.4 "the manager sends a generic S<n>/F0 transaction-abort."
func (m *Manager) abortReply(primary message.Message) *message.Message {
	sf := primary.StreamFunction()
	abortSF := sfparser.StreamFunction{Stream: sf.Stream, Function: 0, W: false}
	r, err := message.New(abortSF, item.None())
	if err != nil {
		return nil
	}
	return &r
}

func (m *Manager) debugOrInfo(ctx context.Context, highRate bool, msg string, sf sfparser.StreamFunction) {
	if highRate {
		m.log.DebugContext(ctx, msg, "streamFunction", sf.String())
		return
	}
	m.log.InfoContext(ctx, msg, "streamFunction", sf.String())
}
