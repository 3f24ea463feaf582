package session

import (
	"context"

	"github.com/mosaicsys/go-secs2hsms/pkg/message"
)

// SequenceSource issues globally unique, non-zero SystemBytes values.
// pkg/manager.Manager implements this; a Engine is handed one at
// construction rather than reaching for a process-wide singleton, per
// spec §9's "explicitly owned object" re-architecture note.
type SequenceSource interface {
	NextSystemBytes() uint32
}

// Dispatcher routes a received primary message to application handlers.
// pkg/manager.Manager implements this. Dispatch is called synchronously
// on the engine's inbound-processing goroutine and MUST NOT block on
// external I/O (spec §5 "Suspension points").
//
// If the primary's W bit is set and the handler supplies a reply inline,
// Dispatch returns it and the engine sends it immediately. If the
// handler defers its reply (spec §8 scenario 4) or there is no handler
// and W is unset, Dispatch returns (nil, false) and the engine does
// nothing further for this primary. If there is no handler and W is set,
// Dispatch itself returns the generic S<n>/F0 transaction-abort reply
// (spec §4.4), so the engine's send path never special-cases "no
// handler".
type Dispatcher interface {
	Dispatch(ctx context.Context, primary message.Message) (reply *message.Message, ok bool)
}
