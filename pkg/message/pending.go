package message

import (
	"fmt"
	"sync"
	"time"
)

// SendRejectReason enumerates why a send was refused at admission time,
// spec §7 "Admission: SendRejected { reason }".
type SendRejectReason string

const (
	SendRejectNoPort       SendRejectReason = "NoPort"
	SendRejectWrongPort    SendRejectReason = "WrongPort"
	SendRejectHasReply     SendRejectReason = "HasReply"
	SendRejectTooLarge     SendRejectReason = "TooLarge"
	SendRejectNotConnected SendRejectReason = "NotConnected"
	SendRejectQueueFull    SendRejectReason = "QueueFull"
)

// SendRejectedError is the admission-time error, never delivered through
// a PendingSend since an admission failure never gets a SystemBytes.
type SendRejectedError struct {
	Reason SendRejectReason
}

func (e *SendRejectedError) Error() string {
	return fmt.Sprintf("message: send rejected: %s", e.Reason)
}

// SendResult is the single terminal outcome of a posted send, spec §7
// "Every initiated send yields exactly one terminal result".
type SendResult struct {
	// Reply is the matched reply Message for a W-bit send that
	// completed successfully. Nil for a non-W send, or any failed send.
	Reply *Message
	// Err is nil on success (Ok(Reply) or Ok(())); otherwise one of the
	// session-error or SendRejectedError values spec §7 enumerates.
	Err error
}

// PendingSend is a posted request awaiting a reply, spec §3
// "PendingSend". It is created once a send is admitted and a SystemBytes
// has been allocated, and is completed exactly once: on reply arrival,
// on T3 timeout, or on connection loss.
type PendingSend struct {
	SystemBytes      uint32
	Message          Message
	SendPostedAt     time.Time
	completeOnce     sync.Once
	done             chan SendResult
}

// NewPendingSend creates a PendingSend for msg, stamped with the current
// time as its send-posted timestamp.
func NewPendingSend(systemBytes uint32, msg Message, postedAt time.Time) *PendingSend {
	return &PendingSend{
		SystemBytes:  systemBytes,
		Message:      msg,
		SendPostedAt: postedAt,
		done:         make(chan SendResult, 1),
	}
}

// Complete delivers result exactly once; later calls are no-ops, so a
// race between (for example) reply arrival and T3 expiry resolves to
// whichever completes first without panicking.
func (p *PendingSend) Complete(result SendResult) {
	p.completeOnce.Do(func() {
		p.done <- result
		close(p.done)
	})
}

// Wait blocks until Complete is called and returns its result.
func (p *PendingSend) Wait() SendResult {
	return <-p.done
}

// Done exposes the completion channel for select-based callers.
func (p *PendingSend) Done() <-chan SendResult {
	return p.done
}
