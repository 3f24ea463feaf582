package session

import (
	"context"
	"net"
	"time"

	"github.com/mosaicsys/go-secs2hsms/pkg/message"
)

// transmitLoop serializes writes to conn from the control queue (always
// drained first) and the data queue, spec §4.3 "Serializes from a single
// ordered queue: pending control headers first, then data-message
// sends."
func (e *Engine) transmitLoop(ctx context.Context, conn net.Conn, deadCh chan struct{}) {
	for {
		next, ok := e.dequeueOutbound()
		if !ok {
			select {
			case <-e.wake:
				continue
			case <-ctx.Done():
				return
			case <-deadCh:
				return
			case <-time.After(50 * time.Millisecond):
				continue
			}
		}

		_, err := conn.Write(next.frame.Encode())
		if err == nil {
			e.mu.Lock()
			e.lastActivity = time.Now()
			e.mu.Unlock()
		}
		if err != nil {
			e.log.ErrorContext(ctx, "transmit failed", "error", err, "sType", next.frame.Header.SType)
			if next.pending != nil {
				e.mu.Lock()
				delete(e.pending, next.pending.SystemBytes)
				e.met.PendingSendDepth.WithLabelValues(e.name).Set(float64(len(e.pending)))
				e.mu.Unlock()
				next.pending.Complete(message.SendResult{Err: ErrPeerClosed})
			}
			return
		}
	}
}
