package session

import (
	"context"
	"time"

	"github.com/mosaicsys/go-secs2hsms/pkg/header"
	"github.com/mosaicsys/go-secs2hsms/pkg/message"
)

// tickInterval is the timer loop's polling granularity: fine enough that
// T3/T6/idle-linktest expiries are noticed within a fraction of a second
// of the configured timeout, without a dedicated timer per pending send.
const tickInterval = 200 * time.Millisecond

// timerLoop enforces T3 (reply timeout), T6 (the pending Linktest
// control transaction's own timeout), and idle-linktest origination,
// spec §6's timer definitions.
func (e *Engine) timerLoop(ctx context.Context, deadCh chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadCh:
			return
		case now := <-ticker.C:
			e.checkT3(now)
			if e.checkLinktestTimeout(ctx, now) {
				return
			}
			e.maybeOriginateLinktest(ctx, now)
		}
	}
}

// checkT3 completes any PendingSend whose T3ReplyTimeout has elapsed.
func (e *Engine) checkT3(now time.Time) {
	e.mu.Lock()
	var expired []*message.PendingSend
	for sysBytes, p := range e.pending {
		if now.Sub(p.SendPostedAt) >= e.cfg.T3ReplyTimeout {
			expired = append(expired, p)
			delete(e.pending, sysBytes)
		}
	}
	if len(expired) > 0 {
		e.met.PendingSendDepth.WithLabelValues(e.name).Set(float64(len(e.pending)))
	}
	e.mu.Unlock()

	for _, p := range expired {
		e.met.T3TimeoutsTotal.WithLabelValues(e.name).Inc()
		p.Complete(message.SendResult{Err: ErrT3ReplyTimeout})
	}
}

// checkLinktestTimeout fails the connection if an originated Linktest.req
// has gone unanswered past T6ControlTransactionTO; a dead Linktest means
// the peer is unresponsive, spec §5 "Idle linktest".
func (e *Engine) checkLinktestTimeout(ctx context.Context, now time.Time) bool {
	e.mu.Lock()
	wait := e.pendingLinktest
	postedAt := e.linktestPostedAt
	e.mu.Unlock()

	if wait == nil || now.Sub(postedAt) < e.cfg.T6ControlTransactionTO {
		return false
	}

	e.log.WarnContext(ctx, "linktest timeout")
	e.met.T6TimeoutsTotal.WithLabelValues(e.name).Inc()
	e.mu.Lock()
	e.pendingLinktest = nil
	e.mu.Unlock()
	e.failConnection()
	wait.Complete(message.SendResult{Err: ErrLinktestTimeout})
	return true
}

// maybeOriginateLinktest sends Linktest.req once the port has been idle
// (no frame sent or received) for IdleLinktestInterval, spec §5.
func (e *Engine) maybeOriginateLinktest(ctx context.Context, now time.Time) {
	e.mu.Lock()
	if e.state != StateSelected || e.pendingLinktest != nil {
		e.mu.Unlock()
		return
	}
	idleSince := now.Sub(e.lastActivity)
	if idleSince < e.cfg.IdleLinktestInterval {
		e.mu.Unlock()
		return
	}
	sysBytes := e.seq.NextSystemBytes()
	wait := message.NewPendingSend(sysBytes, message.Message{}, now)
	e.pendingLinktest = wait
	e.linktestPostedAt = now
	e.lastActivity = now
	e.mu.Unlock()

	h := header.Header{SessionID: header.LinktestSessionID, SType: header.STypeLinktestReq, SystemBytes: sysBytes}
	f, err := message.NewFrame(h, nil)
	if err != nil {
		e.log.ErrorContext(ctx, "failed to build Linktest.req", "error", err)
		return
	}
	e.enqueueControl(outboundItem{frame: f})
	e.met.LinktestsTotal.WithLabelValues(e.name, "originated").Inc()
}
