package session

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/mosaicsys/go-secs2hsms/pkg/header"
	"github.com/mosaicsys/go-secs2hsms/pkg/item"
	"github.com/mosaicsys/go-secs2hsms/pkg/message"
	"github.com/mosaicsys/go-secs2hsms/pkg/sfparser"
)

// readLoop reads one frame at a time from conn and dispatches it until
// the connection errors out, at which point it calls markDead and
// returns.
func (e *Engine) readLoop(ctx context.Context, conn net.Conn, markDead func()) {
	defer markDead()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := e.readFrame(conn)
		if err != nil {
			if ctx.Err() == nil {
				e.log.WarnContext(ctx, "read failed", "error", err)
			}
			return
		}
		e.handleFrame(ctx, frame)
	}
}

// readFrame reads one length-prefixed HSMS frame. It blocks indefinitely
// waiting for the first byte of a new frame (no deadline), then bounds
// the remainder of that frame's arrival by T8NetworkInterCharTO once the
// first byte has been seen, spec §6 "T8: network inter-character
// timeout".
func (e *Engine) readFrame(conn net.Conn) (message.Frame, error) {
	var first [1]byte
	_ = conn.SetReadDeadline(time.Time{})
	if _, err := io.ReadFull(conn, first[:]); err != nil {
		return message.Frame{}, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(e.cfg.T8NetworkInterCharTO))
	defer conn.SetReadDeadline(time.Time{})

	var lenRest [3]byte
	if _, err := io.ReadFull(conn, lenRest[:]); err != nil {
		return message.Frame{}, err
	}
	var lenBuf [4]byte
	lenBuf[0] = first[0]
	copy(lenBuf[1:], lenRest[:])
	bodyLen := int(binary.BigEndian.Uint32(lenBuf[:]))

	full := make([]byte, 4+bodyLen)
	copy(full[0:4], lenBuf[:])
	if bodyLen > 0 {
		if _, err := io.ReadFull(conn, full[4:]); err != nil {
			return message.Frame{}, err
		}
	}
	return message.DecodeFrame(full, e.cfg.MaximumMesgBodySize)
}

func (e *Engine) handleFrame(ctx context.Context, frame message.Frame) {
	h := frame.Header
	e.mu.Lock()
	e.lastActivity = time.Now()
	e.mu.Unlock()
	switch h.SType {
	case header.STypeSelectReq:
		e.handleSelectReq(ctx, h)
	case header.STypeSelectRsp:
		e.handleSelectRsp(ctx, h)
	case header.STypeDeselectReq:
		e.handleDeselectReq(ctx, h)
	case header.STypeDeselectRsp:
		e.handleDeselectRsp(ctx, h)
	case header.STypeLinktestReq:
		e.handleLinktestReq(ctx, h)
	case header.STypeLinktestRsp:
		e.handleLinktestRsp(ctx, h)
	case header.STypeSeparateReq:
		e.log.WarnContext(ctx, "peer sent Separate.req")
		e.mu.Lock()
		e.setState(StateNotSelected)
		e.mu.Unlock()
	case header.STypeRejectReq:
		e.handleRejectReq(ctx, h)
	case header.STypeDataMessage:
		e.handleDataMessage(ctx, frame)
	default:
		e.log.WarnContext(ctx, "unknown SType", "sType", byte(h.SType))
	}
}

// handleSelectReq accepts a Select.req and establishes the session. A
// Select.req received while already Selected is a protocol violation on
// a single-session port (spec §4.3 "Duplicate SelectReq in Selected on a
// single-session port is a protocol violation") and fails the connection
// instead of being acknowledged.
func (e *Engine) handleSelectReq(ctx context.Context, h header.Header) {
	e.mu.Lock()
	alreadySelected := e.state == StateSelected
	e.mu.Unlock()
	if alreadySelected {
		e.log.WarnContext(ctx, "duplicate Select.req while already Selected, failing connection", "error", ErrProtocolViolation, "systemBytes", h.SystemBytes)
		e.failConnection()
		return
	}

	e.mu.Lock()
	e.setState(StateSelected)
	e.mu.Unlock()

	rsp := header.Header{SessionID: h.SessionID, Function: header.SelectStatusEstablished, SType: header.STypeSelectRsp, SystemBytes: h.SystemBytes}
	f, err := message.NewFrame(rsp, nil)
	if err != nil {
		e.log.ErrorContext(ctx, "failed to build Select.rsp", "error", err)
		return
	}
	e.enqueueControl(outboundItem{frame: f})
}

func (e *Engine) handleSelectRsp(ctx context.Context, h header.Header) {
	e.mu.Lock()
	wait := e.pendingSelect
	e.mu.Unlock()
	if wait == nil || wait.SystemBytes != h.SystemBytes {
		e.log.DebugContext(ctx, "unmatched Select.rsp", "systemBytes", h.SystemBytes)
		return
	}
	if h.Function == header.SelectStatusEstablished {
		e.mu.Lock()
		e.setState(StateSelected)
		e.mu.Unlock()
		wait.Complete(message.SendResult{})
		return
	}
	e.mu.Lock()
	e.setState(StateFailed)
	e.mu.Unlock()
	wait.Complete(message.SendResult{Err: ErrSelectFailed})
}

func (e *Engine) handleDeselectReq(ctx context.Context, h header.Header) {
	status := header.DeselectStatusEnded
	if e.State() != StateSelected {
		status = header.DeselectStatusNotEstablished
	}
	rsp := header.Header{SessionID: h.SessionID, Function: status, SType: header.STypeDeselectRsp, SystemBytes: h.SystemBytes}
	f, err := message.NewFrame(rsp, nil)
	if err != nil {
		e.log.ErrorContext(ctx, "failed to build Deselect.rsp", "error", err)
		return
	}
	e.enqueueControl(outboundItem{frame: f})

	e.mu.Lock()
	e.setState(StateNotSelected)
	e.mu.Unlock()
}

func (e *Engine) handleDeselectRsp(ctx context.Context, h header.Header) {
	e.mu.Lock()
	wait := e.pendingDeselect
	e.mu.Unlock()
	if wait == nil || wait.SystemBytes != h.SystemBytes {
		e.log.DebugContext(ctx, "unmatched Deselect.rsp", "systemBytes", h.SystemBytes)
		return
	}
	if h.Function == header.DeselectStatusEnded {
		wait.Complete(message.SendResult{})
		return
	}
	wait.Complete(message.SendResult{Err: ErrDeselectTimeout})
}

func (e *Engine) handleLinktestReq(ctx context.Context, h header.Header) {
	rsp := header.Header{SessionID: header.LinktestSessionID, SType: header.STypeLinktestRsp, SystemBytes: h.SystemBytes}
	f, err := message.NewFrame(rsp, nil)
	if err != nil {
		e.log.ErrorContext(ctx, "failed to build Linktest.rsp", "error", err)
		return
	}
	e.enqueueControl(outboundItem{frame: f})
	e.met.LinktestsTotal.WithLabelValues(e.name, "received").Inc()
}

func (e *Engine) handleLinktestRsp(ctx context.Context, h header.Header) {
	e.mu.Lock()
	wait := e.pendingLinktest
	if wait != nil && wait.SystemBytes == h.SystemBytes {
		e.pendingLinktest = nil
	}
	e.mu.Unlock()
	if wait != nil && wait.SystemBytes == h.SystemBytes {
		wait.Complete(message.SendResult{})
		e.met.LinktestsTotal.WithLabelValues(e.name, "confirmed").Inc()
	}
}

// handleRejectReq completes whichever pending transaction h.SystemBytes
// matches with ErrRejected, then unconditionally fails the connection,
// spec §4.3 "RejectReq: log and fail the connection" and the
// state-machine's general rule "Any state → Failed on I/O error,
// protocol violation, or Reject."
func (e *Engine) handleRejectReq(ctx context.Context, h header.Header) {
	e.log.WarnContext(ctx, "received Reject.req, failing connection", "reason", h.Function, "systemBytes", h.SystemBytes)

	e.mu.Lock()
	p, ok := e.pending[h.SystemBytes]
	if ok {
		delete(e.pending, h.SystemBytes)
		e.met.PendingSendDepth.WithLabelValues(e.name).Set(float64(len(e.pending)))
	}
	wait := e.pendingSelect
	waitD := e.pendingDeselect
	waitL := e.pendingLinktest
	if waitL != nil && waitL.SystemBytes == h.SystemBytes {
		e.pendingLinktest = nil
	}
	e.mu.Unlock()

	switch {
	case ok:
		p.Complete(message.SendResult{Err: ErrRejected})
	case wait != nil && wait.SystemBytes == h.SystemBytes:
		wait.Complete(message.SendResult{Err: ErrRejected})
	case waitD != nil && waitD.SystemBytes == h.SystemBytes:
		waitD.Complete(message.SendResult{Err: ErrRejected})
	case waitL != nil && waitL.SystemBytes == h.SystemBytes:
		waitL.Complete(message.SendResult{Err: ErrRejected})
	}

	e.failConnection()
}

// handleDataMessage routes a DataMessage frame: a primary (odd Function,
// not stream 9) goes to the Dispatcher; a reply or fault reply (even
// Function, function 0, or stream 9) completes its matching PendingSend.
// A frame whose payload fails to decode as a SECS-II item is logged and
// dropped rather than failing the connection, spec §4.1's framing/content
// separation.
func (e *Engine) handleDataMessage(ctx context.Context, frame message.Frame) {
	h := frame.Header
	content, err := item.Decode(frame.Payload)
	if err != nil {
		e.log.WarnContext(ctx, "dropping frame with undecodable content", "error", err, "stream", h.Stream, "function", h.Function)
		if h.IsFaultReply() || !h.IsPrimary() {
			e.completeReplyWithError(h, err)
		}
		return
	}

	if h.IsPrimary() && !h.IsFaultReply() {
		e.handlePrimary(ctx, h, content)
		return
	}

	e.mu.Lock()
	p, ok := e.pending[h.SystemBytes]
	if ok {
		delete(e.pending, h.SystemBytes)
		e.met.PendingSendDepth.WithLabelValues(e.name).Set(float64(len(e.pending)))
	}
	e.mu.Unlock()
	if !ok {
		e.log.DebugContext(ctx, "unmatched reply SystemBytes", "systemBytes", h.SystemBytes)
		return
	}

	sf := sfparser.StreamFunction{Stream: int(h.Stream), Function: int(h.Function), W: false}
	reply, err := message.New(sf, content)
	if err != nil {
		p.Complete(message.SendResult{Err: err})
		return
	}
	p.Complete(message.SendResult{Reply: &reply})
}

func (e *Engine) completeReplyWithError(h header.Header, err error) {
	e.mu.Lock()
	p, ok := e.pending[h.SystemBytes]
	if ok {
		delete(e.pending, h.SystemBytes)
		e.met.PendingSendDepth.WithLabelValues(e.name).Set(float64(len(e.pending)))
	}
	e.mu.Unlock()
	if ok {
		p.Complete(message.SendResult{Err: err})
	}
}

func (e *Engine) handlePrimary(ctx context.Context, h header.Header, content item.Value) {
	if e.State() != StateSelected {
		rej := header.Header{SessionID: h.SessionID, Function: header.RejectReasonEntityNotSelected, SType: header.STypeRejectReq, SystemBytes: h.SystemBytes}
		f, err := message.NewFrame(rej, nil)
		if err == nil {
			e.enqueueControl(outboundItem{frame: f})
		}
		return
	}

	sf := sfparser.StreamFunction{Stream: int(h.Stream), Function: int(h.Function), W: h.W}
	msg, err := message.New(sf, content)
	if err != nil {
		e.log.WarnContext(ctx, "dropping malformed primary", "error", err)
		return
	}

	reply, ok := e.disp.Dispatch(ctx, msg)
	if !ok || reply == nil {
		return
	}

	payload, err := item.Encode(reply.Content())
	if err != nil {
		e.log.ErrorContext(ctx, "reply content failed to encode", "error", err)
		return
	}
	rh := h.MakeReplyHeader()
	rf, err := message.NewFrame(rh, payload)
	if err != nil {
		e.log.ErrorContext(ctx, "failed to build reply frame", "error", err)
		return
	}
	e.enqueueData(outboundItem{frame: rf})
}
