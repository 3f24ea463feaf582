package session

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/mosaicsys/go-secs2hsms/pkg/config"
	"github.com/mosaicsys/go-secs2hsms/pkg/header"
	"github.com/mosaicsys/go-secs2hsms/pkg/message"
)

// connectLoop owns one port's connect/select/run/reconnect cycle for as
// long as the engine is online, spec §5 "Active: dial, retry on
// AutoReconnectHoldoff. Passive: listen, accept."
func (e *Engine) connectLoop(ctx context.Context) {
	defer e.loopsDone.Done()

	for {
		if e.stopping(ctx) {
			return
		}

		e.mu.Lock()
		e.setState(StateConnecting)
		e.mu.Unlock()

		conn, err := e.establish(ctx)
		if err != nil {
			e.log.ErrorContext(ctx, "connect failed", "error", err)
			e.mu.Lock()
			e.setState(StateFailed)
			e.mu.Unlock()
			if !e.holdoffOrStop(ctx) {
				return
			}
			continue
		}

		e.mu.Lock()
		e.conn = conn
		e.setState(StateNotSelected)
		e.mu.Unlock()

		e.runConnection(ctx, conn)

		e.mu.Lock()
		e.conn = nil
		e.mu.Unlock()

		if e.stopping(ctx) {
			return
		}
		if e.cfg.AutoReconnectHoldoff <= 0 {
			e.mu.Lock()
			e.setState(StateFailed)
			e.mu.Unlock()
			return
		}
		if !e.holdoffOrStop(ctx) {
			return
		}
	}
}

func (e *Engine) stopping(ctx context.Context) bool {
	select {
	case <-e.closeCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// holdoffOrStop waits AutoReconnectHoldoff before the next connect
// attempt, returning false if the engine was closed or ctx canceled
// first.
func (e *Engine) holdoffOrStop(ctx context.Context) bool {
	holdoff := e.cfg.AutoReconnectHoldoff
	if holdoff <= 0 {
		return false
	}
	select {
	case <-time.After(holdoff):
		return true
	case <-e.closeCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) establish(ctx context.Context) (net.Conn, error) {
	if e.cfg.Mode == config.PortModeActive {
		dialer := net.Dialer{Timeout: e.cfg.ConnectTimeLimit}
		addr := net.JoinHostPort(activeHost(e.cfg), strconv.Itoa(e.cfg.PortNum))
		return dialer.DialContext(ctx, "tcp", addr)
	}

	e.mu.Lock()
	if e.listener == nil {
		addr := net.JoinHostPort(e.cfg.IPAddress, strconv.Itoa(e.cfg.PortNum))
		l, err := net.Listen("tcp", addr)
		if err != nil {
			e.mu.Unlock()
			return nil, err
		}
		e.listener = l
	}
	l := e.listener
	e.mu.Unlock()
	return l.Accept()
}

func activeHost(cfg config.PortConfig) string {
	if cfg.IPAddress != "" {
		return cfg.IPAddress
	}
	return cfg.HostName
}

// runConnection drives one live TCP connection through selection and
// steady-state operation until it dies, then returns.
func (e *Engine) runConnection(ctx context.Context, conn net.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var deadOnce sync.Once
	deadCh := make(chan struct{})
	markDead := func() { deadOnce.Do(func() { close(deadCh) }) }

	e.mu.Lock()
	e.markDead = markDead
	e.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); e.readLoop(connCtx, conn, markDead) }()
	go func() { defer wg.Done(); e.transmitLoop(connCtx, conn, deadCh) }()
	go func() { defer wg.Done(); e.timerLoop(connCtx, deadCh) }()

	e.mu.Lock()
	e.setState(StateSelecting)
	e.mu.Unlock()

	if e.cfg.Mode == config.PortModeActive {
		selCtx, selCancel := context.WithTimeout(connCtx, e.cfg.T6ControlTransactionTO)
		err := e.sendSelectReq(selCtx, conn)
		selCancel()
		if err != nil {
			e.log.WarnContext(ctx, "select failed", "error", err)
			if err == ErrSelectTimeout {
				e.met.T6TimeoutsTotal.WithLabelValues(e.name).Inc()
			}
			e.mu.Lock()
			e.setState(StateFailed)
			e.mu.Unlock()
			markDead()
		}
	} else {
		go func() {
			select {
			case <-time.After(e.cfg.T7NotSelectedTimeout):
				if e.State() != StateSelected {
					e.log.WarnContext(ctx, "T7 not-selected timeout")
					e.met.T7TimeoutsTotal.WithLabelValues(e.name).Inc()
					e.mu.Lock()
					e.setState(StateFailed)
					e.mu.Unlock()
					markDead()
				}
			case <-deadCh:
			case <-connCtx.Done():
			}
		}()
	}

	select {
	case <-deadCh:
	case <-connCtx.Done():
	}
	cancel()
	_ = conn.Close()
	wg.Wait()

	e.mu.Lock()
	e.markDead = nil
	e.mu.Unlock()
}

// sendSelectReq originates a Select.req and blocks for its Select.rsp (or
// ctx expiry), spec §4.3's active-side selection handshake.
func (e *Engine) sendSelectReq(ctx context.Context, conn net.Conn) error {
	sysBytes := e.seq.NextSystemBytes()
	h := header.Header{SessionID: e.cfg.SessionID, SType: header.STypeSelectReq, SystemBytes: sysBytes}
	frame, err := message.NewFrame(h, nil)
	if err != nil {
		return err
	}

	wait := message.NewPendingSend(sysBytes, message.Message{}, time.Now())
	e.mu.Lock()
	e.pendingSelect = wait
	e.mu.Unlock()

	if _, err := conn.Write(frame.Encode()); err != nil {
		return err
	}

	select {
	case result := <-wait.Done():
		if result.Err != nil {
			return result.Err
		}
		return nil
	case <-ctx.Done():
		return ErrSelectTimeout
	}
}

// sendDeselectReq originates a Deselect.req and blocks for its
// Deselect.rsp, spec §5's graceful-offline sequence.
func (e *Engine) sendDeselectReq(ctx context.Context) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return nil
	}

	sysBytes := e.seq.NextSystemBytes()
	h := header.Header{SessionID: e.cfg.SessionID, SType: header.STypeDeselectReq, SystemBytes: sysBytes}
	frame, err := message.NewFrame(h, nil)
	if err != nil {
		return err
	}

	wait := message.NewPendingSend(sysBytes, message.Message{}, time.Now())
	e.mu.Lock()
	e.pendingDeselect = wait
	e.mu.Unlock()

	if _, err := conn.Write(frame.Encode()); err != nil {
		return err
	}

	select {
	case result := <-wait.Done():
		return result.Err
	case <-ctx.Done():
		return ErrDeselectTimeout
	}
}

// sendSeparateReq originates a Separate.req. No reply is defined for it
// (spec §6); the caller closes the socket immediately after.
func (e *Engine) sendSeparateReq() {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return
	}
	h := header.Header{SessionID: e.cfg.SessionID, SType: header.STypeSeparateReq, SystemBytes: e.seq.NextSystemBytes()}
	frame, err := message.NewFrame(h, nil)
	if err != nil {
		return
	}
	_, _ = conn.Write(frame.Encode())
}
