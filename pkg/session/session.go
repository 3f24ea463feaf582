// Package session implements the per-port HSMS-SS state machine: TCP
// connect/listen, frame transmission and reception, Select/Deselect/
// Separate/Linktest control transactions, T3/T6/T7/T8 timer
// enforcement, and flow-controlled concurrent sends (spec §4.3, §5). The
// wait between connection attempts is AutoReconnectHoldoff;
// T5ConnectSeparationDelay is not read by this package.
//
// There is no teacher precedent for this subsystem (the teacher library
// is a pure codec/AST package with no transport); it is grounded instead
// in spec §9's re-architecture notes (no BeginX/EndX callback state, a
// cooperative per-port task instead) and in the pack's TCP-facing
// examples: runZeroInc-sockstats for per-connection health metrics and
// Daedaluz-goserial for the shape of a connection-owning, state-machine
// driven transport object.
package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/golang-collections/collections/queue"

	"github.com/mosaicsys/go-secs2hsms/internal/logging"
	"github.com/mosaicsys/go-secs2hsms/internal/metrics"
	"github.com/mosaicsys/go-secs2hsms/pkg/config"
	"github.com/mosaicsys/go-secs2hsms/pkg/header"
	"github.com/mosaicsys/go-secs2hsms/pkg/item"
	"github.com/mosaicsys/go-secs2hsms/pkg/message"
)

// outboundItem is one entry in the transmitter's single ordered queue,
// spec §4.3 "Serializes from a single ordered queue: pending control
// headers first, then data-message sends." Control frames are enqueued
// on a separate, always-drained-first queue so they preempt any already
// queued data sends without the transmitter having to reorder a mixed
// queue.
type outboundItem struct {
	frame   message.Frame
	pending *message.PendingSend // nil for control frames and non-W sends
}

// Engine is one HSMS-SS port's session engine.
type Engine struct {
	name string
	cfg  config.PortConfig
	seq  SequenceSource
	disp Dispatcher
	met  *metrics.Metrics
	log  *logging.Logger

	mu       sync.Mutex
	state    ConnState
	conn     net.Conn
	listener net.Listener
	pending  map[uint32]*message.PendingSend
	markDead func() // tears down the current live connection; nil between connections

	outMu        sync.Mutex
	controlQueue *queue.Queue // control-frame sends: always drained first
	dataQueue    *queue.Queue // data-message sends
	wake         chan struct{}
	sendSem      chan struct{}

	pendingSelect    *message.PendingSend
	pendingDeselect  *message.PendingSend
	pendingLinktest  *message.PendingSend
	linktestPostedAt time.Time
	lastActivity     time.Time

	closeCh   chan struct{}
	closeOnce sync.Once
	loopsDone sync.WaitGroup
}

// New creates an Engine for cfg. seq and disp are owned by the caller
// (typically a Manager) and passed in explicitly rather than resolved
// through a singleton, per spec §9.
func New(cfg config.PortConfig, seq SequenceSource, disp Dispatcher, met *metrics.Metrics, log *logging.Logger) *Engine {
	if met == nil {
		met = metrics.Noop()
	}
	log = logging.WithPort(log, cfg.Name)
	return &Engine{
		name:         cfg.Name,
		cfg:          cfg,
		seq:          seq,
		disp:         disp,
		met:          met,
		log:          log,
		state:        StateInitial,
		pending:      make(map[uint32]*message.PendingSend),
		controlQueue: queue.New(),
		dataQueue:    queue.New(),
		wake:         make(chan struct{}, 1),
		sendSem:      make(chan struct{}, cfg.MaxConcurrentPostedSends),
		closeCh:      make(chan struct{}),
	}
}

// State returns the engine's current connection state.
func (e *Engine) State() ConnState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s ConnState) {
	e.state = s
	for st := StateInitial; st <= StateFailed; st++ {
		v := 0.0
		if st == s {
			v = 1
		}
		e.met.ConnectionState.WithLabelValues(e.name, st.String()).Set(v)
	}
}

// failConnection transitions the port to Failed and tears down the
// current live connection via its markDead callback, spec §4.3 "Any
// state → Failed on I/O error, protocol violation, or Reject." It is a
// no-op if called outside the lifetime of a live connection.
func (e *Engine) failConnection() {
	e.mu.Lock()
	e.setState(StateFailed)
	markDead := e.markDead
	e.mu.Unlock()
	if markDead != nil {
		markDead()
	}
}

// GoOnline brings the port from OutOfService to Selected (or begins
// trying to, for a passive port still waiting on an accept). It returns
// once Selected is reached, the relevant control timeout expires, or ctx
// is canceled.
func (e *Engine) GoOnline(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateInitial && e.state != StateOutOfService && e.state != StateFailed {
		e.mu.Unlock()
		return fmt.Errorf("session: GoOnline called from state %s", e.state)
	}
	e.mu.Unlock()

	e.loopsDone.Add(1)
	go e.connectLoop(ctx)

	return e.awaitSelected(ctx)
}

func (e *Engine) awaitSelected(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.closeCh:
			return ErrClosed
		case <-ticker.C:
			switch e.State() {
			case StateSelected:
				return nil
			case StateFailed:
				return ErrSelectFailed
			}
		}
	}
}

// GoOffline tears the port down. A graceful offline attempts
// Deselect.req (bounded by DeselectTimeLimit) then Separate.req before
// closing the socket (bounded by DisconnectTimeLimit); a forceful offline
// skips straight to closing the socket, per spec §5.
func (e *Engine) GoOffline(ctx context.Context, graceful bool) error {
	e.mu.Lock()
	conn := e.conn
	state := e.state
	e.mu.Unlock()

	if graceful && state == StateSelected && conn != nil {
		e.mu.Lock()
		e.setState(StateDeselecting)
		e.mu.Unlock()

		deselectCtx, cancel := context.WithTimeout(ctx, e.cfg.DeselectTimeLimit)
		_ = e.sendDeselectReq(deselectCtx)
		cancel()

		e.sendSeparateReq()
	}

	e.closeOnce.Do(func() { close(e.closeCh) })

	e.mu.Lock()
	if e.conn != nil {
		_ = e.conn.Close()
	}
	if e.listener != nil {
		_ = e.listener.Close()
	}
	e.setState(StateOutOfService)
	e.mu.Unlock()

	e.cancelAllPending(ErrCanceled)

	done := make(chan struct{})
	go func() { e.loopsDone.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(e.cfg.DisconnectTimeLimit):
	}
	return nil
}

func (e *Engine) cancelAllPending(err error) {
	e.mu.Lock()
	pending := make([]*message.PendingSend, 0, len(e.pending))
	for sysBytes, p := range e.pending {
		pending = append(pending, p)
		delete(e.pending, sysBytes)
	}
	e.met.PendingSendDepth.WithLabelValues(e.name).Set(0)
	e.mu.Unlock()

	for _, p := range pending {
		p.Complete(message.SendResult{Err: err})
		e.met.SendsTotal.WithLabelValues(e.name, "canceled").Inc()
	}
}

// Send admits and posts msg, blocking until its terminal result is
// available (spec §4.3 "Send admission checks", §7 "Every initiated send
// yields exactly one terminal result").
func (e *Engine) Send(ctx context.Context, msg message.Message) message.SendResult {
	payload, err := item.Encode(msg.Content())
	if err != nil {
		return message.SendResult{Err: err}
	}

	e.mu.Lock()
	if e.state != StateSelected {
		e.mu.Unlock()
		return message.SendResult{Err: &message.SendRejectedError{Reason: message.SendRejectNotConnected}}
	}
	if len(payload) > e.cfg.MaximumMesgBodySize {
		e.mu.Unlock()
		return message.SendResult{Err: &message.SendRejectedError{Reason: message.SendRejectTooLarge}}
	}
	if len(e.pending) >= e.cfg.MaximumSendQueueSize {
		e.mu.Unlock()
		return message.SendResult{Err: &message.SendRejectedError{Reason: message.SendRejectQueueFull}}
	}
	if msg.StreamFunction().W {
		select {
		case e.sendSem <- struct{}{}:
		default:
			e.mu.Unlock()
			return message.SendResult{Err: &message.SendRejectedError{Reason: message.SendRejectQueueFull}}
		}
	}

	sf := msg.StreamFunction()
	sysBytes := e.seq.NextSystemBytes()
	h := header.Header{
		SessionID:   e.cfg.SessionID,
		Stream:      byte(sf.Stream),
		Function:    byte(sf.Function),
		W:           sf.W,
		PType:       0,
		SType:       header.STypeDataMessage,
		SystemBytes: sysBytes,
	}
	frame, err := message.NewFrame(h, payload)
	if err != nil {
		e.mu.Unlock()
		return message.SendResult{Err: err}
	}

	var pending *message.PendingSend
	if sf.W {
		pending = message.NewPendingSend(sysBytes, msg, time.Now())
		e.pending[sysBytes] = pending
		e.met.PendingSendDepth.WithLabelValues(e.name).Set(float64(len(e.pending)))
	}
	e.mu.Unlock()

	e.enqueueData(outboundItem{frame: frame, pending: pending})

	if pending != nil {
		// Release the MaxConcurrentPostedSends slot when this send's
		// PendingSend is completed, whoever completes it (reply arrival,
		// T3 expiry, or connection loss) and regardless of whether this
		// call itself returns early via ctx cancellation.
		go func(p *message.PendingSend) {
			p.Wait()
			<-e.sendSem
		}(pending)
	}

	if pending == nil {
		e.met.SendsTotal.WithLabelValues(e.name, "ok").Inc()
		return message.SendResult{}
	}

	select {
	case result := <-pending.Done():
		e.recordSendResult(result)
		return result
	case <-ctx.Done():
		return message.SendResult{Err: ctx.Err()}
	}
}

func (e *Engine) enqueueData(item outboundItem) {
	e.outMu.Lock()
	e.dataQueue.Enqueue(item)
	e.outMu.Unlock()
	e.signalWake()
}

func (e *Engine) enqueueControl(item outboundItem) {
	e.outMu.Lock()
	e.controlQueue.Enqueue(item)
	e.outMu.Unlock()
	e.signalWake()
}

func (e *Engine) signalWake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// dequeueOutbound pops the next item to transmit, control items ahead of
// data items, or ok=false if both queues are empty.
func (e *Engine) dequeueOutbound() (outboundItem, bool) {
	e.outMu.Lock()
	defer e.outMu.Unlock()
	if v := e.controlQueue.Dequeue(); v != nil {
		return v.(outboundItem), true
	}
	if v := e.dataQueue.Dequeue(); v != nil {
		return v.(outboundItem), true
	}
	return outboundItem{}, false
}

func (e *Engine) recordSendResult(result message.SendResult) {
	label := "ok"
	if result.Err != nil {
		label = "error"
	}
	e.met.SendsTotal.WithLabelValues(e.name, label).Inc()
}
