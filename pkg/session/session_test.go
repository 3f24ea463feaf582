package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicsys/go-secs2hsms/pkg/config"
	"github.com/mosaicsys/go-secs2hsms/pkg/header"
	"github.com/mosaicsys/go-secs2hsms/pkg/item"
	"github.com/mosaicsys/go-secs2hsms/pkg/message"
	"github.com/mosaicsys/go-secs2hsms/pkg/sfparser"
)

// counterSeq is a trivial SequenceSource for tests; pkg/manager's real
// atomic, skip-zero-on-wrap counter is exercised in its own tests.
type counterSeq struct{ n uint32 }

func (c *counterSeq) NextSystemBytes() uint32 {
	return atomic.AddUint32(&c.n, 1)
}

// echoDispatcher replies S<n>F<n+1> with whatever content a supplied
// function produces, or declines to reply if none is supplied.
type echoDispatcher struct {
	reply func(primary message.Message) (item.Value, bool)
}

func (d *echoDispatcher) Dispatch(ctx context.Context, primary message.Message) (*message.Message, bool) {
	if d.reply == nil {
		return nil, false
	}
	content, ok := d.reply(primary)
	if !ok {
		return nil, false
	}
	r, err := primary.Reply(content)
	if err != nil {
		return nil, false
	}
	return &r, true
}

func newTestPair(t *testing.T, passiveDisp Dispatcher) (passive, active *Engine, port int) {
	t.Helper()

	port = 15000 + int(time.Now().UnixNano()%4000)

	passiveCfg, err := config.New("equipment", config.PortModePassive,
		config.WithIPAddress("127.0.0.1"),
		config.WithHostNameAndPort("127.0.0.1", port),
	)
	require.NoError(t, err)
	activeCfg, err := config.New("host", config.PortModeActive,
		config.WithIPAddress("127.0.0.1"),
		config.WithHostNameAndPort("127.0.0.1", port),
	)
	require.NoError(t, err)

	passive = New(passiveCfg, &counterSeq{}, passiveDisp, nil, nil)
	active = New(activeCfg, &counterSeq{}, &echoDispatcher{}, nil, nil)
	return passive, active, port
}

func TestEngine_SelectHandshake(t *testing.T) {
	passive, active, _ := newTestPair(t, &echoDispatcher{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- passive.GoOnline(ctx) }()
	time.Sleep(50 * time.Millisecond) // let the passive listener bind
	require.NoError(t, active.GoOnline(ctx))
	require.NoError(t, <-errCh)

	assert.Equal(t, StateSelected, active.State())
	assert.Equal(t, StateSelected, passive.State())

	_ = active.GoOffline(context.Background(), true)
	_ = passive.GoOffline(context.Background(), true)
}

func TestEngine_SendAndReceiveReply(t *testing.T) {
	passive, active, _ := newTestPair(t, &echoDispatcher{
		reply: func(primary message.Message) (item.Value, bool) {
			return item.ASCII("pong"), true
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- passive.GoOnline(ctx) }()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, active.GoOnline(ctx))
	require.NoError(t, <-errCh)

	sf, err := sfparser.Parse("S1F1W")
	require.NoError(t, err)
	req, err := message.New(sf, item.ASCII("ping"))
	require.NoError(t, err)

	sendCtx, sendCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer sendCancel()
	result := active.Send(sendCtx, req)
	require.NoError(t, result.Err)
	require.NotNil(t, result.Reply)
	assert.Equal(t, 2, result.Reply.StreamFunction().Function)
	got, ok := result.Reply.Content().ASCIIString()
	require.True(t, ok)
	assert.Equal(t, "pong", got)

	_ = active.GoOffline(context.Background(), true)
	_ = passive.GoOffline(context.Background(), true)
}

func TestEngine_SendRejectedWhenNotSelected(t *testing.T) {
	cfg, err := config.New("idle", config.PortModePassive, config.WithHostNameAndPort("127.0.0.1", 1))
	require.NoError(t, err)
	e := New(cfg, &counterSeq{}, &echoDispatcher{}, nil, nil)

	sf, err := sfparser.Parse("S1F1")
	require.NoError(t, err)
	msg, err := message.New(sf, item.None())
	require.NoError(t, err)

	result := e.Send(context.Background(), msg)
	require.Error(t, result.Err)
	var rejected *message.SendRejectedError
	require.ErrorAs(t, result.Err, &rejected)
	assert.Equal(t, message.SendRejectNotConnected, rejected.Reason)
}

func TestEngine_SendTimesOutWhenPeerNeverReplies(t *testing.T) {
	port := 15000 + int(time.Now().UnixNano()%4000) + 1

	passiveCfg, err := config.New("equipment", config.PortModePassive,
		config.WithHostNameAndPort("127.0.0.1", port),
		config.WithT3ReplyTimeout(200*time.Millisecond),
	)
	require.NoError(t, err)
	activeCfg, err := config.New("host", config.PortModeActive,
		config.WithHostNameAndPort("127.0.0.1", port),
		config.WithT3ReplyTimeout(200*time.Millisecond),
	)
	require.NoError(t, err)

	passive := New(passiveCfg, &counterSeq{}, &echoDispatcher{}, nil, nil)
	active := New(activeCfg, &counterSeq{}, &echoDispatcher{}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- passive.GoOnline(ctx) }()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, active.GoOnline(ctx))
	require.NoError(t, <-errCh)

	sf, err := sfparser.Parse("S1F1W")
	require.NoError(t, err)
	req, err := message.New(sf, item.ASCII("ping"))
	require.NoError(t, err)

	sendCtx, sendCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer sendCancel()
	result := active.Send(sendCtx, req)
	require.ErrorIs(t, result.Err, ErrT3ReplyTimeout)

	_ = active.GoOffline(context.Background(), true)
	_ = passive.GoOffline(context.Background(), true)
}

func TestEngine_SeparateReqTransitionsToNotSelected(t *testing.T) {
	cfg, err := config.New("equipment", config.PortModePassive, config.WithHostNameAndPort("127.0.0.1", 1))
	require.NoError(t, err)
	e := New(cfg, &counterSeq{}, &echoDispatcher{}, nil, nil)

	e.mu.Lock()
	e.setState(StateSelected)
	e.mu.Unlock()

	e.handleFrame(context.Background(), message.Frame{Header: header.Header{SType: header.STypeSeparateReq}})

	assert.Equal(t, StateNotSelected, e.State())
}

func TestEngine_DuplicateSelectReqFailsConnection(t *testing.T) {
	cfg, err := config.New("equipment", config.PortModePassive, config.WithHostNameAndPort("127.0.0.1", 1))
	require.NoError(t, err)
	e := New(cfg, &counterSeq{}, &echoDispatcher{}, nil, nil)

	e.mu.Lock()
	e.setState(StateSelected)
	e.mu.Unlock()

	e.handleSelectReq(context.Background(), header.Header{SessionID: 1, SType: header.STypeSelectReq, SystemBytes: 1})

	assert.Equal(t, StateFailed, e.State())
}

func TestEngine_RejectReqFailsConnection(t *testing.T) {
	cfg, err := config.New("equipment", config.PortModePassive, config.WithHostNameAndPort("127.0.0.1", 1))
	require.NoError(t, err)
	e := New(cfg, &counterSeq{}, &echoDispatcher{}, nil, nil)

	e.mu.Lock()
	e.setState(StateSelected)
	e.mu.Unlock()

	h := header.Header{SType: header.STypeRejectReq, SystemBytes: 1, Function: header.RejectReasonSTypeNotSupported}
	e.handleRejectReq(context.Background(), h)

	assert.Equal(t, StateFailed, e.State())
}
