package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicsys/go-secs2hsms/pkg/config"
	"github.com/mosaicsys/go-secs2hsms/pkg/item"
	"github.com/mosaicsys/go-secs2hsms/pkg/message"
	"github.com/mosaicsys/go-secs2hsms/pkg/session"
	"github.com/mosaicsys/go-secs2hsms/pkg/sfparser"
)

func newPrimary(t *testing.T, sf string, content item.Value) message.Message {
	t.Helper()
	parsed, err := sfparser.Parse(sf)
	require.NoError(t, err)
	msg, err := message.New(parsed, content)
	require.NoError(t, err)
	return msg
}

func TestManager_CreatePort_RejectsDuplicateName(t *testing.T) {
	m := New(nil, nil)
	cfg, err := config.New("equipment", config.PortModePassive, config.WithHostNameAndPort("127.0.0.1", 1))
	require.NoError(t, err)

	_, err = m.CreatePort(cfg)
	require.NoError(t, err)
	_, err = m.CreatePort(cfg)
	assert.ErrorIs(t, err, ErrDuplicatePort)
}

func TestManager_CreatePort_RejectsSecondDefault(t *testing.T) {
	m := New(nil, nil)
	cfg1, err := config.New("a", config.PortModePassive, config.WithHostNameAndPort("127.0.0.1", 1), config.WithMakeDefault())
	require.NoError(t, err)
	cfg2, err := config.New("b", config.PortModePassive, config.WithHostNameAndPort("127.0.0.1", 2), config.WithMakeDefault())
	require.NoError(t, err)

	_, err = m.CreatePort(cfg1)
	require.NoError(t, err)
	_, err = m.CreatePort(cfg2)
	assert.ErrorIs(t, err, ErrDuplicateDefault)
}

func TestManager_DefaultPort_FallsBackToFirstAdded(t *testing.T) {
	m := New(nil, nil)
	cfg, err := config.New("only", config.PortModePassive, config.WithHostNameAndPort("127.0.0.1", 1))
	require.NoError(t, err)
	p, err := m.CreatePort(cfg)
	require.NoError(t, err)

	d, ok := m.DefaultPort()
	require.True(t, ok)
	assert.Equal(t, p, d)
}

func TestManager_Sequence_SkipsZeroOnWrap(t *testing.T) {
	m := New(nil, nil)
	m.sysBytes = ^uint32(0) // one increment away from wrapping to 0
	first := m.NextSystemBytes()
	assert.NotZero(t, first)
}

func TestManager_Dispatch_ExactHandlerWins(t *testing.T) {
	m := New(nil, nil)
	require.NoError(t, m.RegisterHandler(1, 0, func(ctx context.Context, primary message.Message) (item.Value, bool) {
		return item.ASCII("fallback"), true
	}))
	require.NoError(t, m.RegisterHandler(1, 1, func(ctx context.Context, primary message.Message) (item.Value, bool) {
		return item.ASCII("exact"), true
	}))

	primary := newPrimary(t, "S1F1W", item.None())
	reply, ok := m.Dispatch(context.Background(), primary)
	require.True(t, ok)
	require.NotNil(t, reply)
	got, ok := reply.Content().ASCIIString()
	require.True(t, ok)
	assert.Equal(t, "exact", got)
	assert.Equal(t, 2, reply.StreamFunction().Function)
}

func TestManager_Dispatch_NoHandlerAbortsWhenWaitSet(t *testing.T) {
	m := New(nil, nil)
	primary := newPrimary(t, "S5F1W", item.None())
	reply, ok := m.Dispatch(context.Background(), primary)
	require.True(t, ok)
	require.NotNil(t, reply)
	assert.Equal(t, 0, reply.StreamFunction().Function)
	assert.Equal(t, 5, reply.StreamFunction().Stream)
}

func TestManager_Dispatch_NoHandlerNoWaitIsSilent(t *testing.T) {
	m := New(nil, nil)
	primary := newPrimary(t, "S5F1", item.None())
	reply, ok := m.Dispatch(context.Background(), primary)
	assert.False(t, ok)
	assert.Nil(t, reply)
}

func TestManager_Dispatch_HandlerPanicConvertsToAbort(t *testing.T) {
	m := New(nil, nil)
	require.NoError(t, m.RegisterHandler(1, 1, func(ctx context.Context, primary message.Message) (item.Value, bool) {
		panic("boom")
	}))

	primary := newPrimary(t, "S1F1W", item.None())
	reply, ok := m.Dispatch(context.Background(), primary)
	require.True(t, ok)
	require.NotNil(t, reply)
	assert.Equal(t, 0, reply.StreamFunction().Function)
}

func TestManager_Dispatch_HandlerDefersReply(t *testing.T) {
	m := New(nil, nil)
	require.NoError(t, m.RegisterHandler(1, 1, func(ctx context.Context, primary message.Message) (item.Value, bool) {
		return item.Value{}, false
	}))

	primary := newPrimary(t, "S1F1W", item.None())
	reply, ok := m.Dispatch(context.Background(), primary)
	assert.False(t, ok)
	assert.Nil(t, reply)
}

func TestManager_RegisterHighRate(t *testing.T) {
	m := New(nil, nil)
	sf, err := sfparser.Parse("S6F11")
	require.NoError(t, err)
	assert.False(t, m.isHighRate(sf))
	m.RegisterHighRate(sf)
	assert.True(t, m.isHighRate(sf))
}

func TestManager_StartStopClose_LiveEngines(t *testing.T) {
	port := 16000 + int(time.Now().UnixNano()%4000)

	passiveMgr := New(nil, nil)
	passiveCfg, err := config.New("equipment", config.PortModePassive,
		config.WithHostNameAndPort("127.0.0.1", port))
	require.NoError(t, err)
	_, err = passiveMgr.CreatePort(passiveCfg)
	require.NoError(t, err)

	activeMgr := New(nil, nil)
	activeCfg, err := config.New("host", config.PortModeActive,
		config.WithHostNameAndPort("127.0.0.1", port))
	require.NoError(t, err)
	_, err = activeMgr.CreatePort(activeCfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- passiveMgr.StartPortsIfNeeded(ctx) }()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, activeMgr.StartPortsIfNeeded(ctx))
	require.NoError(t, <-errCh)

	p, ok := passiveMgr.Port("equipment")
	require.True(t, ok)
	assert.Equal(t, session.StateSelected, p.Engine.State())
	assert.Equal(t, 1, p.Ordinal)

	h, ok := activeMgr.DefaultPort()
	require.True(t, ok)
	assert.Equal(t, session.StateSelected, h.Engine.State())

	require.NoError(t, activeMgr.Close(context.Background()))
	passiveMgr.StopPortsIfNeeded(context.Background(), true)
}
