package locatorsvc

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-tcf/internal/core/channel"
	"github.com/dep2p/go-tcf/internal/core/dispatch"
	"github.com/dep2p/go-tcf/internal/core/eventbus"
	"github.com/dep2p/go-tcf/internal/core/peer"
	"github.com/dep2p/go-tcf/internal/core/proxy"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/types"
)

type fixture struct {
	exec   *dispatch.Executor
	reg    *peer.Registry
	svc    *Service
	client *channel.Channel
	server *channel.Channel
	proxy  *Client
}

// newFixture 服务端持有注册表，客户端通道经 Locator 代理访问
func newFixture(t *testing.T) *fixture {
	t.Helper()
	exec := dispatch.New(dispatch.Config{})
	exec.Start()
	t.Cleanup(exec.Stop)

	bus := eventbus.NewBus()
	reg, err := peer.NewRegistry(exec, bus, nil)
	require.NoError(t, err)

	svc := New(exec, reg, "agent-1")
	require.NoError(t, svc.Start(bus))
	t.Cleanup(svc.Stop)

	f := &fixture{exec: exec, reg: reg, svc: svc}
	clientSide := New(exec, nil, "client")

	opened := make(chan struct{}, 2)
	onOpen := &pkgif.ChannelListenerFuncs{Opened: func() { opened <- struct{}{} }}
	a, b := net.Pipe()
	f.on(t, func() {
		f.server = channel.New(exec, peer.NewTransient(nil), channel.Options{Providers: []pkgif.ServiceProvider{svc}})
		f.server.AddListener(onOpen)
		f.server.Attach(b, nil)

		f.client = channel.New(exec, peer.NewTransient(types.Attributes{types.AttrID: "agent-1"}),
			channel.Options{Providers: []pkgif.ServiceProvider{clientSide}})
		f.client.AddListener(onOpen)
		f.client.Attach(a, nil)
	})
	for i := 0; i < 2; i++ {
		select {
		case <-opened:
		case <-time.After(5 * time.Second):
			t.Fatal("channels did not open")
		}
	}
	f.on(t, func() {
		f.proxy, _ = f.client.RemoteService(channel.ServiceLocator).(*Client)
	})
	require.NotNil(t, f.proxy)
	t.Cleanup(func() {
		f.client.Close()
		f.server.Close()
	})
	return f
}

func (f *fixture) on(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, f.exec.InvokeAndWait(fn))
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
		var zero T
		return zero
	}
}

// ============================================================================
//                              命令
// ============================================================================

func TestLocator_GetPeers(t *testing.T) {
	f := newFixture(t)

	f.on(t, func() {
		_, err := f.reg.Add(types.Attributes{
			types.AttrID:      "p1",
			types.AttrName:    "board",
			types.AttrDNSName: "board.lan",
		}, false)
		assert.NoError(t, err)
	})

	type result struct {
		peers []types.Attributes
		err   error
	}
	out := make(chan result, 1)
	f.on(t, func() {
		f.proxy.GetPeers(func(peers []types.Attributes, err error) { out <- result{peers, err} })
	})
	r := recv(t, out)
	require.NoError(t, r.err)
	require.Len(t, r.peers, 1)
	assert.Equal(t, "p1", r.peers[0].ID())
	assert.Equal(t, "board", r.peers[0][types.AttrName])
	assert.NotContains(t, r.peers[0], types.AttrDNSName)
}

func TestLocator_AgentIDAndSync(t *testing.T) {
	f := newFixture(t)

	ids := make(chan string, 1)
	errs := make(chan error, 2)
	f.on(t, func() {
		f.proxy.GetAgentID(func(id string, err error) {
			errs <- err
			ids <- id
		})
		f.proxy.Sync(func(err error) { errs <- err })
	})
	assert.NoError(t, recv(t, errs))
	assert.Equal(t, "agent-1", recv(t, ids))
	assert.NoError(t, recv(t, errs))
}

func TestLocator_RedirectUnsupported(t *testing.T) {
	f := newFixture(t)

	errs := make(chan error, 1)
	f.on(t, func() {
		f.proxy.Redirect(types.Attributes{types.AttrID: "elsewhere"}, func(err error) { errs <- err })
	})
	err := recv(t, errs)
	var re *channel.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, channel.CodeOther, re.Code)
}

// ============================================================================
//                              事件
// ============================================================================

func TestLocator_Events(t *testing.T) {
	f := newFixture(t)

	added := make(chan types.Attributes, 4)
	changed := make(chan types.Attributes, 4)
	removed := make(chan string, 4)
	f.on(t, func() {
		f.proxy.AddListener(&Listener{
			PeerAdded:   func(a types.Attributes) { added <- a },
			PeerChanged: func(a types.Attributes) { changed <- a },
			PeerRemoved: func(id string) { removed <- id },
		})
		_, err := f.reg.Add(types.Attributes{types.AttrID: "p1", types.AttrName: "one"}, false)
		assert.NoError(t, err)
	})
	a := recv(t, added)
	assert.Equal(t, "one", a[types.AttrName])

	f.on(t, func() {
		_, err := f.reg.Update("p1", types.Attributes{types.AttrID: "p1", types.AttrName: "uno"})
		assert.NoError(t, err)
	})
	assert.Equal(t, "uno", recv(t, changed)[types.AttrName])

	f.on(t, func() { f.reg.Remove("p1") })
	assert.Equal(t, "p1", recv(t, removed))
}

func TestLocator_RemoveListener(t *testing.T) {
	f := newFixture(t)

	added := make(chan types.Attributes, 4)
	l := &Listener{PeerAdded: func(a types.Attributes) { added <- a }}
	f.on(t, func() {
		f.proxy.AddListener(l)
		f.proxy.RemoveListener(l)
		_, err := f.reg.Add(types.Attributes{types.AttrID: "p1"}, false)
		assert.NoError(t, err)
	})

	// sync 的应答排在事件之后，返回时事件必已处理
	errs := make(chan error, 1)
	f.on(t, func() { f.proxy.Sync(func(err error) { errs <- err }) })
	require.NoError(t, recv(t, errs))
	assert.Empty(t, added)
}

func TestLocator_TracksOpenChannels(t *testing.T) {
	f := newFixture(t)

	var n int
	f.on(t, func() { n = f.svc.OpenChannels() })
	assert.Equal(t, 1, n)

	f.client.Close()
	assert.Eventually(t, func() bool {
		_ = f.exec.InvokeAndWait(func() { n = f.svc.OpenChannels() })
		return n == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLocator_Proxy(t *testing.T) {
	f := newFixture(t)

	p, err := proxy.For[Locator](f.exec, Locator(f.proxy))
	require.NoError(t, err)
	assert.Same(t, Descriptor, p.Descriptor())

	res, err := p.CallAndWait(0, "GetAgentID", nil)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "agent-1", res[0])
}

func TestService_ProxyOnlyForLocator(t *testing.T) {
	s := New(nil, nil, "")
	assert.Nil(t, s.ServiceProxy(nil, "Echo"))
	assert.Equal(t, ProviderName, s.Name())
	assert.Empty(t, s.snapshot())
}
