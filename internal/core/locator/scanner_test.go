package locator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-tcf/internal/core/dispatch"
	"github.com/dep2p/go-tcf/internal/core/eventbus"
	"github.com/dep2p/go-tcf/internal/core/peer"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// scripted 每次探测返回当前设置的结果
type scripted struct {
	mu    sync.Mutex
	res   []types.ProbeResponse
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (s *scripted) set(res ...types.ProbeResponse) {
	s.mu.Lock()
	s.res = res
	s.mu.Unlock()
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Probe(ctx context.Context) ([]types.ProbeResponse, error) {
	s.calls.Add(1)
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ProbeResponse(nil), s.res...), s.err
}

type fixture struct {
	exec  *dispatch.Executor
	bus   *eventbus.Bus
	reg   *peer.Registry
	clock *fakeClock
	probe *scripted
	s     *Scanner
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	exec := dispatch.New(dispatch.Config{})
	exec.Start()
	t.Cleanup(exec.Stop)

	bus := eventbus.NewBus()
	reg, err := peer.NewRegistry(exec, bus, nil)
	require.NoError(t, err)

	f := &fixture{
		exec:  exec,
		bus:   bus,
		reg:   reg,
		clock: &fakeClock{now: time.Unix(1_700_000_000, 0)},
		probe: &scripted{},
	}
	opts = append([]Option{WithEventBus(bus), WithClock(f.clock.Now)}, opts...)
	f.s, err = New(exec, reg, Config{
		ScanInterval:   time.Hour,
		AgingWindow:    120 * time.Second,
		ResponseWindow: 100 * time.Millisecond,
		DNSRate:        1000,
	}, opts...)
	require.NoError(t, err)
	f.s.AddProber(f.probe)
	t.Cleanup(f.s.Stop)
	return f
}

func (f *fixture) on(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, f.exec.InvokeAndWait(fn))
}

// start 启动扫描器并等待第一轮结束
func (f *fixture) start(t *testing.T) {
	t.Helper()
	f.s.Start()
	f.waitCycles(t, 1)
}

// scan 触发一轮扫描并等待结束
func (f *fixture) scan(t *testing.T) {
	t.Helper()
	n := f.s.Stats().Cycles
	f.s.ScanNow()
	f.waitCycles(t, n+1)
}

func (f *fixture) waitCycles(t *testing.T, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.s.Stats().Cycles >= n && f.s.State() == types.ScannerIdle
	}, 5*time.Second, 5*time.Millisecond)
	f.on(t, func() {})
}

func (f *fixture) get(t *testing.T, id string) (pkgif.Peer, bool) {
	t.Helper()
	var (
		p  pkgif.Peer
		ok bool
	)
	f.on(t, func() { p, ok = f.reg.Get(id) })
	return p, ok
}

func root(id, name string) types.ProbeResponse {
	return types.ProbeResponse{Attrs: types.Attributes{types.AttrID: id, types.AttrName: name}}
}

// ============================================================================
//                              调和与老化
// ============================================================================

func TestScanner_AddUpdateAge(t *testing.T) {
	f := newFixture(t)
	removed, err := f.bus.Subscribe(new(types.EvtPeerRemoved), pkgif.BufSize(8))
	require.NoError(t, err)
	defer removed.Close()

	f.probe.set(root("p1", "board"))
	f.start(t)
	first, ok := f.get(t, "p1")
	require.True(t, ok)

	// 属性变化时更新同一个对象
	f.clock.Advance(10 * time.Second)
	f.probe.set(root("p1", "renamed"))
	f.scan(t)
	second, ok := f.get(t, "p1")
	require.True(t, ok)
	assert.Same(t, first, second)
	assert.Equal(t, "renamed", second.Name())

	// 不再出现，但仍在老化窗口内
	f.probe.set()
	f.clock.Advance(60 * time.Second)
	f.scan(t)
	_, ok = f.get(t, "p1")
	assert.True(t, ok)

	// 超过老化窗口后只移除一次
	f.clock.Advance(61 * time.Second)
	f.scan(t)
	_, ok = f.get(t, "p1")
	assert.False(t, ok)
	f.clock.Advance(200 * time.Second)
	f.scan(t)

	assert.Equal(t, uint64(1), f.s.Stats().Removed)
	select {
	case evt := <-removed.Out():
		assert.Equal(t, "p1", evt.(types.EvtPeerRemoved).PeerID)
	case <-time.After(5 * time.Second):
		t.Fatal("no removed event")
	}
	select {
	case evt := <-removed.Out():
		t.Fatalf("unexpected second removal: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScanner_PersistentNeverAges(t *testing.T) {
	f := newFixture(t)
	f.on(t, func() {
		_, err := f.reg.Add(types.Attributes{types.AttrID: "saved"}, true)
		require.NoError(t, err)
	})

	f.probe.set(root("saved", "x"))
	f.start(t)
	f.probe.set()
	f.clock.Advance(10 * time.Minute)
	f.scan(t)

	_, ok := f.get(t, "saved")
	assert.True(t, ok)
	assert.Zero(t, f.s.Stats().Removed)
}

func TestScanner_KeepsTransientAttrs(t *testing.T) {
	f := newFixture(t)
	f.probe.set(root("p1", "board"))
	f.start(t)

	f.on(t, func() {
		p, _ := f.reg.Get("p1")
		next := p.Attributes().Clone()
		next[types.AttrDNSName] = "board.lan"
		_, err := f.reg.Update("p1", next)
		require.NoError(t, err)
	})
	changed, err := f.bus.Subscribe(new(types.EvtPeerChanged), pkgif.BufSize(8))
	require.NoError(t, err)
	defer changed.Close()

	f.scan(t)
	p, _ := f.get(t, "p1")
	assert.Equal(t, "board.lan", p.Attr(types.AttrDNSName))
	select {
	case evt := <-changed.Out():
		t.Fatalf("unexpected change: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScanner_ProbeErrorSwallowed(t *testing.T) {
	f := newFixture(t)
	f.probe.err = errors.New("socket closed")
	f.probe.set(root("p1", "board"))
	f.s.AddProber(NewProber("broken", func(context.Context) ([]types.ProbeResponse, error) {
		return nil, errors.New("boom")
	}))

	f.start(t)
	_, ok := f.get(t, "p1")
	assert.True(t, ok)
	assert.Equal(t, uint64(2), f.s.Stats().ProbeErrors)
	assert.Equal(t, 1, f.s.Stats().Peers)
}

func TestScanner_IgnoresResponsesWithoutID(t *testing.T) {
	f := newFixture(t)
	f.probe.set(types.ProbeResponse{Attrs: types.Attributes{types.AttrName: "anon"}}, root("p1", "a"))
	f.start(t)

	var n int
	f.on(t, func() { n = len(f.reg.All()) })
	assert.Equal(t, 1, n)
}

// ============================================================================
//                              子节点
// ============================================================================

func TestScanner_Children(t *testing.T) {
	f := newFixture(t)
	f.probe.set(
		root("agent", "agent"),
		types.ProbeResponse{Attrs: types.Attributes{types.AttrID: "c1"}, ParentID: "agent"},
		types.ProbeResponse{Attrs: types.Attributes{types.AttrID: "c2"}, ParentID: "agent"},
	)
	f.start(t)

	var kids []pkgif.Peer
	f.on(t, func() { kids = f.reg.Children("agent") })
	assert.Len(t, kids, 2)

	// 父节点报告没有子节点
	f.probe.set(root("agent", "agent"), types.ProbeResponse{ParentID: "agent"})
	f.scan(t)
	f.on(t, func() { kids = f.reg.Children("agent") })
	assert.Empty(t, kids)
}

// ============================================================================
//                              调度
// ============================================================================

func TestScanner_ScanNowCoalesced(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.probe.gate = gate

	f.s.Start()
	require.Eventually(t, func() bool { return f.probe.calls.Load() == 1 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, types.ScannerScanning, f.s.State())
	for i := 0; i < 5; i++ {
		f.s.ScanNow()
	}
	f.probe.mu.Lock()
	f.probe.gate = nil
	f.probe.mu.Unlock()
	close(gate)

	f.waitCycles(t, 2)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), f.probe.calls.Load())
	assert.Equal(t, uint64(2), f.s.Stats().Cycles)
}

func TestScanner_StateEvents(t *testing.T) {
	f := newFixture(t)
	sub, err := f.bus.Subscribe(new(types.EvtScannerState), pkgif.BufSize(8))
	require.NoError(t, err)
	defer sub.Close()

	f.start(t)
	var states []types.ScannerState
	for len(states) < 2 {
		select {
		case evt := <-sub.Out():
			e := evt.(types.EvtScannerState)
			assert.Equal(t, uint64(1), e.Cycle)
			states = append(states, e.State)
		case <-time.After(5 * time.Second):
			t.Fatal("missing state event")
		}
	}
	assert.Equal(t, []types.ScannerState{types.ScannerScanning, types.ScannerIdle}, states)
}

func TestScanner_StopIgnoresScan(t *testing.T) {
	f := newFixture(t)
	f.s.ScanNow()
	f.on(t, func() {})
	assert.Zero(t, f.probe.calls.Load())

	f.start(t)
	f.s.Stop()
	f.on(t, func() {})
	f.s.ScanNow()
	f.on(t, func() {})
	assert.Equal(t, int32(1), f.probe.calls.Load())
}

func TestScanner_Peers(t *testing.T) {
	f := newFixture(t)
	f.probe.set(root("b", "b"), root("a", "a"))
	f.start(t)

	peers := f.s.Peers()
	require.Len(t, peers, 2)
	assert.Equal(t, "a", peers[0].ID())
	assert.Equal(t, "b", peers[1].ID())
}
