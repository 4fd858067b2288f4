package channelmgr

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/dep2p/go-tcf/internal/core/channel"
	"github.com/dep2p/go-tcf/internal/core/peer"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/lib/log"
	"github.com/dep2p/go-tcf/pkg/types"
)

var logger = log.Logger("core/channelmgr")

// Dialer 按节点属性建立传输连接
type Dialer interface {
	Dial(ctx context.Context, attrs types.Attributes) (io.ReadWriteCloser, error)
}

// ValueAdds 按目标节点返回适用的 value-add，保持注册顺序
type ValueAdds interface {
	Applicable(peer pkgif.Peer) []pkgif.ValueAdd
}

// Option 管理器选项
type Option func(*Manager)

// WithPeers 设置节点注册表，OpenChannelByAttrs 用它查找和登记节点
func WithPeers(peers pkgif.PeerRegistry) Option {
	return func(m *Manager) { m.peers = peers }
}

// WithProviders 设置服务提供者来源，每次打开通道时取当前列表
func WithProviders(fn func() []pkgif.ServiceProvider) Option {
	return func(m *Manager) { m.providers = fn }
}

// WithValueAdds 设置 value-add 来源
func WithValueAdds(vas ValueAdds) Option {
	return func(m *Manager) { m.valueAdds = vas }
}

// WithMeter 设置通道流量统计
func WithMeter(meter channel.Meter) Option {
	return func(m *Manager) { m.meter = meter }
}

// WithEventBus 发出 EvtChannelOpened/EvtChannelClosed
func WithEventBus(bus pkgif.EventBus) Option {
	return func(m *Manager) { m.bus = bus }
}

// managed 一个共享通道及其引用
type managed struct {
	id   string
	ch   *channel.Channel
	refs int

	// waiters 通道打开前到达的调用方
	waiters  []pkgif.OpenDone
	canceled bool
}

// ============================================================================
//                              Manager
// ============================================================================

// Manager 通道管理器
type Manager struct {
	exec      pkgif.Executor
	dialer    Dialer
	cfg       Config
	peers     pkgif.PeerRegistry
	providers func() []pkgif.ServiceProvider
	valueAdds ValueAdds
	meter     channel.Meter
	bus       pkgif.EventBus

	emOpened pkgif.Emitter
	emClosed pkgif.Emitter

	launches singleflight.Group

	// shared 只在调度 goroutine 上访问
	shared map[string]*managed

	// retired 被关闭监视摘除的共享通道 → 持有者尚未释放的引用数
	retired map[pkgif.Channel]int

	nShared      atomic.Int64
	opened       atomic.Uint64
	openFailures atomic.Uint64
	closed       atomic.Uint64
	coalesced    atomic.Uint64
}

var _ pkgif.ChannelManager = (*Manager)(nil)

// New 创建通道管理器
func New(exec pkgif.Executor, dialer Dialer, cfg Config, opts ...Option) (*Manager, error) {
	cfg.normalize()
	m := &Manager{
		exec:    exec,
		dialer:  dialer,
		cfg:     cfg,
		shared:  make(map[string]*managed),
		retired: make(map[pkgif.Channel]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.bus != nil {
		var err error
		if m.emOpened, err = m.bus.Emitter(new(types.EvtChannelOpened)); err != nil {
			return nil, fmt.Errorf("channel opened emitter: %w", err)
		}
		if m.emClosed, err = m.bus.Emitter(new(types.EvtChannelClosed)); err != nil {
			return nil, fmt.Errorf("channel closed emitter: %w", err)
		}
	}
	return m, nil
}

// ============================================================================
//                              打开
// ============================================================================

// OpenChannel 打开到 peer 的通道
//
// done 在调度 goroutine 上回调；传输错误只经由 done 返回。
// 执行器已停止时 done 在调用方 goroutine 上以 dispatch.ErrClosed 回调。
func (m *Manager) OpenChannel(p pkgif.Peer, flags types.OpenFlags, done pkgif.OpenDone) {
	m.submit(done, func() { m.open(p, flags.Normalize(), done) })
}

// OpenChannelByAttrs 按属性打开通道
//
// 注册表中已有该 ID 时使用注册的节点；否则带 transient 属性时创建临时节点，
// 不带时先登记到注册表。
func (m *Manager) OpenChannelByAttrs(attrs types.Attributes, flags types.OpenFlags, done pkgif.OpenDone) {
	attrs = attrs.Clone()
	m.submit(done, func() {
		id := attrs.ID()
		if id == "" {
			done(nil, ErrMissingID)
			return
		}
		if m.peers != nil {
			if p, ok := m.peers.Get(id); ok {
				m.open(p, flags.Normalize(), done)
				return
			}
		}
		if attrs[types.AttrTransient] == "true" || m.peers == nil {
			m.open(peer.NewTransient(attrs), flags.Normalize(), done)
			return
		}
		p, err := m.peers.Add(attrs, false)
		if err != nil {
			done(nil, err)
			return
		}
		m.open(p, flags.Normalize(), done)
	})
}

func (m *Manager) open(p pkgif.Peer, flags types.OpenFlags, done pkgif.OpenDone) {
	m.exec.AssertDispatch()
	id := p.ID()

	if flags.Has(types.FlagForceNew) {
		logger.Debug("打开非托管通道", "peer", log.TruncateID(id, 12), "flags", flags)
		m.start(p, !flags.Has(types.FlagNoValueAdd), func(ch *channel.Channel, err error) {
			if err != nil {
				done(nil, err)
				return
			}
			done(ch, nil)
		}, nil)
		return
	}

	if e, ok := m.shared[id]; ok {
		if e.ch == nil || e.ch.State() != types.ChannelClosed {
			e.refs++
			if e.ch != nil && e.ch.State() == types.ChannelOpen {
				done(e.ch, nil)
				return
			}
			m.coalesced.Add(1)
			e.waiters = append(e.waiters, done)
			return
		}
		// 关闭通知尚未处理，丢弃旧条目重新打开
		m.drop(e)
	}

	e := &managed{id: id, refs: 1, waiters: []pkgif.OpenDone{done}}
	m.shared[id] = e
	m.nShared.Store(int64(len(m.shared)))
	logger.Debug("打开共享通道", "peer", log.TruncateID(id, 12))
	m.start(p, true, func(ch *channel.Channel, err error) {
		m.settle(e, ch, err)
	}, e)
}

// settle 共享通道打开完成（或失败），通知全部等待者
func (m *Manager) settle(e *managed, ch *channel.Channel, err error) {
	waiters := e.waiters
	e.waiters = nil
	if err != nil {
		m.drop(e)
		for _, w := range waiters {
			w(nil, err)
		}
		return
	}
	for _, w := range waiters {
		w(ch, nil)
	}
}

// start 解析重定向路径并拨号，结果在调度 goroutine 上回调 result
//
// e 非空时为共享条目：拨号完成前被取消则丢弃连接。
func (m *Manager) start(p pkgif.Peer, useValueAdd bool, result func(*channel.Channel, error), e *managed) {
	var vas []pkgif.ValueAdd
	if useValueAdd && m.valueAdds != nil {
		vas = m.valueAdds.Applicable(p)
	}
	target := p.Attributes()

	go func() {
		path, first, hops, err := m.resolve(p.ID(), target, vas)
		var conn io.ReadWriteCloser
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.OpenTimeout)
			conn, err = m.dialer.Dial(ctx, first)
			cancel()
		}
		m.exec.InvokeLater(func() {
			if e != nil && e.canceled {
				if conn != nil {
					_ = conn.Close()
				}
				return
			}
			if err != nil {
				m.openFailures.Add(1)
				logger.Debug("打开通道失败", "peer", log.TruncateID(p.ID(), 12), "error", err)
				result(nil, err)
				return
			}
			m.attach(p, conn, path, hops, result, e)
		})
	}()
}

// attach 创建通道并开始握手
func (m *Manager) attach(p pkgif.Peer, conn io.ReadWriteCloser, path types.RedirectPath, hops []types.Attributes,
	result func(*channel.Channel, error), e *managed) {
	var providers []pkgif.ServiceProvider
	if m.providers != nil {
		providers = m.providers()
	}
	ch := channel.New(m.exec, p, channel.Options{
		Providers:        providers,
		Path:             path,
		HandshakeTimeout: m.cfg.OpenTimeout,
		Meter:            m.meter,
		MaxMessageSize:   m.cfg.MaxMessageSize,
	})
	if e != nil {
		e.ch = ch
	}

	isOpen := false
	ch.AddListener(&pkgif.ChannelListenerFuncs{
		Opened: func() {
			isOpen = true
			m.opened.Add(1)
			m.emit(m.emOpened, types.EvtChannelOpened{
				BaseEvent: types.NewBaseEvent("channel.opened"),
				PeerID:    p.ID(),
				Shared:    e != nil,
				Path:      path.Clone(),
			})
			result(ch, nil)
		},
		Closed: func(err error) {
			if e != nil && m.shared[e.id] == e {
				m.drop(e)
				if isOpen && e.refs > 0 {
					m.retired[ch] = e.refs
				}
			}
			if !isOpen {
				m.openFailures.Add(1)
				if err == nil {
					err = channel.ErrChannelClosed
				}
				result(nil, err)
				return
			}
			m.closed.Add(1)
			m.emit(m.emClosed, types.EvtChannelClosed{
				BaseEvent: types.NewBaseEvent("channel.closed"),
				PeerID:    p.ID(),
				Shared:    e != nil,
				Err:       err,
			})
		},
	})
	ch.Attach(conn, hops)
}

// ============================================================================
//                              查询与关闭
// ============================================================================

// GetChannel 返回到 peer 的共享通道，没有时返回 nil
//
// 仍在解析 value-add 或拨号的共享打开没有通道对象，同样返回 nil。
func (m *Manager) GetChannel(p pkgif.Peer) pkgif.Channel {
	var out pkgif.Channel
	lookup := func() {
		if e, ok := m.shared[p.ID()]; ok && e.ch != nil && e.ch.State() != types.ChannelClosed {
			out = e.ch
		}
	}
	if m.exec.IsDispatchThread() {
		lookup()
		return out
	}
	if err := m.exec.InvokeAndWait(lookup); err != nil {
		logger.Debug("查询通道失败", "error", err)
	}
	return out
}

// CloseChannel 释放一个引用
//
// 共享通道引用归零时才真正关闭；非托管通道立即关闭。
func (m *Manager) CloseChannel(ch pkgif.Channel) {
	if ch == nil {
		return
	}
	m.onDispatch(func() {
		if e, ok := m.shared[ch.RemotePeer().ID()]; ok && e.ch != nil && pkgif.Channel(e.ch) == ch {
			e.refs--
			if e.refs > 0 {
				logger.Debug("释放通道引用", "channel", ch, "refs", e.refs)
				return
			}
			m.drop(e)
			ch.Close()
			return
		}
		if n, ok := m.retired[ch]; ok {
			if n <= 1 {
				delete(m.retired, ch)
			} else {
				m.retired[ch] = n - 1
			}
			logger.Debug("释放已关闭共享通道的引用", "channel", ch, "refs", n-1)
			return
		}
		if ch.State() == types.ChannelClosed {
			logger.Warn("重复关闭通道", "channel", ch)
			return
		}
		ch.Close()
	})
}

// CloseAll 强制关闭所有托管通道，仅用于关闭流程
func (m *Manager) CloseAll() {
	m.onDispatch(func() {
		entries := make([]*managed, 0, len(m.shared))
		for _, e := range m.shared {
			entries = append(entries, e)
		}
		clear(m.shared)
		clear(m.retired)
		m.nShared.Store(0)
		for _, e := range entries {
			e.refs = 0
			if e.ch != nil {
				e.ch.Close()
				continue
			}
			e.canceled = true
			waiters := e.waiters
			e.waiters = nil
			for _, w := range waiters {
				w(nil, ErrCanceled)
			}
		}
		logger.Debug("已关闭全部托管通道", "count", len(entries))
	})
}

// Stats 返回统计快照，可在任意 goroutine 调用
func (m *Manager) Stats() types.ChannelStats {
	return types.ChannelStats{
		Shared:       int(m.nShared.Load()),
		Opened:       m.opened.Load(),
		OpenFailures: m.openFailures.Load(),
		Closed:       m.closed.Load(),
		Coalesced:    m.coalesced.Load(),
	}
}

// Refs 返回节点共享通道的引用数，只能在调度 goroutine 上调用
func (m *Manager) Refs(id string) int {
	m.exec.AssertDispatch()
	if e, ok := m.shared[id]; ok {
		return e.refs
	}
	return 0
}

// Retired 返回已被关闭监视摘除、仍有未释放引用的共享通道数，只能在调度 goroutine 上调用
func (m *Manager) Retired() int {
	m.exec.AssertDispatch()
	return len(m.retired)
}

// SharedIDs 返回持有共享通道的节点 ID，只能在调度 goroutine 上调用
func (m *Manager) SharedIDs() []string {
	m.exec.AssertDispatch()
	ids := make([]string, 0, len(m.shared))
	for id := range m.shared {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (m *Manager) drop(e *managed) {
	if m.shared[e.id] == e {
		delete(m.shared, e.id)
		m.nShared.Store(int64(len(m.shared)))
	}
}

func (m *Manager) emit(em pkgif.Emitter, evt interface{}) {
	if em == nil {
		return
	}
	if err := em.Emit(evt); err != nil {
		logger.Debug("事件发射失败", "error", err)
	}
}

// submit 把打开请求交给调度 goroutine，无法入队时直接以错误回调 done
func (m *Manager) submit(done pkgif.OpenDone, fn func()) {
	if m.exec.IsDispatchThread() {
		fn()
		return
	}
	if err := m.exec.TryInvokeLater(fn); err != nil {
		logger.Debug("执行器已停止，打开请求被拒绝", "error", err)
		done(nil, err)
	}
}

func (m *Manager) onDispatch(fn func()) {
	if m.exec.IsDispatchThread() {
		fn()
		return
	}
	m.exec.InvokeLater(fn)
}
