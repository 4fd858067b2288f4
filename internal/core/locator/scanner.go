// Package locator 实现发现扫描器
//
// 扫描器按固定周期询问所有探测方式（Prober），在响应窗口结束后把结果
// 调和进节点注册表：新 ID 添加，属性变化的更新（保留同一个 Peer 对象），
// 超过老化窗口未再出现的移除。持久化的节点从不老化。
//
// 状态 IDLE → SCANNING → IDLE。周期定时器和全部注册表修改都在调度
// goroutine 上；探测本身在其外执行。
package locator

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/lib/log"
	"github.com/dep2p/go-tcf/pkg/types"
)

var logger = log.Logger("core/locator")

// dnsTimeout 单次反向解析的超时
const dnsTimeout = 5 * time.Second

// Option 扫描器选项
type Option func(*Scanner)

// WithResolver 启用反向 DNS 名称解析
func WithResolver(r Resolver) Option {
	return func(s *Scanner) { s.resolver = r }
}

// WithEventBus 发出 EvtScannerState
func WithEventBus(bus pkgif.EventBus) Option {
	return func(s *Scanner) { s.bus = bus }
}

// WithClock 替换时间源
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// ============================================================================
//                              Scanner
// ============================================================================

// Scanner 发现扫描器
type Scanner struct {
	exec     pkgif.Executor
	peers    pkgif.PeerRegistry
	cfg      Config
	resolver Resolver
	limiter  *rate.Limiter
	bus      pkgif.EventBus
	emState  pkgif.Emitter
	now      func() time.Time

	mu      sync.Mutex
	probers []pkgif.Prober

	state atomic.Int32

	// 以下字段只在调度 goroutine 上访问
	running   bool
	scanning  bool
	rescan    bool
	timer     pkgif.Timer
	cycle     uint64
	lastSeen  map[string]time.Time
	resolving mapset.Set[string]

	nPeers      atomic.Int64
	cycles      atomic.Uint64
	probeErrors atomic.Uint64
	removed     atomic.Uint64
}

var _ pkgif.Locator = (*Scanner)(nil)

// New 创建扫描器
func New(exec pkgif.Executor, peers pkgif.PeerRegistry, cfg Config, opts ...Option) (*Scanner, error) {
	cfg.normalize()
	s := &Scanner{
		exec:      exec,
		peers:     peers,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.DNSRate), 1),
		now:       time.Now,
		lastSeen:  make(map[string]time.Time),
		resolving: mapset.NewThreadUnsafeSet[string](),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bus != nil {
		em, err := s.bus.Emitter(new(types.EvtScannerState))
		if err != nil {
			return nil, err
		}
		s.emState = em
	}
	return s, nil
}

// AddProber 添加探测方式，可在任意 goroutine 调用
func (s *Scanner) AddProber(p pkgif.Prober) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probers = append(s.probers, p)
	logger.Debug("添加探测方式", "prober", p.Name())
}

// State 返回扫描器状态
func (s *Scanner) State() types.ScannerState {
	return types.ScannerState(s.state.Load())
}

// Stats 返回统计快照
func (s *Scanner) Stats() types.ScannerStats {
	return types.ScannerStats{
		Peers:       int(s.nPeers.Load()),
		Cycles:      s.cycles.Load(),
		ProbeErrors: s.probeErrors.Load(),
		Removed:     s.removed.Load(),
	}
}

// Start 开始周期扫描，立即执行第一次
func (s *Scanner) Start() {
	s.onDispatch(func() {
		if s.running {
			return
		}
		s.running = true
		logger.Info("扫描器已启动", "interval", s.cfg.ScanInterval, "aging", s.cfg.AgingWindow)
		s.scan()
	})
}

// Stop 停止扫描；进行中的一次扫描结果被丢弃
func (s *Scanner) Stop() {
	s.onDispatch(func() {
		if !s.running {
			return
		}
		s.running = false
		s.rescan = false
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		logger.Info("扫描器已停止")
	})
}

// ScanNow 请求尽快扫描一次，扫描进行中时合并到其后
func (s *Scanner) ScanNow() {
	s.onDispatch(func() {
		if !s.running {
			return
		}
		if s.scanning {
			s.rescan = true
			return
		}
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.scan()
	})
}

// Peers 返回扫描器发现的节点，按 ID 排序
func (s *Scanner) Peers() []pkgif.Peer {
	var out []pkgif.Peer
	collect := func() {
		ids := make([]string, 0, len(s.lastSeen))
		for id := range s.lastSeen {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			if p, ok := s.peers.Get(id); ok {
				out = append(out, p)
			}
		}
	}
	if s.exec.IsDispatchThread() {
		collect()
		return out
	}
	if err := s.exec.InvokeAndWait(collect); err != nil {
		logger.Debug("查询发现节点失败", "error", err)
	}
	return out
}

// ============================================================================
//                              扫描周期
// ============================================================================

func (s *Scanner) scan() {
	s.exec.AssertDispatch()
	if !s.running {
		return
	}
	if s.scanning {
		s.rescan = true
		return
	}
	s.timer = nil
	s.scanning = true
	s.cycle++
	cycle := s.cycle
	s.setState(types.ScannerScanning, cycle)

	s.mu.Lock()
	probers := slices.Clone(s.probers)
	s.mu.Unlock()
	window := s.cfg.ResponseWindow

	go func() {
		responses, failures := probe(probers, window)
		s.exec.InvokeLater(func() { s.finish(cycle, responses, failures) })
	}()
}

// probe 并发运行所有探测方式，等待它们全部返回
func probe(probers []pkgif.Prober, window time.Duration) ([]types.ProbeResponse, uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), window)
	defer cancel()

	var (
		mu        sync.Mutex
		responses []types.ProbeResponse
		failures  uint64
	)
	var g errgroup.Group
	for _, p := range probers {
		g.Go(func() error {
			res, err := p.Probe(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				logger.Debug("探测失败", "prober", p.Name(), "error", err)
			}
			for _, r := range res {
				if r.Source == "" {
					r.Source = p.Name()
				}
				responses = append(responses, r)
			}
			return nil
		})
	}
	_ = g.Wait()
	return responses, failures
}

func (s *Scanner) finish(cycle uint64, responses []types.ProbeResponse, failures uint64) {
	s.scanning = false
	s.cycles.Add(1)
	s.probeErrors.Add(failures)

	if s.running {
		now := s.now()
		s.reconcile(now, responses)
		s.age(now)
		s.enrich()
	}
	s.nPeers.Store(int64(len(s.lastSeen)))
	s.setState(types.ScannerIdle, cycle)

	if !s.running {
		return
	}
	if s.rescan {
		s.rescan = false
		s.exec.InvokeLater(s.scan)
		return
	}
	s.timer = s.exec.InvokeLaterDelay(s.cfg.ScanInterval, s.scan)
}

// reconcile 把一次扫描的结果写入注册表
func (s *Scanner) reconcile(now time.Time, responses []types.ProbeResponse) {
	children := make(map[string][]types.Attributes)
	var parents []string

	for _, r := range responses {
		if r.ParentID != "" {
			if _, ok := children[r.ParentID]; !ok {
				parents = append(parents, r.ParentID)
				children[r.ParentID] = nil
			}
			if r.Attrs.ID() != "" {
				children[r.ParentID] = append(children[r.ParentID], r.Attrs)
			}
			continue
		}

		id := r.Attrs.ID()
		if id == "" {
			logger.Debug("忽略没有 ID 的探测结果", "source", r.Source)
			continue
		}
		s.lastSeen[id] = now
		if p, ok := s.peers.Get(id); ok {
			if _, err := s.peers.Update(id, r.Attrs.MergeTransient(p.Attributes())); err != nil {
				logger.Warn("更新节点失败", "peer", log.TruncateID(id, 12), "error", err)
			}
			continue
		}
		if _, err := s.peers.Add(r.Attrs, false); err != nil {
			logger.Warn("添加节点失败", "peer", log.TruncateID(id, 12), "error", err)
		}
	}

	for _, parent := range parents {
		s.peers.SetChildren(parent, children[parent])
	}
}

// age 移除超过老化窗口未被观察到的节点，每个节点只移除一次
func (s *Scanner) age(now time.Time) {
	for id, seen := range s.lastSeen {
		if now.Sub(seen) <= s.cfg.AgingWindow {
			continue
		}
		delete(s.lastSeen, id)
		if s.peers.IsPersistent(id) {
			continue
		}
		if s.peers.Remove(id) {
			s.removed.Add(1)
			logger.Debug("节点老化移除", "peer", log.TruncateID(id, 12), "lastSeen", seen)
		}
	}
}

func (s *Scanner) setState(state types.ScannerState, cycle uint64) {
	s.state.Store(int32(state))
	if s.emState == nil {
		return
	}
	if err := s.emState.Emit(types.EvtScannerState{
		BaseEvent: types.NewBaseEvent("scanner.state"),
		State:     state,
		Cycle:     cycle,
	}); err != nil {
		logger.Debug("事件发射失败", "error", err)
	}
}

func (s *Scanner) onDispatch(fn func()) {
	if s.exec.IsDispatchThread() {
		fn()
		return
	}
	s.exec.InvokeLater(fn)
}
