package locator

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-tcf/internal/core/channel"
	"github.com/dep2p/go-tcf/internal/core/locatorsvc"
	"github.com/dep2p/go-tcf/internal/core/task"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/lib/log"
	"github.com/dep2p/go-tcf/pkg/types"
)

// 探测方式名称
const (
	SourceStatic  = "static"
	SourceMDNS    = "mdns"
	SourceChannel = "channel"
)

// probeParallel 通道探测的并发上限
const probeParallel = 8

// ============================================================================
//                              函数探测
// ============================================================================

type funcProber struct {
	name string
	fn   func(ctx context.Context) ([]types.ProbeResponse, error)
}

// NewProber 以函数创建探测方式
func NewProber(name string, fn func(ctx context.Context) ([]types.ProbeResponse, error)) pkgif.Prober {
	return &funcProber{name: name, fn: fn}
}

func (p *funcProber) Name() string { return p.name }

func (p *funcProber) Probe(ctx context.Context) ([]types.ProbeResponse, error) {
	return p.fn(ctx)
}

// ============================================================================
//                              静态节点
// ============================================================================

// StaticProber 每个周期报告一组固定节点
type StaticProber struct {
	peers []types.Attributes
}

// NewStaticProber 创建静态探测，缺少 ID 的条目被忽略
func NewStaticProber(peers []types.Attributes) *StaticProber {
	p := &StaticProber{}
	for _, attrs := range peers {
		if attrs.ID() == "" {
			logger.Warn("忽略没有 ID 的静态节点", "attrs", attrs)
			continue
		}
		p.peers = append(p.peers, attrs.Clone())
	}
	return p
}

// Name 实现 pkgif.Prober
func (p *StaticProber) Name() string { return SourceStatic }

// Probe 实现 pkgif.Prober
func (p *StaticProber) Probe(context.Context) ([]types.ProbeResponse, error) {
	out := make([]types.ProbeResponse, 0, len(p.peers))
	for _, attrs := range p.peers {
		out = append(out, types.ProbeResponse{Attrs: attrs.Clone(), Source: SourceStatic})
	}
	return out, nil
}

// ============================================================================
//                              通道探测
// ============================================================================

// errNoLocator 对端没有 Locator 服务
var errNoLocator = errors.New("remote has no Locator service")

// ChannelProber 对已知根节点建立临时通道
//
// 能打开的节点视为仍然可达；对端提供 Locator 服务时再查询它代理的
// 子节点，结果以 ParentID 标注。无法打开的节点不报告，随后自然老化。
type ChannelProber struct {
	exec     pkgif.Executor
	peers    pkgif.PeerRegistry
	channels pkgif.ChannelManager
}

// NewChannelProber 创建通道探测
func NewChannelProber(exec pkgif.Executor, peers pkgif.PeerRegistry, channels pkgif.ChannelManager) *ChannelProber {
	return &ChannelProber{exec: exec, peers: peers, channels: channels}
}

// Name 实现 pkgif.Prober
func (p *ChannelProber) Name() string { return SourceChannel }

// Probe 实现 pkgif.Prober
func (p *ChannelProber) Probe(ctx context.Context) ([]types.ProbeResponse, error) {
	var roots []pkgif.Peer
	if err := p.exec.InvokeAndWait(func() { roots = p.peers.Roots() }); err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		out []types.ProbeResponse
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeParallel)
	for _, root := range roots {
		if root.IsTransient() {
			continue
		}
		g.Go(func() error {
			res, err := p.probePeer(gctx, root)
			if err != nil {
				logger.Debug("通道探测失败", "peer", log.TruncateID(root.ID(), 12), "error", err)
				return nil
			}
			mu.Lock()
			out = append(out, res...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

func (p *ChannelProber) probePeer(ctx context.Context, root pkgif.Peer) ([]types.ProbeResponse, error) {
	ch, err := p.open(ctx, root)
	if err != nil {
		return nil, err
	}
	defer p.channels.CloseChannel(ch)

	out := []types.ProbeResponse{{Attrs: root.Attributes().WithoutTransient(), Source: SourceChannel}}

	children, err := p.getPeers(ctx, ch)
	if errors.Is(err, errNoLocator) {
		return out, nil
	}
	if err != nil {
		logger.Debug("查询子节点失败", "peer", log.TruncateID(root.ID(), 12), "error", err)
		return out, nil
	}
	if len(children) == 0 {
		return append(out, types.ProbeResponse{ParentID: root.ID(), Source: SourceChannel}), nil
	}
	for _, attrs := range children {
		if attrs.ID() == "" || attrs.ID() == root.ID() {
			continue
		}
		out = append(out, types.ProbeResponse{Attrs: attrs, ParentID: root.ID(), Source: SourceChannel})
	}
	return out, nil
}

// open 打开一条独占的直连通道；ctx 结束后才打开的通道立即关闭
func (p *ChannelProber) open(ctx context.Context, root pkgif.Peer) (pkgif.Channel, error) {
	t := task.New[pkgif.Channel](p.exec, func(done func(pkgif.Channel, error)) {
		p.channels.OpenChannel(root, types.FlagForceNew|types.FlagNoValueAdd, func(ch pkgif.Channel, err error) {
			if err == nil && ctx.Err() != nil {
				p.channels.CloseChannel(ch)
				done(nil, ctx.Err())
				return
			}
			done(ch, err)
		})
	})
	return t.GetContext(ctx)
}

// getPeers 在调度 goroutine 上取远程 Locator 代理并查询其节点
//
// 对端没有宣告 Locator 服务时返回 errNoLocator。
func (p *ChannelProber) getPeers(ctx context.Context, ch pkgif.Channel) ([]types.Attributes, error) {
	type result struct {
		peers []types.Attributes
		err   error
	}
	out := make(chan result, 1)
	p.exec.InvokeLater(func() {
		client, ok := ch.RemoteService(channel.ServiceLocator).(*locatorsvc.Client)
		if !ok {
			out <- result{err: errNoLocator}
			return
		}
		client.GetPeers(func(peers []types.Attributes, err error) {
			out <- result{peers, err}
		})
	})
	select {
	case r := <-out:
		return r.peers, r.err
	case <-ctx.Done():
		return nil, errors.Join(ctx.Err(), errors.New("getPeers timed out"))
	}
}
