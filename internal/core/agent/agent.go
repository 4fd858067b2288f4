// Package agent 让本进程作为 TCF 代理接受连接
//
// 每个监听点接入的连接成为一条服务端通道，提供已注册的全部本地服务。
// 开启 Redirect 时，对端可经由本代理重定向到其它节点：目标只给出 ID
// 时按节点注册表补全地址。IP 监听点可以经 mDNS 宣告。
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dep2p/go-tcf/config"
	"github.com/dep2p/go-tcf/internal/core/channel"
	"github.com/dep2p/go-tcf/internal/core/locator"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/lib/log"
	"github.com/dep2p/go-tcf/pkg/types"
)

var logger = log.Logger("core/agent")

var (
	// ErrUnknownPeer 重定向目标只有 ID 且注册表中没有
	ErrUnknownPeer = errors.New("agent: unknown redirect target")

	// ErrStarted 代理已启动
	ErrStarted = errors.New("agent: already started")
)

// Network 拨号与监听
type Network interface {
	Dial(ctx context.Context, attrs types.Attributes) (io.ReadWriteCloser, error)
	Listen(attrs types.Attributes) (pkgif.Listener, error)
}

// Options 代理依赖
type Options struct {
	Peers     pkgif.PeerRegistry
	Providers func() []pkgif.ServiceProvider
	Meter     channel.Meter

	// MaxMessageSize 连入通道单条消息的字节上限，<= 0 时取默认值
	MaxMessageSize int

	// MDNS 非空 Service 时按配置宣告
	MDNS locator.MDNSConfig
}

// ResolveID 返回配置的代理 ID，未配置时生成
func ResolveID(cfg config.AgentConfig) string {
	if cfg.ID != "" {
		return cfg.ID
	}
	return uuid.NewString()
}

// ============================================================================
//                              Agent
// ============================================================================

// Agent TCF 代理
type Agent struct {
	exec pkgif.Executor
	net  Network
	cfg  config.AgentConfig
	id   string
	name string
	opts Options

	mu        sync.Mutex
	started   bool
	closing   bool
	listeners []pkgif.Listener
	adverts   []*locator.Advertisement
	local     []types.Attributes
	wg        sync.WaitGroup

	// 只在调度 goroutine 上访问
	servers map[*channel.Channel]struct{}

	accepted atomic.Uint64
}

// New 创建代理
func New(exec pkgif.Executor, network Network, cfg config.AgentConfig, id string, opts Options) *Agent {
	name := cfg.Name
	if name == "" {
		name, _ = os.Hostname()
	}
	return &Agent{
		exec:    exec,
		net:     network,
		cfg:     cfg,
		id:      id,
		name:    name,
		opts:    opts,
		servers: make(map[*channel.Channel]struct{}),
	}
}

// ID 代理 ID
func (a *Agent) ID() string { return a.id }

// Accepted 已接入的连接数
func (a *Agent) Accepted() uint64 { return a.accepted.Load() }

// LocalPeers 本代理各监听点对外的节点属性
func (a *Agent) LocalPeers() []types.Attributes {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.Attributes, 0, len(a.local))
	for _, attrs := range a.local {
		out = append(out, attrs.Clone())
	}
	return out
}

// Start 打开所有监听点；任一失败时关闭已打开的并返回错误
func (a *Agent) Start() error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return ErrStarted
	}
	a.started = true
	a.mu.Unlock()

	for _, entry := range a.cfg.Listen {
		if err := a.listen(entry); err != nil {
			a.Stop()
			return err
		}
	}
	return nil
}

func (a *Agent) listen(entry string) error {
	attrs, err := ParseListen(entry)
	if err != nil {
		return err
	}
	l, err := a.net.Listen(attrs)
	if err != nil {
		return fmt.Errorf("listen %s: %w", entry, err)
	}
	published := a.publish(l.Attrs())

	a.mu.Lock()
	a.listeners = append(a.listeners, l)
	a.local = append(a.local, published)
	a.mu.Unlock()
	logger.Info("代理开始监听", "listen", entry, "peer", published.ID())

	if a.cfg.Advertise && a.opts.MDNS.Service != "" && advertisable(published) {
		ad, err := locator.Advertise(a.opts.MDNS, published)
		if err != nil {
			logger.Warn("mDNS 宣告失败", "peer", published.ID(), "error", err)
		} else {
			a.mu.Lock()
			a.adverts = append(a.adverts, ad)
			a.mu.Unlock()
		}
	}

	a.wg.Add(1)
	go a.acceptLoop(l)
	return nil
}

// publish 补全监听点的节点属性
func (a *Agent) publish(listen types.Attributes) types.Attributes {
	attrs := listen.Clone()
	attrs[types.AttrID] = peerID(a.id, listen)
	attrs[types.AttrAgentID] = a.id
	attrs[types.AttrOSName] = runtime.GOOS
	if a.name != "" {
		attrs[types.AttrName] = a.name
	}
	if u := os.Getenv("USER"); u != "" {
		attrs[types.AttrUserName] = u
	}
	return attrs
}

func (a *Agent) acceptLoop(l pkgif.Listener) {
	defer a.wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			a.mu.Lock()
			closing := a.closing
			a.mu.Unlock()
			if !closing {
				logger.Warn("接受连接失败，停止监听", "listener", l.Attrs().Transport(), "error", err)
			}
			return
		}
		a.accepted.Add(1)
		a.exec.InvokeLater(func() { a.serve(conn) })
	}
}

// serve 为接入的连接创建服务端通道
func (a *Agent) serve(conn io.ReadWriteCloser) {
	a.mu.Lock()
	closing := a.closing
	a.mu.Unlock()
	if closing {
		_ = conn.Close()
		return
	}

	opts := channel.Options{Meter: a.opts.Meter, MaxMessageSize: a.opts.MaxMessageSize}
	if a.opts.Providers != nil {
		opts.Providers = a.opts.Providers()
	}
	if a.cfg.Redirect {
		opts.Redirect = a.redirect
	}
	ch := channel.Accept(a.exec, conn, nil, opts)
	a.servers[ch] = struct{}{}
	ch.AddListener(&pkgif.ChannelListenerFuncs{
		Closed: func(err error) {
			delete(a.servers, ch)
			logger.Debug("服务端通道已关闭", "channel", ch, "error", err)
		},
	})
}

// redirect 连接到重定向目标，只有 ID 的目标按注册表补全
func (a *Agent) redirect(ctx context.Context, target types.Attributes) (io.ReadWriteCloser, error) {
	attrs := target
	if len(target) == 1 && target.ID() != "" {
		attrs = nil
		if a.opts.Peers != nil {
			if err := a.exec.InvokeAndWait(func() {
				if p, ok := a.opts.Peers.Get(target.ID()); ok {
					attrs = p.Attributes()
				}
			}); err != nil {
				return nil, err
			}
		}
		if attrs == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, target.ID())
		}
	}
	logger.Debug("转发重定向", "target", log.TruncateID(attrs.ID(), 24))
	return a.net.Dial(ctx, attrs)
}

// Stop 关闭监听点、mDNS 宣告和全部服务端通道
func (a *Agent) Stop() {
	a.mu.Lock()
	if a.closing {
		a.mu.Unlock()
		return
	}
	a.closing = true
	listeners, adverts := a.listeners, a.adverts
	a.listeners, a.adverts = nil, nil
	a.mu.Unlock()

	for _, ad := range adverts {
		if err := ad.Close(); err != nil {
			logger.Debug("关闭 mDNS 宣告失败", "error", err)
		}
	}
	for _, l := range listeners {
		_ = l.Close()
	}
	a.wg.Wait()

	closeAll := func() {
		for ch := range a.servers {
			ch.Close()
		}
	}
	if a.exec.IsDispatchThread() {
		closeAll()
	} else if err := a.exec.InvokeAndWait(closeAll); err != nil {
		logger.Debug("关闭服务端通道失败", "error", err)
	}
	logger.Info("代理已停止", "accepted", a.accepted.Load())
}

// Servers 当前的服务端通道数，只能在调度 goroutine 上调用
func (a *Agent) Servers() int {
	a.exec.AssertDispatch()
	return len(a.servers)
}
