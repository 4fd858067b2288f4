package tcf

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-tcf/config"
	"github.com/dep2p/go-tcf/internal/core/agent"
	"github.com/dep2p/go-tcf/internal/core/metrics"
	"github.com/dep2p/go-tcf/internal/core/query"
	"github.com/dep2p/go-tcf/internal/core/service"
	"github.com/dep2p/go-tcf/internal/core/task"
	"github.com/dep2p/go-tcf/internal/core/valueadd"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/lib/log"
	"github.com/dep2p/go-tcf/pkg/types"
)

var logger = log.Logger("tcf")

// ════════════════════════════════════════════════════════════════════════════
//                              Core 状态
// ════════════════════════════════════════════════════════════════════════════

// State Core 生命周期状态
type State int

const (
	// StateIdle 已创建，未启动
	StateIdle State = iota

	// StateRunning 运行中
	StateRunning

	// StateClosed 已关闭（终态）
	StateClosed
)

// String 返回状态的字符串表示
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	// startTimeout Fx App 启动超时
	startTimeout = 30 * time.Second

	// closeTimeout Close 时停止 Fx App 的超时
	closeTimeout = 30 * time.Second
)

// Core TCF 运行时
//
// Core 是门面，聚合了全部内部组件。组件在 New 时装配，
// 在 Start 时启动（调度 goroutine、节点恢复、扫描、代理监听），
// Stop/Close 之后不能再次启动。
type Core struct {
	config *config.Config
	app    *fx.App

	// ────────────────────────────────────────────────────────────────────────
	// 组件（由 Fx 注入）
	// ────────────────────────────────────────────────────────────────────────

	exec      pkgif.Executor
	bus       pkgif.EventBus
	peers     pkgif.PeerRegistry
	locator   pkgif.Locator
	channels  pkgif.ChannelManager
	providers *service.Registry
	valueAdds *valueadd.Registry
	queries   *query.Tracker
	agent     *agent.Agent
	agentID   string
	bandwidth *metrics.BandwidthCounter
	metrics   *prometheus.Registry

	mu    sync.Mutex
	state State
}

// ════════════════════════════════════════════════════════════════════════════
//                              构造函数
// ════════════════════════════════════════════════════════════════════════════

// New 创建 Core，不启动
func New(_ context.Context, opts ...Option) (*Core, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	cfg, err := o.toConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Log.Level != "" || cfg.Log.Format != "" {
		log.Configure(cfg.Log.Level, cfg.Log.Format)
	}

	core := &Core{config: cfg}
	core.app = buildFxApp(cfg, o, core)
	if err := core.app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	return core, nil
}

// Start 创建并启动 Core，等价于 New + Core.Start
func Start(ctx context.Context, opts ...Option) (*Core, error) {
	core, err := New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if err := core.Start(ctx); err != nil {
		return nil, fmt.Errorf("start core: %w", err)
	}
	return core, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期
// ════════════════════════════════════════════════════════════════════════════

// Start 启动全部组件
func (c *Core) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		return ErrClosed
	case StateRunning:
		return ErrAlreadyStarted
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := c.app.Start(startCtx); err != nil {
		// fx 已回滚启动成功的钩子
		c.state = StateClosed
		logger.Error("启动失败", "error", err)
		return fmt.Errorf("start failed: %w", err)
	}

	c.state = StateRunning
	logger.Info("已启动", "agentID", log.TruncateID(c.agentID, 8), "listen", len(c.config.Agent.Listen))
	return nil
}

// Stop 停止全部组件
//
// 停止顺序与启动相反：代理、扫描、通道（全部强制关闭）、注册表持久化，
// 最后是调度 goroutine。
func (c *Core) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		return ErrClosed
	case StateIdle:
		return ErrNotStarted
	}

	c.state = StateClosed
	if err := c.app.Stop(ctx); err != nil {
		logger.Error("停止失败", "error", err)
		return fmt.Errorf("stop fx app: %w", err)
	}
	logger.Info("已停止")
	return nil
}

// Close 关闭 Core 并释放资源，可重复调用
func (c *Core) Close() error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state != StateRunning {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := c.Stop(ctx); err != nil && err != ErrClosed {
		return err
	}
	return nil
}

// State 当前状态
func (c *Core) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ════════════════════════════════════════════════════════════════════════════
//                              组件访问
// ════════════════════════════════════════════════════════════════════════════

// Config 生效的配置
func (c *Core) Config() *config.Config { return c.config }

// Executor 调度执行器
func (c *Core) Executor() pkgif.Executor { return c.exec }

// EventBus 事件总线
func (c *Core) EventBus() pkgif.EventBus { return c.bus }

// Peers 节点注册表，只能在调度 goroutine 上访问
func (c *Core) Peers() pkgif.PeerRegistry { return c.peers }

// Locator 发现扫描器
func (c *Core) Locator() pkgif.Locator { return c.locator }

// Channels 通道管理器
func (c *Core) Channels() pkgif.ChannelManager { return c.channels }

// Providers 服务提供者注册表
func (c *Core) Providers() *service.Registry { return c.providers }

// ValueAdds value-add 注册表
func (c *Core) ValueAdds() *valueadd.Registry { return c.valueAdds }

// Queries 远程上下文查询状态
func (c *Core) Queries() *query.Tracker { return c.queries }

// AgentID 本进程的代理 ID
func (c *Core) AgentID() string { return c.agentID }

// LocalPeers 代理监听点对应的本地节点，未监听时为空
func (c *Core) LocalPeers() []types.Attributes {
	if c.agent == nil {
		return nil
	}
	return c.agent.LocalPeers()
}

// Bandwidth 带宽计数器，指标关闭时为 nil
func (c *Core) Bandwidth() *metrics.BandwidthCounter { return c.bandwidth }

// Metrics Prometheus 注册表
func (c *Core) Metrics() *prometheus.Registry { return c.metrics }

// ════════════════════════════════════════════════════════════════════════════
//                              阻塞便捷方法
// ════════════════════════════════════════════════════════════════════════════

// OpenChannel 按属性打开通道并等待 OPEN
//
// 只能在调度 goroutine 之外调用。ctx 结束后才打开的通道会被关闭，
// 调用方负责对返回的通道调用 Channels().CloseChannel。
func (c *Core) OpenChannel(ctx context.Context, attrs types.Attributes, flags types.OpenFlags) (pkgif.Channel, error) {
	if c.State() != StateRunning {
		return nil, ErrNotStarted
	}
	ctx, cancel := c.waitContext(ctx)
	defer cancel()
	t := task.New[pkgif.Channel](c.exec, func(done func(pkgif.Channel, error)) {
		c.channels.OpenChannelByAttrs(attrs, flags, func(ch pkgif.Channel, err error) {
			if err == nil && ctx.Err() != nil {
				c.channels.CloseChannel(ch)
				done(nil, ctx.Err())
				return
			}
			done(ch, err)
		})
	})
	return t.GetContext(ctx)
}

// ScanNow 请求立即扫描一次
func (c *Core) ScanNow() {
	if c.locator != nil {
		c.locator.ScanNow()
	}
}

// PeerList 返回注册表中根节点的属性快照，按 ID 排序
func (c *Core) PeerList(ctx context.Context) ([]types.Attributes, error) {
	if c.State() != StateRunning {
		return nil, ErrNotStarted
	}
	ctx, cancel := c.waitContext(ctx)
	defer cancel()
	return task.Run(c.exec, func() ([]types.Attributes, error) {
		roots := c.peers.Roots()
		out := make([]types.Attributes, 0, len(roots))
		for _, p := range roots {
			out = append(out, p.Attributes())
		}
		return out, nil
	}).GetContext(ctx)
}

// waitContext ctx 没有截止时间时套用 Task.DefaultTimeout
func (c *Core) waitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	if d := c.config.Task.DefaultTimeout.Duration(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return ctx, func() {}
}
