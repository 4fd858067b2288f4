package tcf

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-tcf/config"
	"github.com/dep2p/go-tcf/internal/core/agent"
	"github.com/dep2p/go-tcf/internal/core/channelmgr"
	"github.com/dep2p/go-tcf/internal/core/dispatch"
	"github.com/dep2p/go-tcf/internal/core/eventbus"
	"github.com/dep2p/go-tcf/internal/core/locator"
	"github.com/dep2p/go-tcf/internal/core/locatorsvc"
	"github.com/dep2p/go-tcf/internal/core/metrics"
	"github.com/dep2p/go-tcf/internal/core/peer"
	"github.com/dep2p/go-tcf/internal/core/peerstore"
	"github.com/dep2p/go-tcf/internal/core/query"
	"github.com/dep2p/go-tcf/internal/core/service"
	"github.com/dep2p/go-tcf/internal/core/storage"
	"github.com/dep2p/go-tcf/internal/core/transport"
	"github.com/dep2p/go-tcf/internal/core/valueadd"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. dispatch → eventbus → storage → peerstore → peer
//  2. transport → service / locatorsvc → valueadd → channelmgr
//  3. locator → agent → query → metrics
//
// dispatch 最先注册生命周期钩子，因此最后停止。
func buildFxApp(cfg *config.Config, o *options, core *Core) *fx.App {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置注入与基础组件
	// ════════════════════════════════════════════════════════════════════════
	modules := []fx.Option{
		fx.Supply(cfg),

		dispatch.Module(),
		eventbus.Module(),
		storage.Module(),
		peerstore.Module(),
		peer.Module(),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 通道层
	// ════════════════════════════════════════════════════════════════════════
	if o.pipeHub != nil {
		modules = append(modules, fx.Supply(o.pipeHub))
	}
	modules = append(modules,
		fx.Supply(
			fx.Annotated{Name: "extra_transports", Target: o.transports},
			fx.Annotated{Name: "service_providers", Target: o.providers},
			fx.Annotated{Name: "value_adds", Target: o.valueAdds},
		),
		transport.Module(),
		locatorsvc.Module(),
		service.Module(),
		valueadd.Module(),
		channelmgr.Module(),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 3. 发现、代理服务、查询状态、指标
	// ════════════════════════════════════════════════════════════════════════
	for _, p := range o.probers {
		modules = append(modules, fx.Provide(fx.Annotated{
			Group:  "probers",
			Target: func() pkgif.Prober { return p },
		}))
	}
	modules = append(modules,
		locator.Module(),
		agent.Module(),
		query.Module(),
		metrics.Module(),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 4. 用户扩展（Fx Options）
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, o.userFxOptions...)

	// ════════════════════════════════════════════════════════════════════════
	// 5. Core 组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		fx.Invoke(injectCoreComponents(core)),

		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	return fx.New(modules...)
}

// coreInjectParams Core 组件注入参数
type coreInjectParams struct {
	fx.In

	Executor  pkgif.Executor
	EventBus  pkgif.EventBus
	Peers     pkgif.PeerRegistry
	Locator   pkgif.Locator
	Channels  pkgif.ChannelManager
	Providers *service.Registry
	ValueAdds *valueadd.Registry
	Queries   *query.Tracker
	Agent     *agent.Agent
	AgentID   string `name:"agent_id"`

	Counter *metrics.BandwidthCounter
	Metrics *prometheus.Registry
}

// injectCoreComponents 创建 Core 组件注入函数
func injectCoreComponents(core *Core) interface{} {
	return func(p coreInjectParams) {
		core.exec = p.Executor
		core.bus = p.EventBus
		core.peers = p.Peers
		core.locator = p.Locator
		core.channels = p.Channels
		core.providers = p.Providers
		core.valueAdds = p.ValueAdds
		core.queries = p.Queries
		core.agent = p.Agent
		core.agentID = p.AgentID
		core.bandwidth = p.Counter
		core.metrics = p.Metrics
	}
}
