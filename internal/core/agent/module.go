package agent

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-tcf/config"
	"github.com/dep2p/go-tcf/internal/core/channel"
	"github.com/dep2p/go-tcf/internal/core/locator"
	"github.com/dep2p/go-tcf/internal/core/service"
	"github.com/dep2p/go-tcf/internal/core/transport"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
)

// Params 代理依赖
type Params struct {
	fx.In

	Config     *config.Config
	Executor   pkgif.Executor
	Peers      pkgif.PeerRegistry
	Transports *transport.Registry
	Providers  *service.Registry
	Meter      channel.Meter `optional:"true"`
	AgentID    string        `name:"agent_id"`
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("agent",
		fx.Provide(
			fx.Annotate(ProvideID, fx.ResultTags(`name:"agent_id"`)),
			ProvideAgent,
		),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideID 提供代理 ID
func ProvideID(cfg *config.Config) string {
	return ResolveID(cfg.Agent)
}

// ProvideAgent 创建代理
func ProvideAgent(p Params) *Agent {
	opts := Options{
		Peers:          p.Peers,
		Providers:      p.Providers.Providers,
		Meter:          p.Meter,
		MaxMessageSize: p.Config.Channel.MaxMessageSize,
	}
	if p.Config.Discovery.EnableMDNS {
		opts.MDNS = locator.MDNSConfig{
			Service: p.Config.Discovery.MDNSService,
			Domain:  p.Config.Discovery.MDNSDomain,
			LocalID: p.AgentID,
		}
	}
	return New(p.Executor, p.Transports, p.Config.Agent, p.AgentID, opts)
}

func registerLifecycle(lc fx.Lifecycle, a *Agent, cfg *config.Config) {
	if len(cfg.Agent.Listen) == 0 {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return a.Start()
		},
		OnStop: func(context.Context) error {
			a.Stop()
			return nil
		},
	})
}
