package locator

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-tcf/config"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/types"
)

// Params 扫描器依赖
type Params struct {
	fx.In

	Config   *config.Config
	Executor pkgif.Executor
	EventBus pkgif.EventBus
	Peers    pkgif.PeerRegistry
	Channels pkgif.ChannelManager `optional:"true"`
	AgentID  string               `name:"agent_id"`

	// Probers 调用方追加的探测方式
	Probers []pkgif.Prober `group:"probers"`
}

// Result 扫描器输出
type Result struct {
	fx.Out

	Scanner    *Scanner
	LocatorAPI pkgif.Locator
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("locator",
		fx.Provide(ProvideScanner),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideScanner 按配置创建扫描器并装配探测方式
func ProvideScanner(p Params) (Result, error) {
	opts := []Option{WithEventBus(p.EventBus)}
	if p.Config.Locator.DNSLookup {
		r, err := NewDNSResolver(p.Config.Locator.DNSServer)
		if err != nil {
			logger.Warn("反向解析不可用", "error", err)
		} else {
			opts = append(opts, WithResolver(r))
		}
	}
	s, err := New(p.Executor, p.Peers, ConfigFromUnified(p.Config), opts...)
	if err != nil {
		return Result{}, err
	}

	d := p.Config.Discovery
	if len(d.StaticPeers) > 0 {
		static := make([]types.Attributes, 0, len(d.StaticPeers))
		for _, sp := range d.StaticPeers {
			static = append(static, types.Attributes(sp.Attrs))
		}
		s.AddProber(NewStaticProber(static))
	}
	if d.EnableMDNS {
		s.AddProber(NewMDNSProber(MDNSConfig{Service: d.MDNSService, Domain: d.MDNSDomain, LocalID: p.AgentID}))
	}
	if d.EnableChannelProbe && p.Channels != nil {
		s.AddProber(NewChannelProber(p.Executor, p.Peers, p.Channels))
	}
	for _, pr := range p.Probers {
		s.AddProber(pr)
	}
	return Result{Scanner: s, LocatorAPI: s}, nil
}

func registerLifecycle(lc fx.Lifecycle, s *Scanner, cfg *config.Config) {
	if !cfg.Discovery.Enable {
		logger.Info("发现扫描已禁用")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			s.Stop()
			return nil
		},
	})
}
