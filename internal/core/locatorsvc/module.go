package locatorsvc

import (
	"context"

	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
)

// Params Locator 服务依赖
type Params struct {
	fx.In

	Executor pkgif.Executor
	Peers    pkgif.PeerRegistry
	AgentID  string `name:"agent_id"`
}

// Result Locator 服务输出
type Result struct {
	fx.Out

	Service  *Service
	Provider pkgif.ServiceProvider `group:"builtin_providers"`
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("locatorsvc",
		fx.Provide(ProvideService),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideService 创建 Locator 服务
func ProvideService(p Params) Result {
	s := New(p.Executor, p.Peers, p.AgentID)
	return Result{Service: s, Provider: s}
}

func registerLifecycle(lc fx.Lifecycle, s *Service, bus pkgif.EventBus) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return s.Start(bus)
		},
		OnStop: func(context.Context) error {
			s.Stop()
			return nil
		},
	})
}
