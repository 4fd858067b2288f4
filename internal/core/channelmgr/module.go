package channelmgr

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-tcf/config"
	"github.com/dep2p/go-tcf/internal/core/channel"
	"github.com/dep2p/go-tcf/internal/core/service"
	"github.com/dep2p/go-tcf/internal/core/transport"
	"github.com/dep2p/go-tcf/internal/core/valueadd"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
)

// Params 通道管理器依赖
type Params struct {
	fx.In

	Config     *config.Config
	Executor   pkgif.Executor
	EventBus   pkgif.EventBus
	Peers      pkgif.PeerRegistry
	Transports *transport.Registry
	Providers  *service.Registry
	ValueAdds  *valueadd.Registry
	Meter      channel.Meter `optional:"true"`
}

// Result 通道管理器输出
type Result struct {
	fx.Out

	Manager    *Manager
	ManagerAPI pkgif.ChannelManager
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("channelmgr",
		fx.Provide(ProvideManager),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideManager 创建通道管理器
func ProvideManager(p Params) (Result, error) {
	opts := []Option{
		WithPeers(p.Peers),
		WithProviders(p.Providers.Providers),
		WithValueAdds(p.ValueAdds),
		WithEventBus(p.EventBus),
	}
	if p.Meter != nil {
		opts = append(opts, WithMeter(p.Meter))
	}
	m, err := New(p.Executor, p.Transports, ConfigFromUnified(p.Config), opts...)
	if err != nil {
		return Result{}, err
	}
	return Result{Manager: m, ManagerAPI: m}, nil
}

func registerLifecycle(lc fx.Lifecycle, m *Manager, exec pkgif.Executor) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			if exec.IsDispatchThread() {
				m.CloseAll()
				return nil
			}
			return exec.InvokeAndWait(m.CloseAll)
		},
	})
}
