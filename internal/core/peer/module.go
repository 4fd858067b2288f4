package peer

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-tcf/internal/core/peerstore"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
)

// Params 注册表依赖
type Params struct {
	fx.In

	Executor pkgif.Executor
	EventBus pkgif.EventBus
	Store    *peerstore.Store `optional:"true"`
}

// Result 注册表输出
type Result struct {
	fx.Out

	Registry    *Registry
	RegistryAPI pkgif.PeerRegistry
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("peer",
		fx.Provide(ProvideRegistry),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideRegistry 创建注册表
func ProvideRegistry(p Params) (Result, error) {
	r, err := NewRegistry(p.Executor, p.EventBus, p.Store)
	if err != nil {
		return Result{}, err
	}
	return Result{Registry: r, RegistryAPI: r}, nil
}

type lifecycleInput struct {
	fx.In

	LC       fx.Lifecycle
	Executor pkgif.Executor
	Registry *Registry
	Store    *peerstore.Store `optional:"true"`
}

func registerLifecycle(in lifecycleInput) {
	if in.Store == nil {
		return
	}
	in.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			list, err := in.Store.Load()
			if err != nil {
				return err
			}
			return in.Executor.InvokeAndWait(func() {
				in.Registry.Restore(list)
			})
		},
	})
}
