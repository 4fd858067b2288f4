// Package valueadd 管理 value-add 中间进程
//
// 通道打开前，通道管理器按注册顺序询问作用于目标的 value-add：
// 未存活则启动，然后经由它们逐跳重定向到目标。
package valueadd

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-tcf/config"
	"github.com/dep2p/go-tcf/internal/core/transport"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
)

// Params value-add 模块依赖
type Params struct {
	fx.In

	Config     *config.Config
	Transports *transport.Registry

	// Extra 代码注册的 value-add，排在配置项之后
	Extra []pkgif.ValueAdd `name:"value_adds" optional:"true"`
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("valueadd",
		fx.Provide(ProvideRegistry),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideRegistry 按配置创建注册表
func ProvideRegistry(p Params) (*Registry, error) {
	r := NewRegistry()
	for _, c := range p.Config.ValueAdd.External {
		if err := r.Register(NewExternal(c, p.Transports)); err != nil {
			return nil, err
		}
	}
	for _, va := range p.Extra {
		if err := r.Register(va); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func registerLifecycle(lc fx.Lifecycle, r *Registry) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			r.ShutdownAll()
			return nil
		},
	})
}
