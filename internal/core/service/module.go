package service

import (
	"slices"

	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
)

// Params 服务模块依赖
type Params struct {
	fx.In

	// Builtin 核心自带的提供者（Locator），排在最前
	Builtin []pkgif.ServiceProvider `group:"builtin_providers"`

	// Providers 按注册顺序
	Providers []pkgif.ServiceProvider `name:"service_providers" optional:"true"`
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("service",
		fx.Provide(func(p Params) (*Registry, error) {
			return NewRegistry(slices.Concat(p.Builtin, p.Providers)...)
		}),
	)
}
