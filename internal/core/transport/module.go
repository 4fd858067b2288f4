package transport

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-tcf/config"
	"github.com/dep2p/go-tcf/internal/core/transport/pipe"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
)

// Params 传输模块依赖
type Params struct {
	fx.In

	Config *config.Config
	Hub    *pipe.Hub `optional:"true"`

	// Extra 额外注册的传输，按顺序覆盖同名的默认传输
	Extra []pkgif.Transport `name:"extra_transports" optional:"true"`
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("transport",
		fx.Provide(ProvideRegistry),
	)
}

// ProvideRegistry 创建默认注册表并加入额外传输
func ProvideRegistry(p Params) (*Registry, error) {
	r, err := NewDefaultRegistry(p.Config.Transport, p.Hub)
	if err != nil {
		return nil, err
	}
	for _, t := range p.Extra {
		r.Register(t)
	}
	logger.Debug("传输注册表已创建", "transports", r.Names())
	return r, nil
}
