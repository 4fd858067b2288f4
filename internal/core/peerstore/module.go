package peerstore

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-tcf/internal/core/storage"
)

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("peerstore",
		fx.Provide(ProvideStore),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideStore 在存储引擎上创建节点存储
func ProvideStore(eng *storage.Engine) *Store {
	return New(eng)
}

func registerLifecycle(lc fx.Lifecycle, s *Store) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return s.Close()
		},
	})
}
