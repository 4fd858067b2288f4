package storage

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-tcf/config"
)

// Params Storage 模块依赖参数
type Params struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// Module 返回 Storage Fx 模块
//
// 提供 *Engine；OnStop 关闭引擎。
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(ProvideEngine),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideEngine 按配置打开引擎
func ProvideEngine(p Params) (*Engine, error) {
	opts := Options{GCInterval: 10 * time.Minute}
	if p.Config != nil {
		opts.Path = p.Config.Storage.DBPath()
	}
	return Open(opts)
}

func registerLifecycle(lc fx.Lifecycle, eng *Engine) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			if err := eng.Close(); err != nil {
				logger.Warn("存储引擎关闭失败", "error", err)
				return err
			}
			logger.Debug("存储引擎已关闭")
			return nil
		},
	})
}
