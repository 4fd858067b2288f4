package dispatch

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-tcf/config"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
)

// ============================================================================
// Fx 模块
// ============================================================================

// Result Fx 模块输出结果
type Result struct {
	fx.Out

	Executor    *Executor
	ExecutorAPI pkgif.Executor
}

// Module 返回 Fx 模块
//
// 执行器最先注册生命周期钩子，因此最后停止：其他模块在 OnStop 中
// 仍可向调度 goroutine 提交收尾任务。
func Module() fx.Option {
	return fx.Module("dispatch",
		fx.Provide(ProvideExecutor),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideExecutor 提供执行器实例
func ProvideExecutor(cfg *config.Config) Result {
	e := New(Config{
		SlowTaskThreshold: cfg.Dispatch.SlowTaskThreshold.Duration(),
	})
	return Result{Executor: e, ExecutorAPI: e}
}

type lifecycleInput struct {
	fx.In
	LC       fx.Lifecycle
	Executor *Executor
}

func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			input.Executor.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopped := make(chan struct{})
			go func() {
				input.Executor.Stop()
				close(stopped)
			}()
			select {
			case <-stopped:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
