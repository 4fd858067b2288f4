package query

import (
	"context"

	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/types"
)

// Module 返回 Fx 模块
//
// 共享通道关闭后远端上下文可能已变化，全部节点回到 PENDING。
func Module() fx.Option {
	return fx.Module("query",
		fx.Provide(NewTracker),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, t *Tracker, bus pkgif.EventBus) {
	var sub pkgif.Subscription
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var err error
			sub, err = bus.Listen(new(types.EvtChannelClosed), nil, func(e interface{}) {
				if evt, ok := e.(types.EvtChannelClosed); ok && evt.Shared {
					t.InvalidateAll()
				}
			})
			return err
		},
		OnStop: func(context.Context) error {
			if sub != nil {
				return sub.Close()
			}
			return nil
		},
	})
}
