// Package eventbus 实现进程内事件总线
//
// 发现与通道事件都由调度 goroutine 发出，订阅者有两种接收方式：
//
//	// 通道订阅：自行在 goroutine 中读取，缓冲区满时丢弃
//	sub, _ := bus.Subscribe(new(types.EvtPeerAdded))
//	defer sub.Close()
//	for evt := range sub.Out() {
//	    e := evt.(types.EvtPeerAdded)
//	}
//
//	// 回调订阅：经指定的事件循环投递，顺序与发射顺序一致
//	sub, _ := bus.Listen(new(types.EvtPeerAdded), exec, func(evt any) {
//	    // 在调度 goroutine 上执行
//	})
//
// 回调订阅不会丢弃事件；Dispatcher 为空时在发射者 goroutine 上同步回调。
//
// # 依赖关系
//
//   - 依赖：pkg/interfaces
//   - 被依赖：peer, channelmgr, locator, 根包 tcf
package eventbus
