package interfaces

import (
	"time"

	"github.com/dep2p/go-tcf/pkg/types"
)

// Executor 调度执行器
//
// 单一调度 goroutine 按 FIFO 顺序逐个执行任务，任务运行至完成。
// 所有协议状态（通道表、节点注册表、扫描器、待决查询）只能在其上修改。
type Executor interface {
	// InvokeLater 入队后立即返回，可在任意 goroutine 调用
	InvokeLater(task func())

	// TryInvokeLater 同 InvokeLater，执行器已停止时返回 ErrClosed
	TryInvokeLater(task func()) error

	// InvokeAndWait 入队并阻塞到任务执行完毕
	//
	// 在调度 goroutine 上调用会立即失败（ErrDispatchThread）。
	InvokeAndWait(task func()) error

	// InvokeLaterDelay 延迟 d 后在调度 goroutine 上执行
	InvokeLaterDelay(d time.Duration, task func()) Timer

	// IsDispatchThread 当前 goroutine 是否为调度 goroutine
	IsDispatchThread() bool

	// AssertDispatch 不在调度 goroutine 上时 panic
	AssertDispatch()

	// Stats 返回统计快照
	Stats() types.DispatchStats
}

// Timer 可取消的延迟任务
type Timer interface {
	Stop() bool
}

// Dispatcher 外部事件循环（如 UI 线程）
//
// 事件总线的回调订阅可以经由它投递通知。
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc 函数适配器
type DispatcherFunc func(fn func())

// Dispatch 实现 Dispatcher
func (f DispatcherFunc) Dispatch(fn func()) {
	f(fn)
}
