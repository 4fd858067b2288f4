// Package dispatch 实现单一调度 goroutine
//
// 所有协议状态的变更都串行地在调度 goroutine 上执行：
//
//	exec.InvokeLater(func() {
//	    exec.AssertDispatch()
//	    registry.Update(id, attrs)
//	})
//
// 任务按提交顺序执行并运行至完成，任务内不得阻塞。
// 外部 goroutine 需要结果时使用 InvokeAndWait 或 internal/core/task。
package dispatch

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petermattis/goid"

	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/lib/log"
	"github.com/dep2p/go-tcf/pkg/types"
)

var logger = log.Logger("core/dispatch")

// 执行器状态
const (
	stateCreated int32 = iota
	stateRunning
	stateStopping
	stateStopped
)

// Config 执行器配置
type Config struct {
	// SlowTaskThreshold 任务运行超过该时长时告警，0 关闭
	SlowTaskThreshold time.Duration
}

// Executor 调度执行器
type Executor struct {
	cfg Config

	mu     sync.Mutex
	queue  []func()
	signal chan struct{}

	// gid 调度 goroutine 的 ID，未运行时为 0
	gid   atomic.Int64
	state atomic.Int32
	done  chan struct{}

	executed atomic.Uint64
	panics   atomic.Uint64
}

var (
	_ pkgif.Executor   = (*Executor)(nil)
	_ pkgif.Dispatcher = (*Executor)(nil)
)

// New 创建执行器（尚未启动；启动前提交的任务在启动后执行）
func New(cfg Config) *Executor {
	return &Executor{
		cfg:    cfg,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start 启动调度 goroutine，重复调用无副作用
func (e *Executor) Start() {
	if !e.state.CompareAndSwap(stateCreated, stateRunning) {
		return
	}
	started := make(chan struct{})
	go e.loop(started)
	<-started
	logger.Debug("调度执行器已启动", "gid", e.gid.Load())
}

// Stop 停止执行器
//
// 已入队的任务全部执行完后返回；之后提交的任务被丢弃。
// 在调度 goroutine 上调用时只发出停止请求，不等待。
func (e *Executor) Stop() {
	switch {
	case e.state.CompareAndSwap(stateRunning, stateStopping):
		e.wake()
	case e.state.CompareAndSwap(stateCreated, stateStopped):
		close(e.done)
		return
	}
	if e.IsDispatchThread() {
		return
	}
	<-e.done
}

// Done 执行器退出时关闭
func (e *Executor) Done() <-chan struct{} {
	return e.done
}

// ============================================================================
//                              任务提交
// ============================================================================

// InvokeLater 入队后立即返回
func (e *Executor) InvokeLater(task func()) {
	if !e.enqueue(task) {
		logger.Warn("执行器已停止，丢弃任务")
	}
}

// TryInvokeLater 入队后立即返回，执行器已停止时返回 ErrClosed
func (e *Executor) TryInvokeLater(task func()) error {
	if !e.enqueue(task) {
		return ErrClosed
	}
	return nil
}

// Dispatch 实现 pkgif.Dispatcher，等价于 InvokeLater
func (e *Executor) Dispatch(fn func()) {
	e.InvokeLater(fn)
}

// InvokeAndWait 入队并阻塞到任务执行完毕
func (e *Executor) InvokeAndWait(task func()) error {
	if e.IsDispatchThread() {
		return ErrDispatchThread
	}
	finished := make(chan struct{})
	var panicked any
	ok := e.enqueue(func() {
		defer close(finished)
		defer func() {
			if r := recover(); r != nil {
				panicked = r
				panic(r)
			}
		}()
		task()
	})
	if !ok {
		return ErrClosed
	}
	select {
	case <-finished:
	case <-e.done:
		// 停止时队列会被排空，任务要么已执行要么已被丢弃
		select {
		case <-finished:
		default:
			return ErrClosed
		}
	}
	if panicked != nil {
		return fmt.Errorf("dispatch task panicked: %v", panicked)
	}
	return nil
}

// InvokeLaterDelay 延迟 d 后在调度 goroutine 上执行
func (e *Executor) InvokeLaterDelay(d time.Duration, task func()) pkgif.Timer {
	return time.AfterFunc(d, func() {
		e.InvokeLater(task)
	})
}

// IsDispatchThread 当前 goroutine 是否为调度 goroutine
func (e *Executor) IsDispatchThread() bool {
	id := e.gid.Load()
	return id != 0 && id == goid.Get()
}

// AssertDispatch 不在调度 goroutine 上时 panic
func (e *Executor) AssertDispatch() {
	if !e.IsDispatchThread() {
		panic(fmt.Errorf("%w: must be called on dispatch goroutine", ErrIllegalThreadAccess))
	}
}

// Stats 返回统计快照
func (e *Executor) Stats() types.DispatchStats {
	e.mu.Lock()
	queued := len(e.queue)
	e.mu.Unlock()
	return types.DispatchStats{
		Queued:   queued,
		Executed: e.executed.Load(),
		Panics:   e.panics.Load(),
	}
}

// ============================================================================
//                              内部实现
// ============================================================================

func (e *Executor) enqueue(task func()) bool {
	if task == nil {
		return true
	}
	e.mu.Lock()
	st := e.state.Load()
	if st == stateStopped || (st == stateStopping && !e.IsDispatchThread()) {
		e.mu.Unlock()
		return false
	}
	e.queue = append(e.queue, task)
	e.mu.Unlock()
	e.wake()
	return true
}

func (e *Executor) wake() {
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// next 取出队首任务；队列为空时返回 nil
func (e *Executor) next() func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return nil
	}
	task := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	return task
}

func (e *Executor) loop(started chan<- struct{}) {
	e.gid.Store(goid.Get())
	close(started)

	defer func() {
		e.mu.Lock()
		e.state.Store(stateStopped)
		e.queue = nil
		e.mu.Unlock()
		e.gid.Store(0)
		close(e.done)
		logger.Debug("调度执行器已停止")
	}()

	for {
		for task := e.next(); task != nil; task = e.next() {
			e.run(task)
		}
		if e.state.Load() == stateStopping {
			// 停止前再排空一次，覆盖停止请求与最后一次入队之间的竞争
			if task := e.next(); task != nil {
				e.run(task)
				continue
			}
			return
		}
		<-e.signal
	}
}

func (e *Executor) run(task func()) {
	start := time.Now()
	defer func() {
		e.executed.Add(1)
		if r := recover(); r != nil {
			e.panics.Add(1)
			logger.Error("调度任务 panic", "panic", r, "stack", string(debug.Stack()))
		}
		if th := e.cfg.SlowTaskThreshold; th > 0 {
			if d := time.Since(start); d > th {
				logger.Warn("调度任务运行过久", "duration", d, "threshold", th)
			}
		}
	}()
	task()
}
