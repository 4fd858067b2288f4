// Package task 把调度 goroutine 上的异步回调转换为外部 goroutine 的同步结果
//
// 使用示例：
//
//	t := task.New(exec, func(done func(pkgif.Channel, error)) {
//	    mgr.OpenChannel(peer, 0, func(ch pkgif.Channel, err error) { done(ch, err) })
//	})
//	ch, err := t.GetTimeout(10 * time.Second)
//
// 在调度 goroutine 上调用 Get 会立即返回 dispatch.ErrDispatchThread，
// 不做边等待边泵送队列的重入处理。
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dep2p/go-tcf/internal/core/dispatch"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/lib/log"
)

var logger = log.Logger("core/task")

var (
	// ErrTimeout 等待超时，已入队的任务不会被取消
	ErrTimeout = errors.New("task timed out")

	// ErrPanic 任务执行时 panic
	ErrPanic = errors.New("task panicked")
)

// Task 可在外部 goroutine 等待的调度任务
type Task[T any] struct {
	exec pkgif.Executor
	work func(done func(T, error))

	submitOnce sync.Once
	doneOnce   sync.Once
	finished   chan struct{}

	result T
	err    error
}

// New 创建任务；work 在调度 goroutine 上执行，最终调用 done
func New[T any](exec pkgif.Executor, work func(done func(T, error))) *Task[T] {
	return &Task[T]{
		exec:     exec,
		work:     work,
		finished: make(chan struct{}),
	}
}

// Run 以同步函数创建任务并提交
func Run[T any](exec pkgif.Executor, fn func() (T, error)) *Task[T] {
	t := New(exec, func(done func(T, error)) {
		done(fn())
	})
	t.Submit()
	return t
}

// Submit 提交任务（只提交一次），不等待
//
// 执行器已停止时任务立即以 dispatch.ErrClosed 完成。
func (t *Task[T]) Submit() {
	t.submitOnce.Do(func() {
		if err := t.exec.TryInvokeLater(t.execute); err != nil {
			var zero T
			t.done(zero, err)
		}
	})
}

func (t *Task[T]) execute() {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			t.done(zero, fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()
	t.work(t.done)
}

// done 只有第一次调用生效
func (t *Task[T]) done(result T, err error) {
	first := false
	t.doneOnce.Do(func() {
		first = true
		t.result = result
		t.err = err
		close(t.finished)
	})
	if !first {
		logger.Debug("任务重复完成，忽略")
	}
}

// IsDone 任务是否已完成
func (t *Task[T]) IsDone() bool {
	select {
	case <-t.finished:
		return true
	default:
		return false
	}
}

// Get 阻塞到任务完成
func (t *Task[T]) Get() (T, error) {
	return t.GetContext(context.Background())
}

// GetTimeout 最多等待 timeout
func (t *Task[T]) GetTimeout(timeout time.Duration) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return t.GetContext(ctx)
}

// GetContext 阻塞到任务完成或 ctx 结束
func (t *Task[T]) GetContext(ctx context.Context) (T, error) {
	var zero T
	if t.exec.IsDispatchThread() {
		return zero, dispatch.ErrDispatchThread
	}
	t.Submit()

	select {
	case <-t.finished:
		return t.result, t.err
	case <-ctx.Done():
		// 任务恰好同时完成时优先返回结果
		select {
		case <-t.finished:
			return t.result, t.err
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}
		return zero, ctx.Err()
	}
}
