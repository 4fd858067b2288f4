package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-tcf/internal/core/dispatch"
)

func newExec(t *testing.T) *dispatch.Executor {
	t.Helper()
	e := dispatch.New(dispatch.Config{})
	e.Start()
	t.Cleanup(e.Stop)
	return e
}

func TestTask_Get(t *testing.T) {
	exec := newExec(t)

	tk := New(exec, func(done func(int, error)) {
		assert.True(t, exec.IsDispatchThread())
		// 在后续的调度任务中完成
		exec.InvokeLater(func() { done(42, nil) })
	})
	v, err := tk.Get()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, tk.IsDone())

	// 再次 Get 返回同一结果，不会重复提交
	v, err = tk.Get()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestTask_Error(t *testing.T) {
	exec := newExec(t)
	boom := errors.New("boom")

	_, err := Run(exec, func() (string, error) { return "", boom }).Get()
	assert.ErrorIs(t, err, boom)
}

func TestTask_DoneIsIdempotent(t *testing.T) {
	exec := newExec(t)

	v, err := New(exec, func(done func(string, error)) {
		done("first", nil)
		done("second", errors.New("ignored"))
	}).Get()
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestTask_Timeout(t *testing.T) {
	exec := newExec(t)

	never := New(exec, func(done func(int, error)) {})
	start := time.Now()
	_, err := never.GetTimeout(50 * time.Millisecond)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, time.Second)

	t.Run("调度 goroutine 未被阻塞", func(t *testing.T) {
		ran := false
		require.NoError(t, exec.InvokeAndWait(func() { ran = true }))
		assert.True(t, ran)
	})
}

func TestTask_TimeoutDoesNotCancelWork(t *testing.T) {
	exec := newExec(t)

	release := make(chan struct{})
	executed := make(chan struct{})
	tk := New(exec, func(done func(int, error)) {
		go func() {
			<-release
			exec.InvokeLater(func() {
				done(7, nil)
				close(executed)
			})
		}()
	})

	_, err := tk.GetTimeout(20 * time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	close(release)
	<-executed
	// 迟到的完成被吸收，后续 Get 可取到结果
	v, err := tk.Get()
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestTask_GetOnDispatchFailsFast(t *testing.T) {
	exec := newExec(t)

	var err error
	require.NoError(t, exec.InvokeAndWait(func() {
		_, err = Run(exec, func() (int, error) { return 1, nil }).Get()
	}))
	assert.ErrorIs(t, err, dispatch.ErrDispatchThread)
}

func TestTask_Panic(t *testing.T) {
	exec := newExec(t)

	_, err := New(exec, func(done func(int, error)) {
		panic("bad work")
	}).GetTimeout(time.Second)
	assert.ErrorIs(t, err, ErrPanic)
	assert.ErrorContains(t, err, "bad work")
}

func TestTask_ContextCanceled(t *testing.T) {
	exec := newExec(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(exec, func(done func(int, error)) {}).GetContext(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestTask_StoppedExecutor(t *testing.T) {
	exec := dispatch.New(dispatch.Config{})
	exec.Start()
	exec.Stop()

	tk := New(exec, func(done func(int, error)) {
		t.Error("停止后不应执行")
		done(1, nil)
	})
	start := time.Now()
	_, err := tk.GetTimeout(time.Second)
	assert.ErrorIs(t, err, dispatch.ErrClosed)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, tk.IsDone())

	// 没有截止时间的 Get 同样立即返回
	_, err = Run(exec, func() (int, error) { return 2, nil }).Get()
	assert.ErrorIs(t, err, dispatch.ErrClosed)
}
