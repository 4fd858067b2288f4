package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newStarted(t *testing.T) *Executor {
	t.Helper()
	e := New(Config{})
	e.Start()
	t.Cleanup(e.Stop)
	return e
}

func TestExecutor_FIFO(t *testing.T) {
	e := newStarted(t)

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 100; i++ {
		i := i
		e.InvokeLater(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	require.NoError(t, e.InvokeAndWait(func() {}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestExecutor_IsDispatchThread(t *testing.T) {
	e := newStarted(t)

	assert.False(t, e.IsDispatchThread())

	var inside bool
	require.NoError(t, e.InvokeAndWait(func() {
		inside = e.IsDispatchThread()
	}))
	assert.True(t, inside)

	t.Run("其他 goroutine 不是调度 goroutine", func(t *testing.T) {
		var onOther atomic.Bool
		done := make(chan struct{})
		go func() {
			onOther.Store(e.IsDispatchThread())
			close(done)
		}()
		<-done
		assert.False(t, onOther.Load())
	})
}

func TestExecutor_InvokeAndWaitOnDispatchFailsFast(t *testing.T) {
	e := newStarted(t)

	var err error
	require.NoError(t, e.InvokeAndWait(func() {
		err = e.InvokeAndWait(func() {})
	}))
	assert.ErrorIs(t, err, ErrDispatchThread)
}

func TestExecutor_AssertDispatch(t *testing.T) {
	e := newStarted(t)

	assert.PanicsWithError(t, "illegal thread access: must be called on dispatch goroutine", func() {
		e.AssertDispatch()
	})

	var panicked any
	require.NoError(t, e.InvokeAndWait(func() {
		defer func() { panicked = recover() }()
		e.AssertDispatch()
	}))
	assert.Nil(t, panicked)
}

func TestExecutor_PanicDoesNotKillLoop(t *testing.T) {
	e := newStarted(t)

	e.InvokeLater(func() { panic("boom") })
	err := e.InvokeAndWait(func() { panic("again") })
	assert.ErrorContains(t, err, "again")

	ran := false
	require.NoError(t, e.InvokeAndWait(func() { ran = true }))
	assert.True(t, ran)
	assert.Equal(t, uint64(2), e.Stats().Panics)
}

func TestExecutor_TasksBeforeStart(t *testing.T) {
	e := New(Config{})
	var ran atomic.Bool
	e.InvokeLater(func() { ran.Store(true) })
	assert.Equal(t, 1, e.Stats().Queued)

	e.Start()
	defer e.Stop()
	require.NoError(t, e.InvokeAndWait(func() {}))
	assert.True(t, ran.Load())
}

func TestExecutor_StopDrainsQueue(t *testing.T) {
	e := New(Config{})
	e.Start()

	var count atomic.Int32
	block := make(chan struct{})
	e.InvokeLater(func() { <-block })
	for i := 0; i < 10; i++ {
		e.InvokeLater(func() { count.Add(1) })
	}

	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()
	close(block)
	<-stopped

	assert.Equal(t, int32(10), count.Load())

	t.Run("停止后提交失败", func(t *testing.T) {
		assert.ErrorIs(t, e.InvokeAndWait(func() {}), ErrClosed)
		e.InvokeLater(func() { t.Error("不应执行") })
	})
}

func TestExecutor_StopFromDispatch(t *testing.T) {
	e := New(Config{})
	e.Start()

	var after atomic.Bool
	e.InvokeLater(func() {
		e.Stop()
		// 调度 goroutine 自己在停止期间提交的任务仍会执行
		e.InvokeLater(func() { after.Store(true) })
	})

	select {
	case <-e.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("执行器未停止")
	}
	assert.True(t, after.Load())
}

func TestExecutor_InvokeLaterDelay(t *testing.T) {
	e := newStarted(t)

	fired := make(chan bool, 1)
	start := time.Now()
	e.InvokeLaterDelay(30*time.Millisecond, func() {
		fired <- e.IsDispatchThread()
	})

	select {
	case onDispatch := <-fired:
		assert.True(t, onDispatch)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	case <-time.After(5 * time.Second):
		t.Fatal("延迟任务未执行")
	}

	t.Run("取消", func(t *testing.T) {
		timer := e.InvokeLaterDelay(time.Hour, func() { t.Error("不应执行") })
		assert.True(t, timer.Stop())
	})
}

func TestExecutor_ConcurrentSubmitters(t *testing.T) {
	e := newStarted(t)

	// 状态只在调度 goroutine 上修改，无需加锁
	counter := 0
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if i%2 == 0 {
					e.InvokeLater(func() { counter++ })
				} else {
					_ = e.InvokeAndWait(func() { counter++ })
				}
			}
		}()
	}
	wg.Wait()

	var final int
	require.NoError(t, e.InvokeAndWait(func() { final = counter }))
	assert.Equal(t, 8*200, final)
}

func TestExecutor_TryInvokeLater(t *testing.T) {
	e := New(Config{})
	e.Start()

	ran := make(chan struct{})
	require.NoError(t, e.TryInvokeLater(func() { close(ran) }))
	<-ran

	e.Stop()
	assert.ErrorIs(t, e.TryInvokeLater(func() { t.Error("停止后不应执行") }), ErrClosed)
	assert.ErrorIs(t, e.InvokeAndWait(func() {}), ErrClosed)
}
