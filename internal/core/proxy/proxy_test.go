package proxy

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-tcf/internal/core/dispatch"
	"github.com/dep2p/go-tcf/internal/core/task"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
)

type Greeter interface {
	Greet(name string, done func(msg string, err error))
	Silent(done func(error))
	Name() string
	Fail() error
}

type greeter struct {
	exec       pkgif.Executor
	onDispatch atomic.Bool
}

func (g *greeter) Greet(name string, done func(string, error)) {
	g.onDispatch.Store(g.exec.IsDispatchThread())
	if name == "" {
		g.exec.InvokeLater(func() { done("", errors.New("no name")) })
		return
	}
	g.exec.InvokeLater(func() { done("hello "+name, nil) })
}

func (g *greeter) Silent(func(error)) {}

func (g *greeter) Name() string { return "greeter" }

func (g *greeter) Fail() error { return errors.New("failed") }

var greeterDesc = Register[Greeter](Describe("Greeter",
	Async("Greet", 1),
	Async("Silent", 0),
	Sync("Name"),
	Sync("Fail"),
))

func newProxy(t *testing.T) (*Proxy, *greeter, *dispatch.Executor) {
	t.Helper()
	exec := dispatch.New(dispatch.Config{})
	exec.Start()
	t.Cleanup(exec.Stop)
	g := &greeter{exec: exec}
	p, err := For[Greeter](exec, g)
	require.NoError(t, err)
	return p, g, exec
}

func TestProxy_CallAsync(t *testing.T) {
	p, g, _ := newProxy(t)

	got := make(chan string, 1)
	res, err := p.Call("Greet", "tcf", func(msg string, err error) { got <- msg })
	require.NoError(t, err)
	assert.Nil(t, res)

	select {
	case msg := <-got:
		assert.Equal(t, "hello tcf", msg)
	case <-time.After(5 * time.Second):
		t.Fatal("callback not fired")
	}
	assert.True(t, g.onDispatch.Load())
}

func TestProxy_CallSync(t *testing.T) {
	p, _, _ := newProxy(t)

	res, err := p.Call("Name")
	require.NoError(t, err)
	assert.Equal(t, []any{"greeter"}, res)

	_, err = p.Call("Fail")
	assert.EqualError(t, err, "failed")
}

func TestProxy_CallAndWait(t *testing.T) {
	p, _, _ := newProxy(t)

	res, err := p.CallAndWait(0, "Greet", "tcf", nil)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "hello tcf", res[0])
	assert.Nil(t, res[1])

	// 原回调同样会被调用
	var called atomic.Bool
	_, err = p.CallAndWait(0, "Greet", "x", func(string, error) { called.Store(true) })
	require.NoError(t, err)
	assert.True(t, called.Load())

	_, err = p.CallAndWait(0, "Greet", "", nil)
	assert.EqualError(t, err, "no name")
}

func TestProxy_CallAndWaitTimeout(t *testing.T) {
	p, _, exec := newProxy(t)

	start := time.Now()
	_, err := p.CallAndWait(50*time.Millisecond, "Silent", nil)
	assert.ErrorIs(t, err, task.ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)

	// 调度 goroutine 没有被阻塞
	assert.NoError(t, exec.InvokeAndWait(func() {}))
}

func TestProxy_CallAndWaitOnDispatch(t *testing.T) {
	p, _, exec := newProxy(t)

	require.NoError(t, exec.InvokeAndWait(func() {
		_, err := p.CallAndWait(0, "Greet", "x", nil)
		assert.ErrorIs(t, err, dispatch.ErrDispatchThread)

		res, err := p.CallAndWait(0, "Name")
		assert.NoError(t, err)
		assert.Equal(t, []any{"greeter"}, res)
	}))
}

func TestProxy_Errors(t *testing.T) {
	p, _, _ := newProxy(t)

	_, err := p.Call("Missing")
	assert.ErrorIs(t, err, ErrUnknownMethod)

	_, err = p.Call("Greet", "only-one")
	assert.ErrorIs(t, err, ErrBadArguments)

	_, err = p.Call("Greet", []int{42}, nil)
	assert.ErrorIs(t, err, ErrBadArguments)

	type unregistered interface{ X() }
	_, err = For[unregistered](p.exec, nil)
	assert.ErrorIs(t, err, ErrNoDescriptor)
}

func TestProxy_DescriptorNotOnTarget(t *testing.T) {
	exec := dispatch.New(dispatch.Config{})
	d := Describe("Other", Sync("Nope"))
	p := New(exec, d, &greeter{exec: exec})
	_, err := p.Call("Nope")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestCache_SingleWinner(t *testing.T) {
	var c Cache
	typ := reflect.TypeOf((*Greeter)(nil)).Elem()

	const n = 32
	winners := make([]*Descriptor, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			winners[i] = c.Store(typ, Describe("Greeter"))
		}(i)
	}
	wg.Wait()

	for _, w := range winners {
		assert.Same(t, winners[0], w)
	}
	got, ok := c.Load(typ)
	require.True(t, ok)
	assert.Same(t, winners[0], got)
}

func TestRegister_KeepsFirst(t *testing.T) {
	again := Register[Greeter](Describe("Greeter"))
	assert.Same(t, greeterDesc, again)

	d, ok := Lookup[Greeter]()
	require.True(t, ok)
	assert.Len(t, d.Methods(), 4)
	assert.Equal(t, "Fail", d.Methods()[0].Name)
}
