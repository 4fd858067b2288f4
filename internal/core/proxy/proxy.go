// Package proxy 把服务方法调用路由到调度 goroutine
//
// 每个服务接口用显式的描述符声明哪些方法以回调完成、回调是第几个参数：
//
//	proxy.Register[Greeter](proxy.Describe("Greeter",
//	    proxy.Async("Greet", 1),
//	    proxy.Sync("Name"),
//	))
//
//	p, _ := proxy.For[Greeter](exec, impl)
//	p.Call("Greet", "tcf", func(msg string, err error) { ... })
//	res, err := p.CallAndWait(0, "Greet", "tcf", nil)
package proxy

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/dep2p/go-tcf/internal/core/dispatch"
	"github.com/dep2p/go-tcf/internal/core/task"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/lib/log"
)

var logger = log.Logger("core/proxy")

// DefaultTimeout CallAndWait 的默认超时
const DefaultTimeout = 60 * time.Second

var (
	// ErrUnknownMethod 描述符或目标没有该方法
	ErrUnknownMethod = errors.New("unknown proxy method")

	// ErrBadArguments 参数个数或类型不匹配
	ErrBadArguments = errors.New("bad proxy arguments")

	// ErrNoDescriptor 接口类型没有注册描述符
	ErrNoDescriptor = errors.New("no proxy descriptor registered")
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Option 代理选项
type Option func(*Proxy)

// WithTimeout 设置 CallAndWait 的默认超时
func WithTimeout(d time.Duration) Option {
	return func(p *Proxy) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// Proxy 按描述符调用目标对象的方法
type Proxy struct {
	exec    pkgif.Executor
	desc    *Descriptor
	target  reflect.Value
	timeout time.Duration
}

// New 创建代理
func New(exec pkgif.Executor, desc *Descriptor, target any, opts ...Option) *Proxy {
	p := &Proxy{
		exec:    exec,
		desc:    desc,
		target:  reflect.ValueOf(target),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// For 用 T 已注册的描述符创建代理
func For[T any](exec pkgif.Executor, target T, opts ...Option) (*Proxy, error) {
	d, ok := Lookup[T]()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDescriptor, typeOf[T]())
	}
	return New(exec, d, target, opts...), nil
}

// Descriptor 返回描述符
func (p *Proxy) Descriptor() *Descriptor { return p.desc }

// Call 调用方法
//
// 异步方法在调度 goroutine 上执行（已在其上时直接执行），立即返回 nil；
// 回调在操作完成时触发。同步方法在调用方 goroutine 上执行并返回结果，
// 最后一个返回值是非 nil 的 error 时同时作为 err 返回。
func (p *Proxy) Call(name string, args ...any) ([]any, error) {
	m, fn, in, err := p.prepare(name, args)
	if err != nil {
		return nil, err
	}
	if !m.Async {
		return results(fn.Call(in))
	}

	idx := m.CallbackIndex
	in[idx] = wrapCallback(fn.Type().In(idx), in[idx], func([]reflect.Value) {
		logger.Debug("异步调用完成", "service", p.desc.service, "method", name)
	})
	if p.exec.IsDispatchThread() {
		fn.Call(in)
		return nil, nil
	}
	p.exec.InvokeLater(func() { fn.Call(in) })
	return nil, nil
}

// CallAndWait 调用方法并等待回调
//
// 返回回调收到的参数。timeout <= 0 时使用默认超时；超时返回 task.ErrTimeout，
// 已提交的调用不会被取消。在调度 goroutine 上调用异步方法立即失败。
func (p *Proxy) CallAndWait(timeout time.Duration, name string, args ...any) ([]any, error) {
	m, fn, in, err := p.prepare(name, args)
	if err != nil {
		return nil, err
	}
	if !m.Async {
		return results(fn.Call(in))
	}
	if p.exec.IsDispatchThread() {
		return nil, dispatch.ErrDispatchThread
	}
	if timeout <= 0 {
		timeout = p.timeout
	}

	idx := m.CallbackIndex
	ct, orig := fn.Type().In(idx), in[idx]
	t := task.New(p.exec, func(done func([]any, error)) {
		in[idx] = wrapCallback(ct, orig, func(cbArgs []reflect.Value) {
			done(results(cbArgs))
		})
		fn.Call(in)
	})
	return t.GetTimeout(timeout)
}

func (p *Proxy) prepare(name string, args []any) (Method, reflect.Value, []reflect.Value, error) {
	m, ok := p.desc.Method(name)
	if !ok {
		return Method{}, reflect.Value{}, nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, p.desc.service, name)
	}
	fn := p.target.MethodByName(name)
	if !fn.IsValid() {
		return Method{}, reflect.Value{}, nil, fmt.Errorf("%w: %s.%s not implemented by %s",
			ErrUnknownMethod, p.desc.service, name, p.target.Type())
	}

	ft := fn.Type()
	if ft.IsVariadic() || ft.NumIn() != len(args) {
		return Method{}, reflect.Value{}, nil, fmt.Errorf("%w: %s takes %d arguments, got %d",
			ErrBadArguments, name, ft.NumIn(), len(args))
	}
	if m.Async && (m.CallbackIndex < 0 || m.CallbackIndex >= ft.NumIn() || ft.In(m.CallbackIndex).Kind() != reflect.Func) {
		return Method{}, reflect.Value{}, nil, fmt.Errorf("%w: %s callback index %d is not a function",
			ErrBadArguments, name, m.CallbackIndex)
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		pt := ft.In(i)
		if a == nil {
			in[i] = reflect.Zero(pt)
			continue
		}
		v := reflect.ValueOf(a)
		switch {
		case v.Type().AssignableTo(pt):
		case v.Type().ConvertibleTo(pt) && pt.Kind() != reflect.Func:
			v = v.Convert(pt)
		default:
			return Method{}, reflect.Value{}, nil, fmt.Errorf("%w: %s argument %d: %s is not %s",
				ErrBadArguments, name, i, v.Type(), pt)
		}
		in[i] = v
	}
	return m, fn, in, nil
}

// wrapCallback 包装回调：先调用原回调（可为 nil），再执行 after
func wrapCallback(ft reflect.Type, orig reflect.Value, after func([]reflect.Value)) reflect.Value {
	return reflect.MakeFunc(ft, func(args []reflect.Value) []reflect.Value {
		var out []reflect.Value
		if orig.IsValid() && !orig.IsNil() {
			out = orig.Call(args)
		} else {
			out = make([]reflect.Value, ft.NumOut())
			for i := range out {
				out[i] = reflect.Zero(ft.Out(i))
			}
		}
		after(args)
		return out
	})
}

// results 转换返回值，最后一个非 nil 的 error 同时作为 err
func results(vals []reflect.Value) ([]any, error) {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v.Interface()
	}
	if n := len(vals); n > 0 {
		last := vals[n-1]
		if last.Type().Implements(errorType) && isNonNil(last) {
			return out, last.Interface().(error)
		}
	}
	return out, nil
}

func isNonNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return !v.IsNil()
	default:
		return true
	}
}
