package eventbus

import (
	"reflect"
	"sync"
	"sync/atomic"

	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
)

// ============================================================================
// Subscription 实现
// ============================================================================

// Subscription 订阅
//
// 通道订阅 out 非空；回调订阅 fn 非空。
type Subscription struct {
	bus *Bus
	typ reflect.Type

	// mu 保护 out 的发送与关闭
	mu  sync.RWMutex
	out chan interface{}

	dispatcher pkgif.Dispatcher
	fn         func(event interface{})

	closeOnce sync.Once
	closed    atomic.Bool
}

// Out 返回事件通道，回调订阅返回 nil
func (s *Subscription) Out() <-chan interface{} {
	if s.out == nil {
		return nil
	}
	return s.out
}

// Close 取消订阅，可重复调用
//
// 关闭后已交给 Dispatcher 但尚未执行的回调会被跳过。
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.bus.removeSub(s)

		if s.out != nil {
			s.mu.Lock()
			close(s.out)
			s.mu.Unlock()
		}
	})
	return nil
}

// deliver 投递单个事件；n 为空表示补发，不计入丢弃统计
func (s *Subscription) deliver(event interface{}, n *node) {
	if s.closed.Load() {
		return
	}

	if s.fn != nil {
		call := func() {
			if s.closed.Load() {
				return
			}
			s.fn(event)
		}
		if s.dispatcher != nil {
			s.dispatcher.Dispatch(call)
		} else {
			call()
		}
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.out <- event:
	default:
		if n != nil {
			n.dropped()
		}
	}
}

// ============================================================================
// Emitter 实现
// ============================================================================

// Emitter 事件发射器
type Emitter struct {
	bus       *Bus
	node      *node
	typ       reflect.Type
	closed    atomic.Bool
	closeOnce sync.Once
}

// Emit 发射事件
func (e *Emitter) Emit(event interface{}) error {
	if e.closed.Load() {
		return ErrEmitterClosed
	}
	if e.bus.closed.Load() {
		return ErrClosed
	}
	e.node.emit(event)
	return nil
}

// Close 关闭发射器，引用计数归零时尝试删除节点
func (e *Emitter) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if e.node.nEmitters.Add(-1) == 0 {
			e.bus.tryDropNode(e.typ)
		}
	})
	return nil
}
