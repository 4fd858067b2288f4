// Package pipe 提供进程内命名管道传输
//
// 同一个 Hub 上的监听与拨号通过 net.Pipe 相连，按 PipeName 属性寻址。
// 常用于测试和同进程内的代理。
package pipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"

	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/types"
)

var (
	// ErrNoListener 管道名上没有监听者
	ErrNoListener = errors.New("pipe: no listener")

	// ErrNameInUse 管道名已被占用
	ErrNameInUse = errors.New("pipe: name in use")

	// ErrListenerClosed 监听器已关闭
	ErrListenerClosed = errors.New("pipe: listener closed")
)

// Hub 管道命名空间
type Hub struct {
	mu        sync.Mutex
	listeners map[string]*listener
}

// NewHub 创建命名空间
func NewHub() *Hub {
	return &Hub{listeners: make(map[string]*listener)}
}

// Transport PIPE 传输
type Transport struct {
	hub *Hub
}

var _ pkgif.Transport = (*Transport)(nil)

// New 在 hub 上创建传输
func New(hub *Hub) *Transport {
	return &Transport{hub: hub}
}

// Name 返回 "PIPE"
func (t *Transport) Name() string { return types.TransportPipe }

// Dial 连接到 PipeName 上的监听者
func (t *Transport) Dial(ctx context.Context, attrs types.Attributes) (io.ReadWriteCloser, error) {
	name := attrs[types.AttrPipeName]
	t.hub.mu.Lock()
	l, ok := t.hub.listeners[name]
	t.hub.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoListener, name)
	}

	client, server := net.Pipe()
	select {
	case l.incoming <- server:
		return client, nil
	case <-l.closed:
		_, _ = client.Close(), server.Close()
		return nil, fmt.Errorf("%w: %q", ErrNoListener, name)
	case <-ctx.Done():
		_, _ = client.Close(), server.Close()
		return nil, ctx.Err()
	}
}

// Listen 在 PipeName 上监听，名称为空时自动生成
func (t *Transport) Listen(attrs types.Attributes) (pkgif.Listener, error) {
	name := attrs[types.AttrPipeName]
	if name == "" {
		name = "tcf-" + uuid.NewString()
	}

	t.hub.mu.Lock()
	defer t.hub.mu.Unlock()
	if _, ok := t.hub.listeners[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrNameInUse, name)
	}
	l := &listener{
		hub:      t.hub,
		name:     name,
		incoming: make(chan net.Conn),
		closed:   make(chan struct{}),
	}
	t.hub.listeners[name] = l
	return l, nil
}

type listener struct {
	hub       *Hub
	name      string
	incoming  chan net.Conn
	closed    chan struct{}
	closeOnce sync.Once
}

func (l *listener) Accept() (io.ReadWriteCloser, error) {
	select {
	case c := <-l.incoming:
		return c, nil
	case <-l.closed:
		return nil, ErrListenerClosed
	}
}

func (l *listener) Close() error {
	l.closeOnce.Do(func() {
		l.hub.mu.Lock()
		if l.hub.listeners[l.name] == l {
			delete(l.hub.listeners, l.name)
		}
		l.hub.mu.Unlock()
		close(l.closed)
	})
	return nil
}

func (l *listener) Attrs() types.Attributes {
	return types.Attributes{
		types.AttrTransportName: types.TransportPipe,
		types.AttrPipeName:      l.name,
	}
}
