package interfaces

import (
	"context"
	"io"

	"github.com/dep2p/go-tcf/pkg/types"
)

// Transport 字节流传输
//
// 以节点属性（Host/Port 等）寻址，由 TransportName 属性选择。
type Transport interface {
	// Name 传输名称，如 "TCP"
	Name() string

	Dial(ctx context.Context, attrs types.Attributes) (io.ReadWriteCloser, error)
	Listen(attrs types.Attributes) (Listener, error)
}

// Listener 传输监听器
type Listener interface {
	Accept() (io.ReadWriteCloser, error)
	Close() error

	// Attrs 返回可用于连接到本监听器的节点属性
	Attrs() types.Attributes
}
