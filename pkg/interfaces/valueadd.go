package interfaces

import (
	"context"

	"github.com/dep2p/go-tcf/pkg/types"
)

// ValueAdd 中间进程
//
// 通道可以先连到 value-add，再经其重定向到目标节点。
// IsAlive/Launch/Shutdown 可能阻塞，从不在调度 goroutine 上调用。
type ValueAdd interface {
	ID() string
	Label() string

	// IsOptional 可选 value-add 启动失败时跳过而不是让打开失败
	IsOptional() bool

	// Applies 是否作用于目标节点
	Applies(peer Peer) bool

	IsAlive(ctx context.Context, peerID string) (bool, error)
	Launch(ctx context.Context, peerID string) error

	// Peer 返回服务于 peerID 的 value-add 实例的节点属性
	Peer(peerID string) (types.Attributes, bool)

	Shutdown(peerID string) error
}
