package interfaces

import (
	"encoding/json"

	"github.com/dep2p/go-tcf/pkg/types"
)

// ============================================================================
//                              Channel
// ============================================================================

// ChannelListener 通道状态监听者
//
// 回调在调度 goroutine 上执行。
type ChannelListener interface {
	OnOpened()
	OnClosed(err error)
}

// ChannelListenerFuncs 函数适配器，按指针比较身份
type ChannelListenerFuncs struct {
	Opened func()
	Closed func(err error)
}

// OnOpened 实现 ChannelListener
func (l *ChannelListenerFuncs) OnOpened() {
	if l.Opened != nil {
		l.Opened()
	}
}

// OnClosed 实现 ChannelListener
func (l *ChannelListenerFuncs) OnClosed(err error) {
	if l.Closed != nil {
		l.Closed(err)
	}
}

// CommandDone 命令完成回调，results 为应答中的各字段
type CommandDone func(results []json.RawMessage, err error)

// EventListener 远程服务事件监听者
type EventListener func(name string, args []json.RawMessage)

// Replier 本地服务应答
type Replier interface {
	// Reply 发送结果（R 消息），只能调用一次
	Reply(results ...any)

	// Progress 发送进度（P 消息）
	Progress(results ...any)

	// Unknown 命令名无法识别（N 消息），与 Reply 互斥
	Unknown()
}

// LocalService 本地服务，处理远端发来的命令
type LocalService interface {
	Name() string
	HandleCommand(ch Channel, name string, args []json.RawMessage, r Replier)
}

// Channel 到某个节点代理进程的有状态逻辑连接
type Channel interface {
	State() types.ChannelState
	RemotePeer() Peer
	RedirectPath() types.RedirectPath

	// RemoteServices 远端 Hello 中宣告的服务
	RemoteServices() []string
	LocalServices() []string

	AddListener(l ChannelListener)
	RemoveListener(l ChannelListener)

	// SendCommand 发送命令，done 在调度 goroutine 上回调
	SendCommand(service, name string, args []any, done CommandDone)
	SendEvent(service, name string, args ...any)
	AddEventListener(service string, l EventListener)
	AddLocalService(s LocalService)

	// RemoteService 返回服务提供者为该通道构造的远程服务代理
	RemoteService(name string) any

	// Close 正常关闭
	Close()

	// Terminate 以错误终止
	Terminate(err error)
}

// ============================================================================
//                              ChannelManager
// ============================================================================

// OpenDone 打开通道回调
type OpenDone func(ch Channel, err error)

// ChannelManager 通道管理器
//
// 公开入口可在任意 goroutine 调用，内部状态只在调度 goroutine 上修改。
type ChannelManager interface {
	OpenChannel(peer Peer, flags types.OpenFlags, done OpenDone)
	OpenChannelByAttrs(attrs types.Attributes, flags types.OpenFlags, done OpenDone)

	// GetChannel 返回共享通道，force-new 通道永远不会被返回
	GetChannel(peer Peer) Channel

	CloseChannel(ch Channel)

	// CloseAll 强制关闭所有托管通道，仅用于关闭流程
	CloseAll()

	Stats() types.ChannelStats
}
