package types

import "time"

// ============================================================================
//                              Event - 事件接口
// ============================================================================

// Event 基础事件接口
type Event interface {
	// Type 返回事件类型
	Type() string

	// Timestamp 返回事件时间戳
	Timestamp() time.Time
}

// BaseEvent 基础事件实现
type BaseEvent struct {
	EventType string
	Time      time.Time
}

// Type 返回事件类型
func (e BaseEvent) Type() string {
	return e.EventType
}

// Timestamp 返回事件时间戳
func (e BaseEvent) Timestamp() time.Time {
	return e.Time
}

// NewBaseEvent 创建基础事件
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Time:      time.Now(),
	}
}

// ============================================================================
//                              节点事件
// ============================================================================

// EvtPeerAdded 注册表新增节点
type EvtPeerAdded struct {
	BaseEvent
	PeerID string
	Attrs  Attributes
}

// EvtPeerChanged 节点属性变化，携带新旧快照
type EvtPeerChanged struct {
	BaseEvent
	PeerID string
	Old    Attributes
	New    Attributes
}

// EvtPeerRemoved 节点被移除（老化或用户删除）
type EvtPeerRemoved struct {
	BaseEvent
	PeerID string
	Attrs  Attributes
}

// EvtPeerChildrenChanged 重定向子节点集合变化
type EvtPeerChildrenChanged struct {
	BaseEvent
	ParentID string
	Children []string
}

// ============================================================================
//                              通道与扫描事件
// ============================================================================

// EvtChannelOpened 通道打开
type EvtChannelOpened struct {
	BaseEvent
	PeerID string
	Shared bool
	Path   RedirectPath
}

// EvtChannelClosed 通道关闭
type EvtChannelClosed struct {
	BaseEvent
	PeerID string
	Shared bool
	Err    error
}

// EvtScannerState 扫描器状态迁移
type EvtScannerState struct {
	BaseEvent
	State ScannerState
	Cycle uint64
}
