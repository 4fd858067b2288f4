package types

// ============================================================================
//                              ChannelState - 通道状态
// ============================================================================

// ChannelState 通道状态
//
// 单向迁移：OPENING → OPEN → CLOSED。
type ChannelState int32

const (
	// ChannelOpening 正在打开（握手或重定向中）
	ChannelOpening ChannelState = 0
	// ChannelOpen 已打开
	ChannelOpen ChannelState = 1
	// ChannelClosed 已关闭（终态）
	ChannelClosed ChannelState = 2
)

// String 返回状态的字符串表示
func (s ChannelState) String() string {
	switch s {
	case ChannelOpening:
		return "opening"
	case ChannelOpen:
		return "open"
	case ChannelClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              OpenFlags - 打开标志
// ============================================================================

// OpenFlags 打开通道的标志位
type OpenFlags uint8

const (
	// FlagForceNew 总是打开新的非托管通道，不缓存、不计数，由调用方负责关闭
	FlagForceNew OpenFlags = 1 << iota

	// FlagNoValueAdd 跳过 value-add 重定向，隐含 FlagForceNew
	//
	// 危险：绕过中间进程可能导致目标无法访问或语义不同。
	FlagNoValueAdd
)

// Has 判断是否设置了标志
func (f OpenFlags) Has(flag OpenFlags) bool {
	return f&flag != 0
}

// Normalize 规范化标志（FlagNoValueAdd 隐含 FlagForceNew）
func (f OpenFlags) Normalize() OpenFlags {
	if f.Has(FlagNoValueAdd) {
		f |= FlagForceNew
	}
	return f
}

// String 返回标志的字符串表示
func (f OpenFlags) String() string {
	switch f.Normalize() {
	case 0:
		return "shared"
	case FlagForceNew:
		return "forceNew"
	default:
		return "forceNew|noValueAdd"
	}
}
