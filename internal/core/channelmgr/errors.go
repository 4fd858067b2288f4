package channelmgr

import "errors"

var (
	// ErrMissingID 节点属性缺少 ID
	ErrMissingID = errors.New("peer attributes have no ID")

	// ErrValueAdd 必需的 value-add 不可用
	ErrValueAdd = errors.New("value-add unavailable")

	// ErrCanceled 打开过程中管理器关闭了全部通道
	ErrCanceled = errors.New("channel open canceled")
)
