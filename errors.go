package tcf

import "errors"

// 公共错误定义
var (
	// ErrNotStarted Core 未启动
	ErrNotStarted = errors.New("core not started")

	// ErrAlreadyStarted Core 已启动
	ErrAlreadyStarted = errors.New("core already started")

	// ErrClosed Core 已关闭，fx 应用不能重新启动
	ErrClosed = errors.New("core closed")
)
