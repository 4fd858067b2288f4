package dispatch

import "errors"

var (
	// ErrDispatchThread 在调度 goroutine 上执行了阻塞等待
	ErrDispatchThread = errors.New("blocking wait called on dispatch goroutine")

	// ErrIllegalThreadAccess 在调度 goroutine 之外访问调度受限状态
	ErrIllegalThreadAccess = errors.New("illegal thread access")

	// ErrClosed 执行器已停止
	ErrClosed = errors.New("dispatch executor closed")
)
