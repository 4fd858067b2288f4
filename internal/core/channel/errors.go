package channel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrChannelClosed 通道已关闭，未完成的命令以此失败
	ErrChannelClosed = errors.New("channel closed")

	// ErrNotOpen 通道尚未打开
	ErrNotOpen = errors.New("channel not open")

	// ErrHandshake 握手失败或超时
	ErrHandshake = errors.New("channel handshake failed")

	// ErrProtocol 收到无法解析的消息
	ErrProtocol = errors.New("protocol error")

	// ErrRedirect 重定向被对端拒绝
	ErrRedirect = errors.New("redirect failed")

	// ErrUnknownCommand 对端不认识该命令（N 消息）
	ErrUnknownCommand = errors.New("unknown command")

	// ErrRemoteClosed 对端关闭了连接
	ErrRemoteClosed = errors.New("remote peer closed channel")
)

// 标准错误码
const (
	CodeOther        = 1
	CodeInvalidToken = 3
	CodeTimeout      = 5
	CodeUnknownPeer  = 12
)

// RemoteError 应答中的错误报告
type RemoteError struct {
	Code   int    `json:"Code"`
	Format string `json:"Format"`
}

// Error 实现 error
func (e *RemoteError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("remote error %d", e.Code)
	}
	return e.Format
}

// NewErrorReport 构造应答中的错误字段，err 为 nil 时为 JSON null
func NewErrorReport(code int, err error) any {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re
	}
	return &RemoteError{Code: code, Format: err.Error()}
}

// ParseError 解析应答中的错误字段
//
// null 或空字段返回 nil。
func ParseError(raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return &RemoteError{Code: CodeOther, Format: s}
	}
	re := &RemoteError{}
	if err := json.Unmarshal(trimmed, re); err != nil {
		return fmt.Errorf("%w: bad error report: %w", ErrProtocol, err)
	}
	return re
}
