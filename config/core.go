package config

import (
	"errors"
	"time"
)

// ============================================================================
//                              调度与任务
// ============================================================================

// DispatchConfig 调度执行器配置
type DispatchConfig struct {
	// SlowTaskThreshold 单个任务运行超过该时长时告警（调度 goroutine 不应阻塞）
	// 0 表示不检测
	SlowTaskThreshold Duration `json:"slow_task_threshold"`
}

// DefaultDispatchConfig 返回默认调度配置
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		SlowTaskThreshold: Duration(200 * time.Millisecond),
	}
}

// Validate 验证调度配置
func (c *DispatchConfig) Validate() error {
	if c.SlowTaskThreshold < 0 {
		return errors.New("dispatch: slow_task_threshold cannot be negative")
	}
	return nil
}

// TaskConfig 阻塞任务桥与代理配置
type TaskConfig struct {
	// DefaultTimeout 阻塞调用默认超时
	DefaultTimeout Duration `json:"default_timeout"`
}

// DefaultTaskConfig 返回默认任务配置
func DefaultTaskConfig() TaskConfig {
	return TaskConfig{
		DefaultTimeout: Duration(60 * time.Second),
	}
}

// Validate 验证任务配置
func (c *TaskConfig) Validate() error {
	if c.DefaultTimeout <= 0 {
		return errors.New("task: default_timeout must be positive")
	}
	return nil
}

// ============================================================================
//                              通道与传输
// ============================================================================

// ChannelConfig 通道管理配置
type ChannelConfig struct {
	// OpenTimeout 拨号加握手（含全部重定向）的超时
	OpenTimeout Duration `json:"open_timeout"`

	// ValueAddTimeout 单个 value-add 存活检查与启动的超时
	ValueAddTimeout Duration `json:"value_add_timeout"`

	// MaxMessageSize 单条接收消息的字节上限，超出时关闭通道
	MaxMessageSize int `json:"max_message_size"`
}

// DefaultChannelConfig 返回默认通道配置
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		OpenTimeout:     Duration(30 * time.Second),
		ValueAddTimeout: Duration(30 * time.Second),
		MaxMessageSize:  4 << 20,
	}
}

// Validate 验证通道配置
func (c *ChannelConfig) Validate() error {
	if c.OpenTimeout <= 0 {
		return errors.New("channel: open_timeout must be positive")
	}
	if c.ValueAddTimeout <= 0 {
		return errors.New("channel: value_add_timeout must be positive")
	}
	if c.MaxMessageSize <= 0 {
		return errors.New("channel: max_message_size must be positive")
	}
	return nil
}

// TransportConfig 传输配置
type TransportConfig struct {
	// TLSCertFile/TLSKeyFile SSL 监听使用的证书
	TLSCertFile string `json:"tls_cert_file,omitempty"`
	TLSKeyFile  string `json:"tls_key_file,omitempty"`

	// TLSInsecureSkipVerify 代理进程通常使用自签名证书
	TLSInsecureSkipVerify bool `json:"tls_insecure_skip_verify"`

	// WebSocketPath WS/WSS 传输的 HTTP 路径
	WebSocketPath string `json:"websocket_path"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		TLSInsecureSkipVerify: true,
		WebSocketPath:         "/tcf",
	}
}

// Validate 验证传输配置
func (c *TransportConfig) Validate() error {
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("transport: tls_cert_file and tls_key_file must be set together")
	}
	if c.WebSocketPath == "" || c.WebSocketPath[0] != '/' {
		return errors.New("transport: websocket_path must start with '/'")
	}
	return nil
}
