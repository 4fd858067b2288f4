package channelmgr

import (
	"time"

	"github.com/dep2p/go-tcf/config"
	"github.com/dep2p/go-tcf/internal/core/channel"
)

// Config 通道管理器配置
type Config struct {
	// OpenTimeout 拨号与握手（含全部重定向）各自的超时
	OpenTimeout time.Duration

	// ValueAddTimeout 单个 value-add 存活检查加启动的超时
	ValueAddTimeout time.Duration

	// MaxMessageSize 单条接收消息的字节上限
	MaxMessageSize int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		OpenTimeout:     channel.DefaultHandshakeTimeout,
		ValueAddTimeout: 30 * time.Second,
		MaxMessageSize:  channel.DefaultMaxMessageSize,
	}
}

// ConfigFromUnified 从统一配置创建
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		OpenTimeout:     cfg.Channel.OpenTimeout.Duration(),
		ValueAddTimeout: cfg.Channel.ValueAddTimeout.Duration(),
		MaxMessageSize:  cfg.Channel.MaxMessageSize,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = d.OpenTimeout
	}
	if c.ValueAddTimeout <= 0 {
		c.ValueAddTimeout = d.ValueAddTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
}
