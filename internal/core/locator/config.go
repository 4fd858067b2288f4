package locator

import (
	"time"

	"github.com/dep2p/go-tcf/config"
)

// Config 扫描器配置
type Config struct {
	// ScanInterval 两次扫描之间的间隔
	ScanInterval time.Duration

	// AgingWindow 超过该时长未被观察到的节点被移除
	AgingWindow time.Duration

	// ResponseWindow 每次扫描等待探测结果的时长
	ResponseWindow time.Duration

	// DNSRate 每秒最多的反向解析次数
	DNSRate float64
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		ScanInterval:   5 * time.Second,
		AgingWindow:    120 * time.Second,
		ResponseWindow: 2 * time.Second,
		DNSRate:        4,
	}
}

// ConfigFromUnified 从统一配置创建
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		ScanInterval:   cfg.Locator.ScanInterval.Duration(),
		AgingWindow:    cfg.Locator.AgingWindow.Duration(),
		ResponseWindow: cfg.Locator.ResponseWindow.Duration(),
		DNSRate:        cfg.Locator.DNSRate,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.ScanInterval <= 0 {
		c.ScanInterval = d.ScanInterval
	}
	if c.AgingWindow <= 0 {
		c.AgingWindow = d.AgingWindow
	}
	if c.ResponseWindow <= 0 {
		c.ResponseWindow = d.ResponseWindow
	}
	if c.DNSRate <= 0 {
		c.DNSRate = d.DNSRate
	}
}
