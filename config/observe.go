package config

import (
	"errors"
	"strings"
)

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Enable bool `json:"enable"`

	// Listen HTTP 监听地址，空则只注册不暴露
	Listen string `json:"listen,omitempty"`

	Path string `json:"path"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enable: true,
		Path:   "/metrics",
	}
}

// Validate 验证指标配置
func (c *MetricsConfig) Validate() error {
	if !strings.HasPrefix(c.Path, "/") {
		return errors.New("metrics: path must start with '/'")
	}
	return nil
}

// LogConfig 日志配置
//
// 为空时沿用环境变量 TCF_LOG_LEVEL / TCF_LOG_FORMAT。
type LogConfig struct {
	// Level 格式同 TCF_LOG_LEVEL，如 "info,core/channel=debug"
	Level string `json:"level,omitempty"`

	// Format text 或 json
	Format string `json:"format,omitempty"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{}
}

// Validate 验证日志配置
func (c *LogConfig) Validate() error {
	switch c.Format {
	case "", "text", "json":
		return nil
	}
	return errors.New("log: format must be text or json")
}
