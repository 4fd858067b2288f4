// Package config 提供统一的配置管理
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义，带 DefaultXConfig() 与 Validate()
//   - 支持从 JSON 或 YAML 文件加载
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Locator.ScanInterval = config.Duration(10 * time.Second)
//
//	// 从文件加载（按扩展名识别 .json/.yaml/.yml）
//	cfg, err := config.Load("tcf.yaml")
package config

import "fmt"

// Config 是 go-tcf 的完整配置结构
//
// 配置按照功能模块组织：
//   - Dispatch: 调度执行器
//   - Channel: 通道管理
//   - Transport: 传输（TLS、WebSocket）
//   - Locator: 扫描周期与老化窗口
//   - Discovery: 探测方式（mDNS、静态节点、通道探测）
//   - Task: 阻塞任务桥与代理
//   - Storage: 节点持久化
//   - ValueAdd: 外部 value-add 进程
//   - Agent: 对外服务（监听、mDNS 宣告、重定向转发）
//   - Metrics: Prometheus 指标
//   - Log: 日志
type Config struct {
	Dispatch  DispatchConfig  `json:"dispatch"`
	Channel   ChannelConfig   `json:"channel"`
	Transport TransportConfig `json:"transport"`
	Locator   LocatorConfig   `json:"locator"`
	Discovery DiscoveryConfig `json:"discovery"`
	Task      TaskConfig      `json:"task"`
	Storage   StorageConfig   `json:"storage"`
	ValueAdd  ValueAddConfig  `json:"value_add"`
	Agent     AgentConfig     `json:"agent"`
	Metrics   MetricsConfig   `json:"metrics"`
	Log       LogConfig       `json:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Dispatch:  DefaultDispatchConfig(),
		Channel:   DefaultChannelConfig(),
		Transport: DefaultTransportConfig(),
		Locator:   DefaultLocatorConfig(),
		Discovery: DefaultDiscoveryConfig(),
		Task:      DefaultTaskConfig(),
		Storage:   DefaultStorageConfig(),
		ValueAdd:  DefaultValueAddConfig(),
		Agent:     DefaultAgentConfig(),
		Metrics:   DefaultMetricsConfig(),
		Log:       DefaultLogConfig(),
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.Dispatch,
		&c.Channel,
		&c.Transport,
		&c.Locator,
		&c.Discovery,
		&c.Task,
		&c.Storage,
		&c.ValueAdd,
		&c.Agent,
		&c.Metrics,
		&c.Log,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}
