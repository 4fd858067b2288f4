package config

import (
	"errors"
	"fmt"
	"time"
)

// LocatorConfig 发现扫描器配置
type LocatorConfig struct {
	// ScanInterval 扫描周期
	ScanInterval Duration `json:"scan_interval"`

	// AgingWindow 节点超过该时长未被再次观察到即被移除（扫描周期的倍数）
	AgingWindow Duration `json:"aging_window"`

	// ResponseWindow 每个周期收集响应的时间窗口
	ResponseWindow Duration `json:"response_window"`

	// DNSLookup 是否对 IP 节点做反向 DNS 名称解析
	DNSLookup bool `json:"dns_lookup"`

	// DNSServer 反向解析使用的服务器（空则读取 /etc/resolv.conf）
	DNSServer string `json:"dns_server,omitempty"`

	// DNSRate 每秒最多发起的反向解析次数
	DNSRate float64 `json:"dns_rate"`
}

// DefaultLocatorConfig 返回默认扫描配置
func DefaultLocatorConfig() LocatorConfig {
	return LocatorConfig{
		ScanInterval:   Duration(5 * time.Second),
		AgingWindow:    Duration(120 * time.Second),
		ResponseWindow: Duration(2 * time.Second),
		DNSLookup:      true,
		DNSRate:        4,
	}
}

// Validate 验证扫描配置
func (c *LocatorConfig) Validate() error {
	if c.ScanInterval <= 0 {
		return errors.New("locator: scan_interval must be positive")
	}
	if c.AgingWindow < c.ScanInterval {
		return fmt.Errorf("locator: aging_window (%s) must not be shorter than scan_interval (%s)",
			c.AgingWindow, c.ScanInterval)
	}
	if c.ResponseWindow <= 0 || c.ResponseWindow > c.ScanInterval {
		return errors.New("locator: response_window must be positive and not exceed scan_interval")
	}
	if c.DNSLookup && c.DNSRate <= 0 {
		return errors.New("locator: dns_rate must be positive when dns_lookup is enabled")
	}
	return nil
}

// StaticPeer 静态配置的节点
//
// 启动时直接作为发现结果注入，不依赖广播。
type StaticPeer struct {
	Attrs map[string]string `json:"attrs"`
}

// DiscoveryConfig 探测方式配置
type DiscoveryConfig struct {
	// Enable 是否启动扫描器
	Enable bool `json:"enable"`

	// EnableMDNS 是否启用 mDNS 探测
	EnableMDNS bool `json:"enable_mdns"`

	// MDNSService mDNS 服务标签
	MDNSService string `json:"mdns_service"`

	// MDNSDomain mDNS 域
	MDNSDomain string `json:"mdns_domain"`

	// EnableChannelProbe 是否对已知节点建立通道探测可达性并查询重定向子节点
	EnableChannelProbe bool `json:"enable_channel_probe"`

	// StaticPeers 静态节点
	StaticPeers []StaticPeer `json:"static_peers,omitempty"`
}

// DefaultDiscoveryConfig 返回默认探测配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		Enable:             true,
		EnableMDNS:         true,
		MDNSService:        "_tcf._tcp",
		MDNSDomain:         "local.",
		EnableChannelProbe: true,
	}
}

// Validate 验证探测配置
func (c *DiscoveryConfig) Validate() error {
	if c.EnableMDNS && c.MDNSService == "" {
		return errors.New("discovery: mdns_service cannot be empty when mdns is enabled")
	}
	for i, p := range c.StaticPeers {
		if p.Attrs["ID"] == "" {
			return fmt.Errorf("discovery: static_peers[%d] has no ID attribute", i)
		}
	}
	return nil
}
