package config

import (
	"errors"
	"path/filepath"
)

// StorageConfig 存储配置
//
// 用户创建的节点持久化在 BadgerDB 中：
//
//	${DataDir}/
//	└── peers.db/
//
// DataDir 为空时使用内存模式，进程退出即丢失。
type StorageConfig struct {
	DataDir string `json:"data_dir"`
}

// DefaultStorageConfig 返回默认的存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{}
}

// Validate 验证存储配置的有效性
func (c *StorageConfig) Validate() error {
	return nil
}

// InMemory 是否使用内存模式
func (c *StorageConfig) InMemory() bool {
	return c.DataDir == ""
}

// DBPath 返回 BadgerDB 数据库路径
func (c *StorageConfig) DBPath() string {
	if c.InMemory() {
		return ""
	}
	return filepath.Join(c.DataDir, "peers.db")
}

// ============================================================================
//                              value-add
// ============================================================================

// ExternalValueAdd 外部 value-add 进程
//
// 进程启动后须在标准输出打印一行 JSON 属性表（ID/TransportName/Host/Port），
// 之后保持运行，作为重定向中继。
type ExternalValueAdd struct {
	ID       string   `json:"id"`
	Label    string   `json:"label,omitempty"`
	Command  string   `json:"command"`
	Args     []string `json:"args,omitempty"`
	Env      []string `json:"env,omitempty"`
	Optional bool     `json:"optional"`

	// Peers 作用的目标节点 ID，空表示所有节点
	Peers []string `json:"peers,omitempty"`
}

// ValueAddConfig value-add 配置
type ValueAddConfig struct {
	External []ExternalValueAdd `json:"external,omitempty"`
}

// DefaultValueAddConfig 返回默认配置
func DefaultValueAddConfig() ValueAddConfig {
	return ValueAddConfig{}
}

// Validate 验证 value-add 配置
func (c *ValueAddConfig) Validate() error {
	seen := make(map[string]bool)
	for _, va := range c.External {
		if va.ID == "" || va.Command == "" {
			return errors.New("value_add: external entries need id and command")
		}
		if seen[va.ID] {
			return errors.New("value_add: duplicate id " + va.ID)
		}
		seen[va.ID] = true
	}
	return nil
}
