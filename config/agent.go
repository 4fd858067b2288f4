package config

import (
	"errors"
	"fmt"
	"strings"
)

// AgentConfig 本进程作为 TCF 代理对外服务时的配置
//
// Listen 的每一项形如 "TCP:0.0.0.0:1534"、"WS::8080"、"UNIX:/tmp/tcf.sock"、
// "PIPE:agent"，即 "传输:地址"。
type AgentConfig struct {
	// ID 代理 ID，空则启动时生成
	ID string `json:"id,omitempty"`

	// Name 宣告的节点名，空则使用主机名
	Name string `json:"name,omitempty"`

	Listen []string `json:"listen,omitempty"`

	// Advertise 是否通过 mDNS 宣告监听地址
	Advertise bool `json:"advertise"`

	// Redirect 是否为连入的通道转发 Locator.redirect
	Redirect bool `json:"redirect"`
}

// DefaultAgentConfig 返回默认代理配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Advertise: true,
		Redirect:  true,
	}
}

// Validate 验证代理配置
func (c *AgentConfig) Validate() error {
	for i, l := range c.Listen {
		name, addr, ok := strings.Cut(l, ":")
		if !ok || name == "" || addr == "" {
			return fmt.Errorf("agent: listen[%d] %q must look like TRANSPORT:address", i, l)
		}
	}
	if strings.Contains(c.ID, "/") {
		return errors.New("agent: id must not contain '/'")
	}
	return nil
}
