package types

import (
	"maps"
	"net"
	"sort"
	"strings"
)

// ============================================================================
//                              约定属性键
// ============================================================================

// 节点属性键
//
// 属性表是扁平的字符串映射；未知键必须原样透传。
const (
	AttrID               = "ID"
	AttrServiceManagerID = "ServiceManagerID"
	AttrAgentID          = "AgentID"
	AttrName             = "Name"
	AttrOSName           = "OSName"
	AttrTransportName    = "TransportName"
	AttrProxy            = "Proxy"
	AttrHost             = "Host"
	AttrAliases          = "Aliases"
	AttrAddresses        = "Addresses"
	AttrPort             = "Port"
	AttrUserName         = "UserName"

	// 同一节点上第二协议的备用地址
	AttrSecondaryHost = "SecondaryHost"
	AttrSecondaryPort = "SecondaryPort"

	// AttrPipeName PIPE 传输的管道名，UNIX 传输的套接字路径
	AttrPipeName = "PipeName"
)

// 本地标记属性
//
// 以 ".transient" 结尾的键只在本进程内有意义，不参与发现结果比较。
const (
	// AttrTransient 打开通道时要求创建临时节点（不进入注册表）
	AttrTransient = "transient"

	// AttrStaticTransient 标记的重定向子节点不会被扫描器移除
	AttrStaticTransient = "static.transient"

	AttrDNSName   = "dns.name.transient"
	AttrDNSLastIP = "dns.lastIP.transient"
	AttrDNSSkip   = "dns.skip.transient"

	transientSuffix = ".transient"
)

// 传输名称
const (
	TransportTCP  = "TCP"
	TransportSSL  = "SSL"
	TransportPipe = "PIPE"
	TransportUnix = "UNIX"
	TransportWS   = "WS"
	TransportWSS  = "WSS"
)

// ============================================================================
//                              Attributes
// ============================================================================

// Attributes 节点属性表
type Attributes map[string]string

// ID 返回节点 ID
func (a Attributes) ID() string {
	return a[AttrID]
}

// Clone 返回副本
func (a Attributes) Clone() Attributes {
	if a == nil {
		return Attributes{}
	}
	return maps.Clone(a)
}

// Equal 比较两个属性表
func (a Attributes) Equal(b Attributes) bool {
	return maps.Equal(a, b)
}

// WithoutTransient 返回去除本地标记属性后的副本
func (a Attributes) WithoutTransient() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		if !IsTransientKey(k) {
			out[k] = v
		}
	}
	return out
}

// MergeTransient 把 from 中的本地标记属性补到 a 的副本上（a 中已有的键不覆盖）
func (a Attributes) MergeTransient(from Attributes) Attributes {
	out := a.Clone()
	for k, v := range from {
		if !IsTransientKey(k) {
			continue
		}
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// Keys 返回排序后的键
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HostIP 返回 Host 属性解析出的 IP（不是 IP 时为 nil）
func (a Attributes) HostIP() net.IP {
	return net.ParseIP(a[AttrHost])
}

// Transport 返回传输名称（缺省 TCP）
func (a Attributes) Transport() string {
	if t := a[AttrTransportName]; t != "" {
		return strings.ToUpper(t)
	}
	return TransportTCP
}

// IsTransientKey 判断是否为本地标记属性键
func IsTransientKey(key string) bool {
	return key == AttrTransient || strings.HasSuffix(key, transientSuffix)
}
