package types

import "strings"

// RedirectSeparator 重定向路径分隔符
const RedirectSeparator = "/"

// RedirectPath 重定向路径
//
// 目标节点之前按顺序经过的中间节点（value-add）ID 列表，
// 空路径表示直连。
type RedirectPath []string

// IsDirect 是否直连
func (p RedirectPath) IsDirect() bool {
	return len(p) == 0
}

// Encode 编码为 "va1/va2/target"
func (p RedirectPath) Encode(target string) string {
	if len(p) == 0 {
		return target
	}
	return strings.Join(p, RedirectSeparator) + RedirectSeparator + target
}

// String 返回中间节点部分
func (p RedirectPath) String() string {
	return strings.Join(p, RedirectSeparator)
}

// Clone 返回副本
func (p RedirectPath) Clone() RedirectPath {
	if p == nil {
		return nil
	}
	out := make(RedirectPath, len(p))
	copy(out, p)
	return out
}

// ParseRedirect 解析编码后的重定向串，返回中间路径与目标 ID
//
// 空段被忽略，因此 "a//b" 等价于 "a/b"。
func ParseRedirect(s string) (RedirectPath, string) {
	var parts []string
	for _, seg := range strings.Split(s, RedirectSeparator) {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	if len(parts) == 0 {
		return nil, ""
	}
	target := parts[len(parts)-1]
	if len(parts) == 1 {
		return nil, target
	}
	return RedirectPath(parts[:len(parts)-1]), target
}
