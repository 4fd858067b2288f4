package agent

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/dep2p/go-tcf/pkg/types"
)

// ErrBadListen 监听项格式错误
var ErrBadListen = errors.New("agent: bad listen address")

// ParseListen 把 "TRANSPORT:address" 转换为监听属性
//
//	TCP:0.0.0.0:1534  WS::8080  UNIX:/tmp/tcf.sock  PIPE:agent
func ParseListen(entry string) (types.Attributes, error) {
	name, addr, ok := strings.Cut(entry, ":")
	if !ok || name == "" || addr == "" {
		return nil, fmt.Errorf("%w: %q", ErrBadListen, entry)
	}
	name = strings.ToUpper(name)
	attrs := types.Attributes{types.AttrTransportName: name}

	switch name {
	case types.TransportTCP, types.TransportSSL, types.TransportWS, types.TransportWSS:
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrBadListen, entry, err)
		}
		if host != "" {
			attrs[types.AttrHost] = host
		}
		attrs[types.AttrPort] = port
	case types.TransportUnix, types.TransportPipe:
		attrs[types.AttrPipeName] = addr
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrBadListen, name)
	}
	return attrs, nil
}

// peerID 监听点的节点 ID：代理 ID 加传输与端口（或管道名）
func peerID(agentID string, attrs types.Attributes) string {
	where := attrs[types.AttrPort]
	if where == "" {
		where = attrs[types.AttrPipeName]
	}
	return agentID + "/" + attrs.Transport() + ":" + where
}

// advertisable 只有 IP 传输可以经 mDNS 宣告
func advertisable(attrs types.Attributes) bool {
	switch attrs.Transport() {
	case types.TransportTCP, types.TransportSSL, types.TransportWS, types.TransportWSS:
		return attrs[types.AttrPort] != ""
	}
	return false
}
