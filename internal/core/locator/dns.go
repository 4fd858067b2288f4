package locator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/dep2p/go-tcf/pkg/lib/log"
	"github.com/dep2p/go-tcf/pkg/types"
)

// ErrNoName 地址没有反向解析记录
var ErrNoName = errors.New("locator: no PTR record")

// Resolver 反向名称解析
type Resolver interface {
	LookupAddr(ctx context.Context, ip string) (string, error)
}

// DNSResolver 通过 PTR 查询解析 IP 对应的主机名
type DNSResolver struct {
	client *dns.Client
	server string
}

// NewDNSResolver 创建解析器
//
// server 为空时读取 /etc/resolv.conf 的第一个服务器。
func NewDNSResolver(server string) (*DNSResolver, error) {
	if server == "" {
		cc, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil {
			return nil, fmt.Errorf("read resolv.conf: %w", err)
		}
		if len(cc.Servers) == 0 {
			return nil, errors.New("resolv.conf lists no servers")
		}
		server = net.JoinHostPort(cc.Servers[0], cc.Port)
	} else if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &DNSResolver{
		client: &dns.Client{Timeout: dnsTimeout},
		server: server,
	}, nil
}

// LookupAddr 查询 ip 的 PTR 记录，返回去掉末尾点的主机名
func (r *DNSResolver) LookupAddr(ctx context.Context, ip string) (string, error) {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", err
	}
	m := new(dns.Msg)
	m.SetQuestion(arpa, dns.TypePTR)
	m.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, m, r.server)
	if err != nil {
		return "", err
	}
	if in.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("%w: %s", ErrNoName, dns.RcodeToString[in.Rcode])
	}
	for _, rr := range in.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", ErrNoName
}

// ============================================================================
//                              名称补全
// ============================================================================

// enrich 为地址是 IP 的节点异步补全主机名
//
// 同一 IP 失败后记录 skip 标记，直到地址变化前不再重试。
func (s *Scanner) enrich() {
	if s.resolver == nil {
		return
	}
	for id := range s.lastSeen {
		p, ok := s.peers.Get(id)
		if !ok {
			continue
		}
		attrs := p.Attributes()
		ip := attrs.HostIP()
		if ip == nil {
			continue
		}
		addr := ip.String()
		if attrs[types.AttrDNSLastIP] == addr &&
			(attrs[types.AttrDNSName] != "" || attrs[types.AttrDNSSkip] == "true") {
			continue
		}
		if s.resolving.Contains(id) {
			continue
		}
		s.resolving.Add(id)
		go s.lookup(id, addr)
	}
}

func (s *Scanner) lookup(id, addr string) {
	ctx, cancel := context.WithTimeout(context.Background(), dnsTimeout+time.Second)
	defer cancel()

	var name string
	err := s.limiter.Wait(ctx)
	if err == nil {
		name, err = s.resolver.LookupAddr(ctx, addr)
	}
	s.exec.InvokeLater(func() {
		s.resolving.Remove(id)
		p, ok := s.peers.Get(id)
		if !ok {
			return
		}
		cur := p.Attributes()
		if ip := cur.HostIP(); ip == nil || ip.String() != addr {
			return
		}
		next := cur.Clone()
		next[types.AttrDNSLastIP] = addr
		if err != nil || name == "" {
			logger.Debug("反向解析失败", "peer", log.TruncateID(id, 12), "ip", addr, "error", err)
			next[types.AttrDNSSkip] = "true"
			delete(next, types.AttrDNSName)
		} else {
			next[types.AttrDNSName] = name
			delete(next, types.AttrDNSSkip)
		}
		if _, err := s.peers.Update(id, next); err != nil {
			logger.Debug("写入主机名失败", "peer", log.TruncateID(id, 12), "error", err)
		}
	})
}
