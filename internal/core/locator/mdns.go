package locator

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/dep2p/go-tcf/pkg/lib/log"
	"github.com/dep2p/go-tcf/pkg/types"
)

// mdnsMaxQuery 单次 mDNS 查询的最长时间
const mdnsMaxQuery = 2 * time.Second

// txtMaxLen 单条 TXT 记录上限
const txtMaxLen = 255

// MDNSConfig mDNS 参数
type MDNSConfig struct {
	Service string
	Domain  string

	// LocalID 本机代理 ID，查询结果中的自身条目被忽略
	LocalID string
}

// ============================================================================
//                              mDNS 探测
// ============================================================================

// MDNSProber 通过 mDNS 查询发现代理
//
// 代理把属性编码为 key=value 的 TXT 记录；没有 TXT 属性时按 A 记录和
// 端口构造 TCP 节点。
type MDNSProber struct {
	cfg MDNSConfig
}

// NewMDNSProber 创建 mDNS 探测
func NewMDNSProber(cfg MDNSConfig) *MDNSProber {
	return &MDNSProber{cfg: cfg}
}

// Name 实现 pkgif.Prober
func (p *MDNSProber) Name() string { return SourceMDNS }

// Probe 实现 pkgif.Prober
func (p *MDNSProber) Probe(ctx context.Context) ([]types.ProbeResponse, error) {
	timeout := mdnsMaxQuery
	if dl, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(dl))
	}
	if timeout <= 0 {
		return nil, ctx.Err()
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	var (
		wg  sync.WaitGroup
		out []types.ProbeResponse
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			attrs := entryAttrs(entry)
			if attrs == nil || attrs.ID() == p.cfg.LocalID {
				continue
			}
			out = append(out, types.ProbeResponse{Attrs: attrs, Source: SourceMDNS})
		}
	}()

	err := mdns.Query(&mdns.QueryParam{
		Service:             p.cfg.Service,
		Domain:              p.cfg.Domain,
		Timeout:             timeout,
		Entries:             entries,
		DisableIPv6:         true,
		WantUnicastResponse: true,
	})
	close(entries)
	wg.Wait()
	if err != nil {
		return out, fmt.Errorf("mdns query: %w", err)
	}
	return out, nil
}

// entryAttrs 把服务条目转换为节点属性
func entryAttrs(entry *mdns.ServiceEntry) types.Attributes {
	if entry == nil {
		return nil
	}
	attrs := parseTXT(entry.InfoFields)
	if attrs[types.AttrTransportName] == "" {
		attrs[types.AttrTransportName] = types.TransportTCP
	}
	if attrs[types.AttrHost] == "" && entry.AddrV4 != nil {
		attrs[types.AttrHost] = entry.AddrV4.String()
	}
	if attrs[types.AttrPort] == "" && entry.Port > 0 {
		attrs[types.AttrPort] = strconv.Itoa(entry.Port)
	}
	if attrs[types.AttrHost] == "" || attrs[types.AttrPort] == "" {
		return nil
	}
	if attrs.ID() == "" {
		attrs[types.AttrID] = attrs[types.AttrTransportName] + ":" + attrs[types.AttrHost] + ":" + attrs[types.AttrPort]
	}
	return attrs
}

func parseTXT(fields []string) types.Attributes {
	attrs := make(types.Attributes)
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			continue
		}
		attrs[k] = v
	}
	return attrs
}

// buildTXT 每个属性一条记录，超过 255 字节的丢弃
func buildTXT(attrs types.Attributes) []string {
	keys := attrs.WithoutTransient().Keys()
	slices.Sort(keys)
	txt := make([]string, 0, len(keys))
	for _, k := range keys {
		rec := k + "=" + attrs[k]
		if len(rec) > txtMaxLen {
			logger.Debug("TXT 记录过长，已丢弃", "key", k, "len", len(rec))
			continue
		}
		txt = append(txt, rec)
	}
	return txt
}

// ============================================================================
//                              mDNS 广播
// ============================================================================

// Advertisement 一个正在响应 mDNS 查询的服务
type Advertisement struct {
	server *mdns.Server
}

// Advertise 为本机监听点发布 mDNS 服务
func Advertise(cfg MDNSConfig, attrs types.Attributes) (*Advertisement, error) {
	port, err := strconv.Atoi(attrs[types.AttrPort])
	if err != nil || port <= 0 {
		return nil, fmt.Errorf("advertise: invalid port %q", attrs[types.AttrPort])
	}
	var ips []net.IP
	if ip := attrs.HostIP(); ip != nil && !ip.IsUnspecified() {
		ips = []net.IP{ip}
	}

	instance := "tcf-" + log.TruncateID(strings.NewReplacer(":", "-", ".", "-").Replace(attrs.ID()), 40)
	service, err := mdns.NewMDNSService(instance, cfg.Service, cfg.Domain, "", port, ips, buildTXT(attrs))
	if err != nil {
		return nil, fmt.Errorf("create mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("start mdns server: %w", err)
	}
	logger.Info("mDNS 广播已启动", "instance", instance, "service", cfg.Service, "port", port)
	return &Advertisement{server: server}, nil
}

// Close 停止广播
func (a *Advertisement) Close() error {
	return a.server.Shutdown()
}
