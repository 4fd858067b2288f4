package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/dep2p/go-tcf/config"
	"github.com/dep2p/go-tcf/internal/core/transport/pipe"
	"github.com/dep2p/go-tcf/internal/core/transport/tcp"
	"github.com/dep2p/go-tcf/internal/core/transport/ws"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/lib/log"
	"github.com/dep2p/go-tcf/pkg/types"
)

var logger = log.Logger("core/transport")

// Registry 按 TransportName 选择传输
type Registry struct {
	mu         sync.RWMutex
	transports map[string]pkgif.Transport
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{transports: make(map[string]pkgif.Transport)}
}

// NewDefaultRegistry 注册 TCP、SSL、UNIX、PIPE、WS、WSS
//
// hub 为空时新建一个 PIPE 命名空间。
func NewDefaultRegistry(cfg config.TransportConfig, hub *pipe.Hub) (*Registry, error) {
	r := NewRegistry()
	r.Register(tcp.New())
	r.Register(tcp.NewUnix())

	ssl, err := tcp.NewSSL(tcp.SSLConfig{
		CertFile:           cfg.TLSCertFile,
		KeyFile:            cfg.TLSKeyFile,
		InsecureSkipVerify: cfg.TLSInsecureSkipVerify,
	})
	if err != nil {
		return nil, err
	}
	r.Register(ssl)

	if hub == nil {
		hub = pipe.NewHub()
	}
	r.Register(pipe.New(hub))

	r.Register(ws.New(ws.Config{Path: cfg.WebSocketPath}))
	serverTLS, clientTLS, err := wssConfig(cfg)
	if err != nil {
		return nil, err
	}
	r.Register(ws.New(ws.Config{Path: cfg.WebSocketPath, ServerTLS: serverTLS, ClientTLS: clientTLS}))
	return r, nil
}

func wssConfig(cfg config.TransportConfig) (*tls.Config, *tls.Config, error) {
	var cert tls.Certificate
	var err error
	if cfg.TLSCertFile != "" {
		cert, err = tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
	} else {
		cert, err = tcp.SelfSignedCert()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load wss certificate: %w", err)
	}
	server := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	client := &tls.Config{InsecureSkipVerify: cfg.TLSInsecureSkipVerify, MinVersion: tls.VersionTLS12} //nolint:gosec // 代理进程多为自签名证书
	return server, client, nil
}

// Register 注册传输，同名覆盖
func (r *Registry) Register(t pkgif.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[strings.ToUpper(t.Name())] = t
}

// Get 按名称查找
func (r *Registry) Get(name string) (pkgif.Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[strings.ToUpper(name)]
	return t, ok
}

// Names 已注册的传输名称
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.transports))
	for n := range r.transports {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Dial 按属性中的 TransportName（默认 TCP）拨号
func (r *Registry) Dial(ctx context.Context, attrs types.Attributes) (io.ReadWriteCloser, error) {
	t, ok := r.Get(attrs.Transport())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoTransport, attrs.Transport())
	}
	logger.Debug("拨号", "transport", t.Name(), "peer", attrs.ID())
	return t.Dial(ctx, attrs)
}

// Listen 按属性中的 TransportName 监听
func (r *Registry) Listen(attrs types.Attributes) (pkgif.Listener, error) {
	t, ok := r.Get(attrs.Transport())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoTransport, attrs.Transport())
	}
	return t.Listen(attrs)
}
