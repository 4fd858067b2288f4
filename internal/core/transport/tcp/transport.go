// Package tcp 提供基于 net 的流式传输：TCP、SSL（TLS over TCP）和 UNIX 域套接字
//
// 节点以属性寻址：
//
//	TCP/SSL  Host + Port
//	UNIX     PipeName（套接字路径）
package tcp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/lib/log"
	"github.com/dep2p/go-tcf/pkg/types"
)

var logger = log.Logger("transport/tcp")

// KeepAlive TCP 保活周期
const KeepAlive = 30 * time.Second

// Transport 流式传输
type Transport struct {
	name    string
	network string

	client *tls.Config
	server *tls.Config
}

var _ pkgif.Transport = (*Transport)(nil)

// New 创建 TCP 传输
func New() *Transport {
	return &Transport{name: types.TransportTCP, network: "tcp"}
}

// NewUnix 创建 UNIX 域套接字传输
func NewUnix() *Transport {
	return &Transport{name: types.TransportUnix, network: "unix"}
}

// SSLConfig SSL 传输配置
type SSLConfig struct {
	CertFile, KeyFile  string
	InsecureSkipVerify bool
}

// NewSSL 创建 SSL 传输
//
// 未提供证书时生成自签名证书用于监听。
func NewSSL(cfg SSLConfig) (*Transport, error) {
	var cert tls.Certificate
	var err error
	if cfg.CertFile != "" {
		cert, err = tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	} else {
		cert, err = SelfSignedCert()
	}
	if err != nil {
		return nil, fmt.Errorf("load ssl certificate: %w", err)
	}
	return &Transport{
		name:    types.TransportSSL,
		network: "tcp",
		client: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // 代理进程多为自签名证书
			MinVersion:         tls.VersionTLS12,
		},
		server: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
	}, nil
}

// Name 返回传输名称
func (t *Transport) Name() string { return t.name }

// Dial 拨号
func (t *Transport) Dial(ctx context.Context, attrs types.Attributes) (io.ReadWriteCloser, error) {
	addr, err := t.address(attrs, false)
	if err != nil {
		return nil, err
	}

	d := net.Dialer{KeepAlive: KeepAlive}
	conn, err := d.DialContext(ctx, t.network, addr)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	if t.client == nil {
		return conn, nil
	}

	cfg := t.client.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = attrs[types.AttrHost]
	}
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tlsConn, nil
}

// Listen 监听；TCP 端口为空或 0 时由系统分配
func (t *Transport) Listen(attrs types.Attributes) (pkgif.Listener, error) {
	addr, err := t.address(attrs, true)
	if err != nil {
		return nil, err
	}
	l, err := net.Listen(t.network, addr)
	if err != nil {
		return nil, err
	}
	if t.server != nil {
		l = tls.NewListener(l, t.server)
	}
	logger.Debug("开始监听", "transport", t.name, "addr", l.Addr().String())
	return &listener{Listener: l, transport: t.name}, nil
}

func (t *Transport) address(attrs types.Attributes, listen bool) (string, error) {
	if t.network == "unix" {
		path := attrs[types.AttrPipeName]
		if path == "" {
			return "", fmt.Errorf("%w: %s needs %s", ErrMissingAddress, t.name, types.AttrPipeName)
		}
		return path, nil
	}

	host, port := attrs[types.AttrHost], attrs[types.AttrPort]
	if listen {
		if port == "" {
			port = "0"
		}
	} else {
		if port == "" {
			return "", fmt.Errorf("%w: %s needs %s", ErrMissingAddress, t.name, types.AttrPort)
		}
		if host == "" {
			host = "127.0.0.1"
		}
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return "", fmt.Errorf("%w: bad port %q", ErrMissingAddress, port)
	}
	return net.JoinHostPort(host, port), nil
}

// ============================================================================
//                              Listener
// ============================================================================

type listener struct {
	net.Listener
	transport string
}

func (l *listener) Accept() (io.ReadWriteCloser, error) {
	return l.Listener.Accept()
}

// Attrs 返回本监听器的可连接属性
func (l *listener) Attrs() types.Attributes {
	attrs := types.Attributes{types.AttrTransportName: l.transport}
	switch a := l.Addr().(type) {
	case *net.TCPAddr:
		host := a.IP.String()
		if a.IP == nil || a.IP.IsUnspecified() {
			host = "127.0.0.1"
		}
		attrs[types.AttrHost] = host
		attrs[types.AttrPort] = strconv.Itoa(a.Port)
	case *net.UnixAddr:
		attrs[types.AttrPipeName] = a.Name
	}
	return attrs
}
