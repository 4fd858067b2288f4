// Package ws 提供 WebSocket 传输（WS / WSS）
//
// 每次 Write 作为一个二进制帧发送，读取端把连续的帧拼成字节流。
package ws

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/lib/log"
	"github.com/dep2p/go-tcf/pkg/types"
)

var logger = log.Logger("transport/ws")

// GracefulCloseTimeout 发送关闭帧的等待上限
const GracefulCloseTimeout = 100 * time.Millisecond

var (
	// ErrMissingAddress 属性中缺少地址
	ErrMissingAddress = errors.New("ws: missing Host/Port")

	// ErrListenerClosed 监听器已关闭
	ErrListenerClosed = errors.New("ws: listener closed")
)

// Config WebSocket 传输配置
type Config struct {
	// Path HTTP 路径，默认 "/tcf"
	Path string

	// TLS 非空时为 WSS：Server 用于监听，Client 用于拨号
	ServerTLS *tls.Config
	ClientTLS *tls.Config
}

// Transport WebSocket 传输
type Transport struct {
	cfg Config
}

var _ pkgif.Transport = (*Transport)(nil)

// New 创建传输；ServerTLS 或 ClientTLS 非空时为 WSS
func New(cfg Config) *Transport {
	if cfg.Path == "" {
		cfg.Path = "/tcf"
	}
	return &Transport{cfg: cfg}
}

func (t *Transport) secure() bool {
	return t.cfg.ServerTLS != nil || t.cfg.ClientTLS != nil
}

// Name 返回 "WS" 或 "WSS"
func (t *Transport) Name() string {
	if t.secure() {
		return types.TransportWSS
	}
	return types.TransportWS
}

// Dial 建立 WebSocket 连接
func (t *Transport) Dial(ctx context.Context, attrs types.Attributes) (io.ReadWriteCloser, error) {
	host, port := attrs[types.AttrHost], attrs[types.AttrPort]
	if port == "" {
		return nil, ErrMissingAddress
	}
	if host == "" {
		host = "127.0.0.1"
	}

	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, port), Path: t.cfg.Path}
	if t.secure() {
		u.Scheme = "wss"
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 30 * time.Second,
		TLSClientConfig:  t.cfg.ClientTLS,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("ws dial %s: %w", u.String(), err)
	}
	return newConn(conn), nil
}

// Listen 启动 HTTP 服务并在 Path 上接受升级
func (t *Transport) Listen(attrs types.Attributes) (pkgif.Listener, error) {
	port := attrs[types.AttrPort]
	if port == "" {
		port = "0"
	}
	nl, err := net.Listen("tcp", net.JoinHostPort(attrs[types.AttrHost], port))
	if err != nil {
		return nil, err
	}
	if t.cfg.ServerTLS != nil {
		nl = tls.NewListener(nl, t.cfg.ServerTLS)
	}

	l := &listener{
		name:     t.Name(),
		addr:     nl.Addr(),
		incoming: make(chan *Conn),
		closed:   make(chan struct{}),
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// 代理不是浏览器页面，不校验 Origin
		CheckOrigin: func(*http.Request) bool { return true },
	}
	mux := http.NewServeMux()
	mux.HandleFunc(t.cfg.Path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("升级失败", "remote", r.RemoteAddr, "error", err)
			return
		}
		select {
		case l.incoming <- newConn(conn):
		case <-l.closed:
			_ = conn.Close()
		}
	})
	l.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := l.server.Serve(nl); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("WebSocket 服务退出", "error", err)
		}
	}()
	return l, nil
}

// ============================================================================
//                              Listener
// ============================================================================

type listener struct {
	name      string
	addr      net.Addr
	server    *http.Server
	incoming  chan *Conn
	closed    chan struct{}
	closeOnce sync.Once
}

func (l *listener) Accept() (io.ReadWriteCloser, error) {
	select {
	case c := <-l.incoming:
		return c, nil
	case <-l.closed:
		return nil, ErrListenerClosed
	}
}

func (l *listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.server.Close()
	})
	return err
}

func (l *listener) Attrs() types.Attributes {
	attrs := types.Attributes{types.AttrTransportName: l.name}
	if a, ok := l.addr.(*net.TCPAddr); ok {
		host := a.IP.String()
		if a.IP == nil || a.IP.IsUnspecified() {
			host = "127.0.0.1"
		}
		attrs[types.AttrHost] = host
		attrs[types.AttrPort] = strconv.Itoa(a.Port)
	}
	return attrs
}

// ============================================================================
//                              Conn
// ============================================================================

// Conn 把 WebSocket 消息流适配为字节流
type Conn struct {
	ws        *websocket.Conn
	reader    io.Reader
	closeOnce sync.Once
}

func newConn(c *websocket.Conn) *Conn {
	return &Conn{ws: c}
}

// Read 读取字节，跨帧连续
func (c *Conn) Read(b []byte) (int, error) {
	for {
		if c.reader == nil {
			if err := c.nextReader(); err != nil {
				return 0, err
			}
		}
		n, err := c.reader.Read(b)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *Conn) nextReader() error {
	typ, r, err := c.ws.NextReader()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseNoStatusReceived) {
			return io.EOF
		}
		return err
	}
	if typ == websocket.CloseMessage {
		return io.EOF
	}
	c.reader = r
	return nil
}

// Write 每次调用发送一个二进制帧
func (c *Conn) Write(b []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close 发送关闭帧后关闭底层连接
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(GracefulCloseTimeout))
		err = c.ws.Close()
	})
	return err
}
