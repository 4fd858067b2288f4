package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-tcf/internal/core/peer"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/lib/log"
	"github.com/dep2p/go-tcf/pkg/types"
)

var logger = log.Logger("core/channel")

const (
	// ServiceLocator 握手与重定向所属的服务
	ServiceLocator = "Locator"

	// EventHello 握手事件
	EventHello = "Hello"

	// CommandRedirect 重定向命令
	CommandRedirect = "redirect"

	// DefaultHandshakeTimeout 默认握手超时（含全部重定向）
	DefaultHandshakeTimeout = 30 * time.Second
)

// RedirectFunc 服务端处理重定向：连接到目标节点
type RedirectFunc func(ctx context.Context, target types.Attributes) (io.ReadWriteCloser, error)

// Options 通道选项
type Options struct {
	// Providers 为通道提供本地服务和远程服务代理，按注册顺序
	Providers []pkgif.ServiceProvider

	// Path 经过的 value-add 节点
	Path types.RedirectPath

	HandshakeTimeout time.Duration

	// Redirect 非空时本端接受 Locator.redirect 并转发字节流
	Redirect RedirectFunc

	// Meter 按服务和节点统计收发字节数，可为空
	Meter Meter

	// MaxMessageSize 单条接收消息的上限，<= 0 时为 DefaultMaxMessageSize
	MaxMessageSize int
}

// Meter 通道流量统计
type Meter interface {
	LogSentMessageStream(size int64, service, peerID string)
	LogRecvMessageStream(size int64, service, peerID string)
}

type pendingCommand struct {
	service string
	name    string
	done    pkgif.CommandDone
}

// ============================================================================
//                              Channel
// ============================================================================

// Channel 到一个节点的逻辑连接
//
// 读写由各自的 goroutine 完成，状态变化和回调都在调度 goroutine 上。
// State/RemotePeer/RedirectPath/RemoteServices 可在任意 goroutine 调用。
type Channel struct {
	exec   pkgif.Executor
	remote pkgif.Peer
	opts   Options

	state          atomic.Int32
	remoteServices atomic.Pointer[[]string]

	// 以下字段只在调度 goroutine 上访问
	conn        io.ReadWriteCloser
	hops        []types.Attributes
	listeners   []pkgif.ChannelListener
	pending     map[string]*pendingCommand
	nextToken   uint64
	events      map[string][]pkgif.EventListener
	local       map[string]pkgif.LocalService
	localOrder  []string
	proxies     map[string]any
	handshake   pkgif.Timer
	redirecting bool

	wq         *writeQueue
	gate       chan io.ReadWriteCloser
	done       chan struct{}
	relayClose sync.Once
}

var _ pkgif.Channel = (*Channel)(nil)

// New 创建处于 OPENING 状态的通道，Attach 之后开始握手
func New(exec pkgif.Executor, remote pkgif.Peer, opts Options) *Channel {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	opts.Path = opts.Path.Clone()
	c := &Channel{
		exec:    exec,
		remote:  remote,
		opts:    opts,
		pending: make(map[string]*pendingCommand),
		events:  make(map[string][]pkgif.EventListener),
		local:   make(map[string]pkgif.LocalService),
		proxies: make(map[string]any),
		wq:      newWriteQueue(),
		gate:    make(chan io.ReadWriteCloser, 1),
		done:    make(chan struct{}),
	}
	c.state.Store(int32(types.ChannelOpening))
	return c
}

// Accept 以接入的连接创建服务端通道
//
// 对端身份未知，以临时节点表示。
func Accept(exec pkgif.Executor, conn io.ReadWriteCloser, remote types.Attributes, opts Options) *Channel {
	c := New(exec, peer.NewTransient(remote), opts)
	c.Attach(conn, nil)
	return c
}

// Attach 绑定传输连接并发送 Hello
//
// hops 为连接建立后依次重定向的节点，最后一项是目标。
// 通道已关闭时直接关闭 conn。
func (c *Channel) Attach(conn io.ReadWriteCloser, hops []types.Attributes) {
	c.exec.AssertDispatch()
	if c.State() == types.ChannelClosed {
		_ = conn.Close()
		return
	}
	if c.conn != nil {
		logger.Warn("通道重复绑定连接", "peer", c.remote.ID())
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.hops = slices.Clone(hops)

	for _, p := range c.opts.Providers {
		for _, s := range p.LocalServices(c) {
			c.AddLocalService(s)
		}
	}

	go c.writeLoop(conn)
	go c.readLoop(conn)

	timeout := c.opts.HandshakeTimeout
	c.handshake = c.exec.InvokeLaterDelay(timeout, func() {
		if c.State() == types.ChannelOpening {
			c.shutdown(fmt.Errorf("%w: timed out after %s", ErrHandshake, timeout), false)
		}
	})
	c.sendHello()
}

// ============================================================================
//                              访问器
// ============================================================================

// State 返回通道状态
func (c *Channel) State() types.ChannelState {
	return types.ChannelState(c.state.Load())
}

// RemotePeer 返回目标节点
func (c *Channel) RemotePeer() pkgif.Peer { return c.remote }

// RedirectPath 返回经过的 value-add 节点
func (c *Channel) RedirectPath() types.RedirectPath { return c.opts.Path.Clone() }

// RemoteServices 返回远端 Hello 宣告的服务
func (c *Channel) RemoteServices() []string {
	p := c.remoteServices.Load()
	if p == nil {
		return nil
	}
	return slices.Clone(*p)
}

// LocalServices 返回本地服务名，按添加顺序
func (c *Channel) LocalServices() []string {
	c.exec.AssertDispatch()
	return slices.Clone(c.localOrder)
}

// String 便于日志输出
func (c *Channel) String() string {
	return fmt.Sprintf("channel(%s)", c.opts.Path.Encode(c.remote.ID()))
}

// ============================================================================
//                              监听与服务
// ============================================================================

// AddListener 添加状态监听者
func (c *Channel) AddListener(l pkgif.ChannelListener) {
	c.exec.AssertDispatch()
	c.listeners = append(c.listeners, l)
}

// RemoveListener 移除状态监听者
func (c *Channel) RemoveListener(l pkgif.ChannelListener) {
	c.exec.AssertDispatch()
	for i, x := range c.listeners {
		if x == l {
			c.listeners = slices.Delete(c.listeners, i, i+1)
			return
		}
	}
}

// AddEventListener 监听远程服务事件
func (c *Channel) AddEventListener(service string, l pkgif.EventListener) {
	c.exec.AssertDispatch()
	c.events[service] = append(c.events[service], l)
}

// AddLocalService 添加本地服务，同名替换
func (c *Channel) AddLocalService(s pkgif.LocalService) {
	c.exec.AssertDispatch()
	name := s.Name()
	if _, ok := c.local[name]; !ok {
		c.localOrder = append(c.localOrder, name)
	}
	c.local[name] = s
}

// RemoteService 返回远程服务代理
//
// 远端未宣告该服务或没有提供者能构造代理时返回 nil。
func (c *Channel) RemoteService(name string) any {
	c.exec.AssertDispatch()
	if !slices.Contains(c.RemoteServices(), name) {
		return nil
	}
	if p, ok := c.proxies[name]; ok {
		return p
	}
	for _, provider := range c.opts.Providers {
		if p := provider.ServiceProxy(c, name); p != nil {
			c.proxies[name] = p
			return p
		}
	}
	return nil
}

// ============================================================================
//                              发送
// ============================================================================

// SendCommand 发送命令，done 在调度 goroutine 上回调
func (c *Channel) SendCommand(service, name string, args []any, done pkgif.CommandDone) {
	c.exec.AssertDispatch()
	switch c.State() {
	case types.ChannelOpen:
		c.sendCommand(service, name, args, done)
	case types.ChannelOpening:
		c.exec.InvokeLater(func() { done(nil, ErrNotOpen) })
	default:
		c.exec.InvokeLater(func() { done(nil, ErrChannelClosed) })
	}
}

func (c *Channel) sendCommand(service, name string, args []any, done pkgif.CommandDone) {
	raw, err := EncodeArgs(args...)
	if err != nil {
		c.exec.InvokeLater(func() { done(nil, err) })
		return
	}
	c.nextToken++
	token := strconv.FormatUint(c.nextToken, 10)
	c.pending[token] = &pendingCommand{service: service, name: name, done: done}
	frame := Encode(&Message{Kind: KindCommand, Token: token, Service: service, Name: name, Args: raw})
	if !c.wq.push(writeItem{data: frame}) {
		delete(c.pending, token)
		c.exec.InvokeLater(func() { done(nil, ErrChannelClosed) })
		return
	}
	c.meterSent(service, len(frame))
}

// SendEvent 发送事件，通道未打开时丢弃
func (c *Channel) SendEvent(service, name string, args ...any) {
	c.exec.AssertDispatch()
	if c.State() != types.ChannelOpen {
		logger.Debug("通道未打开，丢弃事件", "channel", c, "service", service, "event", name)
		return
	}
	c.sendEvent(service, name, args...)
}

func (c *Channel) sendEvent(service, name string, args ...any) {
	raw, err := EncodeArgs(args...)
	if err != nil {
		logger.Warn("事件参数编码失败", "service", service, "event", name, "error", err)
		return
	}
	frame := Encode(&Message{Kind: KindEvent, Service: service, Name: name, Args: raw})
	if c.wq.push(writeItem{data: frame}) {
		c.meterSent(service, len(frame))
	}
}

func (c *Channel) sendHello() {
	services := c.localOrder
	if !slices.Contains(services, ServiceLocator) {
		services = append([]string{ServiceLocator}, services...)
	}
	c.sendEvent(ServiceLocator, EventHello, services)
}

func (c *Channel) reply(kind byte, service, token string, results ...any) {
	raw, err := EncodeArgs(results...)
	if err != nil {
		logger.Warn("应答编码失败", "channel", c, "token", token, "error", err)
		raw, _ = EncodeArgs(NewErrorReport(CodeOther, err))
	}
	frame := Encode(&Message{Kind: kind, Token: token, Args: raw})
	if c.wq.push(writeItem{data: frame}) {
		c.meterSent(service, len(frame))
	}
}

func (c *Channel) meterSent(service string, n int) {
	if c.opts.Meter != nil {
		c.opts.Meter.LogSentMessageStream(int64(n), service, c.remote.ID())
	}
}

// ============================================================================
//                              关闭
// ============================================================================

// Close 正常关闭：发送 EOS 后关闭连接
//
// 可在任意 goroutine 调用，关闭在调度 goroutine 上执行。
func (c *Channel) Close() {
	c.onDispatch(func() { c.shutdown(nil, true) })
}

// Terminate 以错误终止
func (c *Channel) Terminate(err error) {
	c.onDispatch(func() { c.shutdown(err, false) })
}

func (c *Channel) onDispatch(fn func()) {
	if c.exec.IsDispatchThread() {
		fn()
		return
	}
	c.exec.InvokeLater(fn)
}

func (c *Channel) shutdown(err error, graceful bool) {
	if !c.markClosed() {
		return
	}
	if graceful && c.conn != nil {
		c.wq.push(writeItem{eos: true})
	}
	c.wq.close()
	if !graceful && c.conn != nil {
		_ = c.conn.Close()
	}
	close(c.done)

	if err != nil {
		logger.Debug("通道终止", "channel", c, "error", err)
	} else {
		logger.Debug("通道关闭", "channel", c)
	}
	c.failPending(err)
	c.notifyClosed(err)
}

// markClosed 迁移到 CLOSED，已关闭时返回 false
func (c *Channel) markClosed() bool {
	if c.State() == types.ChannelClosed {
		return false
	}
	c.state.Store(int32(types.ChannelClosed))
	if c.handshake != nil {
		c.handshake.Stop()
	}
	return true
}

func (c *Channel) failPending(cause error) {
	err := ErrChannelClosed
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrChannelClosed, cause)
	}
	pending := c.pending
	c.pending = make(map[string]*pendingCommand)
	for _, p := range pending {
		p.done(nil, err)
	}
}

func (c *Channel) notifyClosed(err error) {
	for _, l := range slices.Clone(c.listeners) {
		l.OnClosed(err)
	}
}

func (c *Channel) setOpen() {
	if c.handshake != nil {
		c.handshake.Stop()
	}
	c.state.Store(int32(types.ChannelOpen))
	logger.Debug("通道已打开", "channel", c, "services", c.RemoteServices())
	for _, l := range slices.Clone(c.listeners) {
		l.OnOpened()
	}
}

// ============================================================================
//                              接收
// ============================================================================

func (c *Channel) readLoop(conn io.ReadWriteCloser) {
	dec := NewDecoderSize(conn, c.opts.MaxMessageSize)
	for {
		m, err := dec.Decode()
		if err != nil {
			c.exec.InvokeLater(func() { c.onIOError(err) })
			return
		}
		if m.Kind == KindFlow {
			continue
		}
		if c.opts.Meter != nil {
			c.opts.Meter.LogRecvMessageStream(int64(dec.Size()), m.Service, c.remote.ID())
		}
		c.exec.InvokeLater(func() { c.handle(m) })

		if c.opts.Redirect != nil && isRedirect(m) {
			target, ok := c.awaitGate()
			if !ok {
				return
			}
			if target != nil {
				c.relay(target, dec.Reader(), conn)
				return
			}
		}
	}
}

func isRedirect(m *Message) bool {
	return m.Kind == KindCommand && m.Service == ServiceLocator && m.Name == CommandRedirect
}

// awaitGate 重定向命令之后暂停读取，直到应答确定转发目标
//
// 返回 nil, true 表示重定向失败，继续按协议读取。
func (c *Channel) awaitGate() (io.ReadWriteCloser, bool) {
	select {
	case t := <-c.gate:
		return t, true
	case <-c.done:
		select {
		case t := <-c.gate:
			return t, true
		default:
			return nil, false
		}
	}
}

func (c *Channel) onIOError(err error) {
	if c.State() == types.ChannelClosed {
		return
	}
	if errors.Is(err, io.EOF) {
		err = ErrRemoteClosed
	}
	c.shutdown(err, false)
}

func (c *Channel) handle(m *Message) {
	if c.State() == types.ChannelClosed {
		return
	}
	switch m.Kind {
	case KindEvent:
		if m.Service == ServiceLocator && m.Name == EventHello {
			c.onHello(m.Args)
			return
		}
		for _, l := range slices.Clone(c.events[m.Service]) {
			l(m.Name, m.Args)
		}
	case KindCommand:
		c.onCommand(m)
	case KindResult:
		p, ok := c.pending[m.Token]
		if !ok {
			logger.Warn("收到未知令牌的应答", "channel", c, "token", m.Token)
			return
		}
		delete(c.pending, m.Token)
		p.done(m.Args, nil)
	case KindProgress:
		logger.Debug("收到进度", "channel", c, "token", m.Token)
	case KindUnknown:
		p, ok := c.pending[m.Token]
		if !ok {
			return
		}
		delete(c.pending, m.Token)
		p.done(nil, fmt.Errorf("%w: %s.%s", ErrUnknownCommand, p.service, p.name))
	}
}

func (c *Channel) onHello(args []json.RawMessage) {
	var services []string
	if len(args) > 0 {
		if err := json.Unmarshal(args[0], &services); err != nil {
			c.shutdown(fmt.Errorf("%w: bad Hello: %w", ErrHandshake, err), false)
			return
		}
	}
	c.remoteServices.Store(&services)

	if c.State() != types.ChannelOpening || c.redirecting {
		logger.Debug("忽略多余的 Hello", "channel", c)
		return
	}
	if len(c.hops) == 0 {
		c.setOpen()
		return
	}

	hop := c.hops[0]
	c.hops = c.hops[1:]
	c.redirecting = true
	logger.Debug("重定向", "channel", c, "hop", hop.ID())
	c.sendCommand(ServiceLocator, CommandRedirect, []any{map[string]string(hop)}, func(results []json.RawMessage, err error) {
		c.redirecting = false
		if err == nil && len(results) > 0 {
			err = ParseError(results[0])
		}
		if err != nil {
			c.shutdown(fmt.Errorf("%w: %s: %w", ErrRedirect, hop.ID(), err), false)
			return
		}
		c.remoteServices.Store(nil)
		clear(c.proxies)
		c.sendHello()
	})
}

func (c *Channel) onCommand(m *Message) {
	r := &replier{c: c, service: m.Service, token: m.Token}
	if c.opts.Redirect != nil && isRedirect(m) {
		c.serveRedirect(m, r)
		return
	}
	svc, ok := c.local[m.Service]
	if !ok {
		r.Unknown()
		return
	}
	svc.HandleCommand(c, m.Name, m.Args, r)
}

// ============================================================================
//                              服务端重定向
// ============================================================================

func (c *Channel) serveRedirect(m *Message, r *replier) {
	var target types.Attributes
	var err error
	if len(m.Args) == 0 {
		err = fmt.Errorf("%w: redirect without target", ErrProtocol)
	} else {
		target, err = ParseRedirectTarget(m.Args[0])
	}
	if err != nil {
		r.Reply(NewErrorReport(CodeOther, err))
		c.resumeReading()
		return
	}

	redirect := c.opts.Redirect
	timeout := c.opts.HandshakeTimeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		conn, err := redirect(ctx, target)
		c.exec.InvokeLater(func() {
			if err != nil {
				logger.Debug("重定向目标不可达", "channel", c, "target", target.ID(), "error", err)
				r.Reply(NewErrorReport(CodeUnknownPeer, err))
				c.resumeReading()
				return
			}
			if c.State() == types.ChannelClosed {
				_ = conn.Close()
				return
			}
			r.Reply(nil)
			c.splice(conn)
		})
	}()
}

// ParseRedirectTarget 解析重定向参数：节点 ID 字符串或属性表
func ParseRedirectTarget(raw json.RawMessage) (types.Attributes, error) {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		if id == "" {
			return nil, fmt.Errorf("%w: empty redirect target", ErrProtocol)
		}
		return types.Attributes{types.AttrID: id}, nil
	}
	var attrs map[string]string
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("%w: bad redirect target: %w", ErrProtocol, err)
	}
	return types.Attributes(attrs), nil
}

func (c *Channel) resumeReading() {
	select {
	case c.gate <- nil:
	default:
	}
}

// splice 应答已入队，此后两条字节流直接对接
func (c *Channel) splice(target io.ReadWriteCloser) {
	logger.Debug("开始转发", "channel", c)
	c.wq.push(writeItem{splice: target})
	c.gate <- target

	if !c.markClosed() {
		return
	}
	c.wq.close()
	close(c.done)
	c.failPending(nil)
	c.notifyClosed(nil)
}

func (c *Channel) relay(target io.ReadWriteCloser, from io.Reader, conn io.ReadWriteCloser) {
	_, err := io.Copy(target, from)
	logger.Debug("转发结束", "direction", "in", "error", err)
	c.closeRelay(target, conn)
}

func (c *Channel) closeRelay(target, conn io.ReadWriteCloser) {
	c.relayClose.Do(func() {
		_ = target.Close()
		_ = conn.Close()
	})
}

// ============================================================================
//                              写
// ============================================================================

func (c *Channel) writeLoop(conn io.ReadWriteCloser) {
	for {
		batch, ok := c.wq.take()
		if !ok {
			return
		}
		for _, it := range batch {
			switch {
			case it.splice != nil:
				_, err := io.Copy(conn, it.splice)
				logger.Debug("转发结束", "direction", "out", "error", err)
				c.closeRelay(it.splice, conn)
				return
			case it.eos:
				_, _ = conn.Write(eosBytes)
				_ = conn.Close()
				return
			default:
				if _, err := conn.Write(it.data); err != nil {
					c.exec.InvokeLater(func() { c.onIOError(err) })
					_ = conn.Close()
					return
				}
			}
		}
	}
}

// ============================================================================
//                              replier
// ============================================================================

type replier struct {
	c       *Channel
	service string
	token   string
	replied atomic.Bool
}

var _ pkgif.Replier = (*replier)(nil)

// Reply 发送 R 消息
func (r *replier) Reply(results ...any) {
	if !r.replied.CompareAndSwap(false, true) {
		logger.Warn("重复应答", "channel", r.c, "token", r.token)
		return
	}
	r.c.reply(KindResult, r.service, r.token, results...)
}

// Progress 发送 P 消息
func (r *replier) Progress(results ...any) {
	if r.replied.Load() {
		return
	}
	r.c.reply(KindProgress, r.service, r.token, results...)
}

// Unknown 发送 N 消息
func (r *replier) Unknown() {
	if !r.replied.CompareAndSwap(false, true) {
		return
	}
	r.c.wq.push(writeItem{data: Encode(&Message{Kind: KindUnknown, Token: r.token})})
}
