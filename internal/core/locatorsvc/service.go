// Package locatorsvc 实现 TCF Locator 服务
//
// 服务端（Service）应答 getPeers/sync/getAgentID，并把本地注册表的变化
// 以 peerAdded/peerChanged/peerRemoved 事件广播给已打开的通道；
// 客户端（Client）是远程 Locator 的代理。redirect 由通道自身处理。
package locatorsvc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dep2p/go-tcf/internal/core/channel"
	"github.com/dep2p/go-tcf/internal/core/service"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/lib/log"
	"github.com/dep2p/go-tcf/pkg/types"
)

var logger = log.Logger("core/locatorsvc")

// 命令与事件名
const (
	CommandGetPeers   = "getPeers"
	CommandSync       = "sync"
	CommandGetAgentID = "getAgentID"

	EventPeerAdded   = "peerAdded"
	EventPeerChanged = "peerChanged"
	EventPeerRemoved = "peerRemoved"
)

// ProviderName 服务提供者名称
const ProviderName = "locator"

// errNoRedirect 本端不转发
var errNoRedirect = errors.New("redirect is not supported by this peer")

// Service Locator 服务提供者
//
// 注册表为 nil 时 getPeers 返回空表，仍可作为客户端代理工厂使用。
type Service struct {
	exec    pkgif.Executor
	peers   pkgif.PeerRegistry
	agentID string

	// 只在调度 goroutine 上访问
	open map[pkgif.Channel]struct{}
	subs []pkgif.Subscription
}

var _ pkgif.ServiceProvider = (*Service)(nil)

// New 创建 Locator 服务
func New(exec pkgif.Executor, peers pkgif.PeerRegistry, agentID string) *Service {
	return &Service{
		exec:    exec,
		peers:   peers,
		agentID: agentID,
		open:    make(map[pkgif.Channel]struct{}),
	}
}

// Name 实现 ServiceProvider
func (s *Service) Name() string { return ProviderName }

// LocalServices 为通道提供 Locator 服务并跟踪其打开状态
func (s *Service) LocalServices(ch pkgif.Channel) []pkgif.LocalService {
	ch.AddListener(&pkgif.ChannelListenerFuncs{
		Opened: func() { s.open[ch] = struct{}{} },
		Closed: func(error) { delete(s.open, ch) },
	})

	svc := service.NewHandlerService(channel.ServiceLocator).
		Handle(CommandGetPeers, s.getPeers).
		Handle(CommandSync, func(_ pkgif.Channel, _ []json.RawMessage, r pkgif.Replier) {
			r.Reply(nil)
		}).
		Handle(CommandGetAgentID, func(_ pkgif.Channel, _ []json.RawMessage, r pkgif.Replier) {
			r.Reply(nil, s.agentID)
		}).
		Handle(channel.CommandRedirect, func(_ pkgif.Channel, _ []json.RawMessage, r pkgif.Replier) {
			r.Reply(channel.NewErrorReport(channel.CodeOther, errNoRedirect))
		})
	return []pkgif.LocalService{svc}
}

// ServiceProxy 为远程 Locator 构造客户端代理
func (s *Service) ServiceProxy(ch pkgif.Channel, name string) any {
	if name != channel.ServiceLocator {
		return nil
	}
	return NewClient(ch)
}

func (s *Service) getPeers(_ pkgif.Channel, _ []json.RawMessage, r pkgif.Replier) {
	r.Reply(nil, s.snapshot())
}

func (s *Service) snapshot() []types.Attributes {
	out := []types.Attributes{}
	if s.peers == nil {
		return out
	}
	for _, p := range s.peers.All() {
		out = append(out, p.Attributes().WithoutTransient())
	}
	return out
}

// ============================================================================
//                              事件广播
// ============================================================================

// Start 订阅注册表事件并转发给已打开的通道
func (s *Service) Start(bus pkgif.EventBus) error {
	listen := func(evt interface{}, fn func(interface{})) error {
		sub, err := bus.Listen(evt, nil, fn)
		if err != nil {
			return fmt.Errorf("locator subscribe: %w", err)
		}
		s.subs = append(s.subs, sub)
		return nil
	}
	if err := listen(new(types.EvtPeerAdded), func(e interface{}) {
		s.broadcast(EventPeerAdded, e.(types.EvtPeerAdded).Attrs.WithoutTransient())
	}); err != nil {
		return err
	}
	if err := listen(new(types.EvtPeerChanged), func(e interface{}) {
		s.broadcast(EventPeerChanged, e.(types.EvtPeerChanged).New.WithoutTransient())
	}); err != nil {
		return err
	}
	return listen(new(types.EvtPeerRemoved), func(e interface{}) {
		s.broadcast(EventPeerRemoved, e.(types.EvtPeerRemoved).PeerID)
	})
}

// Stop 取消订阅
func (s *Service) Stop() {
	for _, sub := range s.subs {
		_ = sub.Close()
	}
	s.subs = nil
}

// OpenChannels 已打开的通道数
func (s *Service) OpenChannels() int {
	s.exec.AssertDispatch()
	return len(s.open)
}

// broadcast 注册表事件在调度 goroutine 上发出
func (s *Service) broadcast(event string, arg any) {
	s.exec.AssertDispatch()
	for ch := range s.open {
		ch.SendEvent(channel.ServiceLocator, event, arg)
	}
}
