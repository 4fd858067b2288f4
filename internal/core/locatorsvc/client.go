package locatorsvc

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dep2p/go-tcf/internal/core/channel"
	"github.com/dep2p/go-tcf/internal/core/proxy"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/types"
)

// Locator 远程 Locator 服务
//
// 所有方法都在调度 goroutine 上调用，回调也在调度 goroutine 上。
type Locator interface {
	GetPeers(done func(peers []types.Attributes, err error))
	Redirect(target types.Attributes, done func(err error))
	Sync(done func(err error))
	GetAgentID(done func(id string, err error))
}

// Descriptor Locator 接口的代理描述符
var Descriptor = proxy.Register[Locator](proxy.Describe(channel.ServiceLocator,
	proxy.Async("GetPeers", 0),
	proxy.Async("Redirect", 1),
	proxy.Async("Sync", 0),
	proxy.Async("GetAgentID", 0),
))

// Listener 远端节点表变化
type Listener struct {
	PeerAdded   func(attrs types.Attributes)
	PeerChanged func(attrs types.Attributes)
	PeerRemoved func(id string)
}

// Client 通道上的 Locator 代理
type Client struct {
	ch        pkgif.Channel
	listeners []*Listener
}

var _ Locator = (*Client)(nil)

// NewClient 创建代理并监听远端事件，须在调度 goroutine 上调用
func NewClient(ch pkgif.Channel) *Client {
	c := &Client{ch: ch}
	ch.AddEventListener(channel.ServiceLocator, c.onEvent)
	return c
}

// Channel 返回所在通道
func (c *Client) Channel() pkgif.Channel { return c.ch }

// AddListener 添加远端节点表监听者
func (c *Client) AddListener(l *Listener) {
	c.listeners = append(c.listeners, l)
}

// RemoveListener 移除监听者
func (c *Client) RemoveListener(l *Listener) {
	if i := slices.Index(c.listeners, l); i >= 0 {
		c.listeners = slices.Delete(c.listeners, i, i+1)
	}
}

// GetPeers 查询远端已知的节点
func (c *Client) GetPeers(done func([]types.Attributes, error)) {
	c.ch.SendCommand(channel.ServiceLocator, CommandGetPeers, nil, func(results []json.RawMessage, err error) {
		if err = replyError(results, err); err != nil {
			done(nil, err)
			return
		}
		var peers []types.Attributes
		if len(results) > 1 {
			if err := json.Unmarshal(results[1], &peers); err != nil {
				done(nil, fmt.Errorf("%w: getPeers: %w", channel.ErrProtocol, err))
				return
			}
		}
		done(peers, nil)
	})
}

// Redirect 请求远端把通道转接到 target
//
// 通道自身在打开过程中完成重定向，这里用于已打开的通道上的显式调用。
func (c *Client) Redirect(target types.Attributes, done func(error)) {
	c.ch.SendCommand(channel.ServiceLocator, channel.CommandRedirect, []any{map[string]string(target)}, func(results []json.RawMessage, err error) {
		done(replyError(results, err))
	})
}

// Sync 等待远端处理完之前的全部消息
func (c *Client) Sync(done func(error)) {
	c.ch.SendCommand(channel.ServiceLocator, CommandSync, nil, func(results []json.RawMessage, err error) {
		done(replyError(results, err))
	})
}

// GetAgentID 查询远端代理 ID
func (c *Client) GetAgentID(done func(string, error)) {
	c.ch.SendCommand(channel.ServiceLocator, CommandGetAgentID, nil, func(results []json.RawMessage, err error) {
		if err = replyError(results, err); err != nil {
			done("", err)
			return
		}
		var id string
		if len(results) > 1 {
			_ = json.Unmarshal(results[1], &id)
		}
		done(id, nil)
	})
}

func (c *Client) onEvent(name string, args []json.RawMessage) {
	if len(args) == 0 {
		return
	}
	switch name {
	case EventPeerAdded, EventPeerChanged:
		var attrs types.Attributes
		if err := json.Unmarshal(args[0], &attrs); err != nil || attrs.ID() == "" {
			logger.Warn("无效的节点事件", "event", name, "error", err)
			return
		}
		for _, l := range slices.Clone(c.listeners) {
			if name == EventPeerAdded && l.PeerAdded != nil {
				l.PeerAdded(attrs.Clone())
			}
			if name == EventPeerChanged && l.PeerChanged != nil {
				l.PeerChanged(attrs.Clone())
			}
		}
	case EventPeerRemoved:
		var id string
		if err := json.Unmarshal(args[0], &id); err != nil {
			return
		}
		for _, l := range slices.Clone(c.listeners) {
			if l.PeerRemoved != nil {
				l.PeerRemoved(id)
			}
		}
	default:
		logger.Debug("未知的 Locator 事件", "event", name)
	}
}

// replyError 取出应答中的错误字段
func replyError(results []json.RawMessage, err error) error {
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}
	return channel.ParseError(results[0])
}
