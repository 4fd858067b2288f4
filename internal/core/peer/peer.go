// Package peer 实现节点模型与注册表
//
// 注册节点（RegisteredPeer）由注册表持有，属性可更新；
// 临时节点（TransientPeer）随用随建，从不进入注册表。
package peer

import (
	"sync/atomic"

	"github.com/google/uuid"

	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/types"
)

// ============================================================================
//                              RegisteredPeer
// ============================================================================

// RegisteredPeer 注册表中的节点
//
// 属性快照整体替换，读取无需加锁。
type RegisteredPeer struct {
	id    string
	attrs atomic.Pointer[types.Attributes]
}

var _ pkgif.Peer = (*RegisteredPeer)(nil)

func newRegistered(attrs types.Attributes) *RegisteredPeer {
	p := &RegisteredPeer{id: attrs.ID()}
	snapshot := attrs.Clone()
	p.attrs.Store(&snapshot)
	return p
}

// ID 返回节点 ID
func (p *RegisteredPeer) ID() string { return p.id }

// Name 返回节点名称
func (p *RegisteredPeer) Name() string { return p.Attr(types.AttrName) }

// Attributes 返回属性副本
func (p *RegisteredPeer) Attributes() types.Attributes {
	return (*p.attrs.Load()).Clone()
}

// Attr 返回单个属性
func (p *RegisteredPeer) Attr(key string) string {
	return (*p.attrs.Load())[key]
}

// IsTransient 注册节点总是 false
func (p *RegisteredPeer) IsTransient() bool { return false }

// snapshot 返回内部快照（只读，不复制）
func (p *RegisteredPeer) snapshot() types.Attributes {
	return *p.attrs.Load()
}

func (p *RegisteredPeer) swap(attrs types.Attributes) {
	snapshot := attrs.Clone()
	p.attrs.Store(&snapshot)
}

// ============================================================================
//                              TransientPeer
// ============================================================================

// TransientPeer 临时节点，属性不可变
type TransientPeer struct {
	attrs types.Attributes
}

var _ pkgif.Peer = (*TransientPeer)(nil)

// NewTransient 创建临时节点；缺少 ID 时生成一个
func NewTransient(attrs types.Attributes) *TransientPeer {
	a := attrs.Clone()
	if a.ID() == "" {
		a[types.AttrID] = "transient-" + uuid.NewString()
	}
	return &TransientPeer{attrs: a}
}

// ID 返回节点 ID
func (p *TransientPeer) ID() string { return p.attrs.ID() }

// Name 返回节点名称
func (p *TransientPeer) Name() string { return p.attrs[types.AttrName] }

// Attributes 返回属性副本
func (p *TransientPeer) Attributes() types.Attributes { return p.attrs.Clone() }

// Attr 返回单个属性
func (p *TransientPeer) Attr(key string) string { return p.attrs[key] }

// IsTransient 总是 true
func (p *TransientPeer) IsTransient() bool { return true }
