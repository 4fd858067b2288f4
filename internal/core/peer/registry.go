package peer

import (
	"fmt"
	"slices"
	"sort"

	"github.com/dep2p/go-tcf/internal/core/peerstore"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/lib/log"
	"github.com/dep2p/go-tcf/pkg/types"
)

var logger = log.Logger("core/peer")

// Registry 节点注册表
//
// 所有方法只能在调度 goroutine 上调用。
type Registry struct {
	exec  pkgif.Executor
	store *peerstore.Store

	peers      map[string]*RegisteredPeer
	persistent map[string]bool

	// children 父节点 → 重定向子节点 ID（按报告顺序）
	children map[string][]string
	parentOf map[string]string

	emAdded    pkgif.Emitter
	emChanged  pkgif.Emitter
	emRemoved  pkgif.Emitter
	emChildren pkgif.Emitter
}

var _ pkgif.PeerRegistry = (*Registry)(nil)

// NewRegistry 创建注册表；store 为空时不持久化
func NewRegistry(exec pkgif.Executor, bus pkgif.EventBus, store *peerstore.Store) (*Registry, error) {
	r := &Registry{
		exec:       exec,
		store:      store,
		peers:      make(map[string]*RegisteredPeer),
		persistent: make(map[string]bool),
		children:   make(map[string][]string),
		parentOf:   make(map[string]string),
	}

	var err error
	if r.emAdded, err = bus.Emitter(new(types.EvtPeerAdded)); err != nil {
		return nil, fmt.Errorf("peer added emitter: %w", err)
	}
	if r.emChanged, err = bus.Emitter(new(types.EvtPeerChanged)); err != nil {
		return nil, fmt.Errorf("peer changed emitter: %w", err)
	}
	if r.emRemoved, err = bus.Emitter(new(types.EvtPeerRemoved)); err != nil {
		return nil, fmt.Errorf("peer removed emitter: %w", err)
	}
	if r.emChildren, err = bus.Emitter(new(types.EvtPeerChildrenChanged)); err != nil {
		return nil, fmt.Errorf("peer children emitter: %w", err)
	}
	return r, nil
}

// ============================================================================
//                              查询
// ============================================================================

// Get 按 ID 查找
func (r *Registry) Get(id string) (pkgif.Peer, bool) {
	r.exec.AssertDispatch()
	p, ok := r.peers[id]
	if !ok {
		return nil, false
	}
	return p, true
}

// All 返回全部节点，按 ID 排序
func (r *Registry) All() []pkgif.Peer {
	r.exec.AssertDispatch()
	return r.sorted(func(string) bool { return true })
}

// Roots 返回不是重定向子节点的节点
func (r *Registry) Roots() []pkgif.Peer {
	r.exec.AssertDispatch()
	return r.sorted(func(id string) bool {
		_, child := r.parentOf[id]
		return !child
	})
}

// IsPersistent 是否为持久化（用户创建的）节点
func (r *Registry) IsPersistent(id string) bool {
	r.exec.AssertDispatch()
	return r.persistent[id]
}

// Children 返回重定向子节点
func (r *Registry) Children(parentID string) []pkgif.Peer {
	r.exec.AssertDispatch()
	ids := r.children[parentID]
	out := make([]pkgif.Peer, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.peers[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Parent 返回子节点的父节点 ID
func (r *Registry) Parent(childID string) (string, bool) {
	r.exec.AssertDispatch()
	parent, ok := r.parentOf[childID]
	return parent, ok
}

// IsRedirected 是否为重定向子节点
func (r *Registry) IsRedirected(id string) bool {
	r.exec.AssertDispatch()
	_, ok := r.parentOf[id]
	return ok
}

// ============================================================================
//                              变更
// ============================================================================

// Add 新增节点
//
// ID 已存在时按 Update 处理并返回原对象，persist 为真时同时转为持久化节点。
func (r *Registry) Add(attrs types.Attributes, persist bool) (pkgif.Peer, error) {
	r.exec.AssertDispatch()

	id := attrs.ID()
	if id == "" {
		return nil, ErrMissingID
	}

	if p, ok := r.peers[id]; ok {
		if _, err := r.Update(id, attrs); err != nil {
			return nil, err
		}
		if persist && !r.persistent[id] {
			r.persistent[id] = true
			r.save(p.snapshot())
		}
		return p, nil
	}

	p := newRegistered(attrs)
	r.peers[id] = p
	if persist {
		r.persistent[id] = true
		r.save(attrs)
	}
	logger.Debug("节点已添加", "peer", log.TruncateID(id, 12), "persist", persist)
	r.emit(r.emAdded, types.EvtPeerAdded{
		BaseEvent: types.NewBaseEvent("peer.added"),
		PeerID:    id,
		Attrs:     attrs.Clone(),
	})
	return p, nil
}

// Update 替换属性快照
//
// 与当前快照相等时不做任何事（不发事件），返回 false。
func (r *Registry) Update(id string, attrs types.Attributes) (bool, error) {
	r.exec.AssertDispatch()

	p, ok := r.peers[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownPeer, id)
	}
	switch attrs.ID() {
	case id:
	case "":
		attrs = attrs.Clone()
		attrs[types.AttrID] = id
	default:
		return false, fmt.Errorf("%w: %s != %s", ErrIDMismatch, attrs.ID(), id)
	}

	old := p.snapshot()
	if old.Equal(attrs) {
		return false, nil
	}
	p.swap(attrs)
	if r.persistent[id] {
		r.save(attrs)
	}
	r.emit(r.emChanged, types.EvtPeerChanged{
		BaseEvent: types.NewBaseEvent("peer.changed"),
		PeerID:    id,
		Old:       old.Clone(),
		New:       attrs.Clone(),
	})
	return true, nil
}

// Remove 移除节点及其全部重定向子节点
func (r *Registry) Remove(id string) bool {
	r.exec.AssertDispatch()

	p, ok := r.peers[id]
	if !ok {
		return false
	}

	for _, child := range slices.Clone(r.children[id]) {
		r.Remove(child)
	}
	delete(r.children, id)

	if parent, isChild := r.parentOf[id]; isChild {
		delete(r.parentOf, id)
		r.children[parent] = slices.DeleteFunc(r.children[parent], func(c string) bool { return c == id })
	}

	delete(r.peers, id)
	if r.persistent[id] {
		delete(r.persistent, id)
		if r.store != nil {
			r.store.Delete(id)
		}
	}
	logger.Debug("节点已移除", "peer", log.TruncateID(id, 12))
	r.emit(r.emRemoved, types.EvtPeerRemoved{
		BaseEvent: types.NewBaseEvent("peer.removed"),
		PeerID:    id,
		Attrs:     p.Attributes(),
	})
	return true
}

// SetChildren 以一次完整报告调和 parentID 的重定向子节点
//
// 新出现的子节点被添加，已有的被更新（保留本地的临时属性），
// 未再报告的被移除；带 static.transient 标记的子节点不会因缺席被移除。
func (r *Registry) SetChildren(parentID string, children []types.Attributes) {
	r.exec.AssertDispatch()

	if _, ok := r.peers[parentID]; !ok {
		logger.Debug("父节点不存在，忽略子节点报告", "parent", parentID)
		return
	}

	before := slices.Clone(r.children[parentID])
	reported := make(map[string]bool, len(children))
	next := make([]string, 0, len(children))

	for _, attrs := range children {
		id := attrs.ID()
		if id == "" || id == parentID || reported[id] {
			continue
		}
		reported[id] = true

		if p, ok := r.peers[id]; ok {
			merged := attrs.MergeTransient(p.snapshot())
			if _, err := r.Update(id, merged); err != nil {
				logger.Warn("更新子节点失败", "peer", id, "error", err)
				continue
			}
		} else if _, err := r.Add(attrs, false); err != nil {
			logger.Warn("添加子节点失败", "peer", id, "error", err)
			continue
		}
		r.reparent(id, parentID)
		next = append(next, id)
	}

	for _, id := range before {
		if reported[id] {
			continue
		}
		if p, ok := r.peers[id]; ok && p.Attr(types.AttrStaticTransient) == "true" {
			next = append(next, id)
			continue
		}
		r.Remove(id)
	}

	r.children[parentID] = next
	if len(next) == 0 {
		delete(r.children, parentID)
	}

	if !sameMembers(before, next) {
		r.emit(r.emChildren, types.EvtPeerChildrenChanged{
			BaseEvent: types.NewBaseEvent("peer.children"),
			ParentID:  parentID,
			Children:  slices.Clone(next),
		})
	}
}

// ============================================================================
//                              持久化
// ============================================================================

// Restore 把已加载的持久化节点放入注册表，不回写存储
func (r *Registry) Restore(list []types.Attributes) {
	r.exec.AssertDispatch()
	for _, attrs := range list {
		id := attrs.ID()
		if id == "" {
			continue
		}
		r.persistent[id] = true
		if p, ok := r.peers[id]; ok {
			p.swap(attrs)
			continue
		}
		r.peers[id] = newRegistered(attrs)
		r.emit(r.emAdded, types.EvtPeerAdded{
			BaseEvent: types.NewBaseEvent("peer.added"),
			PeerID:    id,
			Attrs:     attrs.Clone(),
		})
	}
	logger.Info("已恢复持久化节点", "count", len(list))
}

func (r *Registry) save(attrs types.Attributes) {
	if r.store != nil {
		r.store.Save(attrs)
	}
}

// ============================================================================
//                              内部方法
// ============================================================================

func (r *Registry) reparent(id, parentID string) {
	old, ok := r.parentOf[id]
	if ok && old == parentID {
		return
	}
	if ok {
		r.children[old] = slices.DeleteFunc(r.children[old], func(c string) bool { return c == id })
	}
	r.parentOf[id] = parentID
}

func (r *Registry) sorted(keep func(id string) bool) []pkgif.Peer {
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		if keep(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([]pkgif.Peer, len(ids))
	for i, id := range ids {
		out[i] = r.peers[id]
	}
	return out
}

func (r *Registry) emit(em pkgif.Emitter, evt interface{}) {
	if err := em.Emit(evt); err != nil {
		logger.Debug("事件发射失败", "error", err)
	}
}

func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}
