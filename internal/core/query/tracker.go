package query

import (
	"slices"

	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/lib/log"
)

var logger = log.Logger("core/query")

// Tracker 按上下文 ID 管理节点
type Tracker struct {
	exec  pkgif.Executor
	nodes map[string]*Node
}

// NewTracker 创建跟踪器
func NewTracker(exec pkgif.Executor) *Tracker {
	return &Tracker{exec: exec, nodes: make(map[string]*Node)}
}

// Node 返回 id 的节点，不存在时创建
func (t *Tracker) Node(id string) *Node {
	t.exec.AssertDispatch()
	n, ok := t.nodes[id]
	if !ok {
		n = newNode(t.exec, id)
		t.nodes[id] = n
	}
	return n
}

// Get 返回已存在的节点
func (t *Tracker) Get(id string) (*Node, bool) {
	t.exec.AssertDispatch()
	n, ok := t.nodes[id]
	return n, ok
}

// Remove 丢弃节点（上下文已消失）
func (t *Tracker) Remove(id string) bool {
	t.exec.AssertDispatch()
	if _, ok := t.nodes[id]; !ok {
		return false
	}
	delete(t.nodes, id)
	return true
}

// Refreshable 两条轨道都 DONE 时为 true，未知 ID 为 false
func (t *Tracker) Refreshable(id string) bool {
	t.exec.AssertDispatch()
	n, ok := t.nodes[id]
	return ok && n.IsDone()
}

// Invalidate 把节点的两条轨道都置回 PENDING
func (t *Tracker) Invalidate(id string) {
	t.exec.AssertDispatch()
	if n, ok := t.nodes[id]; ok {
		for k := Kind(0); k < numKinds; k++ {
			n.Reset(k)
		}
	}
}

// InvalidateAll 重置全部节点，通常在通道重连之后
func (t *Tracker) InvalidateAll() {
	t.exec.AssertDispatch()
	for id := range t.nodes {
		t.Invalidate(id)
	}
	logger.Debug("全部查询状态已重置", "nodes", len(t.nodes))
}

// Run 在 kind 轨道上执行一次查询
//
// 轨道不是 PENDING 时不执行并返回 false。fn 在查询结束时调用 done，
// done 之前节点被 Reset 的，完成标记被丢弃。
func (t *Tracker) Run(id string, kind Kind, fn func(done func())) bool {
	n := t.Node(id)
	if !n.Begin(kind) {
		return false
	}
	fn(func() {
		t.exec.AssertDispatch()
		if cur, ok := t.nodes[id]; !ok || cur != n || n.tracks[kind] != InProgress {
			return
		}
		n.Done(kind)
	})
	return true
}

// IDs 已跟踪的上下文 ID，已排序
func (t *Tracker) IDs() []string {
	t.exec.AssertDispatch()
	ids := make([]string, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len 节点数
func (t *Tracker) Len() int {
	t.exec.AssertDispatch()
	return len(t.nodes)
}
