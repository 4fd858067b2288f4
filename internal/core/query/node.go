// Package query 跟踪远程上下文节点的查询状态
//
// 每个节点有两条独立的轨道：上下文数据与子节点列表。每条轨道
// PENDING → IN_PROGRESS → DONE，Reset 回到 PENDING。Begin 只在
// PENDING 时成功，以此避免重复的在途查询；两条轨道都 DONE 时节点
// 才可以刷新显示。全部状态只在调度 goroutine 上访问。
package query

import (
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/types"
)

// Kind 查询种类
type Kind = types.QueryKind

const (
	KindContext  = types.QueryContext
	KindChildren = types.QueryChildren

	numKinds = 2
)

// State 单条轨道的状态
type State = types.QueryState

const (
	Pending    = types.QueryPending
	InProgress = types.QueryInProgress
	Done       = types.QueryDone
)

// Node 一个远程上下文节点的查询状态
type Node struct {
	id     string
	exec   pkgif.Executor
	tracks [numKinds]State
}

func newNode(exec pkgif.Executor, id string) *Node {
	return &Node{id: id, exec: exec}
}

// ID 上下文 ID
func (n *Node) ID() string { return n.id }

// State 返回 kind 轨道的状态
func (n *Node) State(kind Kind) State {
	n.exec.AssertDispatch()
	return n.tracks[kind]
}

// Begin PENDING → IN_PROGRESS；已在进行或已完成时返回 false
func (n *Node) Begin(kind Kind) bool {
	n.exec.AssertDispatch()
	if n.tracks[kind] != Pending {
		return false
	}
	n.tracks[kind] = InProgress
	return true
}

// Done 标记 kind 轨道完成
func (n *Node) Done(kind Kind) {
	n.exec.AssertDispatch()
	if n.tracks[kind] != InProgress {
		logger.Debug("完成未开始的查询", "context", n.id, "kind", kind, "state", n.tracks[kind])
	}
	n.tracks[kind] = Done
}

// Reset kind 轨道回到 PENDING，数据需要重新查询
func (n *Node) Reset(kind Kind) {
	n.exec.AssertDispatch()
	n.tracks[kind] = Pending
}

// IsDone 两条轨道都已完成
func (n *Node) IsDone() bool {
	n.exec.AssertDispatch()
	for _, s := range n.tracks {
		if s != Done {
			return false
		}
	}
	return true
}
