package interfaces

import "github.com/dep2p/go-tcf/pkg/types"

// Peer 可寻址的远程端点
//
// ID 在对象生命周期内不可变；Attributes 返回只读快照（副本），
// 可在任意 goroutine 调用。
type Peer interface {
	ID() string
	Name() string
	Attributes() types.Attributes
	Attr(key string) string

	// IsTransient 临时节点不进入注册表，发现监听者不可见
	IsTransient() bool
}

// PeerRegistry 节点注册表
//
// 每个 ID 至多一个存活的 Peer 对象。所有方法只能在调度 goroutine 上调用。
type PeerRegistry interface {
	Get(id string) (Peer, bool)
	All() []Peer

	// Roots 返回不是重定向子节点的节点
	Roots() []Peer

	// Add 新增节点；ID 已存在时等价于 Update 并返回原对象
	Add(attrs types.Attributes, persist bool) (Peer, error)

	// Update 与当前快照比较，不同才替换并发出变更事件
	Update(id string, attrs types.Attributes) (bool, error)

	// Remove 移除节点及其重定向子节点，返回是否确实移除
	Remove(id string) bool

	IsPersistent(id string) bool

	// SetChildren 以一次报告调和 parentID 的重定向子节点
	SetChildren(parentID string, children []types.Attributes)
	Children(parentID string) []Peer
	Parent(childID string) (string, bool)

	// IsRedirected 是否为某个节点的重定向子节点
	IsRedirected(id string) bool
}
