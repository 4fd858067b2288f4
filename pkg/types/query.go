package types

// QueryState 查询状态
//
// PENDING → IN_PROGRESS → DONE，Reset 可回到 PENDING。
type QueryState int32

const (
	QueryPending QueryState = iota
	QueryInProgress
	QueryDone
)

// String 返回状态的字符串表示
func (s QueryState) String() string {
	switch s {
	case QueryPending:
		return "pending"
	case QueryInProgress:
		return "in_progress"
	case QueryDone:
		return "done"
	default:
		return "unknown"
	}
}

// QueryKind 查询类别，两类相互独立
type QueryKind int

const (
	// QueryContext 上下文数据查询
	QueryContext QueryKind = iota
	// QueryChildren 子节点列表查询
	QueryChildren
)

// String 返回类别的字符串表示
func (k QueryKind) String() string {
	if k == QueryChildren {
		return "children"
	}
	return "context"
}
