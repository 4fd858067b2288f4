package peer

import "errors"

var (
	// ErrMissingID 属性中缺少 ID
	ErrMissingID = errors.New("peer attributes have no ID")

	// ErrUnknownPeer 注册表中没有该节点
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrIDMismatch 试图修改节点 ID
	ErrIDMismatch = errors.New("peer ID is immutable")
)
