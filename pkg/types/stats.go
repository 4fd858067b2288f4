package types

// DispatchStats 调度器统计
type DispatchStats struct {
	Queued   int
	Executed uint64
	Panics   uint64
}

// ChannelStats 通道管理器统计
type ChannelStats struct {
	Shared       int
	Opened       uint64
	OpenFailures uint64
	Closed       uint64
	Coalesced    uint64
}

// ScannerStats 扫描器统计
type ScannerStats struct {
	Peers       int
	Cycles      uint64
	ProbeErrors uint64
	Removed     uint64
}
