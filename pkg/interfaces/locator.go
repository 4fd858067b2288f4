package interfaces

import (
	"context"

	"github.com/dep2p/go-tcf/pkg/types"
)

// Prober 一种发现探测方式
//
// Probe 在调度 goroutine 之外运行，应在 ctx 截止（响应窗口）前返回。
type Prober interface {
	Name() string
	Probe(ctx context.Context) ([]types.ProbeResponse, error)
}

// Locator 发现扫描器
type Locator interface {
	State() types.ScannerState

	// ScanNow 请求尽快扫描一次；扫描进行中时被合并
	ScanNow()

	AddProber(p Prober)
	Stats() types.ScannerStats
}
