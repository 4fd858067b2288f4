package metrics

import (
	"time"

	"github.com/dep2p/go-tcf/internal/core/channel"
)

// Reporter 带宽统计的读写接口
type Reporter interface {
	channel.Meter

	// Totals 总带宽统计
	Totals() Stats

	// ForService 单个服务的带宽统计
	ForService(service string) Stats

	// ForPeer 单个节点的带宽统计
	ForPeer(peerID string) Stats

	// ByService 所有服务的带宽统计
	ByService() map[string]Stats

	// ByPeer 所有节点的带宽统计
	ByPeer() map[string]Stats

	// Reset 重置所有统计
	Reset()

	// TrimIdle 清理空闲统计
	TrimIdle(since time.Time)
}

var _ Reporter = (*BandwidthCounter)(nil)
