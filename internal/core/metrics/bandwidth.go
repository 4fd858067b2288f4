package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
//                              计量单元
// ============================================================================

// meter 单个键的入站/出站累计与速率
type meter struct {
	in      atomic.Int64
	out     atomic.Int64
	inRate  *RateMeter
	outRate *RateMeter
}

func newMeter(now func() time.Time) *meter {
	return &meter{inRate: newRateMeter(now), outRate: newRateMeter(now)}
}

func (m *meter) addIn(n int64) {
	m.in.Add(n)
	m.inRate.Add(n)
}

func (m *meter) addOut(n int64) {
	m.out.Add(n)
	m.outRate.Add(n)
}

func (m *meter) stats() Stats {
	return Stats{
		TotalIn:  m.in.Load(),
		TotalOut: m.out.Load(),
		RateIn:   m.inRate.Rate(),
		RateOut:  m.outRate.Rate(),
	}
}

func (m *meter) lastUpdate() time.Time {
	in, out := m.inRate.LastUpdate(), m.outRate.LastUpdate()
	if in.After(out) {
		return in
	}
	return out
}

// meterSet 按字符串键分组的计量单元
type meterSet struct {
	mu     sync.RWMutex
	now    func() time.Time
	meters map[string]*meter
}

func newMeterSet(now func() time.Time) *meterSet {
	return &meterSet{now: now, meters: make(map[string]*meter)}
}

func (s *meterSet) get(key string) *meter {
	s.mu.RLock()
	m := s.meters[key]
	s.mu.RUnlock()
	if m != nil {
		return m
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m = s.meters[key]; m == nil {
		m = newMeter(s.now)
		s.meters[key] = m
	}
	return m
}

func (s *meterSet) lookup(key string) Stats {
	s.mu.RLock()
	m := s.meters[key]
	s.mu.RUnlock()
	if m == nil {
		return Stats{}
	}
	return m.stats()
}

func (s *meterSet) snapshot() map[string]Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Stats, len(s.meters))
	for k, m := range s.meters {
		out[k] = m.stats()
	}
	return out
}

func (s *meterSet) reset() {
	s.mu.Lock()
	s.meters = make(map[string]*meter)
	s.mu.Unlock()
}

func (s *meterSet) trim(since time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, m := range s.meters {
		if m.lastUpdate().Before(since) {
			delete(s.meters, k)
			n++
		}
	}
	return n
}

// ============================================================================
//                              BandwidthCounter
// ============================================================================

// BandwidthCounter 带宽计数器
//
// 记录通道上收发的消息字节数，分别按服务名和远端节点 ID 归类。
// 实现 channel.Meter，可在任意 goroutine 上调用。
type BandwidthCounter struct {
	total    *meter
	services *meterSet
	peers    *meterSet
}

// NewBandwidthCounter 创建带宽计数器
func NewBandwidthCounter() *BandwidthCounter {
	return newBandwidthCounter(time.Now)
}

func newBandwidthCounter(now func() time.Time) *BandwidthCounter {
	return &BandwidthCounter{
		total:    newMeter(now),
		services: newMeterSet(now),
		peers:    newMeterSet(now),
	}
}

// LogSentMessageStream 记录一条发往 peerID 的 service 消息
func (bwc *BandwidthCounter) LogSentMessageStream(size int64, service, peerID string) {
	bwc.total.addOut(size)
	bwc.services.get(service).addOut(size)
	bwc.peers.get(peerID).addOut(size)
}

// LogRecvMessageStream 记录一条来自 peerID 的 service 消息
func (bwc *BandwidthCounter) LogRecvMessageStream(size int64, service, peerID string) {
	bwc.total.addIn(size)
	bwc.services.get(service).addIn(size)
	bwc.peers.get(peerID).addIn(size)
}

// Totals 返回总带宽统计
func (bwc *BandwidthCounter) Totals() Stats {
	return bwc.total.stats()
}

// ForService 返回服务的带宽统计，未知服务为零值
func (bwc *BandwidthCounter) ForService(service string) Stats {
	return bwc.services.lookup(service)
}

// ForPeer 返回节点的带宽统计
func (bwc *BandwidthCounter) ForPeer(peerID string) Stats {
	return bwc.peers.lookup(peerID)
}

// ByService 返回所有服务的带宽统计
func (bwc *BandwidthCounter) ByService() map[string]Stats {
	return bwc.services.snapshot()
}

// ByPeer 返回所有节点的带宽统计
func (bwc *BandwidthCounter) ByPeer() map[string]Stats {
	return bwc.peers.snapshot()
}

// Reset 清除所有统计
func (bwc *BandwidthCounter) Reset() {
	bwc.total.in.Store(0)
	bwc.total.out.Store(0)
	bwc.total.inRate.Reset()
	bwc.total.outRate.Reset()
	bwc.services.reset()
	bwc.peers.reset()
}

// TrimIdle 清理 since 之后没有流量的服务和节点统计
//
// 总量不受影响。节点 ID 随发现不断变化，长期运行时需要定期调用。
func (bwc *BandwidthCounter) TrimIdle(since time.Time) {
	s := bwc.services.trim(since)
	p := bwc.peers.trim(since)
	if s+p > 0 {
		logger.Debug("清理空闲带宽统计", "services", s, "peers", p)
	}
}
