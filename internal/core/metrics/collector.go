package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
	"github.com/dep2p/go-tcf/pkg/types"
)

const namespace = "tcf"

// DispatchSource 调度器统计来源
type DispatchSource interface {
	Stats() types.DispatchStats
}

// ChannelSource 通道管理器统计来源
type ChannelSource interface {
	Stats() types.ChannelStats
}

// ScannerSource 扫描器统计来源
type ScannerSource interface {
	State() types.ScannerState
	Stats() types.ScannerStats
}

var (
	_ DispatchSource = (pkgif.Executor)(nil)
	_ ChannelSource  = (pkgif.ChannelManager)(nil)
	_ ScannerSource  = (pkgif.Locator)(nil)
)

// Sources 采集来源，任一为空时跳过对应指标
type Sources struct {
	Executor  DispatchSource
	Channels  ChannelSource
	Locator   ScannerSource
	Bandwidth Reporter
}

// Collector Prometheus 指标采集器
//
// 每次抓取时读取各组件的统计快照，不持有自己的计数器。
type Collector struct {
	src Sources

	dispatchQueued   *prometheus.Desc
	dispatchExecuted *prometheus.Desc
	dispatchPanics   *prometheus.Desc

	channelsShared       *prometheus.Desc
	channelsOpened       *prometheus.Desc
	channelsOpenFailures *prometheus.Desc
	channelsClosed       *prometheus.Desc
	channelsCoalesced    *prometheus.Desc

	scannerState       *prometheus.Desc
	scannerPeers       *prometheus.Desc
	scannerCycles      *prometheus.Desc
	scannerProbeErrors *prometheus.Desc
	scannerRemoved     *prometheus.Desc

	bandwidthBytes *prometheus.Desc
	bandwidthRate  *prometheus.Desc
}

// NewCollector 创建采集器
func NewCollector(src Sources) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		src: src,

		dispatchQueued:   desc("dispatch_queued", "Tasks waiting in the dispatch queue"),
		dispatchExecuted: desc("dispatch_executed_total", "Tasks run by the dispatch goroutine"),
		dispatchPanics:   desc("dispatch_panics_total", "Dispatch tasks that panicked"),

		channelsShared:       desc("channels_shared", "Shared channels currently in the channel table"),
		channelsOpened:       desc("channels_opened_total", "Channels that reached OPEN"),
		channelsOpenFailures: desc("channels_open_failures_total", "Channel opens that failed"),
		channelsClosed:       desc("channels_closed_total", "Channels closed"),
		channelsCoalesced:    desc("channels_coalesced_total", "Open requests served by an existing shared channel"),

		scannerState:       desc("scanner_scanning", "1 while a discovery cycle is running"),
		scannerPeers:       desc("scanner_peers", "Peers tracked by the discovery scanner"),
		scannerCycles:      desc("scanner_cycles_total", "Completed discovery cycles"),
		scannerProbeErrors: desc("scanner_probe_errors_total", "Probe errors swallowed by the scanner"),
		scannerRemoved:     desc("scanner_removed_total", "Peers removed after the aging window"),

		bandwidthBytes: desc("bandwidth_bytes_total", "Message bytes by direction and service", "direction", "service"),
		bandwidthRate:  desc("bandwidth_rate_bytes", "Average bytes per second over the last minute", "direction"),
	}
}

// Describe 实现 prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.dispatchQueued, c.dispatchExecuted, c.dispatchPanics,
		c.channelsShared, c.channelsOpened, c.channelsOpenFailures, c.channelsClosed, c.channelsCoalesced,
		c.scannerState, c.scannerPeers, c.scannerCycles, c.scannerProbeErrors, c.scannerRemoved,
		c.bandwidthBytes, c.bandwidthRate,
	} {
		ch <- d
	}
}

// Collect 实现 prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}

	if c.src.Executor != nil {
		s := c.src.Executor.Stats()
		gauge(c.dispatchQueued, float64(s.Queued))
		counter(c.dispatchExecuted, float64(s.Executed))
		counter(c.dispatchPanics, float64(s.Panics))
	}

	if c.src.Channels != nil {
		s := c.src.Channels.Stats()
		gauge(c.channelsShared, float64(s.Shared))
		counter(c.channelsOpened, float64(s.Opened))
		counter(c.channelsOpenFailures, float64(s.OpenFailures))
		counter(c.channelsClosed, float64(s.Closed))
		counter(c.channelsCoalesced, float64(s.Coalesced))
	}

	if c.src.Locator != nil {
		s := c.src.Locator.Stats()
		scanning := 0.0
		if c.src.Locator.State() == types.ScannerScanning {
			scanning = 1
		}
		gauge(c.scannerState, scanning)
		gauge(c.scannerPeers, float64(s.Peers))
		counter(c.scannerCycles, float64(s.Cycles))
		counter(c.scannerProbeErrors, float64(s.ProbeErrors))
		counter(c.scannerRemoved, float64(s.Removed))
	}

	if c.src.Bandwidth != nil {
		for svc, s := range c.src.Bandwidth.ByService() {
			counter(c.bandwidthBytes, float64(s.TotalIn), "in", svc)
			counter(c.bandwidthBytes, float64(s.TotalOut), "out", svc)
		}
		t := c.src.Bandwidth.Totals()
		gauge(c.bandwidthRate, t.RateIn, "in")
		gauge(c.bandwidthRate, t.RateOut, "out")
	}
}

var _ prometheus.Collector = (*Collector)(nil)
