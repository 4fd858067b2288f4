package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-tcf/pkg/types"
)

type fakeDispatch types.DispatchStats

func (f fakeDispatch) Stats() types.DispatchStats { return types.DispatchStats(f) }

type fakeChannels types.ChannelStats

func (f fakeChannels) Stats() types.ChannelStats { return types.ChannelStats(f) }

type fakeScanner struct {
	state types.ScannerState
	stats types.ScannerStats
}

func (f fakeScanner) State() types.ScannerState { return f.state }
func (f fakeScanner) Stats() types.ScannerStats { return f.stats }

// gather 以 "名称{标签值...}" 为键收集指标值
func gather(t *testing.T, c prometheus.Collector) map[string]float64 {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetValue())
			}
			if len(labels) > 0 {
				key += "{" + strings.Join(labels, ",") + "}"
			}
			out[key] = value(m)
		}
	}
	return out
}

func value(m *dto.Metric) float64 {
	switch {
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	}
	return 0
}

func TestCollector_AllSources(t *testing.T) {
	bwc := newBandwidthCounter(newClock().Now)
	bwc.LogSentMessageStream(120, "Locator", "p1")
	bwc.LogRecvMessageStream(60, "Locator", "p1")

	c := NewCollector(Sources{
		Executor: fakeDispatch{Queued: 2, Executed: 10, Panics: 1},
		Channels: fakeChannels{Shared: 3, Opened: 4, OpenFailures: 1, Closed: 2, Coalesced: 5},
		Locator: fakeScanner{
			state: types.ScannerScanning,
			stats: types.ScannerStats{Peers: 7, Cycles: 9, ProbeErrors: 2, Removed: 1},
		},
		Bandwidth: bwc,
	})

	got := gather(t, c)
	assert.Equal(t, 2.0, got["tcf_dispatch_queued"])
	assert.Equal(t, 10.0, got["tcf_dispatch_executed_total"])
	assert.Equal(t, 3.0, got["tcf_channels_shared"])
	assert.Equal(t, 5.0, got["tcf_channels_coalesced_total"])
	assert.Equal(t, 1.0, got["tcf_scanner_scanning"])
	assert.Equal(t, 7.0, got["tcf_scanner_peers"])
	assert.Equal(t, 2.0, got["tcf_scanner_probe_errors_total"])
	assert.Equal(t, 60.0, got["tcf_bandwidth_bytes_total{in,Locator}"])
	assert.Equal(t, 120.0, got["tcf_bandwidth_bytes_total{out,Locator}"])
	assert.Equal(t, 2.0, got["tcf_bandwidth_rate_bytes{out}"])
}

func TestCollector_MissingSources(t *testing.T) {
	c := NewCollector(Sources{Channels: fakeChannels{Shared: 1}})
	assert.Equal(t, 5, testutil.CollectAndCount(c))

	got := gather(t, c)
	assert.NotContains(t, got, "tcf_dispatch_queued")
	assert.Equal(t, 1.0, got["tcf_channels_shared"])
}

func TestServer_Exposes(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollector(Sources{Executor: fakeDispatch{Executed: 42}})))

	srv, err := Serve("127.0.0.1:0", NewHandler(reg, "/metrics"))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Close(ctx)
	})
	base := "http://" + srv.Addr().String()

	body := get(t, base+"/metrics")
	assert.Contains(t, body, "tcf_dispatch_executed_total 42")
	assert.Equal(t, "ok", get(t, base+"/healthz"))
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
