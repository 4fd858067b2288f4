package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"

	"github.com/dep2p/go-tcf/config"
	"github.com/dep2p/go-tcf/internal/core/channel"
	pkgif "github.com/dep2p/go-tcf/pkg/interfaces"
)

// trimInterval 空闲带宽统计的清理周期
const trimInterval = 10 * time.Minute

// CounterResult 计数器输出
//
// 指标关闭时 Meter 为 nil 接口，通道不做统计。
type CounterResult struct {
	fx.Out

	Counter *BandwidthCounter
	Meter   channel.Meter
}

// CollectorParams 采集器依赖
type CollectorParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Registry  *prometheus.Registry
	Counter   *BandwidthCounter
	Executor  pkgif.Executor
	Channels  pkgif.ChannelManager `optional:"true"`
	Locator   pkgif.Locator        `optional:"true"`
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(
			ProvideCounter,
			ProvideRegistry,
		),
		fx.Invoke(registerCollector),
	)
}

// ProvideCounter 按配置创建带宽计数器
func ProvideCounter(cfg *config.Config) CounterResult {
	if !cfg.Metrics.Enable {
		return CounterResult{}
	}
	c := NewBandwidthCounter()
	return CounterResult{Counter: c, Meter: c}
}

// ProvideRegistry 创建独立的指标注册表
func ProvideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func registerCollector(p CollectorParams) error {
	if !p.Config.Metrics.Enable {
		return nil
	}

	src := Sources{
		Executor: p.Executor,
		Channels: p.Channels,
		Locator:  p.Locator,
	}
	if p.Counter != nil {
		src.Bandwidth = p.Counter
	}
	if err := p.Registry.Register(NewCollector(src)); err != nil {
		return err
	}
	if err := p.Registry.Register(collectors.NewGoCollector()); err != nil {
		return err
	}

	var (
		srv  *Server
		stop = make(chan struct{})
	)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if p.Config.Metrics.Listen != "" {
				var err error
				srv, err = Serve(p.Config.Metrics.Listen, NewHandler(p.Registry, p.Config.Metrics.Path))
				if err != nil {
					return err
				}
			}
			if p.Counter != nil {
				go trimLoop(p.Counter, stop)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(stop)
			if srv != nil {
				return srv.Close(ctx)
			}
			return nil
		},
	})
	return nil
}

func trimLoop(c *BandwidthCounter, stop <-chan struct{}) {
	ticker := time.NewTicker(trimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			c.TrimIdle(now.Add(-trimInterval))
		}
	}
}
