// Package metrics 提供流量统计和 Prometheus 指标
//
// BandwidthCounter 实现 channel.Meter，按服务名和远端节点记录
// 消息字节数，速率取最近 60 秒的平均值。Collector 在抓取时读取
// 调度器、通道管理器、扫描器与带宽计数器的统计快照。
//
// # 快速开始
//
//	counter := metrics.NewBandwidthCounter()
//	mgr, _ := channelmgr.New(exec, transports, cfg, channelmgr.WithMeter(counter))
//
//	registry := prometheus.NewRegistry()
//	registry.MustRegister(metrics.NewCollector(metrics.Sources{
//	    Executor:  exec,
//	    Channels:  mgr,
//	    Bandwidth: counter,
//	}))
//	srv, _ := metrics.Serve(":9100", metrics.NewHandler(registry, "/metrics"))
//	defer srv.Close(context.Background())
//
// # Fx 模块
//
// Module 只依赖配置提供计数器，采集器在单独的 Invoke 中注册，
// 通道管理器因此可以把计数器作为可选依赖注入。
package metrics

import "github.com/dep2p/go-tcf/pkg/lib/log"

var logger = log.Logger("core/metrics")
