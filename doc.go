// Package tcf 是 go-tcf 的入口
//
// Core 聚合了运行时的全部组件：调度执行器、节点注册表、发现扫描器、
// 通道管理器、服务提供者与 value-add 注册表、事件总线以及查询状态跟踪。
// 组件由 uber/fx 组装，没有包级单例，同一进程可以创建多个 Core。
//
// 架构层次：
//
//	Core (本包)
//	 ├── dispatch   单一调度 goroutine，协议状态只在其上修改
//	 ├── task       外部 goroutine 等待调度结果的桥
//	 ├── peer       节点注册表（peerstore 持久化）
//	 ├── locator    周期性发现与老化（静态、mDNS、通道探测）
//	 ├── channelmgr 共享通道、引用计数、value-add 重定向
//	 ├── agent      对外服务（监听、mDNS 宣告、重定向转发）
//	 ├── query      远程上下文的查询状态
//	 └── metrics    Prometheus 指标
//
// 使用示例：
//
//	core, err := tcf.New(ctx,
//	    tcf.WithConfigFile("tcf.yaml"),
//	    tcf.WithDataDir("/var/lib/tcf"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer core.Close()
//
//	if err := core.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	ch, err := core.OpenChannel(ctx, types.Attributes{
//	    types.AttrID:            "TCP:127.0.0.1:1534",
//	    types.AttrTransportName: "TCP",
//	    types.AttrHost:          "127.0.0.1",
//	    types.AttrPort:          "1534",
//	}, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer core.Channels().CloseChannel(ch)
//
// 回调全部在调度 goroutine 上执行，回调中不能阻塞；需要等待结果时
// 在外部 goroutine 使用 OpenChannel 或 task 包。
package tcf
