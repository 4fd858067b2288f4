// Package interfaces 定义 go-tcf 的公共接口
//
// 一个接口文件对应一个实现目录：
//   - dispatch.go   - 调度执行器（internal/core/dispatch）
//   - peer.go       - 节点与注册表（internal/core/peer）
//   - channel.go    - 通道与通道管理器（internal/core/channel, channelmgr）
//   - transport.go  - 字节流传输（internal/core/transport）
//   - valueadd.go   - value-add 中间进程（internal/core/valueadd）
//   - service.go    - 服务提供者扩展面（internal/core/service）
//   - locator.go    - 发现扫描器与探测器（internal/core/locator）
//   - eventbus.go   - 事件总线（internal/core/eventbus）
//
// 除特别说明外，接口方法的状态变更都在调度 goroutine 上进行。
package interfaces
