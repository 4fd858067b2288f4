// Package types 定义 go-tcf 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - peer.go      - 节点属性表 Attributes 与约定属性键
//   - redirect.go  - 重定向路径（"/" 分隔的中间节点序列）
//   - channel.go   - 通道状态、打开标志
//   - query.go     - 远程上下文节点的查询状态
//   - scanner.go   - 扫描器状态与探测响应
//   - stats.go     - 各组件统计快照
//   - events.go    - 事件总线事件类型
package types
