// Package channelmgr 管理到各节点的通道
//
// # 共享通道
//
// 默认情况下每个节点 ID 至多一个托管通道。并发的打开请求合并到同一次
// 打开上：只建立一条传输连接，每个调用方都收到第一次打开的结果，
// 并各自持有一个引用。CloseChannel 递减引用，归零时才真正关闭。
//
// # 非托管通道
//
// FlagForceNew 总是新建通道，不缓存、不计数，GetChannel 永远看不到它，
// 由调用方负责关闭。FlagNoValueAdd 跳过 value-add 并隐含 FlagForceNew。
//
// # value-add
//
// 打开前按注册顺序询问作用于目标的 value-add：存活检查与启动在调度
// goroutine 之外执行，同一 value-add 对同一目标的启动被合并。连接先建到
// 第一个 value-add，再逐跳重定向到目标。
//
// 所有内部状态只在调度 goroutine 上修改；公开入口可在任意 goroutine 调用。
package channelmgr
