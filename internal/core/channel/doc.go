// Package channel 实现 TCF 通道：帧编解码、握手、命令令牌和重定向
//
// # 帧格式
//
// 每个字段以 0 结尾，消息以 0x03 0x01 结尾，流以 0x03 0x02 结束，
// 字段中的 0x03 转义为 0x03 0x00。参数是 JSON 值，每个一个字段。
//
//	C <token> <service> <command> <args...>
//	R <token> <error> <results...>
//	P <token> <results...>
//	E <service> <event> <args...>
//	N <token>
//
// # 握手
//
// 连接建立后双方发送 E Locator Hello [services]，收到对端 Hello 后
// 通道进入 OPEN。带重定向的通道在每个中间节点的 Hello 之后发送
// C Locator redirect，等到最后一个 Hello 才进入 OPEN。
//
// # 线程模型
//
// 读写各占一个 goroutine，解码后的消息经 InvokeLater 交给调度 goroutine，
// 所有状态迁移和回调都在调度 goroutine 上发生。
package channel
