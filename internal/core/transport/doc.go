// Package transport 管理字节流传输
//
// 节点属性中的 TransportName 选择传输，缺省为 TCP：
//
//	TCP, SSL, UNIX  internal/core/transport/tcp
//	PIPE            internal/core/transport/pipe（进程内）
//	WS, WSS         internal/core/transport/ws
//
// 传输只负责建立连接，协议帧由 internal/core/channel 处理。
package transport
