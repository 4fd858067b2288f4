// Package storage 提供基于 BadgerDB 的键值存储
//
// 配置了 DataDir 时数据写入 ${DataDir}/peers.db，否则使用内存模式。
// Store 在引擎之上按前缀隔离命名空间，值以 JSON 编码：
//
//	tcf/peer/<id>  用户创建的节点属性
//
// 引擎的所有方法都可能做磁盘 IO，不得在调度 goroutine 上直接调用。
package storage
