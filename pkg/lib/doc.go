// Package lib 包含与架构组件无关的基础设施工具库
//
//   - log: slog 封装，按组件配置级别
//
// # 与 pkg/ 其他目录的关系
//
//   - interfaces/: 组件公共接口
//   - types/: 公共类型定义（属性表、事件、统计）
//   - lib/: 基础设施工具库（本目录）
//
// # 使用示例
//
//	import "github.com/dep2p/go-tcf/pkg/lib/log"
//
//	var logger = log.Logger("core/channel")
package lib
