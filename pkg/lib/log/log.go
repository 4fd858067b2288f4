// Package log 提供 go-tcf 统一日志接口
//
// 基于 Go 标准库 log/slog 封装，每个组件持有一个 LazyLogger：
//
//	var logger = log.Logger("core/channel")
//	logger.Debug("通道已打开", "peer", peerID)
//
// 日志级别可按组件配置（见 TCF_LOG_LEVEL），输出格式由 TCF_LOG_FORMAT 决定。
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// 日志级别常量（从 slog 导出，方便使用）
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var (
	outputMu sync.RWMutex
	output   io.Writer = os.Stderr

	// levels 组件级别表（由 Configure 或环境变量设置）
	levels     = ParseLevels("")
	levelsMu   sync.RWMutex
	jsonFormat bool
)

// SetDefault 设置默认 logger
func SetDefault(l *slog.Logger) {
	slog.SetDefault(l)
}

// Default 返回默认 logger
func Default() *slog.Logger {
	return slog.Default()
}

// SetOutput 设置日志输出目标
//
// 重新创建默认 logger，将输出重定向到指定的 Writer。
func SetOutput(w io.Writer) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
	rebuild()
}

// Configure 应用级别表与输出格式
//
// spec 格式与 TCF_LOG_LEVEL 相同，例如 "info,core/channel=debug"。
func Configure(spec, format string) {
	levelsMu.Lock()
	levels = ParseLevels(spec)
	jsonFormat = format == "json"
	levelsMu.Unlock()
	rebuild()
}

// SetLevel 设置默认日志级别（不影响按组件配置的级别）
func SetLevel(level slog.Level) {
	levelsMu.Lock()
	levels.Default = level
	levelsMu.Unlock()
	rebuild()
}

// rebuild 按当前输出与格式重建默认 handler
func rebuild() {
	outputMu.RLock()
	w := output
	outputMu.RUnlock()

	// handler 自身放行所有级别，过滤交给 LazyLogger 按组件决定
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	levelsMu.RLock()
	asJSON := jsonFormat
	levelsMu.RUnlock()

	var h slog.Handler
	if asJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

func levelFor(component string) slog.Level {
	levelsMu.RLock()
	defer levelsMu.RUnlock()
	return levels.For(component)
}

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 懒加载 logger
//
// 每次日志调用时都从 slog.Default() 获取最新的 handler，
// 支持在运行时动态切换日志输出目标和级别。
type LazyLogger struct {
	component string
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

// Component 返回组件名
func (l *LazyLogger) Component() string {
	return l.component
}

// Enabled 判断组件是否输出该级别
func (l *LazyLogger) Enabled(level slog.Level) bool {
	return level >= levelFor(l.component)
}

func (l *LazyLogger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	slog.Default().With("component", l.component).Log(ctx, level, msg, args...)
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) {
	l.log(context.Background(), slog.LevelDebug, msg, args...)
}

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) {
	l.log(context.Background(), slog.LevelInfo, msg, args...)
}

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) {
	l.log(context.Background(), slog.LevelWarn, msg, args...)
}

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) {
	l.log(context.Background(), slog.LevelError, msg, args...)
}

// DebugContext 带 context 的 Debug 日志
func (l *LazyLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// WarnContext 带 context 的 Warn 日志
func (l *LazyLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// With 添加额外的属性
func (l *LazyLogger) With(args ...any) *slog.Logger {
	return slog.Default().With("component", l.component).With(args...)
}

// ============================================================================
//                              工具函数
// ============================================================================

// TruncateID 安全截取 ID 用于日志显示
func TruncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[:maxLen]
}

func init() {
	Configure(os.Getenv(EnvLevel), os.Getenv(EnvFormat))
}
