package log

import (
	"log/slog"
	"sort"
	"strings"
)

// 环境变量
const (
	// EnvLevel 级别配置，格式: 组件=级别,...,默认级别
	//
	//	TCF_LOG_LEVEL=core/channel=debug,warn
	EnvLevel = "TCF_LOG_LEVEL"

	// EnvFormat 输出格式 (text 或 json)
	EnvFormat = "TCF_LOG_FORMAT"
)

// Levels 组件级别表
type Levels struct {
	Default    slog.Level
	Components map[string]slog.Level
}

// ParseLevels 解析级别配置
//
// 无法识别的条目被忽略。组件名按前缀匹配，最长前缀优先，
// 因此 "core=debug" 同时作用于 "core/channel" 与 "core/locator"。
func ParseLevels(spec string) Levels {
	lv := Levels{
		Default:    slog.LevelInfo,
		Components: make(map[string]slog.Level),
	}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if name, value, ok := strings.Cut(part, "="); ok {
			if level, ok := parseLevel(value); ok {
				lv.Components[strings.TrimSpace(name)] = level
			}
			continue
		}
		if level, ok := parseLevel(part); ok {
			lv.Default = level
		}
	}
	return lv
}

// For 返回组件的生效级别
func (lv Levels) For(component string) slog.Level {
	if level, ok := lv.Components[component]; ok {
		return level
	}
	names := make([]string, 0, len(lv.Components))
	for name := range lv.Components {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	for _, name := range names {
		if strings.HasPrefix(component, name+"/") {
			return lv.Components[name]
		}
	}
	return lv.Default
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return 0, false
}
