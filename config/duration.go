package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Duration 配置文件中的时长
//
// 字符串按 time.ParseDuration 解析（"5s"、"2m30s"）；裸数字按秒计，
// 可带小数（"response_window": 1.5）。YAML 先转换为 JSON，规则相同。
type Duration time.Duration

// UnmarshalJSON 接受字符串或数字
func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return d.UnmarshalText([]byte(s))
	}
	secs, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("duration %s: want \"30s\" or seconds", data)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// UnmarshalText 解析 "30s" 形式，命令行与环境变量也走这里
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText 输出 "30s" 形式
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Duration 底层值
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// positive 校验辅助：必须大于零
func (d Duration) positive(field string) error {
	if d <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidConfig, field, d)
	}
	return nil
}
