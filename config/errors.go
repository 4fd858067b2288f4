package config

import "errors"

var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("invalid config")

	// ErrUnknownFormat 无法识别的配置文件格式
	ErrUnknownFormat = errors.New("unknown config format")
)
