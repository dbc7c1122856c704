package config

import "errors"

var (
	// ErrNilConfig 配置为空
	ErrNilConfig = errors.New("config: config is nil")
)
