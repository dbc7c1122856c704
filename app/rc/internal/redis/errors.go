package redis

import "errors"

var (
	// ErrInvalidDeviceToken 设备 token 无效或不存在
	ErrInvalidDeviceToken = errors.New("invalid device token")
)
