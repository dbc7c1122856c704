package session

import "errors"

var (
	// ErrSessionConflict 设备已存在活跃会话
	ErrSessionConflict = errors.New("device already has an active session")

	// ErrSessionNotFound 会话不存在或已终止
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotOwner 请求方不是会话持有者
	ErrNotOwner = errors.New("requester is not the session owner")

	// ErrRelayStart 设备侧中继启动失败
	ErrRelayStart = errors.New("failed to start device relay")

	// ErrSessionMismatch 会话与设备不匹配
	ErrSessionMismatch = errors.New("session does not belong to device")
)
