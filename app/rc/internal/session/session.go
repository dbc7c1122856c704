// Package session 管理远程控制会话的生命周期与持久化。
package session

import "time"

// Status 会话状态
type Status string

const (
	// StatusActive 活跃
	StatusActive Status = "active"
	// StatusStopped 已终止（终态，不可重入）
	StatusStopped Status = "stopped"
)

// Session 远程控制会话
// 一台设备同一时刻至多存在一个 active 会话。
type Session struct {
	ID             string     `json:"session_id"`
	DeviceID       string     `json:"device_id"`
	OwnerID        string     `json:"owner_id"`
	Status         Status     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	StoppedAt      *time.Time `json:"stopped_at,omitempty"`
	LastActivityAt time.Time  `json:"-"`
}

// IsActive 会话是否处于活跃状态
func (s *Session) IsActive() bool {
	return s.Status == StatusActive
}

// DeviceStatus 设备远程控制状态
type DeviceStatus struct {
	HasActiveSession bool     `json:"has_active_session"`
	Session          *Session `json:"session,omitempty"`
}

// StopTrigger 会话终止触发方
type StopTrigger string

const (
	// TriggerOwner 持有者主动终止
	TriggerOwner StopTrigger = "owner_stop"
	// TriggerTimeout 空闲超时终止
	TriggerTimeout StopTrigger = "timeout_stop"
)

// Reason 返回指标 reason 标签值
func (t StopTrigger) Reason() string {
	if t == TriggerTimeout {
		return "timeout"
	}
	return "owner"
}
