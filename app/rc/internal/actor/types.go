// Package actor 实现会话的三类连接 actor：
// 设备控制连接、设备媒体连接、操作端控制窗口连接。
// actor 之间没有共享可变状态，只通过会话总线通信。
package actor

import (
	"encoding/json"
	"time"
)

// 角色标识（用于指标 role 标签）
const (
	// RoleDeviceControl 设备控制连接
	RoleDeviceControl = "device_control"
	// RoleDeviceMedia 设备媒体连接
	RoleDeviceMedia = "device_media"
	// RoleOperatorWindow 操作端控制窗口连接
	RoleOperatorWindow = "operator_window"
)

// touchInterval 会话活动时间的刷新节流间隔
// 媒体帧可达每秒数十条，逐条落库没有意义。
const touchInterval = 10 * time.Second

// Envelope WebSocket 文本消息信封
// 操作端输入、设备事件和下行通知共用该结构；媒体帧走二进制消息。
type Envelope struct {
	Kind    string          `json:"kind"`
	EventID string          `json:"event_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// 信封 kind 取值
const (
	envelopeControlEvent   = "control_event"
	envelopeDeviceEvent    = "device_event"
	envelopeMediaMetadata  = "media_metadata"
	envelopeSessionStopped = "session_stopped"
)
