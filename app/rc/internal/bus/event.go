package bus

import "time"

// Kind 总线事件类型
type Kind string

const (
	// KindDeviceConnected 设备控制连接已接入
	KindDeviceConnected Kind = "device_connected"
	// KindDeviceDisconnected 设备控制连接已断开
	KindDeviceDisconnected Kind = "device_disconnected"
	// KindMediaReady 设备媒体连接已接入
	KindMediaReady Kind = "media_ready"
	// KindMediaDisconnected 设备媒体连接已断开
	KindMediaDisconnected Kind = "media_disconnected"
	// KindControlEvent 操作端输入事件（操作端 → 设备）
	KindControlEvent Kind = "control_event"
	// KindDeviceEvent 设备上行事件（设备 → 操作端，含 ack）
	KindDeviceEvent Kind = "device_event"
	// KindMediaFrame 媒体帧（二进制载荷）
	KindMediaFrame Kind = "media_frame"
	// KindMediaMetadata 媒体元数据（分辨率、旋转角度等）
	KindMediaMetadata Kind = "media_metadata"
	// KindSessionStopped 会话已终止
	KindSessionStopped Kind = "session_stopped"
)

// Event 总线事件信封
// Payload 对 JSON 类事件为 JSON 字节，对 media_frame 为原始帧数据。
type Event struct {
	Kind      Kind      // 事件类型
	SessionID string    // 所属会话
	Sender    string    // 发布方连接 ID
	EventID   string    // 控制事件 ID（用于 ack 关联）
	Payload   []byte    // 载荷
	SentAt    time.Time // 发布时间
}

// SessionTopic 返回会话对应的主题名
func SessionTopic(sessionID string) string {
	return "session:" + sessionID
}
