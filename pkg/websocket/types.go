// pkg/websocket/types.go
package websocket

import "github.com/gorilla/websocket"

// MessageType 消息类型
type MessageType int

const (
	// MessageTypeText 文本消息
	MessageTypeText MessageType = websocket.TextMessage
	// MessageTypeBinary 二进制消息
	MessageTypeBinary MessageType = websocket.BinaryMessage
)

// String 返回消息类型的字符串表示
func (t MessageType) String() string {
	switch t {
	case MessageTypeText:
		return "text"
	case MessageTypeBinary:
		return "binary"
	default:
		return "unknown"
	}
}
