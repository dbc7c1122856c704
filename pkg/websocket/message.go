// pkg/websocket/message.go
package websocket

import "encoding/json"

// Message WebSocket 消息
type Message struct {
	// Type 消息类型
	Type MessageType
	// Data 消息数据
	Data []byte
}

// NewTextMessage 创建文本消息
func NewTextMessage(data []byte) *Message {
	return &Message{Type: MessageTypeText, Data: data}
}

// NewBinaryMessage 创建二进制消息
func NewBinaryMessage(data []byte) *Message {
	return &Message{Type: MessageTypeBinary, Data: data}
}

// NewJSONMessage 序列化 v 并创建文本消息
func NewJSONMessage(v any) (*Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return NewTextMessage(data), nil
}
