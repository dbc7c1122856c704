package websocket

import "errors"

var (
	// ErrConnectionClosed 连接已关闭
	ErrConnectionClosed = errors.New("websocket: connection is closed")

	// ErrSendQueueFull 发送队列已满
	ErrSendQueueFull = errors.New("websocket: send queue is full")
)
