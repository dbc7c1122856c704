package redis

// Message Pub/Sub 消息（隐藏 go-redis 类型）
type Message struct {
	Channel string // 频道
	Pattern string // 模式（模式订阅时使用）
	Payload string // 消息内容
}
