package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Config 连接配置
type Config struct {
	// SendQueueSize 发送队列长度
	SendQueueSize int `mapstructure:"send_queue_size" json:"send_queue_size" yaml:"send_queue_size"`
	// ReadLimit 单条消息最大字节数
	ReadLimit int64 `mapstructure:"read_limit" json:"read_limit" yaml:"read_limit"`
	// WriteTimeout 写超时
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
	// PingInterval Ping 间隔
	PingInterval time.Duration `mapstructure:"ping_interval" json:"ping_interval" yaml:"ping_interval"`
	// PongTimeout Pong 超时（超过该时长未收到 Pong 视为断开）
	PongTimeout time.Duration `mapstructure:"pong_timeout" json:"pong_timeout" yaml:"pong_timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		SendQueueSize: 256,
		ReadLimit:     1 << 20, // 1MB，媒体帧的上限
		WriteTimeout:  10 * time.Second,
		PingInterval:  30 * time.Second,
		PongTimeout:   60 * time.Second,
	}
}

// NewUpgrader 创建 HTTP 升级器
func NewUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// 管理面已有独立的认证，跨域由业务层控制
		CheckOrigin: func(r *http.Request) bool { return true },
	}
}
