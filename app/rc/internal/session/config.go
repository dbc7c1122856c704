package session

import "time"

// Config 远程控制会话配置
type Config struct {
	// IdleTimeout 会话空闲超时，超过该时长无任何 actor 活动则强制终止
	IdleTimeout time.Duration `mapstructure:"idle_timeout" json:"idle_timeout" yaml:"idle_timeout"`
	// SweepInterval 空闲会话清理周期
	SweepInterval time.Duration `mapstructure:"sweep_interval" json:"sweep_interval" yaml:"sweep_interval"`
	// ControlQueueSize 设备控制连接的出站队列长度
	ControlQueueSize int `mapstructure:"control_queue_size" json:"control_queue_size" yaml:"control_queue_size"`
	// FrameQueueSize 操作端订阅媒体帧的队列长度（小队列保证"最新帧优先"）
	FrameQueueSize int `mapstructure:"frame_queue_size" json:"frame_queue_size" yaml:"frame_queue_size"`
	// WindowQueueSize 操作端连接的出站队列长度
	WindowQueueSize int `mapstructure:"window_queue_size" json:"window_queue_size" yaml:"window_queue_size"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		IdleTimeout:      5 * time.Minute,
		SweepInterval:    30 * time.Second,
		ControlQueueSize: 64,
		FrameQueueSize:   8,
		WindowQueueSize:  256,
	}
}
