package redis

import "time"

// Config Redis 配置（单机模式）
type Config struct {
	// Addr 地址（host:port）
	Addr string `mapstructure:"addr" json:"addr" yaml:"addr"`
	// Password 密码
	Password string `mapstructure:"password" json:"password" yaml:"password"`
	// DB 数据库编号
	DB int `mapstructure:"db" json:"db" yaml:"db"`
	// PoolSize 连接池大小
	PoolSize int `mapstructure:"pool_size" json:"pool_size" yaml:"pool_size"`
	// DialTimeout 连接超时
	DialTimeout time.Duration `mapstructure:"dial_timeout" json:"dial_timeout" yaml:"dial_timeout"`
	// ReadTimeout 读超时
	ReadTimeout time.Duration `mapstructure:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	// WriteTimeout 写超时
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}
