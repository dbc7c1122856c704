package postgres

import "time"

// Config PostgreSQL 配置（单机模式）
type Config struct {
	// Host 主机地址
	Host string `mapstructure:"host" json:"host" yaml:"host"`
	// Port 端口
	Port int `mapstructure:"port" json:"port" yaml:"port"`
	// User 用户名
	User string `mapstructure:"user" json:"user" yaml:"user"`
	// Password 密码
	Password string `mapstructure:"password" json:"password" yaml:"password"`
	// Database 数据库名
	Database string `mapstructure:"database" json:"database" yaml:"database"`
	// SSLMode SSL 模式
	SSLMode string `mapstructure:"ssl_mode" json:"ssl_mode" yaml:"ssl_mode"`
	// MaxConns 连接池最大连接数
	MaxConns int32 `mapstructure:"max_conns" json:"max_conns" yaml:"max_conns"`
	// MinConns 连接池最小连接数
	MinConns int32 `mapstructure:"min_conns" json:"min_conns" yaml:"min_conns"`
	// MaxConnLifetime 连接最大生命周期
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" json:"max_conn_lifetime" yaml:"max_conn_lifetime"`
	// MaxConnIdleTime 连接最大空闲时间
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time" json:"max_conn_idle_time" yaml:"max_conn_idle_time"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Database:        "castmill",
		SSLMode:         "disable",
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}
