package web

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Config Web 服务配置
type Config struct {
	Port         int           `mapstructure:"port" json:"port" yaml:"port"`
	Mode         string        `mapstructure:"mode" json:"mode" yaml:"mode"` // debug, release, test
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
	EnableCORS   bool          `mapstructure:"enable_cors" json:"enable_cors" yaml:"enable_cors"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		Mode:         gin.ReleaseMode,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		EnableCORS:   true,
	}
}
