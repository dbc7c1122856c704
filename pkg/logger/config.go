package logger

// Format 日志输出格式
type Format string

const (
	// JSONFormat JSON 格式输出
	JSONFormat Format = "json"
	// ConsoleFormat 控制台格式输出
	ConsoleFormat Format = "console"
)

// RotationConfig 日志轮换配置（按大小轮换）
type RotationConfig struct {
	// MaxSize 单个日志文件最大尺寸（MB）
	MaxSize int `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	// MaxBackups 保留的旧日志文件数量
	MaxBackups int `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	// MaxAge 旧日志保留天数
	MaxAge int `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	// Compress 是否压缩旧日志
	Compress bool `mapstructure:"compress" json:"compress" yaml:"compress"`
}

// Config 日志配置
type Config struct {
	// Level 日志级别：debug/info/warn/error
	Level string `mapstructure:"level" json:"level" yaml:"level"`
	// Format 输出格式：json/console
	Format Format `mapstructure:"format" json:"format" yaml:"format"`
	// EnableConsole 是否输出到控制台
	EnableConsole bool `mapstructure:"enable_console" json:"enable_console" yaml:"enable_console"`
	// EnableFile 是否输出到文件
	EnableFile bool `mapstructure:"enable_file" json:"enable_file" yaml:"enable_file"`
	// OutputPath 日志文件路径（EnableFile=true 时生效）
	OutputPath string `mapstructure:"output_path" json:"output_path" yaml:"output_path"`
	// Rotation 轮换配置
	Rotation RotationConfig `mapstructure:"rotation" json:"rotation" yaml:"rotation"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Level:         "info",
		Format:        JSONFormat,
		EnableConsole: true,
		EnableFile:    false,
		OutputPath:    "logs/app.log",
		Rotation: RotationConfig{
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     7,
			Compress:   true,
		},
	}
}
