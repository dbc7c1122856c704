// pkg/logger/logger.go
package logger

import (
	"fmt"
	"os"

	"github.com/castmill/castmill-sub013/pkg/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 确保 BaseLogger 实现了 Logger 接口
var _ Logger = (*BaseLogger)(nil)

// BaseLogger 基于 zap 的日志记录器实现
type BaseLogger struct {
	sugar  *zap.SugaredLogger
	config *Config
	name   string
}

// New 创建新的 BaseLogger
func New(cfg *Config) (*BaseLogger, error) {
	// 合并默认配置和用户配置，确保部分配置也能正常工作
	mergedConfig, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}

	l := &BaseLogger{config: mergedConfig}

	zapLogger, err := l.build()
	if err != nil {
		return nil, err
	}
	l.sugar = zapLogger.Sugar()

	return l, nil
}

// build 构建 zap logger
func (l *BaseLogger) build() (*zap.Logger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch l.config.Format {
	case ConsoleFormat:
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	writers := make([]zapcore.WriteSyncer, 0, 2)

	// 控制台输出
	if l.config.EnableConsole {
		writers = append(writers, zapcore.AddSync(os.Stdout))
	}

	// 文件输出（仅在 EnableFile=true 时创建轮换 writer）
	if l.config.EnableFile {
		fileWriter := NewRotationWriter(&l.config.Rotation, l.config.OutputPath)
		writers = append(writers, zapcore.AddSync(fileWriter))
	}

	if len(writers) == 0 {
		writers = append(writers, zapcore.AddSync(os.Stdout))
	}

	core := zapcore.NewCore(
		encoder,
		zapcore.NewMultiWriteSyncer(writers...),
		l.parseLevel(l.config.Level),
	)

	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)), nil
}

// parseLevel 解析日志级别
func (l *BaseLogger) parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Debug 记录 Debug 级别日志
func (l *BaseLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info 记录 Info 级别日志
func (l *BaseLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn 记录 Warn 级别日志
func (l *BaseLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error 记录 Error 级别日志
func (l *BaseLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// Named 派生带名称的子 logger
func (l *BaseLogger) Named(name string) Logger {
	derived := *l
	if l.name != "" {
		derived.name = l.name + "." + name
	} else {
		derived.name = name
	}
	derived.sugar = l.sugar.Named(name)
	return &derived
}

// WithFields 派生带固定字段的子 logger
func (l *BaseLogger) WithFields(keysAndValues ...interface{}) Logger {
	derived := *l
	derived.sugar = l.sugar.With(keysAndValues...)
	return &derived
}

// Sync 刷新缓冲的日志
func (l *BaseLogger) Sync() error {
	return l.sugar.Sync()
}
