package logger

import "sync"

var (
	defaultLogger Logger
	defaultOnce   sync.Once
)

// Default 返回进程级默认 logger（控制台输出，info 级别）。
// 用于未显式注入 logger 的场景。
func Default() Logger {
	defaultOnce.Do(func() {
		l, err := New(DefaultConfig())
		if err != nil {
			panic(err)
		}
		defaultLogger = l
	})
	return defaultLogger
}
