// Package conc 提供带 panic 保护的 goroutine 工具。
package conc

import (
	"fmt"
	"runtime/debug"
)

// Future 表示一个异步任务的结果。
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Go 启动一个带 panic 保护的 goroutine，返回 Future。
// panic 会被捕获并转换为 error，不会导致进程崩溃。
func Go[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("panic recovered: %v\n%s", r, debug.Stack())
			}
		}()
		f.val, f.err = fn()
	}()

	return f
}

// Wait 阻塞等待任务完成，返回结果和错误。
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.val, f.err
}

// Err 阻塞等待任务完成，仅返回错误。
func (f *Future[T]) Err() error {
	<-f.done
	return f.err
}

// Done 返回任务完成通知通道。
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}
