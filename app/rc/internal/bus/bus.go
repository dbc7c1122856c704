// Package bus 提供按会话划分的进程内发布/订阅总线。
// 三个连接 actor 之间只通过总线通信，发布方永不阻塞：
// 订阅方队列满时事件被丢弃，不排队、不重试。
package bus

import (
	"sync"

	"github.com/castmill/castmill-sub013/pkg/logger"
)

// Bus 进程内发布/订阅总线
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	logger logger.Logger
}

// New 创建总线
func New(l logger.Logger) *Bus {
	if l == nil {
		l = logger.Default()
	}
	return &Bus{
		topics: make(map[string]map[*Subscription]struct{}),
		logger: l.Named("rc.bus"),
	}
}

// Subscription 主题订阅句柄
type Subscription struct {
	bus       *Bus
	topic     string
	kinds     map[Kind]struct{} // 为空表示订阅所有类型
	ch        chan *Event
	closeOnce sync.Once
}

// Subscribe 订阅主题。kinds 声明感兴趣的事件类型，缺省订阅全部。
// buffer 为订阅方队列长度，投递时队列满即丢弃。
func (b *Bus) Subscribe(topic string, buffer int, kinds ...Kind) *Subscription {
	sub := &Subscription{
		bus:   b,
		topic: topic,
		ch:    make(chan *Event, buffer),
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Publish 向主题发布事件，返回成功投递和因队列满而丢弃的订阅方数量。
// delivered 为 0 且 dropped 为 0 表示没有订阅方关注该事件类型。
func (b *Bus) Publish(topic string, ev *Event) (delivered, dropped int) {
	b.mu.RLock()
	subs := b.topics[topic]
	// 投递在读锁内完成：通道发送是非阻塞的，不会长时间持锁
	for sub := range subs {
		if !sub.interested(ev.Kind) {
			continue
		}
		select {
		case sub.ch <- ev:
			delivered++
		default:
			// 订阅方饱和，丢弃
			dropped++
		}
	}
	b.mu.RUnlock()

	return delivered, dropped
}

// SubscriberCount 返回主题当前订阅方数量
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// interested 判断订阅方是否关注该事件类型
func (s *Subscription) interested(kind Kind) bool {
	if s.kinds == nil {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// C 返回事件接收通道
func (s *Subscription) C() <-chan *Event {
	return s.ch
}

// Close 取消订阅（幂等）。通道不关闭，避免与并发投递竞争。
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.mu.Lock()
		if subs, ok := s.bus.topics[s.topic]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.bus.topics, s.topic)
			}
		}
		s.bus.mu.Unlock()
	})
}
