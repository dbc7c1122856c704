package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/castmill/castmill-sub013/app/rc/internal/bus"
	"github.com/castmill/castmill-sub013/pkg/database/redis"
	"github.com/castmill/castmill-sub013/pkg/logger"
	"github.com/castmill/castmill-sub013/pkg/util/conc"
)

// StopListener Redis Pub/Sub 会话终止监听器
// 订阅所有会话的终止频道，将信令转发到本地总线，
// 使挂在本实例上的 actor 观察到 session_stopped。
type StopListener struct {
	logger    logger.Logger
	client    redis.Client
	bus       *bus.Bus
	ctx       context.Context
	cancel    context.CancelFunc
	subFuture *conc.Future[struct{}]
}

// NewStopListener 创建终止监听器
func NewStopListener(l logger.Logger, client redis.Client, b *bus.Bus) *StopListener {
	ctx, cancel := context.WithCancel(context.Background())
	return &StopListener{
		logger: l.Named("redis.stop_listener"),
		client: client,
		bus:    b,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 启动监听
func (sl *StopListener) Start() error {
	// 订阅所有会话的终止频道（使用模式匹配）
	pattern := "rc:stop:*"

	pubsub, err := sl.client.PSubscribe(sl.ctx, pattern)
	if err != nil {
		return fmt.Errorf("redis psubscribe failed: %w", err)
	}

	sl.logger.Info("stop listener started", "pattern", pattern)

	// 启动消息处理循环
	sl.subFuture = conc.Go(func() (struct{}, error) {
		return struct{}{}, sl.messageLoop(pubsub)
	})

	return nil
}

// Stop 停止监听
func (sl *StopListener) Stop() error {
	sl.cancel()

	if sl.subFuture != nil {
		if err := sl.subFuture.Err(); err != nil {
			sl.logger.Warn("stop listener stopped with error", "error", err)
		}
	}

	sl.logger.Info("stop listener stopped")
	return nil
}

// messageLoop 消息处理循环
func (sl *StopListener) messageLoop(pubsub redis.PubSub) error {
	msgChan := pubsub.Channel()

	for {
		select {
		case <-sl.ctx.Done():
			return pubsub.Close()

		case msg, ok := <-msgChan:
			if !ok {
				sl.logger.Warn("pubsub channel closed")
				return nil
			}

			if err := sl.handleStopMessage(msg.Payload); err != nil {
				sl.logger.Error("handle stop message failed",
					"channel", msg.Channel,
					"payload", msg.Payload,
					"error", err,
				)
			}
		}
	}
}

// handleStopMessage 处理终止信令，转发到本地总线
func (sl *StopListener) handleStopMessage(payload string) error {
	var stopMsg StopMessage
	if err := json.Unmarshal([]byte(payload), &stopMsg); err != nil {
		return fmt.Errorf("unmarshal stop message failed: %w", err)
	}

	topic := bus.SessionTopic(stopMsg.SessionID)
	delivered, _ := sl.bus.Publish(topic, &bus.Event{
		Kind:      bus.KindSessionStopped,
		SessionID: stopMsg.SessionID,
		Payload:   []byte(payload),
		SentAt:    time.Now(),
	})

	sl.logger.Info("session stop relayed to local bus",
		"session_id", stopMsg.SessionID,
		"trigger", stopMsg.Trigger,
		"delivered", delivered,
	)

	return nil
}
