package redis

import (
	"context"
	"encoding/json"
	"fmt"

	gwsession "github.com/castmill/castmill-sub013/app/rc/internal/session"
	"github.com/castmill/castmill-sub013/pkg/database/redis"
	"github.com/castmill/castmill-sub013/pkg/logger"
)

// StopMessage 会话终止信令
type StopMessage struct {
	SessionID string `json:"session_id"`
	Trigger   string `json:"trigger"`
}

// RelayStartMessage 中继启动信令
type RelayStartMessage struct {
	SessionID string `json:"session_id"`
	DeviceID  string `json:"device_id"`
}

// SignalPublisher Redis Pub/Sub 信令发布器
// 终止信令经 Redis 广播后由各实例的停止监听器回流到本地总线，
// 因此本实例与其他实例的 actor 观察到同一条信令。
type SignalPublisher struct {
	logger logger.Logger
	client redis.Client
}

var _ gwsession.SignalPublisher = (*SignalPublisher)(nil)

// NewSignalPublisher 创建信令发布器
func NewSignalPublisher(l logger.Logger, client redis.Client) *SignalPublisher {
	return &SignalPublisher{
		logger: l.Named("redis.signal_publisher"),
		client: client,
	}
}

// NotifyRelayStart 通知设备为会话启动中继
// 设备的常驻在线通道订阅 rc:start:<device_id>。
func (p *SignalPublisher) NotifyRelayStart(ctx context.Context, deviceID, sessionID string) error {
	payload, err := json.Marshal(&RelayStartMessage{
		SessionID: sessionID,
		DeviceID:  deviceID,
	})
	if err != nil {
		return fmt.Errorf("marshal relay start message failed: %w", err)
	}

	channel := fmt.Sprintf("rc:start:%s", deviceID)
	if err := p.client.Publish(ctx, channel, string(payload)); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}

	p.logger.Debug("relay start published", "device_id", deviceID, "session_id", sessionID)
	return nil
}

// PublishStop 广播会话终止信令
func (p *SignalPublisher) PublishStop(ctx context.Context, sessionID string, trigger gwsession.StopTrigger) error {
	payload, err := json.Marshal(&StopMessage{
		SessionID: sessionID,
		Trigger:   string(trigger),
	})
	if err != nil {
		return fmt.Errorf("marshal stop message failed: %w", err)
	}

	channel := fmt.Sprintf("rc:stop:%s", sessionID)
	if err := p.client.Publish(ctx, channel, string(payload)); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}

	p.logger.Info("stop signal published", "session_id", sessionID, "trigger", string(trigger))
	return nil
}
