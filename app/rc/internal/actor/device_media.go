package actor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/castmill/castmill-sub013/app/rc/internal/bus"
	"github.com/castmill/castmill-sub013/app/rc/internal/metrics"
	"github.com/castmill/castmill-sub013/app/rc/internal/session"
	"github.com/castmill/castmill-sub013/pkg/logger"
	"github.com/castmill/castmill-sub013/pkg/util/conc"
	"github.com/castmill/castmill-sub013/pkg/websocket"
)

// DeviceMedia 设备媒体连接 actor
// 与控制连接分离，高频帧流量不会挤占低延迟控制流量。
// 媒体显式有损：没有操作端接收或其队列饱和时帧被丢弃，
// 绝不缓冲重发，保证"看到的是最新帧"。
type DeviceMedia struct {
	sessionID string
	deviceID  string

	conn    *websocket.Connection
	bus     *bus.Bus
	mgr     *session.Manager
	metrics *metrics.RCMetrics
	logger  logger.Logger

	lastTouch time.Time

	// 帧率滚动窗口
	windowStart time.Time
	windowCount int
}

// NewDeviceMedia 创建设备媒体 actor
func NewDeviceMedia(sessionID, deviceID string, conn *websocket.Connection, b *bus.Bus,
	mgr *session.Manager, m *metrics.RCMetrics, l logger.Logger) *DeviceMedia {
	return &DeviceMedia{
		sessionID: sessionID,
		deviceID:  deviceID,
		conn:      conn,
		bus:       b,
		mgr:       mgr,
		metrics:   m,
		logger: l.Named("rc.actor.device_media").WithFields(
			"session_id", sessionID, "device_id", deviceID, "conn_id", conn.ID()),
	}
}

// Run 运行 actor 直到传输断开、会话终止或 ctx 取消
func (a *DeviceMedia) Run(ctx context.Context) {
	topic := bus.SessionTopic(a.sessionID)
	sub := a.bus.Subscribe(topic, 1, bus.KindSessionStopped)
	defer sub.Close()

	a.publish(bus.KindMediaReady, nil)
	a.logger.Info("device media attached")

	reader := conc.Go(func() (struct{}, error) {
		return struct{}{}, a.readLoop(ctx)
	})

	defer func() {
		_ = a.conn.Close()
		<-reader.Done()
		a.publish(bus.KindMediaDisconnected, nil)
		a.logger.Info("device media detached")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-reader.Done():
			return

		case <-a.conn.Done():
			return

		case ev := <-sub.C():
			if ev.Kind == bus.KindSessionStopped {
				a.logger.Info("session stopped, closing device media")
				return
			}
		}
	}
}

// readLoop 读取媒体帧与元数据并发布到总线
func (a *DeviceMedia) readLoop(ctx context.Context) error {
	for {
		msg, err := a.conn.ReadMessage()
		if err != nil {
			a.logger.Debug("device media read ended", "error", err)
			return nil
		}

		switch msg.Type {
		case websocket.MessageTypeBinary:
			a.handleFrame(msg.Data)
		case websocket.MessageTypeText:
			a.handleMetadata(msg.Data)
		}

		a.touch(ctx)
	}
}

// handleFrame 发布媒体帧。没有任何接收方收到即计为丢帧。
func (a *DeviceMedia) handleFrame(data []byte) {
	a.metrics.MediaFrames.Inc()
	a.trackFPS()

	delivered, _ := a.bus.Publish(bus.SessionTopic(a.sessionID), &bus.Event{
		Kind:      bus.KindMediaFrame,
		SessionID: a.sessionID,
		Sender:    a.conn.ID(),
		Payload:   data,
		SentAt:    time.Now(),
	})
	if delivered == 0 {
		a.metrics.FramesDropped.WithLabelValues(RoleDeviceMedia).Inc()
	}
}

// handleMetadata 发布媒体元数据（分辨率、旋转角度）
func (a *DeviceMedia) handleMetadata(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		a.logger.Warn("invalid media metadata", "error", err)
		return
	}

	a.publish(bus.KindMediaMetadata, env.Payload)
}

// trackFPS 更新帧率滚动窗口
func (a *DeviceMedia) trackFPS() {
	now := time.Now()
	if a.windowStart.IsZero() {
		a.windowStart = now
	}
	a.windowCount++

	elapsed := now.Sub(a.windowStart)
	if elapsed >= time.Second {
		a.metrics.MediaFPS.Set(float64(a.windowCount) / elapsed.Seconds())
		a.windowStart = now
		a.windowCount = 0
	}
}

// publish 向会话总线发布事件
func (a *DeviceMedia) publish(kind bus.Kind, payload []byte) {
	a.bus.Publish(bus.SessionTopic(a.sessionID), &bus.Event{
		Kind:      kind,
		SessionID: a.sessionID,
		Sender:    a.conn.ID(),
		Payload:   payload,
		SentAt:    time.Now(),
	})
}

// touch 节流刷新会话活动时间
func (a *DeviceMedia) touch(ctx context.Context) {
	if time.Since(a.lastTouch) < touchInterval {
		return
	}
	a.lastTouch = time.Now()
	a.mgr.Touch(ctx, a.sessionID)
}
