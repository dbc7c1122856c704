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

// DeviceControl 设备控制连接 actor
// 下行转发 control_event 到设备，上行将设备消息转为 device_event。
type DeviceControl struct {
	sessionID string
	deviceID  string

	conn    *websocket.Connection
	bus     *bus.Bus
	mgr     *session.Manager
	metrics *metrics.RCMetrics
	logger  logger.Logger

	queueSize int
	lastTouch time.Time
}

// NewDeviceControl 创建设备控制 actor
func NewDeviceControl(sess *session.Session, conn *websocket.Connection, b *bus.Bus,
	mgr *session.Manager, m *metrics.RCMetrics, l logger.Logger) *DeviceControl {
	return &DeviceControl{
		sessionID: sess.ID,
		deviceID:  sess.DeviceID,
		conn:      conn,
		bus:       b,
		mgr:       mgr,
		metrics:   m,
		logger: l.Named("rc.actor.device_control").WithFields(
			"session_id", sess.ID, "device_id", sess.DeviceID, "conn_id", conn.ID()),
		queueSize: mgr.Config().ControlQueueSize,
	}
}

// Run 运行 actor 直到传输断开、会话终止或 ctx 取消
func (a *DeviceControl) Run(ctx context.Context) {
	topic := bus.SessionTopic(a.sessionID)
	sub := a.bus.Subscribe(topic, a.queueSize, bus.KindControlEvent, bus.KindSessionStopped)
	defer sub.Close()

	a.publish(bus.KindDeviceConnected, "", nil)
	a.logger.Info("device control attached")

	// 读循环独立运行，传输断开时结束
	reader := conc.Go(func() (struct{}, error) {
		return struct{}{}, a.readLoop(ctx)
	})

	defer func() {
		_ = a.conn.Close()
		<-reader.Done()
		a.publish(bus.KindDeviceDisconnected, "", nil)
		a.logger.Info("device control detached")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-reader.Done():
			// 传输断开：只拆除本 actor，会话本身不受影响
			return

		case <-a.conn.Done():
			return

		case ev := <-sub.C():
			switch ev.Kind {
			case bus.KindControlEvent:
				a.forwardControlEvent(ev)
			case bus.KindSessionStopped:
				a.logger.Info("session stopped, closing device control")
				return
			}
		}
	}
}

// forwardControlEvent 将 control_event 下发到设备传输连接
// 出站队列满时丢弃：过期的控制命令比丢失的更糟。
func (a *DeviceControl) forwardControlEvent(ev *bus.Event) {
	msg, err := websocket.NewJSONMessage(&Envelope{
		Kind:    envelopeControlEvent,
		EventID: ev.EventID,
		Payload: ev.Payload,
	})
	if err != nil {
		a.logger.Error("marshal control event failed", "error", err)
		return
	}

	if !a.conn.TrySend(msg) {
		a.metrics.QueueFull.WithLabelValues(RoleDeviceControl).Inc()
		a.logger.Debug("control event dropped: send queue full", "event_id", ev.EventID)
	}
}

// readLoop 读取设备上行消息并转发为 device_event
func (a *DeviceControl) readLoop(ctx context.Context) error {
	for {
		msg, err := a.conn.ReadMessage()
		if err != nil {
			a.logger.Debug("device control read ended", "error", err)
			return nil
		}

		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			a.logger.Warn("invalid device message", "error", err)
			continue
		}

		a.publish(bus.KindDeviceEvent, env.EventID, msg.Data)
		a.touch(ctx)
	}
}

// publish 向会话总线发布事件
func (a *DeviceControl) publish(kind bus.Kind, eventID string, payload []byte) {
	a.bus.Publish(bus.SessionTopic(a.sessionID), &bus.Event{
		Kind:      kind,
		SessionID: a.sessionID,
		Sender:    a.conn.ID(),
		EventID:   eventID,
		Payload:   payload,
		SentAt:    time.Now(),
	})
}

// touch 节流刷新会话活动时间
func (a *DeviceControl) touch(ctx context.Context) {
	if time.Since(a.lastTouch) < touchInterval {
		return
	}
	a.lastTouch = time.Now()
	a.mgr.Touch(ctx, a.sessionID)
}
