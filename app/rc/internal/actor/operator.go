package actor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/castmill/castmill-sub013/app/rc/internal/bus"
	"github.com/castmill/castmill-sub013/app/rc/internal/metrics"
	"github.com/castmill/castmill-sub013/app/rc/internal/session"
	"github.com/castmill/castmill-sub013/pkg/logger"
	"github.com/castmill/castmill-sub013/pkg/util/conc"
	"github.com/castmill/castmill-sub013/pkg/websocket"
)

// pendingLimit 待确认控制事件上限，超出后不再记录延迟样本
const pendingLimit = 1024

// Operator 操作端控制窗口 actor
// 上行将操作端输入发布为 control_event，下行把设备事件、
// 媒体帧和连接状态变化转发给操作端渲染。
type Operator struct {
	sessionID string
	ownerID   string

	conn    *websocket.Connection
	bus     *bus.Bus
	mgr     *session.Manager
	metrics *metrics.RCMetrics
	logger  logger.Logger

	queueSize int
	frameSize int
	lastTouch time.Time

	// 待确认的控制事件（event_id -> 发布时间），读循环写、总线循环读
	mu      sync.Mutex
	pending map[string]time.Time
}

// NewOperator 创建操作端 actor
func NewOperator(sess *session.Session, conn *websocket.Connection, b *bus.Bus,
	mgr *session.Manager, m *metrics.RCMetrics, l logger.Logger) *Operator {
	return &Operator{
		sessionID: sess.ID,
		ownerID:   sess.OwnerID,
		conn:      conn,
		bus:       b,
		mgr:       mgr,
		metrics:   m,
		logger: l.Named("rc.actor.operator").WithFields(
			"session_id", sess.ID, "owner_id", sess.OwnerID, "conn_id", conn.ID()),
		queueSize: mgr.Config().WindowQueueSize,
		frameSize: mgr.Config().FrameQueueSize,
		pending:   make(map[string]time.Time),
	}
}

// Run 运行 actor 直到传输断开、会话终止或 ctx 取消
func (a *Operator) Run(ctx context.Context) {
	topic := bus.SessionTopic(a.sessionID)
	sub := a.bus.Subscribe(topic, a.queueSize,
		bus.KindDeviceEvent,
		bus.KindMediaMetadata,
		bus.KindDeviceConnected,
		bus.KindDeviceDisconnected,
		bus.KindMediaReady,
		bus.KindMediaDisconnected,
		bus.KindSessionStopped,
	)
	defer sub.Close()

	// 媒体帧单独订阅，小队列让过期帧在总线侧被丢弃
	frames := a.bus.Subscribe(topic, a.frameSize, bus.KindMediaFrame)
	defer frames.Close()

	a.logger.Info("operator window attached")

	reader := conc.Go(func() (struct{}, error) {
		return struct{}{}, a.readLoop(ctx)
	})

	defer func() {
		_ = a.conn.Close()
		<-reader.Done()
		a.logger.Info("operator window detached")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-reader.Done():
			return

		case <-a.conn.Done():
			return

		case ev := <-frames.C():
			// 媒体帧走二进制消息；队列满即丢帧
			if !a.conn.TrySend(websocket.NewBinaryMessage(ev.Payload)) {
				a.metrics.FramesDropped.WithLabelValues(RoleOperatorWindow).Inc()
			}

		case ev := <-sub.C():
			if ev.Kind == bus.KindSessionStopped {
				// 终态通知：操作端据此展示"会话已结束"
				a.forwardEnvelope(&Envelope{Kind: envelopeSessionStopped, Payload: ev.Payload})
				a.logger.Info("session stopped, closing operator window")
				return
			}
			a.dispatch(ev)
		}
	}
}

// dispatch 将总线事件转发到操作端传输连接
func (a *Operator) dispatch(ev *bus.Event) {
	switch ev.Kind {
	case bus.KindDeviceEvent:
		a.observeAck(ev)
		a.forwardEnvelope(&Envelope{Kind: envelopeDeviceEvent, EventID: ev.EventID, Payload: ev.Payload})

	case bus.KindMediaMetadata:
		a.forwardEnvelope(&Envelope{Kind: envelopeMediaMetadata, Payload: ev.Payload})

	default:
		// 连接状态变化：device_connected/disconnected、media_ready/disconnected
		a.forwardEnvelope(&Envelope{Kind: string(ev.Kind), Payload: ev.Payload})
	}
}

// forwardEnvelope 将信封发送到操作端，队列满时计数丢弃
func (a *Operator) forwardEnvelope(env *Envelope) {
	msg, err := websocket.NewJSONMessage(env)
	if err != nil {
		a.logger.Error("marshal envelope failed", "kind", env.Kind, "error", err)
		return
	}
	if !a.conn.TrySend(msg) {
		a.metrics.QueueFull.WithLabelValues(RoleOperatorWindow).Inc()
	}
}

// observeAck 关联设备 ack 并记录控制事件延迟
func (a *Operator) observeAck(ev *bus.Event) {
	if ev.EventID == "" {
		return
	}

	a.mu.Lock()
	sentAt, ok := a.pending[ev.EventID]
	if ok {
		delete(a.pending, ev.EventID)
	}
	a.mu.Unlock()

	if ok {
		a.metrics.ControlLatency.Observe(time.Since(sentAt).Seconds())
	}
}

// readLoop 读取操作端输入并发布为 control_event
func (a *Operator) readLoop(ctx context.Context) error {
	for {
		msg, err := a.conn.ReadMessage()
		if err != nil {
			a.logger.Debug("operator read ended", "error", err)
			return nil
		}

		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			a.logger.Warn("invalid operator message", "error", err)
			continue
		}
		if env.Kind != envelopeControlEvent {
			a.logger.Debug("ignoring unexpected operator message", "kind", env.Kind)
			continue
		}

		eventID := uuid.NewString()
		now := time.Now()

		a.mu.Lock()
		if len(a.pending) < pendingLimit {
			a.pending[eventID] = now
		}
		a.mu.Unlock()

		_, dropped := a.bus.Publish(bus.SessionTopic(a.sessionID), &bus.Event{
			Kind:      bus.KindControlEvent,
			SessionID: a.sessionID,
			Sender:    a.conn.ID(),
			EventID:   eventID,
			Payload:   env.Payload,
			SentAt:    now,
		})
		if dropped > 0 {
			// control_event 只有设备控制 actor 订阅：丢弃即其入站队列满
			a.metrics.QueueFull.WithLabelValues(RoleDeviceControl).Add(float64(dropped))
		}
		a.metrics.ControlEvents.Inc()
		a.touch(ctx)
	}
}

// touch 节流刷新会话活动时间
func (a *Operator) touch(ctx context.Context) {
	if time.Since(a.lastTouch) < touchInterval {
		return
	}
	a.lastTouch = time.Now()
	a.mgr.Touch(ctx, a.sessionID)
}
