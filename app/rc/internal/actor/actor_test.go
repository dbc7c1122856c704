package actor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castmill/castmill-sub013/app/rc/internal/bus"
	"github.com/castmill/castmill-sub013/app/rc/internal/metrics"
	"github.com/castmill/castmill-sub013/app/rc/internal/session"
	"github.com/castmill/castmill-sub013/pkg/logger"
	"github.com/castmill/castmill-sub013/pkg/websocket"
)

// nopStore actor 测试不关心持久化
type nopStore struct{}

func (nopStore) Create(context.Context, *session.Session) error { return nil }
func (nopStore) GetByID(context.Context, string) (*session.Session, error) {
	return nil, session.ErrSessionNotFound
}
func (nopStore) GetActiveByDevice(context.Context, string) (*session.Session, error) {
	return nil, session.ErrSessionNotFound
}
func (nopStore) MarkStopped(context.Context, string, time.Time) error { return nil }
func (nopStore) Delete(context.Context, string) error                 { return nil }
func (nopStore) Touch(context.Context, string, time.Time) error       { return nil }
func (nopStore) ListIdleActive(context.Context, time.Time) ([]*session.Session, error) {
	return nil, nil
}

type nopPublisher struct{}

func (nopPublisher) NotifyRelayStart(context.Context, string, string) error { return nil }
func (nopPublisher) PublishStop(context.Context, string, session.StopTrigger) error {
	return nil
}

type testEnv struct {
	bus     *bus.Bus
	mgr     *session.Manager
	metrics *metrics.RCMetrics
	sess    *session.Session
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	m, err := metrics.New(nil)
	require.NoError(t, err)
	mgr, err := session.NewManager(&session.Config{}, nopStore{}, nopPublisher{}, m, logger.Default())
	require.NoError(t, err)

	return &testEnv{
		bus:     bus.New(logger.Default()),
		mgr:     mgr,
		metrics: m,
		sess: &session.Session{
			ID:        "sess-1",
			DeviceID:  "dev-1",
			OwnerID:   "alice",
			Status:    session.StatusActive,
			StartedAt: time.Now(),
		},
	}
}

// newTestConn 建立一对真实的 WebSocket 连接：服务端封装 + 客户端裸连接
func newTestConn(t *testing.T) (*websocket.Connection, *gws.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Connection, 1)
	upgrader := websocket.NewUpgrader()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		connCh <- websocket.NewConnection(raw, nil, logger.Default())
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case conn := <-connCh:
		t.Cleanup(func() { _ = conn.Close() })
		return conn, client
	case <-time.After(time.Second):
		t.Fatal("server connection not established")
		return nil, nil
	}
}

func readEnvelope(t *testing.T, client *gws.Conn) *Envelope {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return &env
}

// TestDeviceControlRelay 控制事件下发到设备，设备上行转为 device_event
func TestDeviceControlRelay(t *testing.T) {
	env := newTestEnv(t)
	conn, client := newTestConn(t)
	topic := bus.SessionTopic(env.sess.ID)

	watcher := env.bus.Subscribe(topic, 16,
		bus.KindDeviceConnected, bus.KindDeviceDisconnected, bus.KindDeviceEvent)
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewDeviceControl(env.sess, conn, env.bus, env.mgr, env.metrics, logger.Default()).Run(ctx)
	}()

	// actor 接入后立即广播 device_connected
	select {
	case ev := <-watcher.C():
		assert.Equal(t, bus.KindDeviceConnected, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("device_connected not published")
	}

	// 下行：总线上的 control_event 到达设备
	env.bus.Publish(topic, &bus.Event{
		Kind:      bus.KindControlEvent,
		SessionID: env.sess.ID,
		EventID:   "ev-1",
		Payload:   json.RawMessage(`{"type":"tap","x":10,"y":20}`),
		SentAt:    time.Now(),
	})

	got := readEnvelope(t, client)
	assert.Equal(t, "control_event", got.Kind)
	assert.Equal(t, "ev-1", got.EventID)
	assert.JSONEq(t, `{"type":"tap","x":10,"y":20}`, string(got.Payload))

	// 上行：设备 ack 带着 event_id 回流为 device_event
	ack := `{"kind":"ack","event_id":"ev-1","payload":{"ok":true}}`
	require.NoError(t, client.WriteMessage(gws.TextMessage, []byte(ack)))

	select {
	case ev := <-watcher.C():
		assert.Equal(t, bus.KindDeviceEvent, ev.Kind)
		assert.Equal(t, "ev-1", ev.EventID)
	case <-time.After(2 * time.Second):
		t.Fatal("device_event not published")
	}

	// 设备断开后 actor 退出并广播 device_disconnected
	require.NoError(t, client.Close())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("actor did not exit after transport close")
	}
	select {
	case ev := <-watcher.C():
		assert.Equal(t, bus.KindDeviceDisconnected, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("device_disconnected not published")
	}
}

// TestDeviceControlStopsOnSessionStopped 终止信令使 actor 关闭传输连接
func TestDeviceControlStopsOnSessionStopped(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := newTestConn(t)
	topic := bus.SessionTopic(env.sess.ID)

	watcher := env.bus.Subscribe(topic, 4, bus.KindDeviceConnected)
	defer watcher.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewDeviceControl(env.sess, conn, env.bus, env.mgr, env.metrics, logger.Default()).Run(context.Background())
	}()

	select {
	case <-watcher.C():
	case <-time.After(2 * time.Second):
		t.Fatal("actor did not attach")
	}

	env.bus.Publish(topic, &bus.Event{
		Kind:      bus.KindSessionStopped,
		SessionID: env.sess.ID,
		SentAt:    time.Now(),
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("actor did not exit on session_stopped")
	}
}

// TestDeviceMediaFrames 媒体帧发布到总线；无人接收时计为丢帧
func TestDeviceMediaFrames(t *testing.T) {
	env := newTestEnv(t)
	conn, client := newTestConn(t)
	topic := bus.SessionTopic(env.sess.ID)

	watcher := env.bus.Subscribe(topic, 16, bus.KindMediaReady, bus.KindMediaFrame)
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go NewDeviceMedia(env.sess.ID, env.sess.DeviceID, conn, env.bus, env.mgr, env.metrics, logger.Default()).Run(ctx)

	select {
	case ev := <-watcher.C():
		assert.Equal(t, bus.KindMediaReady, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("media_ready not published")
	}

	frame := []byte{0x00, 0x01, 0x02, 0x03}
	require.NoError(t, client.WriteMessage(gws.BinaryMessage, frame))

	select {
	case ev := <-watcher.C():
		assert.Equal(t, bus.KindMediaFrame, ev.Kind)
		assert.Equal(t, frame, ev.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("media frame not published")
	}
	assert.Equal(t, float64(0),
		testutil.ToFloat64(env.metrics.FramesDropped.WithLabelValues(RoleDeviceMedia)))

	// 取消订阅后：帧无人接收，计为丢帧
	watcher.Close()
	require.NoError(t, client.WriteMessage(gws.BinaryMessage, frame))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(env.metrics.FramesDropped.WithLabelValues(RoleDeviceMedia)) >= 1
	}, 2*time.Second, 10*time.Millisecond, "dropped frame not counted")
}

// TestOperatorWindow 操作端输入发布为 control_event，设备事件回流到窗口
func TestOperatorWindow(t *testing.T) {
	env := newTestEnv(t)
	conn, client := newTestConn(t)
	topic := bus.SessionTopic(env.sess.ID)

	watcher := env.bus.Subscribe(topic, 16, bus.KindControlEvent)
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go NewOperator(env.sess, conn, env.bus, env.mgr, env.metrics, logger.Default()).Run(ctx)

	// 等待 operator 完成订阅（watcher + operator 的事件/媒体帧两路）
	require.Eventually(t, func() bool {
		return env.bus.SubscriberCount(topic) == 3
	}, 2*time.Second, 10*time.Millisecond)

	// 上行：操作端输入获得 event_id 并发布
	input := `{"kind":"control_event","payload":{"type":"key","code":"Enter"}}`
	require.NoError(t, client.WriteMessage(gws.TextMessage, []byte(input)))

	var eventID string
	select {
	case ev := <-watcher.C():
		assert.Equal(t, bus.KindControlEvent, ev.Kind)
		assert.NotEmpty(t, ev.EventID)
		assert.JSONEq(t, `{"type":"key","code":"Enter"}`, string(ev.Payload))
		eventID = ev.EventID
	case <-time.After(2 * time.Second):
		t.Fatal("control_event not published")
	}

	// 下行：设备事件回流到操作端窗口
	env.bus.Publish(topic, &bus.Event{
		Kind:      bus.KindDeviceEvent,
		SessionID: env.sess.ID,
		EventID:   eventID,
		Payload:   json.RawMessage(`{"kind":"ack"}`),
		SentAt:    time.Now(),
	})

	got := readEnvelope(t, client)
	assert.Equal(t, "device_event", got.Kind)
	assert.Equal(t, eventID, got.EventID)

	// 媒体帧以二进制转发
	frame := []byte{0xCA, 0xFE}
	env.bus.Publish(topic, &bus.Event{
		Kind:      bus.KindMediaFrame,
		SessionID: env.sess.ID,
		Payload:   frame,
		SentAt:    time.Now(),
	})

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, gws.BinaryMessage, msgType)
	assert.Equal(t, frame, data)
}

// TestOperatorControlQueueFull 设备侧 control_event 队列饱和时计入丢弃指标
func TestOperatorControlQueueFull(t *testing.T) {
	env := newTestEnv(t)
	conn, client := newTestConn(t)
	topic := bus.SessionTopic(env.sess.ID)

	// 零长度队列模拟饱和的设备控制订阅方
	full := env.bus.Subscribe(topic, 0, bus.KindControlEvent)
	defer full.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go NewOperator(env.sess, conn, env.bus, env.mgr, env.metrics, logger.Default()).Run(ctx)

	require.Eventually(t, func() bool {
		return env.bus.SubscriberCount(topic) == 3
	}, 2*time.Second, 10*time.Millisecond)

	input := `{"kind":"control_event","payload":{"type":"tap","x":1,"y":2}}`
	require.NoError(t, client.WriteMessage(gws.TextMessage, []byte(input)))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(env.metrics.QueueFull.WithLabelValues(RoleDeviceControl)) >= 1
	}, 2*time.Second, 10*time.Millisecond, "bus-side control drop not counted")
}

// TestOperatorWindowSessionStopped 终止信令转发给操作端后窗口关闭
func TestOperatorWindowSessionStopped(t *testing.T) {
	env := newTestEnv(t)
	conn, client := newTestConn(t)
	topic := bus.SessionTopic(env.sess.ID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewOperator(env.sess, conn, env.bus, env.mgr, env.metrics, logger.Default()).Run(context.Background())
	}()

	require.Eventually(t, func() bool {
		return env.bus.SubscriberCount(topic) == 2
	}, 2*time.Second, 10*time.Millisecond)

	env.bus.Publish(topic, &bus.Event{
		Kind:      bus.KindSessionStopped,
		SessionID: env.sess.ID,
		Payload:   json.RawMessage(`{"session_id":"sess-1","trigger":"owner_stop"}`),
		SentAt:    time.Now(),
	})

	got := readEnvelope(t, client)
	assert.Equal(t, "session_stopped", got.Kind)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("actor did not exit on session_stopped")
	}
}
