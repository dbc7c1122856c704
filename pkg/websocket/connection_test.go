package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestConn 建立一对真实连接：服务端封装 + 客户端裸连接
func newTestConn(t *testing.T, cfg *Config) (*Connection, *gws.Conn) {
	t.Helper()

	connCh := make(chan *Connection, 1)
	upgrader := NewUpgrader()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		connCh <- NewConnection(raw, cfg, nil)
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

// TestZeroConfigFallsBackToDefaults 全零配置回退默认值，连接双向可用
func TestZeroConfigFallsBackToDefaults(t *testing.T) {
	conn, client := newTestConn(t, &Config{})

	// 出站：写泵正常启动并送达
	require.NoError(t, conn.Send(NewTextMessage([]byte("hello"))))
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	// 入站：读超时未被置成已过期
	require.NoError(t, client.WriteMessage(gws.TextMessage, []byte("pong")))
	msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(msg.Data))
}

// TestCloseDrainsSendQueue 关闭前入队的消息在关闭帧之前全部送达
func TestCloseDrainsSendQueue(t *testing.T) {
	conn, client := newTestConn(t, nil)

	require.NoError(t, conn.Send(NewTextMessage([]byte("first"))))
	require.NoError(t, conn.Send(NewTextMessage([]byte("last"))))
	require.NoError(t, conn.Close())

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	for _, want := range []string{"first", "last"} {
		_, data, err := client.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}

	// 随后才是关闭帧
	_, _, err := client.ReadMessage()
	var closeErr *gws.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, gws.CloseNormalClosure, closeErr.Code)
}

func TestSendAfterClose(t *testing.T) {
	conn, _ := newTestConn(t, nil)

	require.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.Send(NewTextMessage([]byte("late"))), ErrConnectionClosed)
	assert.False(t, conn.TrySend(NewTextMessage([]byte("late"))))
}
