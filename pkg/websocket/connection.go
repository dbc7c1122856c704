// pkg/websocket/connection.go
package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/castmill/castmill-sub013/pkg/config"
	"github.com/castmill/castmill-sub013/pkg/logger"
)

// Connection WebSocket 连接封装
// 写路径经过有界发送队列，队列满时由调用方决定丢弃策略（TrySend）。
type Connection struct {
	id   string
	conn *websocket.Conn

	// 配置
	cfg *Config

	// 发送队列
	sendChan chan *Message

	// 日志
	logger logger.Logger

	// 状态
	closed    atomic.Bool
	closeChan chan struct{}
	closeOnce sync.Once

	// 连接信息
	remoteAddr  string
	connectedAt time.Time
}

// NewConnection 包装一个已升级的 gorilla 连接并启动写泵
// cfg 中的零值字段回退到默认值（零间隔的心跳 ticker 和已过期的
// 读超时都会让连接不可用）。
func NewConnection(conn *websocket.Conn, cfg *Config, l logger.Logger) *Connection {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		merged = DefaultConfig()
	}
	cfg = merged

	if l == nil {
		l = logger.Default()
	}

	c := &Connection{
		id:          uuid.NewString(),
		conn:        conn,
		cfg:         cfg,
		sendChan:    make(chan *Message, cfg.SendQueueSize),
		logger:      l.Named("websocket.connection"),
		closeChan:   make(chan struct{}),
		remoteAddr:  conn.RemoteAddr().String(),
		connectedAt: time.Now(),
	}

	conn.SetReadLimit(cfg.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})

	go c.writePump()

	return c
}

// ID 返回连接唯一标识
func (c *Connection) ID() string {
	return c.id
}

// RemoteAddr 返回对端地址
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// ConnectedAt 返回连接建立时间
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// ReadMessage 阻塞读取下一条消息
func (c *Connection) ReadMessage() (*Message, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}

	msgType, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	return &Message{Type: MessageType(msgType), Data: data}, nil
}

// Send 投递消息到发送队列，队列满时返回 ErrSendQueueFull
func (c *Connection) Send(msg *Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.sendChan <- msg:
		return nil
	case <-c.closeChan:
		return ErrConnectionClosed
	default:
		return ErrSendQueueFull
	}
}

// TrySend 非阻塞投递，返回是否成功入队
func (c *Connection) TrySend(msg *Message) bool {
	return c.Send(msg) == nil
}

// Close 关闭连接（幂等）
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.closeChan)
	})
	return nil
}

// Done 返回关闭通知通道
func (c *Connection) Done() <-chan struct{} {
	return c.closeChan
}

// writePump 发送队列消费循环，负责写超时与心跳
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.sendChan:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(int(msg.Type), msg.Data); err != nil {
				c.logger.Debug("write message failed", "id", c.id, "error", err)
				_ = c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}

		case <-c.closeChan:
			// 先清空发送队列再发关闭帧，关闭前入队的消息（如终态通知）不丢失
			for {
				select {
				case msg := <-c.sendChan:
					_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
					if err := c.conn.WriteMessage(int(msg.Type), msg.Data); err != nil {
						return
					}
				default:
					_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
					_ = c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}
