package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/castmill/castmill-sub013/app/rc/internal/metrics"
	"github.com/castmill/castmill-sub013/pkg/config"
	"github.com/castmill/castmill-sub013/pkg/logger"
)

// SignalPublisher 跨实例信令发布接口
// 会话终止和中继启动信令经由它广播，本实例的 actor 通过
// 停止监听器回流到本地总线，与其他实例走同一条路径。
type SignalPublisher interface {
	// NotifyRelayStart 通知设备为会话启动中继
	NotifyRelayStart(ctx context.Context, deviceID, sessionID string) error
	// PublishStop 广播会话终止信令
	PublishStop(ctx context.Context, sessionID string, trigger StopTrigger) error
}

// Manager 会话生命周期管理器
// 唯一有权变更会话状态的组件；连接 actor 只读取会话身份。
type Manager struct {
	cfg       *Config
	logger    logger.Logger
	store     Store
	publisher SignalPublisher
	metrics   *metrics.RCMetrics
}

// NewManager 创建会话管理器
func NewManager(cfg *Config, store Store, publisher SignalPublisher, m *metrics.RCMetrics, l logger.Logger) (*Manager, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to merge session config: %w", err)
	}

	return &Manager{
		cfg:       newCfg,
		logger:    l.Named("rc.manager"),
		store:     store,
		publisher: publisher,
		metrics:   m,
	}, nil
}

// Config 返回合并后的配置
func (m *Manager) Config() *Config {
	return m.cfg
}

// CreateSession 为设备创建远程控制会话
// 设备已有活跃会话时返回 ErrSessionConflict；中继启动失败时
// 回滚会话记录并返回 ErrRelayStart，不留下半成品的活跃会话。
func (m *Manager) CreateSession(ctx context.Context, deviceID, ownerID string) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:             uuid.NewString(),
		DeviceID:       deviceID,
		OwnerID:        ownerID,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}

	if err := m.store.Create(ctx, sess); err != nil {
		if errors.Is(err, ErrSessionConflict) {
			m.logger.Warn("session conflict", "device_id", deviceID, "owner_id", ownerID)
			return nil, ErrSessionConflict
		}
		return nil, fmt.Errorf("create session failed: %w", err)
	}

	// 通知设备启动中继；失败则回滚会话记录
	if err := m.publisher.NotifyRelayStart(ctx, deviceID, sess.ID); err != nil {
		m.metrics.RelayStartFailures.Inc()
		if delErr := m.store.Delete(ctx, sess.ID); delErr != nil {
			m.logger.Error("rollback session after relay failure failed",
				"session_id", sess.ID, "error", delErr)
		}
		m.logger.Error("relay start failed", "session_id", sess.ID, "device_id", deviceID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrRelayStart, err)
	}

	m.metrics.SessionsCreated.Inc()
	m.metrics.ActiveSessions.Inc()
	m.metrics.StateTransitions.WithLabelValues("none", string(StatusActive), "create").Inc()

	m.logger.Info("session created",
		"session_id", sess.ID, "device_id", deviceID, "owner_id", ownerID)

	return sess, nil
}

// GetSession 按 ID 查询会话
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	return m.store.GetByID(ctx, sessionID)
}

// GetActiveSession 查询设备的活跃会话
func (m *Manager) GetActiveSession(ctx context.Context, deviceID string) (*Session, error) {
	return m.store.GetActiveByDevice(ctx, deviceID)
}

// DeviceRCStatus 返回设备远程控制状态
func (m *Manager) DeviceRCStatus(ctx context.Context, deviceID string) (*DeviceStatus, error) {
	sess, err := m.store.GetActiveByDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return &DeviceStatus{HasActiveSession: false}, nil
		}
		return nil, err
	}
	return &DeviceStatus{HasActiveSession: true, Session: sess}, nil
}

// StopSession 持有者终止会话
// 非持有者请求返回 ErrNotOwner 且不产生任何状态变更。
func (m *Manager) StopSession(ctx context.Context, sessionID, requesterID string) (*Session, error) {
	sess, err := m.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if sess.OwnerID != requesterID {
		m.logger.Warn("stop rejected: not owner",
			"session_id", sessionID, "owner_id", sess.OwnerID, "requester_id", requesterID)
		return nil, ErrNotOwner
	}

	if !sess.IsActive() {
		// 已终止，幂等返回
		return sess, nil
	}

	return m.stop(ctx, sess, TriggerOwner)
}

// ValidateDeviceAttach 校验设备控制连接的会话归属
func (m *Manager) ValidateDeviceAttach(ctx context.Context, sessionID, deviceID string) (*Session, error) {
	sess, err := m.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsActive() {
		return nil, ErrSessionNotFound
	}
	if sess.DeviceID != deviceID {
		return nil, ErrSessionMismatch
	}
	return sess, nil
}

// Touch 刷新会话活动时间（actor 收到任何消息时调用）
func (m *Manager) Touch(ctx context.Context, sessionID string) {
	if err := m.store.Touch(ctx, sessionID, time.Now().UTC()); err != nil {
		m.logger.Debug("touch session failed", "session_id", sessionID, "error", err)
	}
}

// RunSweeper 周期性终止空闲会话，直到 ctx 取消
func (m *Manager) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	m.logger.Info("idle session sweeper started",
		"idle_timeout", m.cfg.IdleTimeout.String(),
		"sweep_interval", m.cfg.SweepInterval.String())

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("idle session sweeper stopped")
			return
		case <-ticker.C:
			m.sweepOnce(ctx)
		}
	}
}

// sweepOnce 执行一轮空闲会话清理
func (m *Manager) sweepOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-m.cfg.IdleTimeout)
	idle, err := m.store.ListIdleActive(ctx, cutoff)
	if err != nil {
		m.logger.Error("list idle sessions failed", "error", err)
		return
	}

	for _, sess := range idle {
		if _, err := m.stop(ctx, sess, TriggerTimeout); err != nil {
			m.logger.Error("stop idle session failed", "session_id", sess.ID, "error", err)
		}
	}
}

// stop 执行 active -> stopped 迁移并广播终止信令
func (m *Manager) stop(ctx context.Context, sess *Session, trigger StopTrigger) (*Session, error) {
	now := time.Now().UTC()
	if err := m.store.MarkStopped(ctx, sess.ID, now); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			// 并发终止，另一方已完成迁移
			return m.store.GetByID(ctx, sess.ID)
		}
		return nil, fmt.Errorf("mark session stopped failed: %w", err)
	}

	stopped := *sess
	stopped.Status = StatusStopped
	stopped.StoppedAt = &now

	// 广播终止信令；所有已订阅的 actor 据此关闭各自的传输连接
	if err := m.publisher.PublishStop(ctx, sess.ID, trigger); err != nil {
		m.logger.Error("publish stop signal failed", "session_id", sess.ID, "error", err)
	}

	m.metrics.SessionsClosed.WithLabelValues(trigger.Reason()).Inc()
	m.metrics.StateTransitions.WithLabelValues(string(StatusActive), string(StatusStopped), string(trigger)).Inc()
	m.metrics.ActiveSessions.Dec()
	m.metrics.SessionDuration.Observe(now.Sub(sess.StartedAt).Seconds())

	m.logger.Info("session stopped",
		"session_id", sess.ID, "device_id", sess.DeviceID, "trigger", string(trigger),
		"duration", now.Sub(sess.StartedAt).String())

	return &stopped, nil
}
