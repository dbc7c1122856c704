package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/castmill/castmill-sub013/pkg/database/postgres"
	"github.com/castmill/castmill-sub013/pkg/logger"
)

// Store 会话持久化接口
type Store interface {
	// Create 插入新会话。设备已有活跃会话时返回 ErrSessionConflict，
	// 该检查由数据库唯一约束保证，在并发创建下依然成立。
	Create(ctx context.Context, sess *Session) error
	// GetByID 按 ID 查询会话，不存在返回 ErrSessionNotFound
	GetByID(ctx context.Context, id string) (*Session, error)
	// GetActiveByDevice 查询设备的活跃会话，不存在返回 ErrSessionNotFound
	GetActiveByDevice(ctx context.Context, deviceID string) (*Session, error)
	// MarkStopped 将会话置为 stopped 并记录终止时间
	MarkStopped(ctx context.Context, id string, at time.Time) error
	// Delete 删除会话（仅用于创建失败的回滚）
	Delete(ctx context.Context, id string) error
	// Touch 刷新会话活动时间
	Touch(ctx context.Context, id string, at time.Time) error
	// ListIdleActive 列出活动时间早于 cutoff 的活跃会话
	ListIdleActive(ctx context.Context, cutoff time.Time) ([]*Session, error)
}

const sessionTable = "rc_sessions"

var sessionColumns = []string{"id", "device_id", "owner_id", "status", "started_at", "stopped_at", "last_activity_at"}

// PostgresStore 基于 PostgreSQL 的会话存储
type PostgresStore struct {
	client *postgres.Client
	logger logger.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore 创建 PostgreSQL 会话存储
func NewPostgresStore(client *postgres.Client, l logger.Logger) *PostgresStore {
	return &PostgresStore{
		client: client,
		logger: l.Named("rc.store"),
	}
}

// Migrate 创建会话表和活跃会话唯一索引
// 部分唯一索引保证"一台设备至多一个活跃会话"跨进程成立。
func (s *PostgresStore) Migrate(ctx context.Context) error {
	createTable := `
		CREATE TABLE IF NOT EXISTS rc_sessions (
			id               UUID PRIMARY KEY,
			device_id        TEXT NOT NULL,
			owner_id         TEXT NOT NULL,
			status           TEXT NOT NULL,
			started_at       TIMESTAMPTZ NOT NULL,
			stopped_at       TIMESTAMPTZ,
			last_activity_at TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := s.client.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create rc_sessions table failed: %w", err)
	}

	createIndex := `
		CREATE UNIQUE INDEX IF NOT EXISTS rc_sessions_active_device
		ON rc_sessions (device_id) WHERE status = 'active'
	`
	if _, err := s.client.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("create active device index failed: %w", err)
	}

	return nil
}

// Create 插入新会话
func (s *PostgresStore) Create(ctx context.Context, sess *Session) error {
	sql, args, err := postgres.QueryBuilder.
		Insert(sessionTable).
		Columns(sessionColumns...).
		Values(sess.ID, sess.DeviceID, sess.OwnerID, string(sess.Status), sess.StartedAt, sess.StoppedAt, sess.LastActivityAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert failed: %w", err)
	}

	if _, err := s.client.Exec(ctx, sql, args...); err != nil {
		if errors.Is(err, postgres.ErrUniqueViolation) {
			return ErrSessionConflict
		}
		return fmt.Errorf("insert session failed: %w", err)
	}

	return nil
}

// GetByID 按 ID 查询会话
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Session, error) {
	sql, args, err := postgres.QueryBuilder.
		Select(sessionColumns...).
		From(sessionTable).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select failed: %w", err)
	}

	return s.scanOne(ctx, sql, args...)
}

// GetActiveByDevice 查询设备的活跃会话
func (s *PostgresStore) GetActiveByDevice(ctx context.Context, deviceID string) (*Session, error) {
	sql, args, err := postgres.QueryBuilder.
		Select(sessionColumns...).
		From(sessionTable).
		Where("device_id = ?", deviceID).
		Where("status = ?", string(StatusActive)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select failed: %w", err)
	}

	return s.scanOne(ctx, sql, args...)
}

// MarkStopped 将会话置为 stopped
func (s *PostgresStore) MarkStopped(ctx context.Context, id string, at time.Time) error {
	sql, args, err := postgres.QueryBuilder.
		Update(sessionTable).
		Set("status", string(StatusStopped)).
		Set("stopped_at", at).
		Where("id = ?", id).
		Where("status = ?", string(StatusActive)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update failed: %w", err)
	}

	affected, err := s.client.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("mark stopped failed: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// Delete 删除会话
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	sql, args, err := postgres.QueryBuilder.
		Delete(sessionTable).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete failed: %w", err)
	}

	if _, err := s.client.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete session failed: %w", err)
	}

	return nil
}

// Touch 刷新会话活动时间
func (s *PostgresStore) Touch(ctx context.Context, id string, at time.Time) error {
	sql, args, err := postgres.QueryBuilder.
		Update(sessionTable).
		Set("last_activity_at", at).
		Where("id = ?", id).
		Where("status = ?", string(StatusActive)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update failed: %w", err)
	}

	if _, err := s.client.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("touch session failed: %w", err)
	}

	return nil
}

// ListIdleActive 列出空闲的活跃会话
func (s *PostgresStore) ListIdleActive(ctx context.Context, cutoff time.Time) ([]*Session, error) {
	sql, args, err := postgres.QueryBuilder.
		Select(sessionColumns...).
		From(sessionTable).
		Where("status = ?", string(StatusActive)).
		Where("last_activity_at < ?", cutoff).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select failed: %w", err)
	}

	rows, err := s.client.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list idle sessions failed: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		if err := rows.Scan(&sess.ID, &sess.DeviceID, &sess.OwnerID, &sess.Status,
			&sess.StartedAt, &sess.StoppedAt, &sess.LastActivityAt); err != nil {
			return nil, fmt.Errorf("scan session failed: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions failed: %w", err)
	}

	return sessions, nil
}

// scanOne 查询并扫描单行会话
func (s *PostgresStore) scanOne(ctx context.Context, sql string, args ...any) (*Session, error) {
	sess := &Session{}
	row := s.client.QueryRow(ctx, sql, args...)
	err := row.Scan(&sess.ID, &sess.DeviceID, &sess.OwnerID, &sess.Status,
		&sess.StartedAt, &sess.StoppedAt, &sess.LastActivityAt)
	if err != nil {
		if errors.Is(postgres.TranslateError(err), postgres.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("scan session failed: %w", err)
	}
	return sess, nil
}
