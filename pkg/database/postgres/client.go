// Package postgres 封装 pgx 连接池，隐藏驱动类型。
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/castmill/castmill-sub013/pkg/config"
)

// uniqueViolationCode PostgreSQL 唯一约束冲突错误码
const uniqueViolationCode = "23505"

// Client PostgreSQL 客户端
type Client struct {
	pool *pgxpool.Pool
	cfg  *Config
}

// New 创建 PostgreSQL 客户端
func New(cfg *Config) (*Client, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}

	if newCfg.Host == "" || newCfg.Database == "" {
		return nil, fmt.Errorf("%w: host and database are required", ErrInvalidConfig)
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		newCfg.Host, newCfg.Port, newCfg.User, newCfg.Password, newCfg.Database, newCfg.SSLMode)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}
	poolCfg.MaxConns = newCfg.MaxConns
	poolCfg.MinConns = newCfg.MinConns
	poolCfg.MaxConnLifetime = newCfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = newCfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	return &Client{pool: pool, cfg: newCfg}, nil
}

// Exec 执行写操作，返回受影响行数
func (c *Client) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := c.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, translateError(err)
	}
	return tag.RowsAffected(), nil
}

// QueryRow 查询单行
func (c *Client) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return c.pool.QueryRow(ctx, sql, args...)
}

// Query 查询多行
func (c *Client) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, translateError(err)
	}
	return rows, nil
}

// Ping 检查数据库连接
func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close 关闭客户端
func (c *Client) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

// TranslateError 将驱动错误转换为包级 sentinel 错误
func TranslateError(err error) error {
	return translateError(err)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoRows
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.ConstraintName)
	}
	return err
}
