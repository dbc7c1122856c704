// Package redis 封装 go-redis 客户端，隐藏驱动类型。
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/castmill/castmill-sub013/pkg/config"
)

// Client Redis 客户端接口（隐藏 go-redis 类型）
type Client interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, expiration time.Duration) error
	Publish(ctx context.Context, channel string, message string) error
	PSubscribe(ctx context.Context, patterns ...string) (PubSub, error)
	Ping(ctx context.Context) error
	Close() error
}

// PubSub Pub/Sub 订阅句柄
type PubSub interface {
	// Channel 返回消息通道
	Channel() <-chan *Message
	// Close 取消订阅并关闭
	Close() error
}

// baseClient 基于 go-redis 的实现
type baseClient struct {
	rdb *goredis.Client
}

// NewClient 创建 Redis 客户端
func NewClient(cfg *Config) (Client, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         newCfg.Addr,
		Password:     newCfg.Password,
		DB:           newCfg.DB,
		PoolSize:     newCfg.PoolSize,
		DialTimeout:  newCfg.DialTimeout,
		ReadTimeout:  newCfg.ReadTimeout,
		WriteTimeout: newCfg.WriteTimeout,
	})

	return &baseClient{rdb: rdb}, nil
}

// Get 获取键值，键不存在返回 ErrNil
func (c *baseClient) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", ErrNil
		}
		return "", err
	}
	return val, nil
}

// Set 设置键值
func (c *baseClient) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	return c.rdb.Set(ctx, key, value, expiration).Err()
}

// Del 删除键
func (c *baseClient) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// Expire 设置键过期时间
func (c *baseClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return c.rdb.Expire(ctx, key, expiration).Err()
}

// Publish 发布消息到频道
func (c *baseClient) Publish(ctx context.Context, channel string, message string) error {
	return c.rdb.Publish(ctx, channel, message).Err()
}

// PSubscribe 按模式订阅频道
func (c *baseClient) PSubscribe(ctx context.Context, patterns ...string) (PubSub, error) {
	sub := c.rdb.PSubscribe(ctx, patterns...)

	// 等待订阅确认，失败时提前返回
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("psubscribe failed: %w", err)
	}

	return newPubSub(sub), nil
}

// Ping 检查连接
func (c *baseClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close 关闭客户端
func (c *baseClient) Close() error {
	return c.rdb.Close()
}

// basePubSub 基于 go-redis 的 Pub/Sub 实现
type basePubSub struct {
	sub *goredis.PubSub
	ch  chan *Message
}

func newPubSub(sub *goredis.PubSub) *basePubSub {
	ps := &basePubSub{
		sub: sub,
		ch:  make(chan *Message, 64),
	}

	// 转换 go-redis 消息类型
	go func() {
		defer close(ps.ch)
		for msg := range sub.Channel() {
			ps.ch <- &Message{
				Channel: msg.Channel,
				Pattern: msg.Pattern,
				Payload: msg.Payload,
			}
		}
	}()

	return ps
}

// Channel 返回消息通道
func (p *basePubSub) Channel() <-chan *Message {
	return p.ch
}

// Close 取消订阅并关闭
func (p *basePubSub) Close() error {
	return p.sub.Close()
}
