package redis

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/castmill/castmill-sub013/pkg/database/redis"
	"github.com/castmill/castmill-sub013/pkg/logger"
)

// TokenAuthenticator 设备 token 校验器
// token 由设备注册流程写入 Redis（device:<id>:token），这里只读。
type TokenAuthenticator struct {
	logger logger.Logger
	client redis.Client
}

// NewTokenAuthenticator 创建设备 token 校验器
func NewTokenAuthenticator(l logger.Logger, client redis.Client) *TokenAuthenticator {
	return &TokenAuthenticator{
		logger: l.Named("redis.token_auth"),
		client: client,
	}
}

// ValidateDeviceToken 校验设备 token，无效返回 ErrInvalidDeviceToken
func (a *TokenAuthenticator) ValidateDeviceToken(ctx context.Context, deviceID, token string) error {
	if token == "" {
		return ErrInvalidDeviceToken
	}

	key := fmt.Sprintf("device:%s:token", deviceID)
	expected, err := a.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			a.logger.Warn("device token not found", "device_id", deviceID)
			return ErrInvalidDeviceToken
		}
		return fmt.Errorf("redis get failed: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(expected), []byte(token)) != 1 {
		a.logger.Warn("device token mismatch", "device_id", deviceID)
		return ErrInvalidDeviceToken
	}

	return nil
}
