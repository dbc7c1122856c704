// Package security 提供 JWT 签发与校验能力。
package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/castmill/castmill-sub013/pkg/config"
)

// JWTConfig JWT 配置
type JWTConfig struct {
	// 签名密钥（HS256 对称算法）
	SecretKey string `mapstructure:"secret_key" json:"secret_key" yaml:"secret_key"`

	// Token 过期时间（默认 24 小时）
	ExpiresIn time.Duration `mapstructure:"expires_in" json:"expires_in" yaml:"expires_in"`

	// 签发者
	Issuer string `mapstructure:"issuer" json:"issuer" yaml:"issuer"`

	// Token 前缀（默认 "Bearer "）
	TokenPrefix string `mapstructure:"token_prefix" json:"token_prefix" yaml:"token_prefix"`
}

// Claims 通用 JWT Claims
type Claims struct {
	jwt.RegisteredClaims

	// Payload 自定义载荷，完全由调用方决定内容
	Payload map[string]any `json:"payload,omitempty"`
}

// Get 读取自定义载荷字段
func (c *Claims) Get(key string) any {
	if c.Payload == nil {
		return nil
	}
	return c.Payload[key]
}

// GetString 读取自定义载荷字符串字段
func (c *Claims) GetString(key string) string {
	if v, ok := c.Get(key).(string); ok {
		return v
	}
	return ""
}

// DefaultJWTConfig 返回默认 JWT 配置（最小可用配置）
func DefaultJWTConfig() *JWTConfig {
	return &JWTConfig{
		ExpiresIn:   24 * time.Hour,
		Issuer:      "castmill",
		TokenPrefix: "Bearer ",
	}
}

// JWTManager JWT 管理器
type JWTManager struct {
	config *JWTConfig
}

// NewJWTManager 创建 JWT 管理器
func NewJWTManager(cfg *JWTConfig) (*JWTManager, error) {
	newCfg, err := config.MergeConfig(DefaultJWTConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if newCfg.SecretKey == "" {
		return nil, fmt.Errorf("jwt: secret_key is required")
	}
	return &JWTManager{config: newCfg}, nil
}

// GenerateToken 签发 token
func (m *JWTManager) GenerateToken(claims *Claims) (string, error) {
	now := time.Now()
	claims.RegisteredClaims.Issuer = m.config.Issuer
	claims.RegisteredClaims.IssuedAt = jwt.NewNumericDate(now)
	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(now.Add(m.config.ExpiresIn))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("sign token failed: %w", err)
	}
	return signed, nil
}

// ValidateToken 校验 token 并返回 Claims
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(m.config.SecretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// ExtractToken 从 Authorization Header 中提取 token（剥离前缀）
func (m *JWTManager) ExtractToken(header string) string {
	if header == "" {
		return ""
	}
	prefix := m.config.TokenPrefix
	if prefix != "" && strings.HasPrefix(header, prefix) {
		return strings.TrimPrefix(header, prefix)
	}
	return header
}
