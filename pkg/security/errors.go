package security

import "errors"

var (
	// ErrTokenInvalid token 无效
	ErrTokenInvalid = errors.New("security: token is invalid")

	// ErrTokenExpired token 已过期
	ErrTokenExpired = errors.New("security: token is expired")

	// ErrMissingToken 未提供 token
	ErrMissingToken = errors.New("security: token is missing")
)
