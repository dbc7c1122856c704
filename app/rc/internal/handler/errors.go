package handler

import (
	"errors"
	"net/http"

	rcredis "github.com/castmill/castmill-sub013/app/rc/internal/redis"
	"github.com/castmill/castmill-sub013/app/rc/internal/session"
)

// 业务错误码
const (
	codeSessionConflict = 40901
	codeUnauthorized    = 40101
	codeForbidden       = 40301
	codeNotFound        = 40401
	codeRelayStart      = 50201
	codeInternal        = 50001
)

// mapError 将领域错误映射为 HTTP 状态码和业务错误码
func mapError(err error) (int, int, string) {
	switch {
	case errors.Is(err, session.ErrSessionConflict):
		return http.StatusConflict, codeSessionConflict, "device already has an active session"
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, codeNotFound, "session not found"
	case errors.Is(err, session.ErrNotOwner):
		return http.StatusForbidden, codeForbidden, "not the session owner"
	case errors.Is(err, session.ErrSessionMismatch):
		return http.StatusForbidden, codeForbidden, "session does not belong to device"
	case errors.Is(err, session.ErrRelayStart):
		return http.StatusBadGateway, codeRelayStart, "failed to start device relay"
	case errors.Is(err, rcredis.ErrInvalidDeviceToken):
		return http.StatusUnauthorized, codeUnauthorized, "invalid device token"
	default:
		return http.StatusInternalServerError, codeInternal, "internal error"
	}
}
