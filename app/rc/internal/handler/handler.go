// Package handler 提供远程控制子系统的 HTTP 管理接口和三个实时接入点。
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/castmill/castmill-sub013/app/rc/internal/bus"
	"github.com/castmill/castmill-sub013/app/rc/internal/metrics"
	rcredis "github.com/castmill/castmill-sub013/app/rc/internal/redis"
	"github.com/castmill/castmill-sub013/app/rc/internal/session"
	"github.com/castmill/castmill-sub013/pkg/logger"
	"github.com/castmill/castmill-sub013/pkg/security"
	"github.com/castmill/castmill-sub013/pkg/web"
	"github.com/castmill/castmill-sub013/pkg/websocket"
)

// userIDKey gin 上下文中的操作端用户 ID 键
const userIDKey = "user_id"

// RCHandler 远程控制 HTTP/WebSocket 处理器
type RCHandler struct {
	logger  logger.Logger
	mgr     *session.Manager
	bus     *bus.Bus
	metrics *metrics.RCMetrics
	tokens  *rcredis.TokenAuthenticator
	jwtMgr  *security.JWTManager
	wsCfg   *websocket.Config

	// rootCtx 服务生命周期上下文，取消时所有 actor 退出
	rootCtx context.Context
}

// NewRCHandler 创建处理器
func NewRCHandler(rootCtx context.Context, mgr *session.Manager, b *bus.Bus, m *metrics.RCMetrics,
	tokens *rcredis.TokenAuthenticator, jwtMgr *security.JWTManager,
	wsCfg *websocket.Config, l logger.Logger) *RCHandler {
	return &RCHandler{
		logger:  l.Named("rc.handler"),
		mgr:     mgr,
		bus:     b,
		metrics: m,
		tokens:  tokens,
		jwtMgr:  jwtMgr,
		wsCfg:   wsCfg,
		rootCtx: rootCtx,
	}
}

// RegisterRoutes 注册管理接口与实时接入点
func (h *RCHandler) RegisterRoutes(r *gin.Engine) {
	// 管理接口（操作端身份）
	operator := r.Group("/", h.OperatorAuth())
	operator.POST("/devices/:deviceId/rc/sessions", h.createSession)
	operator.POST("/rc/sessions/:sessionId/stop", h.stopSession)
	operator.GET("/devices/:deviceId/rc/status", h.deviceRCStatus)
	operator.GET("/rc/sessions/:sessionId/window/ws", h.attachOperatorWindow)

	// 设备接入点（设备 token 身份）
	r.GET("/devices/:deviceId/rc/control/ws", h.attachDeviceControl)
	r.GET("/devices/:deviceId/rc/media/ws", h.attachDeviceMedia)
}

// OperatorAuth 操作端 JWT 认证中间件
// WebSocket 接入点无法携带 Header，支持 token 查询参数兜底。
func (h *RCHandler) OperatorAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := h.jwtMgr.ExtractToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}

		claims, err := h.jwtMgr.ValidateToken(token)
		if err != nil {
			web.AbortWithError(c, http.StatusUnauthorized, codeUnauthorized, "invalid credential")
			return
		}

		userID := claims.GetString("user_id")
		if userID == "" {
			web.AbortWithError(c, http.StatusUnauthorized, codeUnauthorized, "invalid credential")
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// createSession POST /devices/{deviceId}/rc/sessions
func (h *RCHandler) createSession(c *gin.Context) {
	deviceID := c.Param("deviceId")
	userID := c.GetString(userIDKey)

	sess, err := h.mgr.CreateSession(c.Request.Context(), deviceID, userID)
	if err != nil {
		status, code, msg := mapError(err)
		web.Error(c, status, code, msg)
		return
	}

	web.JSON(c, http.StatusCreated, sess)
}

// stopSession POST /rc/sessions/{sessionId}/stop
func (h *RCHandler) stopSession(c *gin.Context) {
	sessionID := c.Param("sessionId")
	userID := c.GetString(userIDKey)

	sess, err := h.mgr.StopSession(c.Request.Context(), sessionID, userID)
	if err != nil {
		status, code, msg := mapError(err)
		web.Error(c, status, code, msg)
		return
	}

	web.JSON(c, http.StatusOK, sess)
}

// deviceRCStatus GET /devices/{deviceId}/rc/status
func (h *RCHandler) deviceRCStatus(c *gin.Context) {
	deviceID := c.Param("deviceId")

	status, err := h.mgr.DeviceRCStatus(c.Request.Context(), deviceID)
	if err != nil {
		st, code, msg := mapError(err)
		web.Error(c, st, code, msg)
		return
	}

	web.JSON(c, http.StatusOK, status)
}
