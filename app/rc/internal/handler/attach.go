package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/castmill/castmill-sub013/app/rc/internal/actor"
	"github.com/castmill/castmill-sub013/app/rc/internal/session"
	"github.com/castmill/castmill-sub013/pkg/web"
	"github.com/castmill/castmill-sub013/pkg/websocket"
)

// upgrader 三个接入点共用
var upgrader = websocket.NewUpgrader()

// attachDeviceControl GET /devices/{deviceId}/rc/control/ws
// 设备 token 认证 + 会话归属校验，全部通过后才升级连接。
func (h *RCHandler) attachDeviceControl(c *gin.Context) {
	deviceID := c.Param("deviceId")
	sessionID := c.Query("session_id")
	token := c.Query("token")

	if err := h.tokens.ValidateDeviceToken(c.Request.Context(), deviceID, token); err != nil {
		status, code, msg := mapError(err)
		web.Error(c, status, code, msg)
		return
	}

	sess, err := h.mgr.ValidateDeviceAttach(c.Request.Context(), sessionID, deviceID)
	if err != nil {
		status, code, msg := mapError(err)
		web.Error(c, status, code, msg)
		return
	}

	conn, ok := h.upgrade(c)
	if !ok {
		return
	}

	actor.NewDeviceControl(sess, conn, h.bus, h.mgr, h.metrics, h.logger).Run(h.rootCtx)
}

// attachDeviceMedia GET /devices/{deviceId}/rc/media/ws
// 媒体连接只做设备 token 认证：会话有效性已由配对的控制连接证明，
// 无效的 session_id 只会发布到没有订阅者的主题。
func (h *RCHandler) attachDeviceMedia(c *gin.Context) {
	deviceID := c.Param("deviceId")
	sessionID := c.Query("session_id")
	token := c.Query("token")

	if err := h.tokens.ValidateDeviceToken(c.Request.Context(), deviceID, token); err != nil {
		status, code, msg := mapError(err)
		web.Error(c, status, code, msg)
		return
	}

	conn, ok := h.upgrade(c)
	if !ok {
		return
	}

	actor.NewDeviceMedia(sessionID, deviceID, conn, h.bus, h.mgr, h.metrics, h.logger).Run(h.rootCtx)
}

// attachOperatorWindow GET /rc/sessions/{sessionId}/window/ws
// 经过 OperatorAuth 中间件，此处只校验会话归属。
func (h *RCHandler) attachOperatorWindow(c *gin.Context) {
	sessionID := c.Param("sessionId")
	userID := c.GetString(userIDKey)

	sess, err := h.mgr.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		status, code, msg := mapError(err)
		web.Error(c, status, code, msg)
		return
	}
	if sess.OwnerID != userID {
		web.Error(c, http.StatusForbidden, codeForbidden, "not the session owner")
		return
	}
	if sess.Status != session.StatusActive {
		web.Error(c, http.StatusNotFound, codeNotFound, "session not active")
		return
	}

	conn, ok := h.upgrade(c)
	if !ok {
		return
	}

	actor.NewOperator(sess, conn, h.bus, h.mgr, h.metrics, h.logger).Run(h.rootCtx)
}

// upgrade 升级为 WebSocket 并包装出站队列
func (h *RCHandler) upgrade(c *gin.Context) (*websocket.Connection, bool) {
	raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时 gorilla 已写入响应
		h.logger.Warn("websocket upgrade failed", "path", c.FullPath(), "error", err)
		return nil, false
	}
	return websocket.NewConnection(raw, h.wsCfg, h.logger), true
}
