package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castmill/castmill-sub013/app/rc/internal/bus"
	"github.com/castmill/castmill-sub013/app/rc/internal/metrics"
	rcredis "github.com/castmill/castmill-sub013/app/rc/internal/redis"
	"github.com/castmill/castmill-sub013/app/rc/internal/session"
	pkgredis "github.com/castmill/castmill-sub013/pkg/database/redis"
	"github.com/castmill/castmill-sub013/pkg/logger"
	"github.com/castmill/castmill-sub013/pkg/security"
	"github.com/castmill/castmill-sub013/pkg/web"
	"github.com/castmill/castmill-sub013/pkg/websocket"
)

// memStore 会话内存存储
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func (s *memStore) Create(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.DeviceID == sess.DeviceID && existing.IsActive() {
			return session.ErrSessionConflict
		}
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *memStore) GetActiveByDevice(_ context.Context, deviceID string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.DeviceID == deviceID && sess.IsActive() {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, session.ErrSessionNotFound
}

func (s *memStore) MarkStopped(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || !sess.IsActive() {
		return session.ErrSessionNotFound
	}
	sess.Status = session.StatusStopped
	sess.StoppedAt = &at
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *memStore) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.LastActivityAt = at
	}
	return nil
}

func (s *memStore) ListIdleActive(context.Context, time.Time) ([]*session.Session, error) {
	return nil, nil
}

// fakeRedis 只支撑设备 token 查询
type fakeRedis struct {
	data map[string]string
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	if val, ok := f.data[key]; ok {
		return val, nil
	}
	return "", pkgredis.ErrNil
}

func (f *fakeRedis) Set(context.Context, string, string, time.Duration) error { return nil }
func (f *fakeRedis) Del(context.Context, ...string) error                     { return nil }
func (f *fakeRedis) Expire(context.Context, string, time.Duration) error      { return nil }
func (f *fakeRedis) Publish(context.Context, string, string) error            { return nil }
func (f *fakeRedis) PSubscribe(context.Context, ...string) (pkgredis.PubSub, error) {
	return nil, nil
}
func (f *fakeRedis) Ping(context.Context) error { return nil }
func (f *fakeRedis) Close() error               { return nil }

type nopPublisher struct{}

func (nopPublisher) NotifyRelayStart(context.Context, string, string) error { return nil }
func (nopPublisher) PublishStop(context.Context, string, session.StopTrigger) error {
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *security.JWTManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	l := logger.Default()
	m, err := metrics.New(nil)
	require.NoError(t, err)

	store := &memStore{sessions: make(map[string]*session.Session)}
	mgr, err := session.NewManager(&session.Config{}, store, nopPublisher{}, m, l)
	require.NoError(t, err)

	jwtMgr, err := security.NewJWTManager(&security.JWTConfig{SecretKey: "test-secret"})
	require.NoError(t, err)

	rdb := &fakeRedis{data: map[string]string{"device:dev-1:token": "device-secret"}}
	tokens := rcredis.NewTokenAuthenticator(l, rdb)

	// 配置文件省略 websocket 段时就是全零配置
	h := NewRCHandler(context.Background(), mgr, bus.New(l), m, tokens, jwtMgr, &websocket.Config{}, l)

	r := gin.New()
	h.RegisterRoutes(r)
	return r, jwtMgr
}

func operatorToken(t *testing.T, jwtMgr *security.JWTManager, userID string) string {
	t.Helper()
	token, err := jwtMgr.GenerateToken(&security.Claims{
		Payload: map[string]any{"user_id": userID},
	})
	require.NoError(t, err)
	return token
}

func doRequest(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) *web.Response {
	t.Helper()
	var resp web.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return &resp
}

func createSessionForTest(t *testing.T, r *gin.Engine, token string) string {
	t.Helper()
	w := doRequest(r, http.MethodPost, "/devices/dev-1/rc/sessions", token)
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decodeResponse(t, w)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	sessionID, _ := data["session_id"].(string)
	require.NotEmpty(t, sessionID)
	return sessionID
}

func TestCreateSessionEndpoint(t *testing.T) {
	r, jwtMgr := newTestRouter(t)
	token := operatorToken(t, jwtMgr, "alice")

	sessionID := createSessionForTest(t, r, token)
	assert.NotEmpty(t, sessionID)

	// 同一设备的第二个会话被拒绝
	w := doRequest(r, http.MethodPost, "/devices/dev-1/rc/sessions", token)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, codeSessionConflict, decodeResponse(t, w).Code)
}

func TestCreateSessionUnauthorized(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/devices/dev-1/rc/sessions", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(r, http.MethodPost, "/devices/dev-1/rc/sessions", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStopSessionEndpoint(t *testing.T) {
	r, jwtMgr := newTestRouter(t)
	alice := operatorToken(t, jwtMgr, "alice")
	sessionID := createSessionForTest(t, r, alice)

	// 非持有者 403
	mallory := operatorToken(t, jwtMgr, "mallory")
	w := doRequest(r, http.MethodPost, "/rc/sessions/"+sessionID+"/stop", mallory)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 持有者 200
	w = doRequest(r, http.MethodPost, "/rc/sessions/"+sessionID+"/stop", alice)
	require.Equal(t, http.StatusOK, w.Code)
	data, ok := decodeResponse(t, w).Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "stopped", data["status"])

	// 不存在的会话 404
	w = doRequest(r, http.MethodPost, "/rc/sessions/no-such/stop", alice)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeviceRCStatusEndpoint(t *testing.T) {
	r, jwtMgr := newTestRouter(t)
	token := operatorToken(t, jwtMgr, "alice")

	w := doRequest(r, http.MethodGet, "/devices/dev-1/rc/status", token)
	require.Equal(t, http.StatusOK, w.Code)
	data, ok := decodeResponse(t, w).Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, data["has_active_session"])

	createSessionForTest(t, r, token)

	w = doRequest(r, http.MethodGet, "/devices/dev-1/rc/status", token)
	require.Equal(t, http.StatusOK, w.Code)
	data, ok = decodeResponse(t, w).Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["has_active_session"])
}

// TestDeviceAttachRejectedBeforeUpgrade 校验失败时不升级连接
func TestDeviceAttachRejectedBeforeUpgrade(t *testing.T) {
	r, jwtMgr := newTestRouter(t)
	token := operatorToken(t, jwtMgr, "alice")
	sessionID := createSessionForTest(t, r, token)

	// 错误的设备 token
	w := doRequest(r, http.MethodGet,
		"/devices/dev-1/rc/control/ws?session_id="+sessionID+"&token=wrong", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 会话属于其他设备
	w = doRequest(r, http.MethodGet,
		"/devices/dev-2/rc/control/ws?session_id="+sessionID+"&token=device-secret", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code) // dev-2 未注册 token

	// 正确 token 但会话不存在
	w = doRequest(r, http.MethodGet,
		"/devices/dev-1/rc/control/ws?session_id=no-such&token=device-secret", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestOperatorWindowAttachAuth 操作端接入点的归属校验
func TestOperatorWindowAttachAuth(t *testing.T) {
	r, jwtMgr := newTestRouter(t)
	alice := operatorToken(t, jwtMgr, "alice")
	sessionID := createSessionForTest(t, r, alice)

	// 非持有者 403
	mallory := operatorToken(t, jwtMgr, "mallory")
	w := doRequest(r, http.MethodGet, "/rc/sessions/"+sessionID+"/window/ws", mallory)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 查询参数形式的 token 也被接受（升级失败是因为缺少握手头）
	w = doRequest(r, http.MethodGet, "/rc/sessions/no-such/window/ws?token="+alice, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
