package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/castmill/castmill-sub013/app/rc/internal/bus"
	"github.com/castmill/castmill-sub013/app/rc/internal/handler"
	"github.com/castmill/castmill-sub013/app/rc/internal/metrics"
	rcredis "github.com/castmill/castmill-sub013/app/rc/internal/redis"
	"github.com/castmill/castmill-sub013/app/rc/internal/session"
	"github.com/castmill/castmill-sub013/pkg/config"
	"github.com/castmill/castmill-sub013/pkg/database/postgres"
	"github.com/castmill/castmill-sub013/pkg/database/redis"
	"github.com/castmill/castmill-sub013/pkg/logger"
	"github.com/castmill/castmill-sub013/pkg/security"
	"github.com/castmill/castmill-sub013/pkg/util/conc"
	"github.com/castmill/castmill-sub013/pkg/web"
	"github.com/castmill/castmill-sub013/pkg/websocket"
)

// Config RC 服务配置
type Config struct {
	Log logger.Config `mapstructure:"log"`

	// Web 配置
	Web web.Config `mapstructure:"web"`

	// Postgres 配置
	Postgres postgres.Config `mapstructure:"postgres"`

	// Redis 配置
	Redis redis.Config `mapstructure:"redis"`

	// JWT 配置
	JWT security.JWTConfig `mapstructure:"jwt"`

	// RC 会话配置
	RC session.Config `mapstructure:"rc"`

	// WebSocket 配置
	WS websocket.Config `mapstructure:"websocket"`

	// Metrics 配置
	Metrics metrics.Config `mapstructure:"metrics"`
}

func main() {
	var cfg Config

	// 1. 加载配置
	if err := config.Load(&cfg); err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		return
	}

	// 2. 初始化日志
	l, err := logger.New(&cfg.Log)
	if err != nil {
		panic(err)
	}
	defer l.Sync()

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. 初始化 Postgres 并建表
	pgClient, err := postgres.New(&cfg.Postgres)
	if err != nil {
		l.Error("failed to create postgres client", "error", err)
		return
	}
	defer pgClient.Close()

	store := session.NewPostgresStore(pgClient, l)
	if err := store.Migrate(rootCtx); err != nil {
		l.Error("failed to migrate session store", "error", err)
		return
	}

	// 4. 初始化 Redis
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		l.Error("failed to create redis client", "error", err)
		return
	}
	defer redisClient.Close()

	// 5. 初始化指标
	rcMetrics, err := metrics.New(&cfg.Metrics)
	if err != nil {
		l.Error("failed to create metrics", "error", err)
		return
	}
	registry := prometheus.NewRegistry()
	if err := rcMetrics.Register(registry); err != nil {
		l.Error("failed to register metrics", "error", err)
		return
	}

	// 6. 初始化 JWT 管理器
	jwtMgr, err := security.NewJWTManager(&cfg.JWT)
	if err != nil {
		l.Error("failed to create jwt manager", "error", err)
		return
	}

	// 7. 信令总线与跨实例停止信号
	signalBus := bus.New(l)
	publisher := rcredis.NewSignalPublisher(l, redisClient)

	stopListener := rcredis.NewStopListener(l, redisClient, signalBus)
	if err := stopListener.Start(); err != nil {
		l.Error("failed to start stop listener", "error", err)
		return
	}
	defer stopListener.Stop()

	// 8. 会话管理器与空闲回收
	mgr, err := session.NewManager(&cfg.RC, store, publisher, rcMetrics, l)
	if err != nil {
		l.Error("failed to create session manager", "error", err)
		return
	}

	sweeper := conc.Go(func() (struct{}, error) {
		mgr.RunSweeper(rootCtx)
		return struct{}{}, nil
	})
	defer func() { <-sweeper.Done() }()

	// 9. HTTP 服务与路由
	server := web.NewServer(&cfg.Web, l)

	tokens := rcredis.NewTokenAuthenticator(l, redisClient)
	rcHandler := handler.NewRCHandler(rootCtx, mgr, signalBus, rcMetrics, tokens, jwtMgr, &cfg.WS, l)
	rcHandler.RegisterRoutes(server.Router())

	server.Router().GET("/metrics", func(c *gin.Context) {
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
	})
	server.Router().GET("/healthz", func(c *gin.Context) {
		ctx := c.Request.Context()
		if err := pgClient.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "postgres unavailable"})
			return
		}
		if err := redisClient.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 10. 运行
	if err := server.Run(rootCtx); err != nil {
		l.Error("rc service exited with error", "error", err)
	}
}
