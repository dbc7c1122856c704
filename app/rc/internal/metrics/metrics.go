// Package metrics 定义远程控制子系统的 Prometheus 指标。
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/castmill/castmill-sub013/pkg/config"
)

// Config 指标配置
type Config struct {
	// Namespace 指标命名空间
	Namespace string `mapstructure:"namespace" json:"namespace" yaml:"namespace"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Namespace: "castmill_rc",
	}
}

// RCMetrics 远程控制子系统指标
type RCMetrics struct {
	config *Config

	// 会话生命周期
	SessionsCreated  prometheus.Counter     // 会话创建总数
	SessionsClosed   *prometheus.CounterVec // 会话关闭总数（按原因）
	StateTransitions *prometheus.CounterVec // 状态迁移总数（按起止状态和触发方）
	ActiveSessions   prometheus.Gauge       // 当前活跃会话数
	SessionDuration  prometheus.Summary     // 会话时长

	// 中继
	ControlEvents      prometheus.Counter     // 控制事件总数
	ControlLatency     prometheus.Summary     // 控制事件处理延迟
	MediaFrames        prometheus.Counter     // 收到的媒体帧总数
	FramesDropped      *prometheus.CounterVec // 丢弃的媒体帧总数（按角色）
	QueueFull          *prometheus.CounterVec // 发送队列满事件总数（按角色）
	RelayStartFailures prometheus.Counter     // 中继启动失败总数
	MediaFPS           prometheus.Gauge       // 媒体帧率（滚动窗口）
}

// New 创建指标集合
func New(cfg *Config) (*RCMetrics, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to merge metrics config: %w", err)
	}

	m := &RCMetrics{
		config: newCfg,

		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: newCfg.Namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of remote control sessions created",
		}),
		SessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: newCfg.Namespace,
			Name:      "sessions_closed_total",
			Help:      "Total number of remote control sessions closed",
		}, []string{"reason"}), // reason: owner/timeout
		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: newCfg.Namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of session state transitions",
		}, []string{"from", "to", "trigger"}), // trigger: create/owner_stop/timeout_stop
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: newCfg.Namespace,
			Name:      "active_sessions",
			Help:      "Number of currently active remote control sessions",
		}),
		SessionDuration: prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace:  newCfg.Namespace,
			Name:       "session_duration_seconds",
			Help:       "Duration of remote control sessions",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}),

		ControlEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: newCfg.Namespace,
			Name:      "control_events_total",
			Help:      "Total number of control events relayed",
		}),
		ControlLatency: prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace:  newCfg.Namespace,
			Name:       "control_event_latency_seconds",
			Help:       "Latency between control event publish and device ack",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}),
		MediaFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: newCfg.Namespace,
			Name:      "media_frames_total",
			Help:      "Total number of media frames received from devices",
		}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: newCfg.Namespace,
			Name:      "frames_dropped_total",
			Help:      "Total number of media frames dropped",
		}, []string{"role"}), // role: device_media/operator_window
		QueueFull: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: newCfg.Namespace,
			Name:      "queue_full_total",
			Help:      "Total number of events dropped because an outbound queue was full",
		}, []string{"role"}), // role: device_control/operator_window
		RelayStartFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: newCfg.Namespace,
			Name:      "relay_start_failures_total",
			Help:      "Total number of failures establishing the device-side relay",
		}),
		MediaFPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: newCfg.Namespace,
			Name:      "media_fps",
			Help:      "Rolling frames-per-second received on the media link",
		}),
	}

	return m, nil
}

// Register 注册所有指标到 registerer
func (m *RCMetrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.SessionsCreated,
		m.SessionsClosed,
		m.StateTransitions,
		m.ActiveSessions,
		m.SessionDuration,
		m.ControlEvents,
		m.ControlLatency,
		m.MediaFrames,
		m.FramesDropped,
		m.QueueFull,
		m.RelayStartFailures,
		m.MediaFPS,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register metric failed: %w", err)
		}
	}
	return nil
}
