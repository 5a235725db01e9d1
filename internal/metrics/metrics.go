// Package metrics 提供Prometheus监控指标
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 服务指标集合
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	jobsSubmitted prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	jobDuration   prometheus.Histogram
	activeJobs    prometheus.Gauge
	queueDepth    prometheus.Gauge
	iterations    prometheus.Counter
	solutionScore *prometheus.GaugeVec
	violations    *prometheus.CounterVec
	appliedOps    *prometheus.CounterVec
	subscribers   prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Default 获取全局指标
func Default() *Metrics {
	once.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		defaultMetrics = New(reg, "autoshift")
	})
	return defaultMetrics
}

// New 在给定注册表上创建指标
func New(reg *prometheus.Registry, namespace string) *Metrics {
	if namespace == "" {
		namespace = "autoshift"
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP请求总数",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP请求延迟",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method", "path"}),
		jobsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "submitted_total",
			Help:      "提交的自动排班任务数",
		}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "结束的自动排班任务数",
		}, []string{"status"}),
		jobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "自动排班任务耗时",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200},
		}),
		activeJobs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "active",
			Help:      "正在执行的任务数",
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "queue_depth",
			Help:      "排队中的任务数",
		}),
		iterations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "iterations_total",
			Help:      "优化搜索评估的候选方案数",
		}),
		solutionScore: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "solution_score",
			Help:      "最近一次排班方案得分",
		}, []string{"team_id"}),
		violations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "violations_total",
			Help:      "约束提醒数",
		}, []string{"code"}),
		appliedOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apply",
			Name:      "ops_total",
			Help:      "写入的编辑操作数",
		}, []string{"result"}),
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "当前进度订阅数",
		}),
	}
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry 返回底层注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest 记录HTTP请求
func (m *Metrics) RecordRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// JobSubmitted 记录任务提交
func (m *Metrics) JobSubmitted() {
	if m == nil {
		return
	}
	m.jobsSubmitted.Inc()
	m.queueDepth.Inc()
}

// JobStarted 记录任务开始执行
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.queueDepth.Dec()
	m.activeJobs.Inc()
}

// JobDropped 记录未执行即结束的任务
func (m *Metrics) JobDropped() {
	if m == nil {
		return
	}
	m.queueDepth.Dec()
	m.jobsFinished.WithLabelValues("failed").Inc()
}

// JobFinished 记录任务结束
func (m *Metrics) JobFinished(status string, duration time.Duration, iterations int) {
	if m == nil {
		return
	}
	m.activeJobs.Dec()
	m.jobsFinished.WithLabelValues(status).Inc()
	m.jobDuration.Observe(duration.Seconds())
	m.iterations.Add(float64(iterations))
}

// SetSolutionScore 记录团队方案得分
func (m *Metrics) SetSolutionScore(teamID int64, score float64) {
	if m == nil {
		return
	}
	m.solutionScore.WithLabelValues(strconv.FormatInt(teamID, 10)).Set(score)
}

// RecordViolation 记录约束提醒
func (m *Metrics) RecordViolation(code string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(code).Inc()
}

// RecordApply 记录写入结果
func (m *Metrics) RecordApply(applied, skipped int) {
	if m == nil {
		return
	}
	m.appliedOps.WithLabelValues("applied").Add(float64(applied))
	m.appliedOps.WithLabelValues("skipped").Add(float64(skipped))
}

// SubscriberAdded 订阅数加一
func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

// SubscriberRemoved 订阅数减一
func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}
