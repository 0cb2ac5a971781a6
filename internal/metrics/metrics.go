// Package metrics 定义服务的 Prometheus 指标。
// 所有记录方法在接收者为 nil 时不做任何事，组件可以不注入指标。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "interview_coach"

// 结果标签取值
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeError    = "error"
	OutcomeInvalid  = "invalid"
)

// Metrics 持有独立的 registry，避免测试之间互相污染全局注册表
type Metrics struct {
	registry *prometheus.Registry

	turns              *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec
	completionTokens   *prometheus.CounterVec
	reports            *prometheus.CounterVec
	extractions        *prometheus.CounterVec
	outboxPublished    *prometheus.CounterVec
}

// New 创建指标集合并注册 Go 运行时指标
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interview_turns_total",
			Help:      "面试轮次数，按阶段和结果区分",
		}, []string{"phase", "outcome"}),
		completionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "模型调用耗时",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"model", "outcome"}),
		completionTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_tokens_total",
			Help:      "模型调用消耗的 token 数",
		}, []string{"model", "type"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_reports_total",
			Help:      "表现报告生成次数",
		}, []string{"outcome"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_extractions_total",
			Help:      "文档提取次数",
		}, []string{"format", "outcome"}),
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_messages_total",
			Help:      "outbox 事件发布结果",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.turns,
		m.completionDuration,
		m.completionTokens,
		m.reports,
		m.extractions,
		m.outboxPublished,
	)
	return m
}

// Registry 返回底层 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 抓取端点
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) ObserveTurn(phase, outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(phase, outcome).Inc()
}

func (m *Metrics) ObserveCompletion(model, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.completionDuration.WithLabelValues(model, outcome).Observe(d.Seconds())
}

func (m *Metrics) AddCompletionTokens(model string, prompt, completion int) {
	if m == nil {
		return
	}
	if prompt > 0 {
		m.completionTokens.WithLabelValues(model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		m.completionTokens.WithLabelValues(model, "completion").Add(float64(completion))
	}
}

func (m *Metrics) ObserveReport(outcome string) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveExtraction(format, outcome string) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(format, outcome).Inc()
}

func (m *Metrics) ObserveOutboxPublish(outcome string) {
	if m == nil {
		return
	}
	m.outboxPublished.WithLabelValues(outcome).Inc()
}
