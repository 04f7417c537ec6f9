// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordActionApplied(action string)
	RecordContentionRetry()
	RecordContentionExhausted()
	RecordDueQuery()
	RecordReminderSent()
	RecordReminderFailure()
	RecordRemindLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	actionsApplied      *prometheus.CounterVec
	contentionRetries   prometheus.Counter
	contentionExhausted prometheus.Counter
	dueQueries          prometheus.Counter
	remindersSent       prometheus.Counter
	reminderFailures    prometheus.Counter
	remindLatency       prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		actionsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deckman_actions_applied_total",
			Help: "記録されたレビューアクションの合計数",
		}, []string{"action"}),
		contentionRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deckman_contention_retries_total",
			Help: "CAS競合による再試行の合計数",
		}),
		contentionExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deckman_contention_exhausted_total",
			Help: "再試行上限を超過したレビュー記録の合計数",
		}),
		dueQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deckman_due_queries_total",
			Help: "期限到来デッキ照会の合計数",
		}),
		remindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deckman_reminders_sent_total",
			Help: "送信されたリマインドの合計数",
		}),
		reminderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deckman_reminder_failures_total",
			Help: "送信に失敗したリマインドの合計数",
		}),
		remindLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deckman_remind_latency_seconds",
			Help:    "1ユーザーあたりのリマインド処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.actionsApplied,
		c.contentionRetries,
		c.contentionExhausted,
		c.dueQueries,
		c.remindersSent,
		c.reminderFailures,
		c.remindLatency,
	)

	return c
}

// RecordActionApplied は記録されたレビューアクションをアクション別に記録する。
func (c *Collector) RecordActionApplied(action string) {
	c.actionsApplied.WithLabelValues(action).Inc()
}

// RecordContentionRetry はCAS競合による再試行を記録する。
func (c *Collector) RecordContentionRetry() {
	c.contentionRetries.Inc()
}

// RecordContentionExhausted は再試行上限超過を記録する。
func (c *Collector) RecordContentionExhausted() {
	c.contentionExhausted.Inc()
}

// RecordDueQuery は期限到来デッキ照会を記録する。
func (c *Collector) RecordDueQuery() {
	c.dueQueries.Inc()
}

// RecordReminderSent はリマインド送信成功を記録する。
func (c *Collector) RecordReminderSent() {
	c.remindersSent.Inc()
}

// RecordReminderFailure はリマインド送信失敗を記録する。
func (c *Collector) RecordReminderFailure() {
	c.reminderFailures.Inc()
}

// RecordRemindLatency はリマインド処理のレイテンシを記録する。
func (c *Collector) RecordRemindLatency(duration time.Duration) {
	c.remindLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
