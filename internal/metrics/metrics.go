// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordBookingCreated()
	RecordMailResult(ok bool)
	RecordCRUDOperation(table, op string, err error)
	RecordFeedImport(imported, skipped int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus     *prometheus.CounterVec
	bookings       prometheus.Counter
	mailResults    *prometheus.CounterVec
	crudOperations *prometheus.CounterVec
	importedPosts  prometheus.Counter
	skippedPosts   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skyline_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		bookings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skyline_bookings_created_total",
			Help: "受け付けた予約の合計数",
		}),
		mailResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skyline_mail_sent_total",
			Help: "メール送信の結果別の合計数",
		}, []string{"result"}),
		crudOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skyline_record_operations_total",
			Help: "テーブル・操作・結果別のレコード操作数",
		}, []string{"table", "op", "result"}),
		importedPosts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skyline_feed_import_posts_total",
			Help: "フィードから取り込んだ記事の合計数",
		}),
		skippedPosts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skyline_feed_import_skipped_total",
			Help: "フィード取り込みでスキップした記事の合計数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.bookings,
		c.mailResults,
		c.crudOperations,
		c.importedPosts,
		c.skippedPosts,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordBookingCreated は予約の受付を記録する。
func (c *Collector) RecordBookingCreated() {
	c.bookings.Inc()
}

// RecordMailResult はメール送信の成否を記録する。
func (c *Collector) RecordMailResult(ok bool) {
	c.mailResults.WithLabelValues(resultLabel(ok)).Inc()
}

// RecordCRUDOperation はレコード操作の結果を記録する。
func (c *Collector) RecordCRUDOperation(table, op string, err error) {
	c.crudOperations.WithLabelValues(table, op, resultLabel(err == nil)).Inc()
}

// RecordFeedImport はフィード取り込みの件数を記録する。
func (c *Collector) RecordFeedImport(imported, skipped int) {
	c.importedPosts.Add(float64(imported))
	c.skippedPosts.Add(float64(skipped))
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
