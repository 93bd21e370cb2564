// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーとミドルウェアから利用する。
type MetricsCollector interface {
	RecordVacancyCreated()
	RecordVacancyDeleted()
	RecordApplication()
	RecordUploadRejected(reason string)
	RecordLogin(success bool)
	RecordResetRequested()
	RecordMailFailure()
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	vacanciesCreated prometheus.Counter
	vacanciesDeleted prometheus.Counter
	applications     prometheus.Counter
	uploadRejected   *prometheus.CounterVec
	logins           *prometheus.CounterVec
	resetRequested   prometheus.Counter
	mailFail         prometheus.Counter
	httpStatus       *prometheus.CounterVec
	requestLatency   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		vacanciesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devjobs_vacancies_created_total",
			Help: "作成された求人の合計数",
		}),
		vacanciesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devjobs_vacancies_deleted_total",
			Help: "削除された求人の合計数",
		}),
		applications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devjobs_applications_total",
			Help: "受け付けた応募の合計数",
		}),
		uploadRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devjobs_upload_rejected_total",
			Help: "拒否されたアップロードの理由別件数",
		}, []string{"reason"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devjobs_logins_total",
			Help: "ログイン試行の結果別件数",
		}, []string{"result"}),
		resetRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devjobs_password_reset_requests_total",
			Help: "パスワード再設定要求の合計数",
		}),
		mailFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devjobs_mail_failures_total",
			Help: "メール送信失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devjobs_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "devjobs_request_latency_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.vacanciesCreated,
		c.vacanciesDeleted,
		c.applications,
		c.uploadRejected,
		c.logins,
		c.resetRequested,
		c.mailFail,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordVacancyCreated は求人作成を記録する。
func (c *Collector) RecordVacancyCreated() {
	c.vacanciesCreated.Inc()
}

// RecordVacancyDeleted は求人削除を記録する。
func (c *Collector) RecordVacancyDeleted() {
	c.vacanciesDeleted.Inc()
}

// RecordApplication は応募受付を記録する。
func (c *Collector) RecordApplication() {
	c.applications.Inc()
}

// RecordUploadRejected はアップロード拒否を理由付きで記録する。
func (c *Collector) RecordUploadRejected(reason string) {
	c.uploadRejected.WithLabelValues(reason).Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(result).Inc()
}

// RecordResetRequested はパスワード再設定要求を記録する。
func (c *Collector) RecordResetRequested() {
	c.resetRequested.Inc()
}

// RecordMailFailure はメール送信失敗を記録する。
func (c *Collector) RecordMailFailure() {
	c.mailFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordVacancyCreated() {}
func (Nop) RecordVacancyDeleted() {}
func (Nop) RecordApplication() {}
func (Nop) RecordUploadRejected(string) {}
func (Nop) RecordLogin(bool) {}
func (Nop) RecordResetRequested() {}
func (Nop) RecordMailFailure() {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordRequestLatency(time.Duration) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
