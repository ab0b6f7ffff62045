package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
//
// 所有 Record/Update 方法在接收者为 nil 时什么也不做，
// 业务服务可以不注入指标直接使用。
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// 邮箱申请指标
	RequestsSubmitted    prometheus.Counter
	RequestTransitions   *prometheus.CounterVec
	RequestConflicts     *prometheus.CounterVec
	RequestsRemoved      prometheus.Counter
	MailboxesProvisioned prometheus.Counter

	// 域名指标
	DomainsPurchased  prometheus.Counter
	DomainsExpired    prometheus.Counter
	RegistrarCalls    *prometheus.CounterVec
	RegistrarDuration *prometheus.HistogramVec

	// 短信指标
	SMSIngested *prometheus.CounterVec

	// 用户指标
	UsersRegistered prometheus.Counter
	WSConnections   prometheus.Gauge

	// 系统指标
	SystemUptime prometheus.Gauge

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 在默认注册表上创建监控指标
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsWithRegistry 在指定注册表上创建监控指标，测试中使用独立注册表避免重复注册
func NewMetricsWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,

		// HTTP 请求指标
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maildash_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "maildash_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "maildash_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		// 邮箱申请指标
		RequestsSubmitted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "maildash_email_requests_submitted_total",
				Help: "Total number of email requests submitted",
			},
		),

		RequestTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maildash_email_request_transitions_total",
				Help: "Total number of email request transitions by target status",
			},
			[]string{"status"},
		),

		RequestConflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maildash_email_request_conflicts_total",
				Help: "Total number of email request operations rejected by a conflict",
			},
			[]string{"operation"},
		),

		RequestsRemoved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "maildash_email_requests_removed_total",
				Help: "Total number of email requests removed",
			},
		),

		MailboxesProvisioned: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "maildash_mailboxes_provisioned_total",
				Help: "Total number of mailboxes appended to domains",
			},
		),

		// 域名指标
		DomainsPurchased: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "maildash_domains_purchased_total",
				Help: "Total number of domains purchased",
			},
		),

		DomainsExpired: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "maildash_domains_expired_total",
				Help: "Total number of domains marked expired",
			},
		),

		RegistrarCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maildash_registrar_calls_total",
				Help: "Total number of registrar API calls",
			},
			[]string{"operation", "result"},
		),

		RegistrarDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "maildash_registrar_call_duration_seconds",
				Help:    "Registrar API call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		// 短信指标
		SMSIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maildash_sms_logs_ingested_total",
				Help: "Total number of SMS logs ingested by parse status",
			},
			[]string{"status"},
		),

		// 用户指标
		UsersRegistered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "maildash_users_registered_total",
				Help: "Total number of users registered",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "maildash_websocket_connections",
				Help: "Number of open event feed connections",
			},
		),

		// 系统指标
		SystemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "maildash_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),

		// 错误指标
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maildash_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "maildash_panics_total",
				Help: "Total number of panics",
			},
		),

		// 限流指标
		RateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maildash_rate_limit_blocks_total",
				Help: "Total number of rate limit blocks",
			},
			[]string{"type"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, responseSize int64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

// RecordRequestSubmitted 记录邮箱申请提交
func (m *Metrics) RecordRequestSubmitted() {
	if m == nil {
		return
	}
	m.RequestsSubmitted.Inc()
}

// RecordRequestTransition 记录邮箱申请状态变更
func (m *Metrics) RecordRequestTransition(status string) {
	if m == nil {
		return
	}
	m.RequestTransitions.WithLabelValues(status).Inc()
}

// RecordRequestConflict 记录并发冲突或重复申请
func (m *Metrics) RecordRequestConflict(operation string) {
	if m == nil {
		return
	}
	m.RequestConflicts.WithLabelValues(operation).Inc()
}

// RecordRequestRemoved 记录邮箱申请删除
func (m *Metrics) RecordRequestRemoved() {
	if m == nil {
		return
	}
	m.RequestsRemoved.Inc()
}

// RecordMailboxProvisioned 记录邮箱开通
func (m *Metrics) RecordMailboxProvisioned() {
	if m == nil {
		return
	}
	m.MailboxesProvisioned.Inc()
}

// RecordDomainPurchased 记录域名购买
func (m *Metrics) RecordDomainPurchased() {
	if m == nil {
		return
	}
	m.DomainsPurchased.Inc()
}

// RecordDomainsExpired 记录到期域名数量
func (m *Metrics) RecordDomainsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DomainsExpired.Add(float64(n))
}

// RecordRegistrarCall 记录注册商调用结果和耗时
func (m *Metrics) RecordRegistrarCall(operation, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RegistrarCalls.WithLabelValues(operation, result).Inc()
	m.RegistrarDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSMSIngested 记录短信入库
func (m *Metrics) RecordSMSIngested(status string) {
	if m == nil {
		return
	}
	m.SMSIngested.WithLabelValues(status).Inc()
}

// RecordUserRegistered 记录用户注册
func (m *Metrics) RecordUserRegistered() {
	if m == nil {
		return
	}
	m.UsersRegistered.Inc()
}

// UpdateWSConnections 更新事件推送连接数
func (m *Metrics) UpdateWSConnections(count int) {
	if m == nil {
		return
	}
	m.WSConnections.Set(float64(count))
}

// UpdateSystemUptime 更新系统运行时间
func (m *Metrics) UpdateSystemUptime(uptime time.Duration) {
	if m == nil {
		return
	}
	m.SystemUptime.Set(uptime.Seconds())
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(limitType string) {
	if m == nil {
		return
	}
	m.RateLimitBlocks.WithLabelValues(limitType).Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
