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
// 所有记录方法对 nil 接收者安全，便于在测试中传 nil 跳过指标。
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 搜索指标
	SearchesTotal     prometheus.Counter
	SearchDuration    *prometheus.HistogramVec
	SearchResults     prometheus.Histogram
	ScopeErrors       *prometheus.CounterVec
	CandidatesSkipped prometheus.Counter

	// 缓存指标
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	CacheEntries prometheus.Gauge

	// 连接指标
	StoreConnects       prometheus.Counter
	StoreConnectRetries prometheus.Counter
	SessionsInvalidated *prometheus.CounterVec

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		// HTTP 请求指标
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsearch_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailsearch_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		// 搜索指标
		SearchesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsearch_searches_total",
				Help: "Total number of search calls",
			},
		),

		SearchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailsearch_search_duration_seconds",
				Help:    "Per-scope search duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"scope"},
		),

		SearchResults: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailsearch_search_results",
				Help:    "Number of records returned per search call",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),

		ScopeErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsearch_scope_errors_total",
				Help: "Total number of scope-level search failures",
			},
			[]string{"scope"},
		),

		CandidatesSkipped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsearch_candidates_skipped_total",
				Help: "Total number of candidates skipped due to extraction failures",
			},
		),

		// 缓存指标
		CacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsearch_cache_hits_total",
				Help: "Total number of result cache hits",
			},
		),

		CacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsearch_cache_misses_total",
				Help: "Total number of result cache misses",
			},
		),

		CacheEntries: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailsearch_cache_entries",
				Help: "Current number of result cache entries",
			},
		),

		// 连接指标
		StoreConnects: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsearch_store_connects_total",
				Help: "Total number of mail store sessions established",
			},
		),

		StoreConnectRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsearch_store_connect_retries_total",
				Help: "Total number of mail store connect retries",
			},
		),

		SessionsInvalidated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsearch_sessions_invalidated_total",
				Help: "Total number of mail store sessions invalidated",
			},
			[]string{"scope"},
		),

		// 错误指标
		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsearch_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsearch_panics_total",
				Help: "Total number of panics",
			},
		),

		// 限流指标
		RateLimitBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsearch_rate_limit_blocks_total",
				Help: "Total number of rate limit blocks",
			},
			[]string{"type", "key"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSearch 记录一次搜索调用及其返回记录数
func (m *Metrics) RecordSearch(results int) {
	if m == nil {
		return
	}
	m.SearchesTotal.Inc()
	m.SearchResults.Observe(float64(results))
}

// RecordScopeSearch 记录单范围搜索耗时
func (m *Metrics) RecordScopeSearch(scope string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SearchDuration.WithLabelValues(scope).Observe(duration.Seconds())
}

// RecordScopeError 记录范围级搜索失败
func (m *Metrics) RecordScopeError(scope string) {
	if m == nil {
		return
	}
	m.ScopeErrors.WithLabelValues(scope).Inc()
}

// RecordCandidateSkipped 记录候选项属性读取失败
func (m *Metrics) RecordCandidateSkipped() {
	if m == nil {
		return
	}
	m.CandidatesSkipped.Inc()
}

// RecordCacheHit 记录缓存命中
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// RecordCacheMiss 记录缓存未命中
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

// UpdateCacheEntries 更新缓存条目数
func (m *Metrics) UpdateCacheEntries(count int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(count))
}

// RecordStoreConnect 记录会话建立
func (m *Metrics) RecordStoreConnect() {
	if m == nil {
		return
	}
	m.StoreConnects.Inc()
}

// RecordStoreConnectRetry 记录建连重试
func (m *Metrics) RecordStoreConnectRetry() {
	if m == nil {
		return
	}
	m.StoreConnectRetries.Inc()
}

// RecordSessionInvalidated 记录会话失效
func (m *Metrics) RecordSessionInvalidated(scope string) {
	if m == nil {
		return
	}
	m.SessionsInvalidated.WithLabelValues(scope).Inc()
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
func (m *Metrics) RecordRateLimitBlock(limitType, key string) {
	if m == nil {
		return
	}
	m.RateLimitBlocks.WithLabelValues(limitType, key).Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
