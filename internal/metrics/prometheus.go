package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder 基于Prometheus的指标记录器
type Recorder struct {
	analyses     *prometheus.CounterVec
	duration     prometheus.Histogram
	signals      *prometheus.CounterVec
	degradations *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	published    *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
}

// New 在指定注册器上创建指标，reg 为nil时使用默认注册器
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		analyses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firstbuyers_analyses_total",
				Help: "Total number of first-buyer analyses by outcome",
			},
			[]string{"outcome"},
		),
		duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "firstbuyers_analysis_duration_seconds",
				Help:    "Duration of first-buyer analyses in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		),
		signals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firstbuyers_signal_lookups_total",
				Help: "Transaction signal lookups by resulting status",
			},
			[]string{"status"},
		),
		degradations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firstbuyers_degradations_total",
				Help: "Absorbed non-fatal failures by error code",
			},
			[]string{"code"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firstbuyers_cache_lookups_total",
				Help: "Cache lookups by kind and result",
			},
			[]string{"kind", "result"},
		),
		published: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firstbuyers_results_published_total",
				Help: "Results published to Kafka by result",
			},
			[]string{"result"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firstbuyers_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
	}
}

// ObserveAnalysis 记录一次分析的结果和耗时
func (r *Recorder) ObserveAnalysis(outcome string, seconds float64) {
	r.analyses.WithLabelValues(outcome).Inc()
	r.duration.Observe(seconds)
}

// RecordSignal 记录一次信号查询
func (r *Recorder) RecordSignal(status string) {
	r.signals.WithLabelValues(status).Inc()
}

// RecordDegradation 记录降级次数
func (r *Recorder) RecordDegradation(code string, count int) {
	r.degradations.WithLabelValues(code).Add(float64(count))
}

// RecordCacheLookup 记录缓存命中情况
func (r *Recorder) RecordCacheLookup(kind, result string) {
	r.cacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordPublish 记录结果发布
func (r *Recorder) RecordPublish(result string) {
	r.published.WithLabelValues(result).Inc()
}

// RecordHTTPRequest 记录HTTP请求
func (r *Recorder) RecordHTTPRequest(method, route, status string) {
	r.httpRequests.WithLabelValues(method, route, status).Inc()
}
