package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "salesrep"

// Metrics holds the assistant's Prometheus collectors. All methods are safe on a
// nil receiver so components can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	fetchTotal          *prometheus.CounterVec
	documentsTotal      *prometheus.CounterVec
	resolutionsTotal    *prometheus.CounterVec
	renderTotal         *prometheus.CounterVec
	answersTotal        *prometheus.CounterVec
	answerDuration      prometheus.Histogram
	cacheRefreshTotal   prometheus.Counter
	cacheRefreshSeconds prometheus.Histogram
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.fetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_total",
		Help:      "Outbound fetches by kind and outcome",
	}, []string{"kind", "outcome"})

	m.documentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_total",
		Help:      "Knowledge documents by final processing state",
	}, []string{"state"})

	m.resolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "asset_resolutions_total",
		Help:      "Asset resolutions by matching rank",
	}, []string{"rank"})

	m.renderTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "asset_renders_total",
		Help:      "Rendered assets by delivery mode",
	}, []string{"mode"})

	m.answersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "answers_total",
		Help:      "Answered questions by outcome",
	}, []string{"outcome"})

	m.answerDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "answer_duration_seconds",
		Help:      "Time from submission to answer",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
	})

	m.cacheRefreshTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_refresh_total",
		Help:      "Full knowledge refreshes",
	})

	m.cacheRefreshSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cache_refresh_duration_seconds",
		Help:      "Duration of a full knowledge refresh",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	})

	m.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	m.httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	m.registry.MustRegister(
		m.fetchTotal,
		m.documentsTotal,
		m.resolutionsTotal,
		m.renderTotal,
		m.answersTotal,
		m.answerDuration,
		m.cacheRefreshTotal,
		m.cacheRefreshSeconds,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)
	return m
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveFetch(kind string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.fetchTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveDocument(state string) {
	if m == nil {
		return
	}
	m.documentsTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveResolution(rank string) {
	if m == nil {
		return
	}
	m.resolutionsTotal.WithLabelValues(rank).Inc()
}

func (m *Metrics) ObserveRender(mode string) {
	if m == nil {
		return
	}
	m.renderTotal.WithLabelValues(mode).Inc()
}

func (m *Metrics) ObserveAnswer(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.answersTotal.WithLabelValues(outcome).Inc()
	m.answerDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveRefresh(took time.Duration) {
	if m == nil {
		return
	}
	m.cacheRefreshTotal.Inc()
	m.cacheRefreshSeconds.Observe(took.Seconds())
}

// Middleware returns gin middleware that collects HTTP metrics
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() gin.HandlerFunc {
	handler := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
