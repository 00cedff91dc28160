package security

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// StoreLatency can be used by store implementations to record operation latency.
	StoreLatency *prometheus.HistogramVec

	// CacheHitsTotal and CacheMissesTotal are labelled by cache namespace (search, llm, session).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// RetrievalTierTotal counts which retrieval tier answered a question.
	RetrievalTierTotal *prometheus.CounterVec

	// AnswerLatency records answering model call latency, by outcome.
	AnswerLatency *prometheus.HistogramVec

	// DBPoolOpenConnections tracks the number of currently open database connections.
	DBPoolOpenConnections prometheus.Gauge

	// DBPoolMaxConnections tracks the configured maximum database connections.
	DBPoolMaxConnections prometheus.Gauge
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable expansion.
// Label values may not contain commas. Returns nil for an empty string.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := pair[:idx], pair[idx+1:]
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics with the given constant labels.
// Safe to call multiple times; only the first call registers.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		initMetricsInner(constLabels)
	})
}

func initMetricsInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
	f := promauto.With(reg)

	httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ufdr_service_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ufdr_service_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	StoreLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ufdr_service_store_latency_seconds",
			Help:    "Store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CacheHitsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "ufdr_service_cache_hits_total",
		Help: "Total cache hits",
	}, []string{"namespace"})

	CacheMissesTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "ufdr_service_cache_misses_total",
		Help: "Total cache misses",
	}, []string{"namespace"})

	RetrievalTierTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "ufdr_service_retrieval_tier_total",
		Help: "Questions answered per retrieval tier",
	}, []string{"tier"})

	AnswerLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ufdr_service_answer_latency_seconds",
			Help:    "Answering model call latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"outcome"},
	)

	DBPoolOpenConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "ufdr_service_db_pool_open_connections",
		Help: "Number of open database connections",
	})

	DBPoolMaxConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "ufdr_service_db_pool_max_connections",
		Help: "Maximum number of database connections",
	})
}

// CountCache records a cache lookup outcome. No-op until InitMetrics runs.
func CountCache(namespace string, hit bool) {
	if CacheHitsTotal == nil {
		return
	}
	if hit {
		CacheHitsTotal.WithLabelValues(namespace).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(namespace).Inc()
	}
}

// CountRetrievalTier records the tier that produced a retrieval result.
func CountRetrievalTier(tier string) {
	if RetrievalTierTotal == nil {
		return
	}
	RetrievalTierTotal.WithLabelValues(tier).Inc()
}

// ObserveAnswer records the latency of one answering model call.
func ObserveAnswer(outcome string, start time.Time) {
	if AnswerLatency == nil {
		return
	}
	AnswerLatency.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// MetricsMiddleware records HTTP request metrics for Prometheus.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		httpRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method).Observe(duration.Seconds())
	}
}
