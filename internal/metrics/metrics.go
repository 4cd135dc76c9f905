package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "candlegate",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by candlegate",
		},
		[]string{"route", "method", "code"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "candlegate",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests handled by candlegate",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "candlegate",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by result (hit, miss, stale)",
		},
		[]string{"result"},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "candlegate",
			Name:      "cache_entries",
			Help:      "Number of entries currently held in the candle cache",
		},
	)

	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "candlegate",
			Name:      "upstream_requests_total",
			Help:      "Upstream provider calls by outcome",
		},
		[]string{"outcome"},
	)

	upstreamDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "candlegate",
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of upstream provider calls",
			Buckets:   prometheus.DefBuckets,
		},
	)

	initOnce sync.Once
)

const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultStale = "stale"

	OutcomeOK            = "ok"
	OutcomeProviderError = "provider_error"
	OutcomeUnavailable   = "unavailable"
)

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(requestTotal, requestDuration, cacheLookups, cacheEntries, upstreamRequests, upstreamDuration)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveRequest(route, method, code string, d time.Duration) {
	requestTotal.WithLabelValues(route, method, code).Inc()
	requestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func IncCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

func SetCacheEntries(n int) {
	cacheEntries.Set(float64(n))
}

func ObserveUpstream(outcome string, d time.Duration) {
	upstreamRequests.WithLabelValues(outcome).Inc()
	upstreamDuration.Observe(d.Seconds())
}
