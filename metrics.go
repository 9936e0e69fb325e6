package convo

import (
	"time"

	"github.com/boat-builder/convo/llm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric result labels
const (
	ResultSuccess   = "success"
	ResultTransient = "transient"
	ResultFailure   = "failure"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_llm_requests_total",
			Help: "Endpoint calls made by conversation sessions, by endpoint and result",
		},
		[]string{"endpoint", "result"},
	)
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "convo_llm_request_duration_seconds",
			Help:    "Latency of endpoint calls made by conversation sessions",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"endpoint"},
	)
	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_llm_retries_total",
			Help: "Retries scheduled after transient endpoint errors, by error kind",
		},
		[]string{"kind"},
	)
)

func observeRequest(endpoint string, err error, elapsed time.Duration) {
	result := ResultSuccess
	switch {
	case err == nil:
	case llm.IsTransient(err):
		result = ResultTransient
	default:
		result = ResultFailure
	}
	requestsTotal.WithLabelValues(endpoint, result).Inc()
	requestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func observeRetry(kind llm.ErrorKind) {
	retriesTotal.WithLabelValues(kind.String()).Inc()
}
