package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TracesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "abicached_traces_total",
			Help: "Total number of traces accepted from the feed",
		},
	)

	ActionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "abicached_actions_total",
			Help: "Total number of action traces visited",
		},
	)

	SetabiTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abicached_setabi_total",
			Help: "Total number of setabi actions processed",
		},
		[]string{"result"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "abicached_queue_depth",
			Help: "Traces waiting for a worker",
		},
	)

	StallSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "abicached_stall_seconds",
			Help: "Current producer stall duration",
		},
	)

	GlobalHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "abicached_global_sequence_height",
			Help: "Lowest global sequence processed by every worker",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "abicached_cache_entries",
			Help: "ABI versions held in memory",
		},
	)

	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abicached_lookups_total",
			Help: "ABI lookups by outcome",
		},
		[]string{"source"},
	)

	StoreOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abicached_store_operations_total",
			Help: "Store commands by operation and status",
		},
		[]string{"op", "status"},
	)

	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "abicached_store_duration_seconds",
			Help:    "Store command duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	CircuitBreakerOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "abicached_store_circuit_breaker_open",
			Help: "Read-through circuit breaker state (1 = open, 0 = closed)",
		},
	)

	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abicached_http_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"path", "status"},
	)
)
