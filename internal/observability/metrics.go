package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	rpcActionCounter      *prometheus.CounterVec
	statusTransitions     *prometheus.CounterVec
	eventsPublished       *prometheus.CounterVec
	idempotencyCounter    *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
	breakerStateCounter   *prometheus.CounterVec
	pendingTrustGauge     prometheus.Gauge
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		rpcActionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpc_actions_total",
			Help: "RPC action outcomes by method",
		}, []string{"method", "result"})

		statusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transaction_status_transitions_total",
			Help: "Transactions persisted by the RPC engine, tagged by resulting status",
		}, []string{"protocol", "status"})

		eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Event publish outcomes",
		}, []string{"queue", "result"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		breakerStateCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker transitions of outbound clients",
		}, []string{"service", "state"})

		pendingTrustGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pending_trust_queue_size",
			Help: "Deposits waiting for the destination trustline",
		})

		prometheus.MustRegister(
			httpDurationHistogram,
			rpcActionCounter,
			statusTransitions,
			eventsPublished,
			idempotencyCounter,
			workerRunCounter,
			breakerStateCounter,
			pendingTrustGauge,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementRPCAction(method, result string) {
	if rpcActionCounter == nil {
		return
	}
	rpcActionCounter.WithLabelValues(method, result).Inc()
}

func IncrementStatusTransition(protocol, status string) {
	if statusTransitions == nil {
		return
	}
	statusTransitions.WithLabelValues(protocol, status).Inc()
}

func IncrementEventPublished(queue, result string) {
	if eventsPublished == nil {
		return
	}
	eventsPublished.WithLabelValues(queue, result).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

func RecordBreakerState(service, state string) {
	if breakerStateCounter == nil {
		return
	}
	breakerStateCounter.WithLabelValues(service, state).Inc()
}

func SetPendingTrustQueueSize(size int) {
	if pendingTrustGauge == nil {
		return
	}
	pendingTrustGauge.Set(float64(size))
}
