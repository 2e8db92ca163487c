package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queueSize    prometheus.Gauge
	enqueueTotal *prometheus.CounterVec
	forwardTotal *prometheus.CounterVec
	ticksTotal   *prometheus.CounterVec
	running      prometheus.Gauge
	armsTotal    prometheus.Counter

	bridgeCallsTotal *prometheus.CounterVec
	bridgeConns      prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "tagqueue_queue_size",
					Help: "Current number of calls waiting to be forwarded.",
				},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tagqueue_enqueue_total",
					Help: "Total enqueued calls by bridge method.",
				},
				[]string{"method"},
			),
			forwardTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tagqueue_forward_total",
					Help: "Total calls forwarded to the bridge by method.",
				},
				[]string{"method"},
			),
			ticksTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tagqueue_ticks_total",
					Help: "Total drain ticks by result (idle or forwarded).",
				},
				[]string{"result"},
			),
			running: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "tagqueue_running",
					Help: "Dispatcher tick state (1 armed, 0 stopped).",
				},
			),
			armsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "tagqueue_arms_total",
					Help: "Total times the drain tick was armed.",
				},
			),
			bridgeCallsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tagqueue_bridge_calls_total",
					Help: "Total bridge calls by method and status.",
				},
				[]string{"method", "status"},
			),
			bridgeConns: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "tagqueue_bridge_connections",
					Help: "Current bridge WebSocket connections.",
				},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.forwardTotal,
			m.ticksTotal,
			m.running,
			m.armsTotal,
			m.bridgeCallsTotal,
			m.bridgeConns,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordEnqueue(method string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(method).Inc()
	m.queueSize.Set(float64(queueSize))
}

func RecordForward(method string, queueSize int) {
	m := getMetrics()
	m.forwardTotal.WithLabelValues(method).Inc()
	m.ticksTotal.WithLabelValues("forwarded").Inc()
	m.queueSize.Set(float64(queueSize))
}

func RecordIdleTick() {
	getMetrics().ticksTotal.WithLabelValues("idle").Inc()
}

func RecordArm() {
	m := getMetrics()
	m.armsTotal.Inc()
	m.running.Set(1)
}

func SetRunning(running bool) {
	value := 0.0
	if running {
		value = 1.0
	}
	getMetrics().running.Set(value)
}

func RecordBridgeCall(method string, success bool) {
	status := "error"
	if success {
		status = "success"
	}
	getMetrics().bridgeCallsTotal.WithLabelValues(method, status).Inc()
}

func AddBridgeConnections(delta int) {
	getMetrics().bridgeConns.Add(float64(delta))
}
