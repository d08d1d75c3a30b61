package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queueSize    *prometheus.GaugeVec
	enqueueTotal *prometheus.CounterVec
	dequeueTotal *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	snapshotLoadDuration prometheus.Histogram
	snapshotSaveDuration prometheus.Histogram

	providerCallTotal    *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec
	providerFallbacks    prometheus.Counter

	dispatchTotal *prometheus.CounterVec

	toolCallTotal    *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	discoveryTotal   *prometheus.CounterVec

	agentTaskTotal    *prometheus.CounterVec
	agentTaskSteps    prometheus.Histogram
	agentTaskDuration prometheus.Histogram

	heartbeat       prometheus.Gauge
	recoveredPanics *prometheus.CounterVec
	swallowedErrors *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "orca_queue_size",
					Help: "Current dispatch queue size by lane.",
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "orca_enqueue_total",
					Help: "Total enqueue operations by lane.",
				},
				[]string{"lane"},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "orca_dequeue_total",
					Help: "Total dequeue/completion operations by lane and status.",
				},
				[]string{"lane", "status"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "orca_queue_task_duration_seconds",
					Help:    "Queued task execution duration in seconds by lane.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			snapshotLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "orca_snapshot_load_duration_seconds",
					Help:    "Conversation snapshot load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			snapshotSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "orca_snapshot_save_duration_seconds",
					Help:    "Conversation snapshot save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			providerCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "orca_provider_call_total",
					Help: "Total provider calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			providerCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "orca_provider_call_duration_seconds",
					Help:    "Provider call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			providerFallbacks: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "orca_provider_fallback_total",
					Help: "Total automatic-mode fallbacks to the secondary provider.",
				},
			),
			dispatchTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "orca_dispatch_total",
					Help: "Total command dispatches by command and status.",
				},
				[]string{"command", "status"},
			),
			toolCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "orca_tool_call_total",
					Help: "Total remote tool invocations by server label, tool and status.",
				},
				[]string{"label", "tool", "status"},
			),
			toolCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "orca_tool_call_duration_seconds",
					Help:    "Remote tool invocation duration in seconds by server label.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"label"},
			),
			discoveryTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "orca_tool_discovery_total",
					Help: "Total tool catalog discoveries by server label and status.",
				},
				[]string{"label", "status"},
			),
			agentTaskTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "orca_agent_task_total",
					Help: "Total agent tasks by terminal state.",
				},
				[]string{"state"},
			),
			agentTaskSteps: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "orca_agent_task_steps",
					Help:    "Steps taken per agent task.",
					Buckets: prometheus.LinearBuckets(1, 2, 10),
				},
			),
			agentTaskDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "orca_agent_task_duration_seconds",
					Help:    "Agent task duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			heartbeat: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "orca_heartbeat_timestamp_seconds",
					Help: "Unix time of the last worker heartbeat.",
				},
			),
			recoveredPanics: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "orca_recovered_panics_total",
					Help: "Total panics recovered by the process guard by scope.",
				},
				[]string{"scope"},
			),
			swallowedErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "orca_swallowed_errors_total",
					Help: "Total escaped errors logged and swallowed by scope.",
				},
				[]string{"scope"},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.taskDuration,
			m.snapshotLoadDuration,
			m.snapshotSaveDuration,
			m.providerCallTotal,
			m.providerCallDuration,
			m.providerFallbacks,
			m.dispatchTotal,
			m.toolCallTotal,
			m.toolCallDuration,
			m.discoveryTotal,
			m.agentTaskTotal,
			m.agentTaskSteps,
			m.agentTaskDuration,
			m.heartbeat,
			m.recoveredPanics,
			m.swallowedErrors,
		)

		metricsInst = m
	})

	return metricsInst
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler serves the default prometheus registry
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordQueueEnqueue(lane string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(lane).Inc()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func SetQueueSize(lane string, queueSize int) {
	m := getMetrics()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordQueueCompletion(lane string, duration time.Duration, success bool, queueSize int) {
	m := getMetrics()
	m.dequeueTotal.WithLabelValues(lane, status(success)).Inc()
	m.taskDuration.WithLabelValues(lane).Observe(duration.Seconds())
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordSnapshotLoad(duration time.Duration) {
	getMetrics().snapshotLoadDuration.Observe(duration.Seconds())
}

func RecordSnapshotSave(duration time.Duration) {
	getMetrics().snapshotSaveDuration.Observe(duration.Seconds())
}

func RecordProviderCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.providerCallTotal.WithLabelValues(provider, status(success)).Inc()
	m.providerCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordProviderFallback() {
	getMetrics().providerFallbacks.Inc()
}

func RecordDispatch(command string, success bool) {
	getMetrics().dispatchTotal.WithLabelValues(command, status(success)).Inc()
}

func RecordToolCall(label, tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolCallTotal.WithLabelValues(label, tool, status(success)).Inc()
	m.toolCallDuration.WithLabelValues(label).Observe(duration.Seconds())
}

func RecordDiscovery(label string, success bool) {
	getMetrics().discoveryTotal.WithLabelValues(label, status(success)).Inc()
}

func RecordAgentTask(state string, steps int, duration time.Duration) {
	m := getMetrics()
	m.agentTaskTotal.WithLabelValues(state).Inc()
	m.agentTaskSteps.Observe(float64(steps))
	m.agentTaskDuration.Observe(duration.Seconds())
}

func SetHeartbeat(at time.Time) {
	getMetrics().heartbeat.Set(float64(at.Unix()))
}

func RecordRecoveredPanic(scope string) {
	getMetrics().recoveredPanics.WithLabelValues(scope).Inc()
}

func RecordSwallowedError(scope string) {
	getMetrics().swallowedErrors.WithLabelValues(scope).Inc()
}
