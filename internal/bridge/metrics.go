package bridge

import "github.com/prometheus/client_golang/prometheus"

const (
	metricNamespace = "sigbridge"
	metricSubsystem = "bridge"
	metricSignal    = "signal"
)

var (
	// SignalsReceived counts relay wake-ups per watched signal.
	SignalsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: metricSubsystem,
			Name:      "signals_received_total",
			Help:      "Signals seen by the relay for watched signals",
		}, []string{metricSignal})

	// SignalsDelivered counts notifications that reached the delivery path.
	SignalsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: metricSubsystem,
			Name:      "signals_delivered_total",
			Help:      "Signal notifications that reached the delivery path",
		}, []string{metricSignal})

	// WatchedSignals tracks how many signals the bridge currently owns.
	WatchedSignals = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Subsystem: metricSubsystem,
			Name:      "watched_signals",
			Help:      "Number of signals currently watched",
		})

	// CleanupSeconds observes how long the shutdown callback ran.
	CleanupSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Subsystem: metricSubsystem,
			Name:      "cleanup_duration_seconds",
			Help:      "Time spent in the shutdown callback before re-raising",
			Buckets:   []float64{0.1, 0.5, 1, 2, 3, 5, 10, 30},
		})
)

func init() {
	prometheus.MustRegister(SignalsReceived, SignalsDelivered, WatchedSignals, CleanupSeconds)
}
