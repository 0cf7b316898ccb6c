package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "paywatch"

var (
	paymentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payments_created_total",
		Help:      "Payment creation attempts, by result",
	}, []string{"result"})
	pollFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_fetches_total",
		Help:      "Status fetches issued by pollers, by result",
	}, []string{"result"})
	pollSkippedTicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_skipped_ticks_total",
		Help:      "Poll ticks dropped because the previous fetch was still running",
	})
	terminalStatuses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "terminal_statuses_total",
		Help:      "Payments observed reaching a terminal status",
	}, []string{"status"})
	activePollers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_pollers",
		Help:      "Poll loops currently running",
	})
	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "status_fetch_duration_seconds",
		Help:      "Latency of payment status fetches",
		Buckets:   prometheus.DefBuckets,
	})
)

func PaymentCreated(err error) {
	paymentsCreated.WithLabelValues(result(err)).Inc()
}

func PollFetched(err error) {
	pollFetches.WithLabelValues(result(err)).Inc()
}

func PollTickSkipped() {
	pollSkippedTicks.Inc()
}

func TerminalStatus(status string) {
	terminalStatuses.WithLabelValues(status).Inc()
}

func PollerStarted() {
	activePollers.Inc()
}

func PollerStopped() {
	activePollers.Dec()
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveFetch records the timer's elapsed time as a status fetch latency.
func (t *Timer) ObserveFetch() {
	fetchDuration.Observe(t.Duration().Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
