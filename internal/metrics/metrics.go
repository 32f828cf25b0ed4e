package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stakesim"

var (
	registerOnce sync.Once

	roundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "rounds_total",
			Help:      "Rounds stepped across all simulations.",
		},
	)
	flipsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "strategy_flips_total",
			Help:      "Validators that switched strategy during rebalancing.",
		},
	)
	terminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "terminations_total",
			Help:      "Episodes that reached the terminal state, by reason.",
		},
		[]string{"reason"},
	)
	honestProportion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "honest_proportion",
			Help:      "Honest share of the population after the latest round.",
		},
	)
	alpha = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "alpha",
			Help:      "Penalty multiplier applied in the latest round.",
		},
	)
	feedback = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "feedback",
			Help:      "Per-round feedback signal.",
			Buckets:   []float64{-10, -1, -0.1, -0.01, 0, 0.01, 0.1, 1, 10, 100},
		},
	)
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "runs_total",
			Help:      "Completed runs, by controller and outcome.",
		},
		[]string{"controller", "success"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			roundsTotal,
			flipsTotal,
			terminations,
			honestProportion,
			alpha,
			feedback,
			runsTotal,
			httpRequests,
			httpDuration,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordRound(a, fb, hp float64, flips int) {
	RegisterMetrics()
	roundsTotal.Inc()
	if flips > 0 {
		flipsTotal.Add(float64(flips))
	}
	alpha.Set(a)
	honestProportion.Set(hp)
	feedback.Observe(fb)
}

func RecordTermination(reason string) {
	RegisterMetrics()
	if reason == "" {
		reason = "unknown"
	}
	terminations.WithLabelValues(reason).Inc()
}

func RecordRun(controller string, success bool) {
	RegisterMetrics()
	runsTotal.WithLabelValues(controller, strconv.FormatBool(success)).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
