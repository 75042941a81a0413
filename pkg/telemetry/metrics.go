package telemetry

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus observability primitives for the backend core.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec

	sweepRuns     *prometheus.CounterVec
	sweepErrors   *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
	sweepReaped   prometheus.Counter

	giftsSent     prometheus.Counter
	seatsClaimed  prometheus.Counter
	walletDenials prometheus.Counter
}

// NewMetrics registers and returns Prometheus metrics for telemetry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hilive_api_requests_total",
		Help: "Counts API requests by method, route, and status.",
	}, []string{"method", "route", "status"})

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hilive_api_duration_seconds",
		Help:    "API request latency per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	sweepRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hilive_sweep_runs_total",
		Help: "Counts sweep job executions by job name.",
	}, []string{"job"})

	sweepErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hilive_sweep_errors_total",
		Help: "Counts sweep job failures by job name.",
	}, []string{"job"})

	sweepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hilive_sweep_duration_seconds",
		Help:    "Sweep job durations by job name.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	sweepReaped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hilive_sweep_sessions_reaped_total",
		Help: "Counts ghost sessions reclaimed by the sweep.",
	})

	giftsSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hilive_gifts_sent_total",
		Help: "Counts gifts delivered to live sessions.",
	})

	seatsClaimed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hilive_seats_claimed_total",
		Help: "Counts successful seat claims.",
	})

	walletDenials := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hilive_wallet_insufficient_funds_total",
		Help: "Counts debits rejected for insufficient funds.",
	})

	registry.MustRegister(
		apiRequests,
		apiDuration,
		sweepRuns,
		sweepErrors,
		sweepDuration,
		sweepReaped,
		giftsSent,
		seatsClaimed,
		walletDenials,
	)

	return &Metrics{
		registry:      registry,
		apiRequests:   apiRequests,
		apiDuration:   apiDuration,
		sweepRuns:     sweepRuns,
		sweepErrors:   sweepErrors,
		sweepDuration: sweepDuration,
		sweepReaped:   sweepReaped,
		giftsSent:     giftsSent,
		seatsClaimed:  seatsClaimed,
		walletDenials: walletDenials,
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) IncSweepRun(job string)   { m.sweepRuns.WithLabelValues(job).Inc() }
func (m *Metrics) IncSweepError(job string) { m.sweepErrors.WithLabelValues(job).Inc() }
func (m *Metrics) ObserveSweepDuration(job string, d time.Duration) {
	m.sweepDuration.WithLabelValues(job).Observe(d.Seconds())
}
func (m *Metrics) IncSessionsReaped(n int) { m.sweepReaped.Add(float64(n)) }

func (m *Metrics) IncGiftSent()      { m.giftsSent.Inc() }
func (m *Metrics) IncSeatClaimed()   { m.seatsClaimed.Inc() }
func (m *Metrics) IncWalletDenial()  { m.walletDenials.Inc() }

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.apiRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.apiDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
