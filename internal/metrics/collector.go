package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AaronLay10/AdventureEngine/internal/adventure"
	"github.com/AaronLay10/AdventureEngine/internal/attempt"
	"github.com/AaronLay10/AdventureEngine/internal/events"
	"github.com/AaronLay10/AdventureEngine/internal/version"
)

const namespace = "adventure"

// Collector holds the process metrics on a private registry so tests can
// build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Submissions   *prometheus.CounterVec
	JudgeDuration *prometheus.HistogramVec
	Violations    *prometheus.CounterVec
}

// NewCollector creates the collector and registers the runtime gauges.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	start := time.Now()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Judged submissions by attempt kind, outcome and resulting move",
			},
			[]string{"kind", "outcome", "result"},
		),
		JudgeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "judge_duration_seconds",
				Help:      "Code execution round trip in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"status"},
		),
		Violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graph_violations_total",
				Help:      "Rejected adventure graphs by violation kind",
			},
			[]string{"kind"},
		),
	}

	buildInfo := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Build information",
		ConstLabels: prometheus.Labels{"version": version.Version},
	})
	buildInfo.Set(1)

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Submissions,
		c.JudgeDuration,
		c.Violations,
		buildInfo,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the process started",
		}, func() float64 { return time.Since(start).Seconds() }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of events emitted since startup",
		}, func() float64 { return float64(events.TotalCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Number of active WebSocket client connections",
		}, func() float64 { return float64(events.SubscriberCount()) }),
	)
	return c
}

// RegisterStatus exposes a boolean dependency status as a 0/1 gauge, for
// example whether MQTT is connected.
func (c *Collector) RegisterStatus(name, help string, up func() bool) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 {
		if up() {
			return 1
		}
		return 0
	}))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveSubmission(kind attempt.Kind, outcome adventure.Outcome, step adventure.Step) {
	result := "advanced"
	switch {
	case step.Completed:
		result = "completed"
	case step.Held:
		result = "held"
	}
	c.Submissions.WithLabelValues(string(kind), string(outcome), result).Inc()
}

func (c *Collector) ObserveJudge(elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.JudgeDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveViolation(kind adventure.ViolationKind) {
	c.Violations.WithLabelValues(string(kind)).Inc()
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
