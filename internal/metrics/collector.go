// Package metrics exposes Prometheus metrics for builds and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records metrics. A nil *Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	buildsTotal    *prometheus.CounterVec
	buildDuration  *prometheus.HistogramVec
	stageDuration  *prometheus.HistogramVec
	buildsInFlight prometheus.Gauge
	jobsSwept      prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpRequestDur *prometheus.HistogramVec
}

// NewCollector creates a Collector with its own registry.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		buildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_total",
				Help:      "Total number of finished builds",
			},
			[]string{"format", "status", "reason"},
		),
		buildDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Build duration in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
			},
			[]string{"format", "status"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_stage_duration_seconds",
				Help:      "Build stage duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"stage", "status"},
		),
		buildsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "builds_in_flight",
				Help:      "Number of builds holding an admission slot",
			},
		),
		jobsSwept: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_swept_total",
				Help:      "Total number of expired job directories removed",
			},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDur: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Handler serves the collected metrics.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) ObserveBuild(format, status, reason string, d time.Duration) {
	if c == nil {
		return
	}
	c.buildsTotal.WithLabelValues(format, status, reason).Inc()
	c.buildDuration.WithLabelValues(format, status).Observe(d.Seconds())
}

func (c *Collector) ObserveStage(stage string, ok bool, d time.Duration) {
	if c == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	c.stageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

func (c *Collector) BuildStarted() {
	if c == nil {
		return
	}
	c.buildsInFlight.Inc()
}

func (c *Collector) BuildFinished() {
	if c == nil {
		return
	}
	c.buildsInFlight.Dec()
}

func (c *Collector) AddSwept(n int) {
	if c == nil {
		return
	}
	c.jobsSwept.Add(float64(n))
}

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDur.WithLabelValues(method, route).Observe(d.Seconds())
}
