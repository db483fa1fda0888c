// Package metrics exposes Prometheus counters for bot traffic and the
// download queue.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iconidentify/mediabot/internal/repository"
)

const namespace = "mediabot"

// Collector holds all application metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	Updates     *prometheus.CounterVec
	Commands    *prometheus.CounterVec
	Callbacks   *prometheus.CounterVec
	Downloads   *prometheus.CounterVec
	Jobs        *prometheus.GaugeVec
	JobDuration *prometheus.HistogramVec
	HTTP        *prometheus.CounterVec
}

// NewCollector creates and registers the metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Telegram updates received, by kind.",
		}, []string{"kind"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Slash commands handled.",
		}, []string{"command"}),
		Callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Inline button presses, by feature.",
		}, []string{"feature"}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "TikTok resolution attempts, by strategy and result.",
		}, []string{"strategy", "result"}),
		Jobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs",
			Help:      "Jobs in the queue, by status.",
		}, []string{"status"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time spent processing a job.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"kind", "result"}),
		HTTP: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Health server requests.",
		}, []string{"method", "route", "status"}),
	}

	c.registry.MustRegister(
		c.Updates,
		c.Commands,
		c.Callbacks,
		c.Downloads,
		c.Jobs,
		c.JobDuration,
		c.HTTP,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveStrategy records one TikTok strategy attempt.
func (c *Collector) ObserveStrategy(strategy string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.Downloads.WithLabelValues(strategy, result).Inc()
}

// ObserveJob records a finished job attempt.
func (c *Collector) ObserveJob(kind string, d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.JobDuration.WithLabelValues(kind, result).Observe(d.Seconds())
}

// SetQueue mirrors queue statistics into the jobs gauge.
func (c *Collector) SetQueue(s *repository.QueueStats) {
	if s == nil {
		return
	}
	c.Jobs.WithLabelValues("queued").Set(float64(s.Queued))
	c.Jobs.WithLabelValues("processing").Set(float64(s.Processing))
	c.Jobs.WithLabelValues("retrying").Set(float64(s.Retrying))
	c.Jobs.WithLabelValues("completed").Set(float64(s.Completed))
	c.Jobs.WithLabelValues("failed").Set(float64(s.Failed))
}
