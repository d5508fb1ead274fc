// Package metrics exports probe results as Prometheus metrics.
//
// A run is short-lived, so nothing is scraped: the collector either writes a
// node-exporter textfile or pushes to a Pushgateway when the run ends.
package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/c360studio/authprobe/scenarios"
)

const namespace = "authprobe"

// Collector accumulates request and stage metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	stageSuccess    *prometheus.GaugeVec
	lastRun         prometheus.Gauge

	now func() time.Time
}

// NewCollector creates a Collector with all metrics registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests sent to the auth API by endpoint and status code.",
		}, []string{"endpoint", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Latency of requests to the auth API.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		stageSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_success",
			Help:      "1 if the stage passed on the last run, 0 if it failed.",
		}, []string{"scenario", "stage"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last scenario result was recorded.",
		}),
		now: time.Now,
	}
	c.registry.MustRegister(c.requests, c.requestDuration, c.stageSuccess, c.lastRun)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveRequest implements client.RequestObserver. Requests that never got
// a response are counted under code "error".
func (c *Collector) ObserveRequest(endpoint string, status int, duration time.Duration, err error) {
	code := strconv.Itoa(status)
	if status == 0 {
		code = "error"
	}
	c.requests.WithLabelValues(endpoint, code).Inc()
	c.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordResult records the outcome of every stage that ran. Skipped stages
// are left unset.
func (c *Collector) RecordResult(result *scenarios.Result) {
	for _, stage := range result.Stages {
		switch stage.Status {
		case scenarios.StagePassed:
			c.stageSuccess.WithLabelValues(result.ScenarioName, stage.Name).Set(1)
		case scenarios.StageFailed:
			c.stageSuccess.WithLabelValues(result.ScenarioName, stage.Name).Set(0)
		}
	}
	c.lastRun.Set(float64(c.now().Unix()))
}

// WriteTextfile writes all metrics to path in the node-exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Push replaces the metrics of job on the Pushgateway at url.
func (c *Collector) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(c.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
