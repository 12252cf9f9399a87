// Package metrics exposes Prometheus counters for eligibility checks and
// publish attempts.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records check and publish outcomes.
type Collector struct {
	registry     *prometheus.Registry
	checksTotal  *prometheus.CounterVec
	publishTotal *prometheus.CounterVec
}

// New creates a Collector and registers its metrics on registry. A nil
// registry gets a fresh one.
func New(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	c := &Collector{
		registry: registry,
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "statusbot_checks_total",
				Help: "Eligibility checks by check and outcome",
			},
			[]string{"check", "outcome"},
		),
		publishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "statusbot_publish_total",
				Help: "Publish attempts by outcome",
			},
			[]string{"outcome"},
		),
	}
	registry.MustRegister(c.checksTotal, c.publishTotal)
	return c
}

// RecordCheck counts an eligibility check outcome.
func (c *Collector) RecordCheck(check, outcome string) {
	c.checksTotal.WithLabelValues(check, outcome).Inc()
}

// RecordPublish counts a publish attempt outcome.
func (c *Collector) RecordPublish(outcome string) {
	c.publishTotal.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
