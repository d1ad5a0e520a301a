// Package metrics exports dining activity as Prometheus metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/najoast/dining/core"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dining"

// Collector implements core.Observer and philosopher.Recorder.
type Collector struct {
	registry *prometheus.Registry

	meals       *prometheus.CounterVec
	waitSeconds *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	eating      prometheus.Gauge
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		meals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meals_total",
			Help:      "Meals finished by each philosopher.",
		}, []string{"philosopher"}),
		waitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wait_seconds",
			Help:      "Time philosophers spend hungry before being admitted.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"philosopher"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Eating transitions observed on the table.",
		}, []string{"event"}),
		eating: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "eating",
			Help:      "Philosophers currently eating.",
		}),
	}
	c.registry.MustRegister(c.meals, c.waitSeconds, c.transitions, c.eating)
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Observe implements core.Observer.
func (c *Collector) Observe(ev core.Event, snap core.Snapshot) {
	c.transitions.WithLabelValues(ev.Kind.String()).Inc()

	eating := 0
	for _, st := range snap {
		if st == core.StateEating {
			eating++
		}
	}
	c.eating.Set(float64(eating))
}

// ObserveWait implements philosopher.Recorder.
func (c *Collector) ObserveWait(id core.PhilosopherID, d time.Duration) {
	c.waitSeconds.WithLabelValues(label(id)).Observe(d.Seconds())
}

// ObserveMeal implements philosopher.Recorder.
func (c *Collector) ObserveMeal(id core.PhilosopherID) {
	c.meals.WithLabelValues(label(id)).Inc()
}

func label(id core.PhilosopherID) string {
	return strconv.Itoa(int(id))
}
