// Package metrics collects and exposes Prometheus metrics for the node.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus instruments of the node core. All
// methods are safe on a nil receiver so subsystems can run unmetered in
// tests.
type Collector struct {
	inputsRunning *prometheus.GaugeVec

	inputLaunches     prometheus.Counter
	inputFailures     prometheus.Counter
	inputStops        prometheus.Counter
	inputTerminations prometheus.Counter
	forcedReclaims    prometheus.Counter

	isMaster prometheus.Gauge
}

// NewCollector creates the instruments and registers them with reg. Pass
// prometheus.NewRegistry() in tests to avoid default-registry collisions.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		inputsRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loghive_inputs_running",
			Help: "Current number of running inputs per type",
		}, []string{"type"}),
		inputLaunches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loghive_input_launches_total",
			Help: "Total number of input launches accepted",
		}),
		inputFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loghive_input_failures_total",
			Help: "Total number of inputs that moved to the failed stage",
		}),
		inputStops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loghive_input_stops_total",
			Help: "Total number of input stops",
		}),
		inputTerminations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loghive_input_terminations_total",
			Help: "Total number of inputs removed from the registry",
		}),
		forcedReclaims: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loghive_input_forced_reclaims_total",
			Help: "Total number of inputs abandoned after the stop grace period",
		}),
		isMaster: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loghive_node_is_master",
			Help: "1 when this node holds the master role, 0 otherwise",
		}),
	}

	reg.MustRegister(
		c.inputsRunning,
		c.inputLaunches,
		c.inputFailures,
		c.inputStops,
		c.inputTerminations,
		c.forcedReclaims,
		c.isMaster,
	)
	return c
}

// RecordLaunch counts an accepted launch.
func (c *Collector) RecordLaunch() {
	if c == nil {
		return
	}
	c.inputLaunches.Inc()
}

// InputStarted marks one more running input of the given type.
func (c *Collector) InputStarted(inputType string) {
	if c == nil {
		return
	}
	c.inputsRunning.WithLabelValues(inputType).Inc()
}

// InputStopped marks one less running input of the given type.
func (c *Collector) InputStopped(inputType string) {
	if c == nil {
		return
	}
	c.inputsRunning.WithLabelValues(inputType).Dec()
	c.inputStops.Inc()
}

// RecordFailure counts a transition to the failed stage.
func (c *Collector) RecordFailure() {
	if c == nil {
		return
	}
	c.inputFailures.Inc()
}

// RecordTermination counts a state removed from the registry.
func (c *Collector) RecordTermination() {
	if c == nil {
		return
	}
	c.inputTerminations.Inc()
}

// RecordForcedReclaim counts an input abandoned past the stop grace period.
func (c *Collector) RecordForcedReclaim() {
	if c == nil {
		return
	}
	c.forcedReclaims.Inc()
}

// SetMaster records whether this node currently holds the master role.
func (c *Collector) SetMaster(master bool) {
	if c == nil {
		return
	}
	if master {
		c.isMaster.Set(1)
	} else {
		c.isMaster.Set(0)
	}
}

// Handler returns the HTTP handler serving the given registry in
// Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// ListenAddr formats the metrics listen address for a port.
func ListenAddr(port int) string {
	return fmt.Sprintf(":%d", port)
}
