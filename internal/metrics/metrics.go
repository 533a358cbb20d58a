// Package metrics holds the Prometheus collectors for conversation flows.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Step outcome label values.
const (
	OutcomeAccepted = "accepted"
	OutcomeEmpty    = "empty"
	OutcomeRejected = "rejected"
	OutcomePolicy   = "policy"
	OutcomeFailed   = "failed"
)

// Collectors groups every flow metric. A nil *Collectors is valid and records nothing.
type Collectors struct {
	steps       *prometheus.CounterVec
	flows       *prometheus.CounterVec
	connections prometheus.Gauge
	dropped     prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blaze",
			Name:      "step_replies_total",
			Help:      "Replies handled per flow step, by outcome.",
		}, []string{"flow", "step", "outcome"}),
		flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blaze",
			Name:      "flow_terminals_total",
			Help:      "Flows that reached a terminal event, by result.",
		}, []string{"flow", "result"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "blaze",
			Name:      "socket_connections",
			Help:      "Currently open conversation sockets.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blaze",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames for events with no armed listener.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.steps, c.flows, c.connections, c.dropped)
	}
	return c
}

// Step records a reply outcome.
func (c *Collectors) Step(flow, step, outcome string) {
	if c == nil {
		return
	}
	c.steps.WithLabelValues(flow, step, outcome).Inc()
}

// Terminal records a flow reaching success or failure.
func (c *Collectors) Terminal(flow, result string) {
	if c == nil {
		return
	}
	c.flows.WithLabelValues(flow, result).Inc()
}

// ConnectionOpened and ConnectionClosed track live sockets.
func (c *Collectors) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connections.Inc()
}

func (c *Collectors) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connections.Dec()
}

// Dropped records an inert frame.
func (c *Collectors) Dropped() {
	if c == nil {
		return
	}
	c.dropped.Inc()
}
