// Package metrics exposes prometheus collectors for the internal command
// channel: queue depth as seen by the Producer's monitor, and per-command
// processing counters maintained by the Consumer.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set bundles the collectors for one bus instance. A nil *Set is valid and
// turns every record method into a no-op, so components can carry metrics
// optionally without nil checks at each call site.
type Set struct {
	queueDepth        *prometheus.GaugeVec
	commandsProcessed *prometheus.CounterVec
	commandsFailed    *prometheus.CounterVec
}

// NewSet creates the collectors. Call Register to attach them to a
// prometheus registry.
func NewSet() *Set {
	return &Set{
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fluxbus_queue_depth",
			Help: "Current number of commands waiting on an internal queue.",
		}, []string{"queue"}),
		commandsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fluxbus_commands_processed_total",
			Help: "Commands whose handler terminated successfully.",
		}, []string{"command"}),
		commandsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fluxbus_commands_failed_total",
			Help: "Commands whose handler terminated with an error or panic.",
		}, []string{"command"}),
	}
}

// Register attaches all collectors to the given registerer.
func (s *Set) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{s.queueDepth, s.commandsProcessed, s.commandsFailed} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// SetQueueDepth records the current depth of the named queue.
func (s *Set) SetQueueDepth(queue string, depth int) {
	if s == nil {
		return
	}
	s.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// CommandProcessed increments the success counter for the named command.
func (s *Set) CommandProcessed(command string) {
	if s == nil {
		return
	}
	s.commandsProcessed.WithLabelValues(command).Inc()
}

// CommandFailed increments the failure counter for the named command.
func (s *Set) CommandFailed(command string) {
	if s == nil {
		return
	}
	s.commandsFailed.WithLabelValues(command).Inc()
}
