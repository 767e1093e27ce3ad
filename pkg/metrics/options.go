package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem sets the subsystem for all metrics.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithHistogramBuckets sets custom buckets for the stage duration histogram.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithTextfile writes the registry to path (node-exporter textfile format)
// on Flush.
func WithTextfile(path string) Option {
	return func(m *Manager) {
		m.textfile = path
	}
}

// WithPushGateway pushes the registry to a Pushgateway on Flush.
func WithPushGateway(url string) Option {
	return func(m *Manager) {
		m.pushURL = url
	}
}

// WithGrouping adds a Pushgateway grouping label.
func WithGrouping(name, value string) Option {
	return func(m *Manager) {
		if name != "" {
			m.grouping[name] = value
		}
	}
}

// WithPrometheusRegistry sets the registry metrics are registered in and
// gathered from.
func WithPrometheusRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}
