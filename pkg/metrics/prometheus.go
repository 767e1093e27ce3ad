// Package metrics records batch-job metrics with Prometheus and flushes them
// when the run ends.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const jobName = "screentime_etl"

// Stage labels used with ObserveStage.
const (
	StageIngest    = "ingest"
	StageDerive    = "derive"
	StageAggregate = "aggregate"
	StageFilter    = "filter"
	StageSink      = "sink"
)

// Manager owns the job's metrics and their registry.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	textfile         string
	pushURL          string
	grouping         map[string]string
	registry         *prometheus.Registry

	filesRead     prometheus.Counter
	rowsIngested  prometheus.Counter
	rowsMalformed prometheus.Counter
	rowsCleaned   prometheus.Counter
	rowsDropped   prometheus.Counter
	groups        prometheus.Counter
	bytesRead     prometheus.Counter
	bytesWritten  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	lastSuccess   prometheus.Gauge
	lastRunFailed prometheus.Gauge
}

// NewManager builds a manager on a fresh registry unless one is supplied.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "screentime",
		subsystem:        "etl",
		histogramBuckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		grouping:         make(map[string]string),
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	f := promauto.With(m.registry)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		})
	}

	m.filesRead = counter("files_read_total", "Input files read.")
	m.rowsIngested = counter("rows_ingested_total", "Rows parsed from input files.")
	m.rowsMalformed = counter("rows_malformed_total", "Rows skipped because they could not be tokenized.")
	m.rowsCleaned = counter("rows_cleaned_total", "Rows kept by the outlier filter.")
	m.rowsDropped = counter("rows_dropped_total", "Rows removed by the outlier filter.")
	m.groups = counter("aggregate_groups_total", "Monthly aggregate rows produced.")
	m.bytesRead = counter("bytes_read_total", "Bytes read from input files.")

	m.bytesWritten = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "bytes_written_total", Help: "Bytes written per output.",
	}, []string{"output"})

	m.stageDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "stage_duration_seconds", Help: "Wall time per pipeline stage.",
		Buckets: m.histogramBuckets,
	}, []string{"stage"})

	m.lastSuccess = f.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "last_success_timestamp_seconds", Help: "Unix time of the last successful run.",
	})
	m.lastRunFailed = f.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "last_run_failed", Help: "1 if the last run failed, else 0.",
	})
}

// Registry exposes the underlying registry.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

func (m *Manager) RecordIngest(files, rows, malformed int, bytes int64) {
	m.filesRead.Add(float64(files))
	m.rowsIngested.Add(float64(rows))
	m.rowsMalformed.Add(float64(malformed))
	m.bytesRead.Add(float64(bytes))
}

func (m *Manager) RecordFilter(kept, dropped int) {
	m.rowsCleaned.Add(float64(kept))
	m.rowsDropped.Add(float64(dropped))
}

func (m *Manager) RecordGroups(n int) { m.groups.Add(float64(n)) }

func (m *Manager) RecordWrite(output string, bytes int64) {
	m.bytesWritten.WithLabelValues(output).Add(float64(bytes))
}

// ObserveStage records how long a stage took.
func (m *Manager) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordOutcome sets the run result gauges.
func (m *Manager) RecordOutcome(success bool, at time.Time) {
	if success {
		m.lastSuccess.Set(float64(at.Unix()))
		m.lastRunFailed.Set(0)
		return
	}
	m.lastRunFailed.Set(1)
}

// Flush writes the textfile and pushes to the gateway when configured.
func (m *Manager) Flush(ctx context.Context) error {
	if m.textfile != "" {
		if err := prometheus.WriteToTextfile(m.textfile, m.registry); err != nil {
			return fmt.Errorf("%w: textfile %s: %v", ErrFlushFailed, m.textfile, err)
		}
	}
	if m.pushURL != "" {
		p := push.New(m.pushURL, jobName).Gatherer(m.registry)
		for k, v := range m.grouping {
			p = p.Grouping(k, v)
		}
		if err := p.PushContext(ctx); err != nil {
			return fmt.Errorf("%w: push %s: %v", ErrFlushFailed, m.pushURL, err)
		}
	}
	return nil
}
