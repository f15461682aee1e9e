// Package metrics holds the Prometheus instruments of a mining run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Project outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Metrics groups the run's instruments on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	projects       *prometheus.CounterVec
	testFiles      prometheus.Counter
	testMethods    prometheus.Counter
	mappedClasses  prometheus.Counter
	mappedMethods  prometheus.Counter
	fetchSeconds   prometheus.Histogram
	processSeconds prometheus.Histogram
}

// New creates and registers all instruments.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		projects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kute",
			Name:      "projects_total",
			Help:      "Projects by final outcome",
		}, []string{"outcome"}),
		testFiles: f.NewCounter(prometheus.CounterOpts{
			Namespace: "kute",
			Name:      "test_files_total",
			Help:      "Files classified as test files and parsed",
		}),
		testMethods: f.NewCounter(prometheus.CounterOpts{
			Namespace: "kute",
			Name:      "test_methods_total",
			Help:      "Test methods extracted",
		}),
		mappedClasses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "kute",
			Name:      "mapped_classes_total",
			Help:      "Test classes resolved to a production class",
		}),
		mappedMethods: f.NewCounter(prometheus.CounterOpts{
			Namespace: "kute",
			Name:      "mapped_methods_total",
			Help:      "Test methods resolved to a production method",
		}),
		fetchSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kute",
			Name:      "fetch_seconds",
			Help:      "Time spent cloning remote projects",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		processSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kute",
			Name:      "process_seconds",
			Help:      "Time spent processing a project",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Project records a project's final outcome.
func (m *Metrics) Project(outcome string) {
	if m == nil {
		return
	}
	m.projects.WithLabelValues(outcome).Inc()
}

// TestFile records a parsed test file.
func (m *Metrics) TestFile() {
	if m == nil {
		return
	}
	m.testFiles.Inc()
}

// TestMethod records an extracted test method and whether it was mapped.
func (m *Metrics) TestMethod(mapped bool) {
	if m == nil {
		return
	}
	m.testMethods.Inc()
	if mapped {
		m.mappedMethods.Inc()
	}
}

// ClassMapped records a test class resolved to a production class.
func (m *Metrics) ClassMapped() {
	if m == nil {
		return
	}
	m.mappedClasses.Inc()
}

// Fetch records the duration of a clone.
func (m *Metrics) Fetch(d time.Duration) {
	if m == nil {
		return
	}
	m.fetchSeconds.Observe(d.Seconds())
}

// Process records the duration of project processing.
func (m *Metrics) Process(d time.Duration) {
	if m == nil {
		return
	}
	m.processSeconds.Observe(d.Seconds())
}

// WriteTextfile writes all instruments in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
