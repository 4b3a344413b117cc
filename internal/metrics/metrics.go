// Package metrics exposes Prometheus counters for sequencer activity.
//
// A nil *Recorder is valid and records nothing, so components accept one
// unconditionally.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sequencer"

// Recorder holds the sequencer counters.
type Recorder struct {
	objectsMinted      prometheus.Counter
	activitiesCreated  prometheus.Counter
	rollbacks          prometheus.Counter
	validationFailures *prometheus.CounterVec
}

// NewRecorder creates the counters and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		objectsMinted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_minted_total",
			Help:      "Data objects created for activity requirements.",
		}),
		activitiesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activities_created_total",
			Help:      "Activities appended to activity sets.",
		}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Truncations of activity sets.",
		}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Failed validator verdicts by role.",
		}, []string{"role"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"objects_minted_total":      r.objectsMinted,
		"activities_created_total":  r.activitiesCreated,
		"rollbacks_total":           r.rollbacks,
		"validation_failures_total": r.validationFailures,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering counter %q: %w", name, err)
		}
	}
	return r, nil
}

func (r *Recorder) ObjectMinted() {
	if r == nil {
		return
	}
	r.objectsMinted.Inc()
}

func (r *Recorder) ActivityCreated() {
	if r == nil {
		return
	}
	r.activitiesCreated.Inc()
}

func (r *Recorder) Rollback() {
	if r == nil {
		return
	}
	r.rollbacks.Inc()
}

// ValidationFailed counts a failed verdict for the given validator role.
func (r *Recorder) ValidationFailed(role string) {
	if r == nil {
		return
	}
	r.validationFailures.WithLabelValues(role).Inc()
}

// NewRegistry returns a Prometheus registry with the Go and process
// collectors registered.
func NewRegistry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("registering go collector: %w", err)
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("registering process collector: %w", err)
	}
	return reg, nil
}

// Handler serves the /metrics endpoint for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
