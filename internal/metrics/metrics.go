// Package metrics records engine counters and timings in a go-metrics registry.
package metrics

import (
	"sort"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// Metric names.
const (
	JobsGenerated      = "pipeline.jobs.generated"
	JobsPublished      = "pipeline.jobs.published"
	JobsFailed         = "pipeline.jobs.failed"
	GuardrailTripped   = "pipeline.guardrail.tripped"
	GenerateLatency    = "pipeline.generate"
	ProviderAttemptErr = "generation.attempt.failed"
	ImageImported      = "media.import.succeeded"
	ImageFailed        = "media.import.failed"
)

// Registry wraps a go-metrics registry. A nil *Registry drops everything.
type Registry struct {
	namespace string
	reg       gometrics.Registry
}

// New returns a registry whose metric names are prefixed with namespace.
func New(namespace string) *Registry {
	return &Registry{namespace: namespace, reg: gometrics.NewRegistry()}
}

func (r *Registry) name(metric string) string {
	if r.namespace == "" {
		return metric
	}
	return r.namespace + "." + metric
}

// Increment adds one to the named counter.
func (r *Registry) Increment(metric string) {
	if r == nil {
		return
	}
	gometrics.GetOrRegisterCounter(r.name(metric), r.reg).Inc(1)
}

// Time records a duration on the named timer.
func (r *Registry) Time(metric string, d time.Duration) {
	if r == nil {
		return
	}
	gometrics.GetOrRegisterTimer(r.name(metric), r.reg).Update(d)
}

// Count returns the current value of a counter, or 0.
func (r *Registry) Count(metric string) int64 {
	if r == nil {
		return 0
	}
	if c, ok := r.reg.Get(r.name(metric)).(gometrics.Counter); ok {
		return c.Count()
	}
	return 0
}

// Snapshot returns every metric keyed by name.
func (r *Registry) Snapshot() map[string]any {
	out := map[string]any{}
	if r == nil {
		return out
	}
	r.reg.Each(func(name string, m any) {
		switch v := m.(type) {
		case gometrics.Counter:
			out[name] = v.Count()
		case gometrics.Timer:
			s := v.Snapshot()
			out[name] = map[string]any{
				"count":   s.Count(),
				"mean_ms": s.Mean() / float64(time.Millisecond),
				"max_ms":  float64(s.Max()) / float64(time.Millisecond),
				"p99_ms":  s.Percentile(0.99) / float64(time.Millisecond),
			}
		}
	})
	return out
}

// Names lists registered metric names in order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	var names []string
	r.reg.Each(func(name string, _ any) {
		names = append(names, name)
	})
	sort.Strings(names)
	return names
}
