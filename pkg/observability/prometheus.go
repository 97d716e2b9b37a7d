package observability

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements Metrics on a Prometheus registry. Collectors
// are created on first use; the tag keys of that first call fix the label
// set of the metric.
type PrometheusMetrics struct {
	reg prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetrics registers collectors on reg, or on the default
// registerer when reg is nil.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusMetrics{
		reg:        reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Counter implements Metrics.
func (m *PrometheusMetrics) Counter(name string, value int64, tags ...Tag) {
	keys, values := splitTags(tags)
	m.mu.Lock()
	vec, ok := m.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: promName(name) + "_total",
			Help: name,
		}, keys)
		vec = register(m.reg, vec)
		m.counters[name] = vec
	}
	m.mu.Unlock()
	if c, err := vec.GetMetricWithLabelValues(values...); err == nil {
		c.Add(float64(value))
	}
}

// Gauge implements Metrics.
func (m *PrometheusMetrics) Gauge(name string, value float64, tags ...Tag) {
	keys, values := splitTags(tags)
	m.mu.Lock()
	vec, ok := m.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: promName(name), Help: name}, keys)
		vec = register(m.reg, vec)
		m.gauges[name] = vec
	}
	m.mu.Unlock()
	if g, err := vec.GetMetricWithLabelValues(values...); err == nil {
		g.Set(value)
	}
}

// Histogram implements Metrics.
func (m *PrometheusMetrics) Histogram(name string, value float64, tags ...Tag) {
	m.observe(promName(name), name, value, tags)
}

// Timing implements Metrics, recording seconds.
func (m *PrometheusMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.observe(promName(name)+"_seconds", name, duration.Seconds(), tags)
}

func (m *PrometheusMetrics) observe(promKey, help string, value float64, tags []Tag) {
	keys, values := splitTags(tags)
	m.mu.Lock()
	vec, ok := m.histograms[promKey]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    promKey,
			Help:    help,
			Buckets: prometheus.DefBuckets,
		}, keys)
		vec = register(m.reg, vec)
		m.histograms[promKey] = vec
	}
	m.mu.Unlock()
	if h, err := vec.GetMetricWithLabelValues(values...); err == nil {
		h.Observe(value)
	}
}

// register returns the already registered collector when an equal one
// exists, which happens when two PrometheusMetrics share a registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func splitTags(tags []Tag) ([]string, []string) {
	sorted := append([]Tag(nil), tags...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	keys := make([]string, len(sorted))
	values := make([]string, len(sorted))
	for i, t := range sorted {
		keys[i], values[i] = promName(t.Key), t.Value
	}
	return keys, values
}

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
