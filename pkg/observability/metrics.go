package observability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics records counters, gauges and distributions. Tags become
// Prometheus labels, so callers use the same tag keys for a given name.
type Metrics interface {
	Counter(name string, value int64, tags ...Tag)
	Gauge(name string, value float64, tags ...Tag)
	Histogram(name string, value float64, tags ...Tag)
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag is a metric label.
type Tag struct {
	Key   string
	Value string
}

// T creates a Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Counter(string, int64, ...Tag)        {}
func (NoopMetrics) Gauge(string, float64, ...Tag)        {}
func (NoopMetrics) Histogram(string, float64, ...Tag)    {}
func (NoopMetrics) Timing(string, time.Duration, ...Tag) {}

// InMemoryMetrics keeps every series in memory for assertions in tests.
// Series are identified by name and tag set; tag order does not matter.
type InMemoryMetrics struct {
	mu     sync.RWMutex
	series map[string]*memorySeries
}

type memorySeries struct {
	count   int64
	gauge   float64
	samples []float64
	timings []time.Duration
}

// NewInMemoryMetrics creates an empty collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{series: make(map[string]*memorySeries)}
}

func (m *InMemoryMetrics) at(name string, tags []Tag) *memorySeries {
	key := seriesKey(name, tags)
	s, ok := m.series[key]
	if !ok {
		s = &memorySeries{}
		m.series[key] = s
	}
	return s
}

func (m *InMemoryMetrics) lookup(name string, tags []Tag) memorySeries {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.series[seriesKey(name, tags)]; ok {
		return *s
	}
	return memorySeries{}
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	m.at(name, tags).count += value
	m.mu.Unlock()
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	m.at(name, tags).gauge = value
	m.mu.Unlock()
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	s := m.at(name, tags)
	s.samples = append(s.samples, value)
	m.mu.Unlock()
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.mu.Lock()
	s := m.at(name, tags)
	s.timings = append(s.timings, duration)
	m.mu.Unlock()
}

// GetCounter returns the counter total of a series.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	return m.lookup(name, tags).count
}

// GetGauge returns the last gauge value of a series.
func (m *InMemoryMetrics) GetGauge(name string, tags ...Tag) float64 {
	return m.lookup(name, tags).gauge
}

// GetHistogram returns the observed values of a series.
func (m *InMemoryMetrics) GetHistogram(name string, tags ...Tag) []float64 {
	return m.lookup(name, tags).samples
}

// GetTimings returns the recorded durations of a series.
func (m *InMemoryMetrics) GetTimings(name string, tags ...Tag) []time.Duration {
	return m.lookup(name, tags).timings
}

// Reset drops all series.
func (m *InMemoryMetrics) Reset() {
	m.mu.Lock()
	m.series = make(map[string]*memorySeries)
	m.mu.Unlock()
}

func seriesKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = t.Key + "=" + t.Value
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}

// Metric names. Dots become underscores in Prometheus.
const (
	MetricOperationTotal    = "therapia.operation.total"
	MetricOperationDuration = "therapia.operation.duration"
	MetricOperationErrors   = "therapia.operation.errors"

	MetricHTTPRequests        = "therapia.http.requests"
	MetricHTTPRequestDuration = "therapia.http.request_duration"

	MetricAppointmentsBooked   = "therapia.appointments.booked"
	MetricAppointmentsCanceled = "therapia.appointments.canceled"
	MetricWebhooksReceived     = "therapia.webhooks.received"

	MetricCalendarBreakerState = "therapia.calendar.breaker_state"

	MetricEventsPublished = "therapia.events.published"
	MetricEventsConsumed  = "therapia.events.consumed"

	MetricOutboxDeliveries = "therapia.outbox.deliveries"
	MetricOutboxLag        = "therapia.outbox.lag_seconds"
)
