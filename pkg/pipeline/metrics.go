package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType represents the type of metric
type MetricType int

const (
	CounterType MetricType = iota
	GaugeType
	HistogramType
)

func (mt MetricType) String() string {
	switch mt {
	case CounterType:
		return "counter"
	case GaugeType:
		return "gauge"
	case HistogramType:
		return "histogram"
	default:
		return "unknown"
	}
}

// Metric represents a single metric measurement
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Stats     *HistogramStats   `json:"stats,omitempty"`
}

// HistogramStats aggregates every observation of a histogram metric
type HistogramStats struct {
	Count float64 `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Avg returns the mean observation
func (h *HistogramStats) Avg() float64 {
	if h.Count == 0 {
		return 0
	}
	return h.Sum / h.Count
}

// MetricSnapshot represents a snapshot of metrics at a point in time
type MetricSnapshot struct {
	Timestamp time.Time         `json:"timestamp"`
	Metrics   map[string]Metric `json:"metrics"`
}

// BasicMetricsCollector is an in-memory MetricsCollector
type BasicMetricsCollector struct {
	metrics map[string]Metric
	mu      sync.RWMutex
	logger  Logger
}

// NewBasicMetricsCollector creates a new basic metrics collector
func NewBasicMetricsCollector(logger Logger) *BasicMetricsCollector {
	if logger == nil {
		logger = NullLogger()
	}
	return &BasicMetricsCollector{
		metrics: make(map[string]Metric),
		logger:  logger,
	}
}

// RecordCounter adds value to a counter metric
func (c *BasicMetricsCollector) RecordCounter(name string, value int64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := buildMetricKey(name, tags)
	newValue := float64(value)
	if existing, exists := c.metrics[key]; exists && existing.Type == CounterType {
		newValue += existing.Value
	}

	c.metrics[key] = Metric{
		Name:      name,
		Type:      CounterType,
		Value:     newValue,
		Tags:      copyTags(tags),
		Timestamp: time.Now(),
	}

	c.logger.Debug("Recorded counter metric",
		String("name", name),
		Int64("value", value),
		Float64("total", newValue),
	)
}

// RecordGauge records a gauge metric
func (c *BasicMetricsCollector) RecordGauge(name string, value float64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics[buildMetricKey(name, tags)] = Metric{
		Name:      name,
		Type:      GaugeType,
		Value:     value,
		Tags:      copyTags(tags),
		Timestamp: time.Now(),
	}
}

// RecordHistogram records an observation of a histogram metric
func (c *BasicMetricsCollector) RecordHistogram(name string, value float64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := buildMetricKey(name, tags)
	stats := &HistogramStats{Count: 1, Sum: value, Min: value, Max: value}
	if existing, exists := c.metrics[key]; exists && existing.Type == HistogramType && existing.Stats != nil {
		prev := *existing.Stats
		stats = &HistogramStats{
			Count: prev.Count + 1,
			Sum:   prev.Sum + value,
			Min:   min(prev.Min, value),
			Max:   max(prev.Max, value),
		}
	}

	c.metrics[key] = Metric{
		Name:      name,
		Type:      HistogramType,
		Value:     value,
		Tags:      copyTags(tags),
		Timestamp: time.Now(),
		Stats:     stats,
	}
}

// RecordTiming records a duration as a histogram in milliseconds
func (c *BasicMetricsCollector) RecordTiming(name string, duration time.Duration, tags map[string]string) {
	c.RecordHistogram(name, float64(duration.Nanoseconds())/1e6, tags)
}

// GetMetric retrieves a specific metric
func (c *BasicMetricsCollector) GetMetric(name string, tags map[string]string) (Metric, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	metric, exists := c.metrics[buildMetricKey(name, tags)]
	return metric, exists
}

// GetAllMetrics returns a snapshot of all current metrics
func (c *BasicMetricsCollector) GetAllMetrics() MetricSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := MetricSnapshot{
		Timestamp: time.Now(),
		Metrics:   make(map[string]Metric, len(c.metrics)),
	}
	for key, metric := range c.metrics {
		snapshot.Metrics[key] = metric
	}
	return snapshot
}

// GetMetricsByName returns all metrics with the given name
func (c *BasicMetricsCollector) GetMetricsByName(name string) []Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var metrics []Metric
	for _, metric := range c.metrics {
		if metric.Name == name {
			metrics = append(metrics, metric)
		}
	}
	return metrics
}

// SumCounter adds up every counter with the given name regardless of tags
func (c *BasicMetricsCollector) SumCounter(name string) float64 {
	var total float64
	for _, m := range c.GetMetricsByName(name) {
		if m.Type == CounterType {
			total += m.Value
		}
	}
	return total
}

// Reset clears all metrics
func (c *BasicMetricsCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = make(map[string]Metric)
}

// buildMetricKey creates a stable key from the name and sorted tags
func buildMetricKey(name string, tags map[string]string) string {
	if len(tags) == 0 {
		return name
	}

	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		fmt.Fprintf(&b, ",%s=%s", k, tags[k])
	}
	return b.String()
}

func copyTags(tags map[string]string) map[string]string {
	if tags == nil {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

// ScopedMetrics tags everything it records with a fixed scope, typically the
// guild and the component.
type ScopedMetrics struct {
	collector MetricsCollector
	scope     map[string]string
}

// NewScopedMetrics wraps collector. A nil collector records nothing.
func NewScopedMetrics(collector MetricsCollector, scope map[string]string) *ScopedMetrics {
	return &ScopedMetrics{collector: collector, scope: copyTags(scope)}
}

func (s *ScopedMetrics) tags(extra map[string]string) map[string]string {
	out := make(map[string]string, len(s.scope)+len(extra))
	for k, v := range s.scope {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Counter records a scoped counter
func (s *ScopedMetrics) Counter(name string, value int64, extra map[string]string) {
	if s == nil || s.collector == nil {
		return
	}
	s.collector.RecordCounter(name, value, s.tags(extra))
}

// Timing records a scoped timing
func (s *ScopedMetrics) Timing(name string, d time.Duration, extra map[string]string) {
	if s == nil || s.collector == nil {
		return
	}
	s.collector.RecordTiming(name, d, s.tags(extra))
}

// Gauge records a scoped gauge
func (s *ScopedMetrics) Gauge(name string, value float64, extra map[string]string) {
	if s == nil || s.collector == nil {
		return
	}
	s.collector.RecordGauge(name, value, s.tags(extra))
}

// RecordStateChange records an engine state change
func (s *ScopedMetrics) RecordStateChange(from, to PlaybackState) {
	s.Counter("playback.state.changes", 1, map[string]string{
		"from_state": from.String(),
		"to_state":   to.String(),
	})
}

// RecordError records an error metric
func (s *ScopedMetrics) RecordError(category ErrorCategory) {
	s.Counter("playback.errors.total", 1, map[string]string{"category": category.String()})
}

// RecordStall records one empty read of the decoder output
func (s *ScopedMetrics) RecordStall() {
	s.Counter("playback.stream.stalls", 1, nil)
}

// RecordStream records how long a stream ran and how many frames were sent
func (s *ScopedMetrics) RecordStream(d time.Duration, frames int64, outcome string) {
	tags := map[string]string{"outcome": outcome}
	s.Timing("playback.stream.duration", d, tags)
	s.Counter("playback.stream.frames", frames, nil)
}
