package metrics

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

const commandTotalPrefix = "command_total_"

// Metrics tracks application counters, gauges and histograms.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	mu         sync.RWMutex
	startTime  time.Time
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string]*Histogram
	enabled    bool
}

// Histogram tracks distribution of values
type Histogram struct {
	mu     sync.RWMutex
	values []float64
}

// HistogramStats contains histogram statistics
type HistogramStats struct {
	Count int
	Sum   float64
	Mean  float64
	Min   float64
	Max   float64
}

// CommandCount is the number of times a command was dispatched.
type CommandCount struct {
	Name  string
	Count int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		startTime:  time.Now(),
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string]*Histogram),
		enabled:    true,
	}
}

// Enable enables metrics collection
func (m *Metrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

// Disable disables metrics collection
func (m *Metrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// IsEnabled returns true if metrics collection is enabled
func (m *Metrics) IsEnabled() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// IncCounter increments a counter metric
func (m *Metrics) IncCounter(name string) {
	m.AddCounter(name, 1)
}

// AddCounter adds a value to a counter metric
func (m *Metrics) AddCounter(name string, value int64) {
	if !m.IsEnabled() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += value
}

// SetGauge sets a gauge metric
func (m *Metrics) SetGauge(name string, value float64) {
	if !m.IsEnabled() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = value
}

// AddToHistogram adds a value to a histogram
func (m *Metrics) AddToHistogram(name string, value float64) {
	if !m.IsEnabled() {
		return
	}

	m.mu.Lock()
	h, exists := m.histograms[name]
	if !exists {
		h = &Histogram{}
		m.histograms[name] = h
	}
	m.mu.Unlock()

	h.mu.Lock()
	h.values = append(h.values, value)
	h.mu.Unlock()
}

// GetCounter returns a counter value
func (m *Metrics) GetCounter(name string) int64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[name]
}

// GetGauge returns a gauge value
func (m *Metrics) GetGauge(name string) float64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[name]
}

// GetHistogramStats returns histogram statistics, nil when the histogram is unknown.
func (m *Metrics) GetHistogramStats(name string) *HistogramStats {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	h, exists := m.histograms[name]
	m.mu.RUnlock()
	if !exists {
		return nil
	}
	return h.stats()
}

func (h *Histogram) stats() *HistogramStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.values) == 0 {
		return &HistogramStats{}
	}

	sum := lo.Sum(h.values)
	return &HistogramStats{
		Count: len(h.values),
		Sum:   sum,
		Mean:  sum / float64(len(h.values)),
		Min:   lo.Min(h.values),
		Max:   lo.Max(h.values),
	}
}

// GetAllMetrics returns all metrics flattened into one map
func (m *Metrics) GetAllMetrics() map[string]interface{} {
	all := make(map[string]interface{})
	if m == nil {
		return all
	}

	m.mu.RLock()
	for name, value := range m.counters {
		all["counter_"+name] = value
	}
	for name, value := range m.gauges {
		all["gauge_"+name] = value
	}
	histograms := lo.Assign(map[string]*Histogram{}, m.histograms)
	m.mu.RUnlock()

	for name, h := range histograms {
		stats := h.stats()
		all[fmt.Sprintf("histogram_%s_count", name)] = stats.Count
		all[fmt.Sprintf("histogram_%s_mean", name)] = stats.Mean
		all[fmt.Sprintf("histogram_%s_max", name)] = stats.Max
	}

	return all
}

// GetSystemMetrics returns process level metrics
func (m *Metrics) GetSystemMetrics() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	uptime := 0.0
	if m != nil {
		uptime = time.Since(m.startTime).Seconds()
	}

	return map[string]interface{}{
		"uptime_seconds":          uptime,
		"memory_alloc_bytes":      memStats.Alloc,
		"memory_sys_bytes":        memStats.Sys,
		"memory_heap_inuse_bytes": memStats.HeapInuse,
		"gc_num":                  memStats.NumGC,
		"goroutines":              runtime.NumGoroutine(),
	}
}

// RecordCommandStart counts a command before it runs.
func (m *Metrics) RecordCommandStart(command string) {
	m.IncCounter(commandTotalPrefix + command)
}

// RecordCommandExecution records the outcome of a command
func (m *Metrics) RecordCommandExecution(command string, success bool, duration time.Duration) {
	if success {
		m.IncCounter("command_success_" + command)
	} else {
		m.IncCounter("command_error_" + command)
	}

	m.AddToHistogram("command_duration_"+command, float64(duration.Milliseconds()))
}

// CommandCounts returns dispatch counts per command, sorted by name.
func (m *Metrics) CommandCounts() []CommandCount {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make([]CommandCount, 0)
	for name, value := range m.counters {
		if strings.HasPrefix(name, commandTotalPrefix) {
			counts = append(counts, CommandCount{Name: strings.TrimPrefix(name, commandTotalPrefix), Count: value})
		}
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Name < counts[j].Name })
	return counts
}

// RecordQueueEvent records queue-related events
func (m *Metrics) RecordQueueEvent(event string, queueSize int) {
	m.IncCounter("queue_event_" + event)
	m.SetGauge("queue_size", float64(queueSize))
}

// RecordResolveEvent records the outcome of a track lookup
func (m *Metrics) RecordResolveEvent(event string, duration time.Duration) {
	m.IncCounter("resolve_event_" + event)
	if duration > 0 {
		m.AddToHistogram("resolve_duration_"+event, float64(duration.Milliseconds()))
	}
}

// RecordDiscordEvent records gateway events
func (m *Metrics) RecordDiscordEvent(event string) {
	m.IncCounter("discord_event_" + event)
}

// RecordAudioEvent records audio-related events
func (m *Metrics) RecordAudioEvent(event string) {
	m.IncCounter("audio_event_" + event)
}

// RecordError records error events
func (m *Metrics) RecordError(errorType string) {
	m.IncCounter("error_" + errorType)
}

// RecordGuildAction records guild actions
func (m *Metrics) RecordGuildAction(action string, guildID string) {
	m.IncCounter("guild_action_" + action)
	m.IncCounter("guild_total_" + guildID)
}

// GetMetricsSummary returns a summary of key metrics
func (m *Metrics) GetMetricsSummary() MetricsSummary {
	combined := lo.Assign(m.GetAllMetrics(), m.GetSystemMetrics())

	uptime := time.Duration(0)
	if m != nil {
		uptime = time.Since(m.startTime)
	}

	return MetricsSummary{
		Timestamp: time.Now(),
		Uptime:    uptime,
		Metrics:   combined,
	}
}

// MetricsSummary contains a summary of metrics
type MetricsSummary struct {
	Timestamp time.Time
	Uptime    time.Duration
	Metrics   map[string]interface{}
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters = make(map[string]int64)
	m.gauges = make(map[string]float64)
	m.histograms = make(map[string]*Histogram)
	m.startTime = time.Now()
}

// GaugeSource reports a value sampled on every collection tick.
type GaugeSource func() float64

// MonitoringCollector samples process and application gauges on an interval
type MonitoringCollector struct {
	metrics  *Metrics
	interval time.Duration
	sources  map[string]GaugeSource
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMonitoringCollector creates a new monitoring collector
func NewMonitoringCollector(metrics *Metrics, interval time.Duration) *MonitoringCollector {
	return &MonitoringCollector{
		metrics:  metrics,
		interval: interval,
		sources:  make(map[string]GaugeSource),
		stopCh:   make(chan struct{}),
	}
}

// Track registers an application gauge. Call before Start.
func (c *MonitoringCollector) Track(name string, source GaugeSource) {
	c.sources[name] = source
}

// Start blocks until ctx is done or Stop is called
func (c *MonitoringCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

// Stop stops the monitoring collector
func (c *MonitoringCollector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Collect takes one sample of every gauge.
func (c *MonitoringCollector) Collect() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	c.metrics.SetGauge("system_memory_alloc_mb", float64(memStats.Alloc)/1024/1024)
	c.metrics.SetGauge("system_memory_sys_mb", float64(memStats.Sys)/1024/1024)
	c.metrics.SetGauge("system_goroutines", float64(runtime.NumGoroutine()))
	c.metrics.SetGauge("system_gc_count", float64(memStats.NumGC))

	for name, source := range c.sources {
		c.metrics.SetGauge(name, source())
	}
}
