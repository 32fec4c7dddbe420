package monitoring

import (
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// DefaultLatencyBuckets 秒
var DefaultLatencyBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// Metric 一个带标签的时间序列的当前值
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Help      string            `json:"help,omitempty"`

	// 直方图专用
	Buckets []float64 `json:"buckets,omitempty"`
	Counts  []uint64  `json:"counts,omitempty"`
	Count   uint64    `json:"count,omitempty"`
}

// MetricsCollector 指标收集器
type MetricsCollector struct {
	metrics     map[string]*Metric
	help        map[string]string
	metricsLock sync.RWMutex

	startTime time.Time
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:   make(map[string]*Metric),
		help:      make(map[string]string),
		startTime: time.Now(),
	}
}

// Describe 设置指标说明
func (mc *MetricsCollector) Describe(name, help string) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()
	mc.help[name] = help
}

func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf(`%s=%q`, k, labels[k])
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}

func (mc *MetricsCollector) series(name string, typ MetricType, labels map[string]string) *Metric {
	key := seriesKey(name, labels)
	m, ok := mc.metrics[key]
	if !ok {
		copied := make(map[string]string, len(labels))
		for k, v := range labels {
			copied[k] = v
		}
		m = &Metric{Name: name, Type: typ, Labels: copied}
		mc.metrics[key] = m
	}
	m.Timestamp = time.Now()
	return m
}

// IncrCounter 增加计数器
func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()
	mc.series(name, MetricTypeCounter, labels).Value += value
}

// SetGauge 设置仪表
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()
	mc.series(name, MetricTypeGauge, labels).Value = value
}

// RecordHistogram 记录直方图观测值，buckets 为上界，首次记录时确定
func (mc *MetricsCollector) RecordHistogram(name string, value float64, labels map[string]string, buckets []float64) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	m := mc.series(name, MetricTypeHistogram, labels)
	if m.Buckets == nil {
		if len(buckets) == 0 {
			buckets = DefaultLatencyBuckets
		}
		m.Buckets = append([]float64(nil), buckets...)
		sort.Float64s(m.Buckets)
		m.Counts = make([]uint64, len(m.Buckets))
	}
	for i, upper := range m.Buckets {
		if value <= upper {
			m.Counts[i]++
		}
	}
	m.Count++
	m.Value += value
}

// GetMetric 获取指标当前值
func (mc *MetricsCollector) GetMetric(name string, labels map[string]string) (Metric, error) {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	m, ok := mc.metrics[seriesKey(name, labels)]
	if !ok {
		return Metric{}, fmt.Errorf("metric %s not found", seriesKey(name, labels))
	}
	out := *m
	out.Counts = append([]uint64(nil), m.Counts...)
	return out, nil
}

// snapshot 按序列键排序的副本
func (mc *MetricsCollector) snapshot() ([]string, map[string]Metric) {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	keys := make([]string, 0, len(mc.metrics))
	out := make(map[string]Metric, len(mc.metrics))
	for k, m := range mc.metrics {
		keys = append(keys, k)
		c := *m
		c.Counts = append([]uint64(nil), m.Counts...)
		c.Help = mc.help[m.Name]
		out[k] = c
	}
	sort.Strings(keys)
	return keys, out
}

// ExportPrometheus 导出Prometheus文本格式
func (mc *MetricsCollector) ExportPrometheus() string {
	keys, metrics := mc.snapshot()
	var b strings.Builder
	described := make(map[string]bool)

	for _, key := range keys {
		m := metrics[key]
		if !described[m.Name] {
			help := m.Help
			if help == "" {
				help = fmt.Sprintf("Metric %s", m.Name)
			}
			fmt.Fprintf(&b, "# HELP %s %s\n", m.Name, help)
			fmt.Fprintf(&b, "# TYPE %s %s\n", m.Name, m.Type)
			described[m.Name] = true
		}
		if m.Type != MetricTypeHistogram {
			fmt.Fprintf(&b, "%s %g\n", key, m.Value)
			continue
		}
		for i, upper := range m.Buckets {
			fmt.Fprintf(&b, "%s %d\n", withLabel(m, "le", fmt.Sprintf("%g", upper)), m.Counts[i])
		}
		fmt.Fprintf(&b, "%s %d\n", withLabel(m, "le", "+Inf"), m.Count)
		fmt.Fprintf(&b, "%s %g\n", seriesKey(m.Name+"_sum", m.Labels), m.Value)
		fmt.Fprintf(&b, "%s %d\n", seriesKey(m.Name+"_count", m.Labels), m.Count)
	}
	for _, line := range mc.runtimeGauges() {
		b.WriteString(line)
	}
	return b.String()
}

func withLabel(m Metric, key, value string) string {
	labels := make(map[string]string, len(m.Labels)+1)
	for k, v := range m.Labels {
		labels[k] = v
	}
	labels[key] = value
	return seriesKey(m.Name+"_bucket", labels)
}

func (mc *MetricsCollector) runtimeGauges() []string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return []string{
		"# TYPE process_uptime_seconds gauge\n",
		fmt.Sprintf("process_uptime_seconds %g\n", mc.GetUptime().Seconds()),
		"# TYPE go_goroutines gauge\n",
		fmt.Sprintf("go_goroutines %d\n", runtime.NumGoroutine()),
		"# TYPE go_memstats_heap_alloc_bytes gauge\n",
		fmt.Sprintf("go_memstats_heap_alloc_bytes %d\n", m.HeapAlloc),
	}
}

// ExportJSON 导出JSON格式
func (mc *MetricsCollector) ExportJSON() (string, error) {
	keys, metrics := mc.snapshot()
	ordered := make([]Metric, len(keys))
	for i, k := range keys {
		ordered[i] = metrics[k]
	}
	data, err := json.MarshalIndent(ordered, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetUptime 获取运行时间
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}
