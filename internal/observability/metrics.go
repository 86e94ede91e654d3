package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	started      time.Time
	requestCount map[string]int64
	errorCount   map[string]int64
	latencyTotal map[string]time.Duration
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		started:      time.Now(),
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		latencyTotal: make(map[string]time.Duration),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.latencyTotal[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RouteStats aggregates one path|method|status key.
type RouteStats struct {
	Count        int64   `json:"count"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Requests      map[string]RouteStats `json:"requests"`
	Errors        map[string]int64      `json:"errors"`
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	out := Snapshot{Requests: map[string]RouteStats{}, Errors: map[string]int64{}}
	if m == nil {
		return out
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out.UptimeSeconds = int64(time.Since(m.started).Seconds())
	for k, n := range m.requestCount {
		stats := RouteStats{Count: n}
		if n > 0 {
			stats.AvgLatencyMS = float64(m.latencyTotal[k].Microseconds()) / 1000 / float64(n)
		}
		out.Requests[k] = stats
	}
	for k, n := range m.errorCount {
		out.Errors[k] = n
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
