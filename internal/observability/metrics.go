package observability

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Domain counter names.
const (
	CounterWebhookReceived     = "webhook_received"
	CounterWebhookUnrouted     = "webhook_unrouted"
	CounterWebhookEnrichFailed = "webhook_enrich_failed"
	CounterUpdatesPublished    = "updates_published"
	CounterPushSent            = "push_sent"
	CounterPushFailed          = "push_failed"
	CounterPushPruned          = "push_pruned"
	CounterTimelinePasses      = "timeline_passes"
	CounterTimelineDegraded    = "timeline_degraded"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	requestNanos map[string]int64
	errorCount   map[string]int64
	counters     map[string]int64
	gauges       map[string]func() int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		requestNanos: make(map[string]int64),
		errorCount:   make(map[string]int64),
		counters:     make(map[string]int64),
		gauges:       make(map[string]func() int64),
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
	m.requestNanos[key] += duration.Nanoseconds()
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

// Add increments a domain counter.
func (m *Metrics) Add(name string, delta int64) {
	if m == nil || delta == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += delta
}

// Inc increments a domain counter by one.
func (m *Metrics) Inc(name string) { m.Add(name, 1) }

// RegisterGauge reports fn's value under name in snapshots.
func (m *Metrics) RegisterGauge(name string, fn func() int64) {
	if m == nil || fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = fn
}

// RouteStat aggregates requests of one path, method and status.
type RouteStat struct {
	Path      string  `json:"path"`
	Method    string  `json:"method"`
	Status    string  `json:"status"`
	Count     int64   `json:"count"`
	AvgMillis float64 `json:"avgMillis,omitempty"`
}

// Snapshot is a point-in-time copy of every metric.
type Snapshot struct {
	Requests []RouteStat      `json:"requests"`
	Errors   []RouteStat      `json:"errors"`
	Counters map[string]int64 `json:"counters"`
	Gauges   map[string]int64 `json:"gauges"`
}

// Snapshot copies the current values. Gauges are read outside the lock.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{Counters: map[string]int64{}, Gauges: map[string]int64{}}
	if m == nil {
		return snap
	}
	m.mu.Lock()
	for key, n := range m.requestCount {
		stat := routeStat(key, n)
		if n > 0 {
			stat.AvgMillis = float64(m.requestNanos[key]) / float64(n) / float64(time.Millisecond)
		}
		snap.Requests = append(snap.Requests, stat)
	}
	for key, n := range m.errorCount {
		snap.Errors = append(snap.Errors, routeStat(key, n))
	}
	for name, n := range m.counters {
		snap.Counters[name] = n
	}
	gauges := make(map[string]func() int64, len(m.gauges))
	for name, fn := range m.gauges {
		gauges[name] = fn
	}
	m.mu.Unlock()

	for name, fn := range gauges {
		snap.Gauges[name] = fn()
	}
	sortStats(snap.Requests)
	sortStats(snap.Errors)
	return snap
}

func routeStat(key string, n int64) RouteStat {
	parts := splitKey(key)
	return RouteStat{Path: parts[0], Method: parts[1], Status: parts[2], Count: n}
}

func splitKey(key string) [3]string {
	var out [3]string
	copy(out[:], strings.SplitN(key, "|", 3))
	return out
}

func sortStats(stats []RouteStat) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Path != stats[j].Path {
			return stats[i].Path < stats[j].Path
		}
		if stats[i].Method != stats[j].Method {
			return stats[i].Method < stats[j].Method
		}
		return stats[i].Status < stats[j].Status
	})
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
