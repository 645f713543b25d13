package observability

import (
	"testing"
	"time"
)

func TestSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/tickets/:id/timeline", "GET", 200, 10*time.Millisecond)
	m.RecordRequest("/tickets/:id/timeline", "GET", 200, 30*time.Millisecond)
	m.RecordRequest("/webhook/glpi", "POST", 200, time.Millisecond)
	m.RecordError("/push/subscribe", "POST", "CONFLICT")
	m.Inc(CounterWebhookReceived)
	m.Add(CounterPushSent, 3)
	m.Add(CounterPushFailed, 0)
	active := int64(2)
	m.RegisterGauge("stream_connections", func() int64 { return active })

	snap := m.Snapshot()
	if len(snap.Requests) != 2 {
		t.Fatalf("requests = %+v", snap.Requests)
	}
	first := snap.Requests[0]
	if first.Path != "/tickets/:id/timeline" || first.Count != 2 || first.Status != "200" || first.AvgMillis != 20 {
		t.Fatalf("unexpected route stat %+v", first)
	}
	if len(snap.Errors) != 1 || snap.Errors[0].Status != "CONFLICT" {
		t.Fatalf("errors = %+v", snap.Errors)
	}
	if snap.Counters[CounterWebhookReceived] != 1 || snap.Counters[CounterPushSent] != 3 {
		t.Fatalf("counters = %v", snap.Counters)
	}
	if _, ok := snap.Counters[CounterPushFailed]; ok {
		t.Fatal("zero delta must not create a counter")
	}
	if snap.Gauges["stream_connections"] != 2 {
		t.Fatalf("gauges = %v", snap.Gauges)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(CounterWebhookReceived)
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("unexpected counters %v", snap.Counters)
	}
}
