package stream

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-portal/internal/domain"
	"github.com/spec-kit/ticket-portal/internal/events"
)

type recordingWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	failErr error
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failErr != nil {
		return 0, w.failErr
	}
	return w.buf.Write(p)
}

func (w *recordingWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failErr
}

func (w *recordingWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func (w *recordingWriter) breakPipe() {
	w.mu.Lock()
	w.failErr = errors.New("broken pipe")
	w.mu.Unlock()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func serveAsync(ctx context.Context, g *Gateway, w FlushWriter, f Filter) chan error {
	done := make(chan error, 1)
	go func() { done <- g.Serve(ctx, w, f) }()
	return done
}

func TestServeSendsConnectedThenUpdates(t *testing.T) {
	bus := events.NewInMemoryBus()
	g := NewGateway(bus, Config{Heartbeat: time.Hour}, zap.NewNop())
	w := &recordingWriter{}
	ctx, cancel := context.WithCancel(context.Background())
	done := serveAsync(ctx, g, w, Filter{})

	waitFor(t, "subscription", func() bool { return bus.SubscriberCount() == 1 })
	if !strings.HasPrefix(w.String(), "event: connected\ndata: ") {
		t.Fatalf("first frame = %q", w.String())
	}

	u := domain.TicketUpdate{TicketID: 42, Kind: domain.UpdateKindUpdate}
	u.SetStatus(domain.StatusSolved)
	bus.Publish(context.Background(), u)
	waitFor(t, "ticket-update frame", func() bool { return strings.Contains(w.String(), "event: ticket-update\n") })
	if !strings.Contains(w.String(), `"ticketId":42`) || !strings.Contains(w.String(), `"statusLabel":"resuelto"`) {
		t.Fatalf("update frame missing fields: %q", w.String())
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("serve returned %v", err)
	}
	if bus.SubscriberCount() != 0 {
		t.Fatalf("subscription leaked after cancel")
	}
	if g.ActiveConnections() != 0 {
		t.Fatalf("active connections = %d", g.ActiveConnections())
	}
}

func TestServeCleansUpWhenNoEventWasSent(t *testing.T) {
	bus := events.NewInMemoryBus()
	g := NewGateway(bus, Config{Heartbeat: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := serveAsync(ctx, g, &recordingWriter{}, Filter{})

	waitFor(t, "subscription", func() bool { return bus.SubscriberCount() == 1 })
	cancel()
	<-done
	if bus.SubscriberCount() != 0 {
		t.Fatalf("subscription leaked")
	}
}

func TestServeEmitsHeartbeats(t *testing.T) {
	bus := events.NewInMemoryBus()
	g := NewGateway(bus, Config{Heartbeat: 10 * time.Millisecond}, nil)
	w := &recordingWriter{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveAsync(ctx, g, w, Filter{})

	waitFor(t, "two heartbeats", func() bool { return strings.Count(w.String(), "event: heartbeat\n") >= 2 })
}

func TestServeStopsOnWriteFailure(t *testing.T) {
	bus := events.NewInMemoryBus()
	g := NewGateway(bus, Config{Heartbeat: 10 * time.Millisecond}, nil)
	w := &recordingWriter{}
	done := serveAsync(context.Background(), g, w, Filter{})

	waitFor(t, "subscription", func() bool { return bus.SubscriberCount() == 1 })
	w.breakPipe()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected write error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not notice the broken client")
	}
	if bus.SubscriberCount() != 0 {
		t.Fatalf("subscription leaked after write failure")
	}
}

func TestServeConnectFailureDoesNotSubscribe(t *testing.T) {
	bus := events.NewInMemoryBus()
	g := NewGateway(bus, Config{}, nil)
	w := &recordingWriter{}
	w.breakPipe()
	if err := g.Serve(context.Background(), w, Filter{}); err == nil {
		t.Fatalf("expected error")
	}
	if bus.SubscriberCount() != 0 {
		t.Fatalf("subscribed despite failed connect")
	}
}

func TestServeAppliesFilter(t *testing.T) {
	bus := events.NewInMemoryBus()
	g := NewGateway(bus, Config{Heartbeat: time.Hour}, nil)
	w := &recordingWriter{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f, err := ParseFilter("5, 6")
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	serveAsync(ctx, g, w, f)
	waitFor(t, "subscription", func() bool { return bus.SubscriberCount() == 1 })

	bus.Publish(context.Background(), domain.TicketUpdate{TicketID: 9})
	bus.Publish(context.Background(), domain.TicketUpdate{TicketID: 6})
	waitFor(t, "ticket 6", func() bool { return strings.Contains(w.String(), `"ticketId":6`) })
	if strings.Contains(w.String(), `"ticketId":9`) {
		t.Fatalf("filtered ticket was streamed: %q", w.String())
	}
}

func TestCloseEndsStreams(t *testing.T) {
	bus := events.NewInMemoryBus()
	g := NewGateway(bus, Config{Heartbeat: time.Hour}, nil)
	done := serveAsync(context.Background(), g, &recordingWriter{}, Filter{})
	waitFor(t, "subscription", func() bool { return bus.SubscriberCount() == 1 })

	g.Close()
	g.Close()
	if err := <-done; !errors.Is(err, ErrGatewayClosed) {
		t.Fatalf("serve returned %v", err)
	}
}

func TestCloseFlushesQueuedFrames(t *testing.T) {
	g := NewGateway(events.NewInMemoryBus(), Config{Heartbeat: time.Hour}, nil)
	g.Close()

	w := &recordingWriter{}
	for i := 0; i < 20; i++ {
		w.buf.Reset()
		err := g.ServeSource(context.Background(), w, func(emit func(Frame)) func() {
			emit(Frame{Event: events.EventTicketUpdate, Data: domain.TicketUpdate{TicketID: 55}})
			return func() {}
		})
		if !errors.Is(err, ErrGatewayClosed) {
			t.Fatalf("serve returned %v", err)
		}
		if got := strings.Count(w.String(), "event: ticket-update\n"); got != 1 {
			t.Fatalf("run %d: ticket-update frames = %d in %q", i, got, w.String())
		}
	}
}

func TestParseFilterRejectsGarbage(t *testing.T) {
	if _, err := ParseFilter("1,abc"); err == nil {
		t.Fatalf("expected error")
	}
	f, err := ParseFilter("")
	if err != nil || !f.Match(123) {
		t.Fatalf("empty filter should match everything")
	}
}

func TestFrameQueueDropsOldest(t *testing.T) {
	q := newFrameQueue(2)
	for i := 1; i <= 3; i++ {
		q.push(Frame{Event: events.EventTicketUpdate, Data: i})
	}
	frames := q.drain()
	if len(frames) != 2 || frames[0].Data != 2 || frames[1].Data != 3 {
		t.Fatalf("frames = %+v", frames)
	}
	if q.droppedCount() != 1 {
		t.Fatalf("dropped = %d", q.droppedCount())
	}
}

func TestFrameEncode(t *testing.T) {
	b, err := Frame{Event: events.EventHeartbeat, Data: events.HeartbeatPayload{Timestamp: "2024-05-02T10:00:00Z"}}.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := "event: heartbeat\ndata: {\"timestamp\":\"2024-05-02T10:00:00Z\"}\n\n"
	if string(b) != want {
		t.Fatalf("encode = %q", b)
	}
}
