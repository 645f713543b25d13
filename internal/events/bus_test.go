package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/ticket-portal/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func update(id int, at time.Time) domain.TicketUpdate {
	u := domain.TicketUpdate{TicketID: id, OccurredAt: at, Kind: domain.UpdateKindUpdate}
	u.SetStatus(domain.StatusAssigned)
	return u
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	bus := NewInMemoryBus()
	var mu sync.Mutex
	got := map[string][]int{}
	for _, name := range []string{"a", "b"} {
		bus.Subscribe(func(_ context.Context, u domain.TicketUpdate) error {
			mu.Lock()
			got[name] = append(got[name], u.TicketID)
			mu.Unlock()
			return nil
		})
	}

	d := bus.Publish(context.Background(), update(7, time.Now()))
	if d.Subscribers != 2 || d.Failed != 0 {
		t.Fatalf("delivery = %+v", d)
	}
	if len(got["a"]) != 1 || len(got["b"]) != 1 {
		t.Fatalf("deliveries = %+v", got)
	}
}

func TestFailingSubscriberIsIsolated(t *testing.T) {
	bus := NewInMemoryBus()
	delivered := 0
	bus.Subscribe(func(context.Context, domain.TicketUpdate) error { return errors.New("closed pipe") })
	bus.Subscribe(func(context.Context, domain.TicketUpdate) error { panic("boom") })
	bus.Subscribe(func(context.Context, domain.TicketUpdate) error {
		delivered++
		return nil
	})

	d := bus.Publish(context.Background(), update(1, time.Now()))
	if d.Subscribers != 3 || d.Failed != 2 {
		t.Fatalf("delivery = %+v", d)
	}
	if delivered != 1 {
		t.Fatalf("healthy subscriber saw %d updates", delivered)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	bus := NewInMemoryBus()
	_, unsubA := bus.Subscribe(func(context.Context, domain.TicketUpdate) error { return nil })
	_, unsubB := bus.Subscribe(func(context.Context, domain.TicketUpdate) error { return nil })
	if bus.SubscriberCount() != 2 {
		t.Fatalf("count = %d", bus.SubscriberCount())
	}
	unsubA()
	unsubA()
	if bus.SubscriberCount() != 1 {
		t.Fatalf("count after unsubscribe = %d", bus.SubscriberCount())
	}
	unsubB()
	if bus.SubscriberCount() != 0 {
		t.Fatalf("count = %d", bus.SubscriberCount())
	}
	if d := bus.Publish(context.Background(), update(3, time.Now())); d.Subscribers != 0 {
		t.Fatalf("delivery = %+v", d)
	}
}

func TestSubscriberMayUnsubscribeDuringPublish(t *testing.T) {
	bus := NewInMemoryBus()
	var unsub func()
	calls := 0
	_, unsub = bus.Subscribe(func(context.Context, domain.TicketUpdate) error {
		calls++
		unsub()
		return nil
	})
	bus.Publish(context.Background(), update(1, time.Now()))
	bus.Publish(context.Background(), update(1, time.Now()))
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestReplayKeepsLatestPerTicketWithinWindow(t *testing.T) {
	clock := newFakeClock()
	bus := NewInMemoryBus(WithClock(clock.Now))

	first := update(10, clock.Now())
	bus.Publish(context.Background(), first)
	clock.Advance(time.Minute)
	second := update(10, clock.Now())
	second.SetStatus(domain.StatusSolved)
	bus.Publish(context.Background(), second)
	bus.Publish(context.Background(), update(11, clock.Now()))

	recent := bus.Recent(10)
	if len(recent) != 1 || recent[0].Status() != domain.StatusSolved {
		t.Fatalf("recent(10) = %+v", recent)
	}
	if all := bus.Recent(); len(all) != 2 {
		t.Fatalf("recent() = %d entries", len(all))
	}
	if none := bus.Recent(99); len(none) != 0 {
		t.Fatalf("unknown ticket replayed: %+v", none)
	}
}

func TestReplayEvictsAfterWindow(t *testing.T) {
	clock := newFakeClock()
	bus := NewInMemoryBus(WithClock(clock.Now), WithReplayWindow(5*time.Minute))

	bus.Publish(context.Background(), update(1, clock.Now()))
	clock.Advance(5*time.Minute + time.Second)

	if got := bus.Recent(1); len(got) != 0 {
		t.Fatalf("expired update still replayed: %+v", got)
	}

	bus.Publish(context.Background(), update(2, clock.Now()))
	impl := bus.(*inMemoryBus)
	impl.mu.Lock()
	_, stale := impl.replay[1]
	size := len(impl.replay)
	impl.mu.Unlock()
	if stale || size != 1 {
		t.Fatalf("expired entry not evicted on publish: size=%d", size)
	}
}

func TestClearRemovesReplay(t *testing.T) {
	bus := NewInMemoryBus()
	bus.Publish(context.Background(), update(4, time.Now()))
	bus.Clear(4)
	if got := bus.Recent(4); len(got) != 0 {
		t.Fatalf("cleared update replayed: %+v", got)
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewInMemoryBus()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, unsub := bus.Subscribe(func(context.Context, domain.TicketUpdate) error { return nil })
			unsub()
		}(i)
		go func(i int) {
			defer wg.Done()
			bus.Publish(context.Background(), update(i+1, time.Now()))
		}(i)
	}
	wg.Wait()
	if bus.SubscriberCount() != 0 {
		t.Fatalf("leaked subscribers: %d", bus.SubscriberCount())
	}
}
