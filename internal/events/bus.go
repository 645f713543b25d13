package events

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-portal/internal/domain"
)

// DefaultReplayWindow is how long the latest update per ticket stays replayable.
const DefaultReplayWindow = 5 * time.Minute

// Handler receives published ticket updates. It must not block for long:
// Publish invokes handlers synchronously.
type Handler func(context.Context, domain.TicketUpdate) error

// Delivery summarizes one Publish call.
type Delivery struct {
	Subscribers int `json:"subscribers"`
	Failed      int `json:"failed"`
}

// Bus fans ticket updates out to in-process subscribers.
type Bus interface {
	Publish(ctx context.Context, update domain.TicketUpdate) Delivery
	Subscribe(handler Handler) (id string, unsubscribe func())
	Recent(ticketIDs ...int) []domain.TicketUpdate
	Clear(ticketID int)
	SubscriberCount() int
}

type subscriber struct {
	id      string
	handler Handler
}

type replayEntry struct {
	update     domain.TicketUpdate
	receivedAt time.Time
}

// inMemoryBus is a synchronous bus with a per-ticket replay buffer.
type inMemoryBus struct {
	mu          sync.Mutex
	subscribers []subscriber
	replay      map[int]replayEntry
	window      time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// Option configures the bus.
type Option func(*inMemoryBus)

// WithReplayWindow sets how long updates stay replayable.
func WithReplayWindow(d time.Duration) Option {
	return func(b *inMemoryBus) {
		if d > 0 {
			b.window = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *inMemoryBus) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the logger used for handler failures.
func WithLogger(logger *zap.Logger) Option {
	return func(b *inMemoryBus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewInMemoryBus creates a bus instance.
func NewInMemoryBus(opts ...Option) Bus {
	b := &inMemoryBus{
		replay: make(map[int]replayEntry),
		window: DefaultReplayWindow,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish records the update for replay and synchronously invokes every
// subscriber registered at the time of the call.
func (b *inMemoryBus) Publish(ctx context.Context, update domain.TicketUpdate) Delivery {
	b.mu.Lock()
	now := b.now()
	b.replay[update.TicketID] = replayEntry{update: update, receivedAt: now}
	for id, entry := range b.replay {
		if now.Sub(entry.receivedAt) > b.window {
			delete(b.replay, id)
		}
	}
	handlers := append([]subscriber(nil), b.subscribers...)
	b.mu.Unlock()

	delivery := Delivery{Subscribers: len(handlers)}
	for _, sub := range handlers {
		if err := b.invoke(ctx, sub, update); err != nil {
			delivery.Failed++
			b.logger.Warn("subscriber failed",
				zap.String("subscriber_id", sub.id),
				zap.Int("ticket_id", update.TicketID),
				zap.Error(err))
		}
	}
	return delivery
}

func (b *inMemoryBus) invoke(ctx context.Context, sub subscriber, update domain.TicketUpdate) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return sub.handler(ctx, update)
}

// Subscribe registers a handler. The returned function removes it and may be
// called more than once.
func (b *inMemoryBus) Subscribe(handler Handler) (string, func()) {
	id := uuid.NewString()
	b.mu.Lock()
	b.subscribers = append(b.subscribers, subscriber{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return id, func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *inMemoryBus) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if sub.id == id {
			b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Recent returns replayable updates for the given tickets, or all of them when
// no ids are passed.
func (b *inMemoryBus) Recent(ticketIDs ...int) []domain.TicketUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	fresh := func(e replayEntry) bool { return now.Sub(e.receivedAt) <= b.window }

	if len(ticketIDs) == 0 {
		out := make([]domain.TicketUpdate, 0, len(b.replay))
		for _, e := range b.replay {
			if fresh(e) {
				out = append(out, e.update)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
		return out
	}

	out := make([]domain.TicketUpdate, 0, len(ticketIDs))
	for _, id := range ticketIDs {
		if e, ok := b.replay[id]; ok && fresh(e) {
			out = append(out, e.update)
		}
	}
	return out
}

// Clear drops the replayable update of a ticket.
func (b *inMemoryBus) Clear(ticketID int) {
	b.mu.Lock()
	delete(b.replay, ticketID)
	b.mu.Unlock()
}

// SubscriberCount reports active subscribers.
func (b *inMemoryBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
