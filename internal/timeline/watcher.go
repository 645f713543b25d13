package timeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-portal/internal/domain"
	"github.com/spec-kit/ticket-portal/internal/events"
)

// DefaultPollInterval is the refresh tick of a watched timeline.
const DefaultPollInterval = 10 * time.Second

// sequenceGuard applies results in issue order. A pass finishing after a
// newer one has been applied is discarded.
type sequenceGuard struct {
	mu      sync.Mutex
	issued  uint64
	applied uint64
}

func (g *sequenceGuard) next() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.issued++
	return g.issued
}

// apply runs fn when seq is newer than the last applied pass.
func (g *sequenceGuard) apply(seq uint64, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if seq <= g.applied {
		return false
	}
	g.applied = seq
	fn()
	return true
}

// Watcher keeps an open timeline fresh. A pass runs on start, on every bus
// update for the ticket and on each poll tick.
type Watcher struct {
	engine   *Engine
	bus      events.Bus
	interval time.Duration
	logger   *zap.Logger
}

// NewWatcher returns a watcher polling every interval.
func NewWatcher(engine *Engine, bus events.Bus, interval time.Duration, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{engine: engine, bus: bus, interval: interval, logger: logger}
}

// Start watches ticketID until ctx is done or stop is called. emit receives
// each applied timeline and is never called after stop returns.
func (w *Watcher) Start(ctx context.Context, sess *Session, ticketID int, emit func(*domain.Timeline)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	trigger := make(chan struct{}, 1)
	kick := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	_, unsubscribe := w.bus.Subscribe(func(_ context.Context, u domain.TicketUpdate) error {
		if u.TicketID == ticketID {
			kick()
		}
		return nil
	})

	var (
		guard  sequenceGuard
		passes sync.WaitGroup
		emitMu sync.Mutex
		done   = make(chan struct{})
	)
	run := func() {
		seq := guard.next()
		passes.Add(1)
		go func() {
			defer passes.Done()
			tl, err := w.engine.GetTimeline(ctx, sess, ticketID)
			if err != nil {
				if ctx.Err() == nil {
					w.logger.Warn("timeline refresh failed", zap.Int("ticket_id", ticketID), zap.Error(err))
				}
				return
			}
			emitMu.Lock()
			defer emitMu.Unlock()
			if ctx.Err() != nil {
				return
			}
			if !guard.apply(seq, func() { emit(tl) }) {
				w.logger.Debug("stale timeline pass discarded", zap.Int("ticket_id", ticketID), zap.Uint64("seq", seq))
			}
		}()
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		run()
		for {
			select {
			case <-ctx.Done():
				return
			case <-trigger:
				run()
			case <-ticker.C:
				run()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			cancel()
			<-done
			passes.Wait()
		})
	}
}
