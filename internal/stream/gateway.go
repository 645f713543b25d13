// Package stream serves long-lived server-sent event connections.
package stream

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-portal/internal/domain"
	"github.com/spec-kit/ticket-portal/internal/events"
)

// Defaults for stream connections.
const (
	DefaultHeartbeat = 30 * time.Second
	DefaultQueueSize = 64
)

// ErrGatewayClosed is returned by Serve after Close.
var ErrGatewayClosed = errors.New("stream: gateway closed")

// Config tunes stream connections.
type Config struct {
	Heartbeat time.Duration
	QueueSize int
}

// Attach connects a connection to a source of frames. emit must not block; it
// returns a function that detaches the connection.
type Attach func(emit func(Frame)) (detach func())

// Gateway owns every open stream connection.
type Gateway struct {
	bus    events.Bus
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	active atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

// NewGateway builds a gateway reading from bus.
func NewGateway(bus events.Bus, cfg Config, logger *zap.Logger) *Gateway {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{bus: bus, cfg: cfg, logger: logger, now: time.Now, closed: make(chan struct{})}
}

// Filter restricts a connection to a set of tickets. The zero value matches
// every ticket.
type Filter struct {
	ticketIDs map[int]struct{}
}

// ParseFilter reads a comma separated list of ticket ids.
func ParseFilter(raw string) (Filter, error) {
	var f Filter
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id <= 0 {
			return Filter{}, errors.New("invalid ticket id " + strconv.Quote(part))
		}
		if f.ticketIDs == nil {
			f.ticketIDs = make(map[int]struct{})
		}
		f.ticketIDs[id] = struct{}{}
	}
	return f, nil
}

// Match reports whether the filter accepts the ticket.
func (f Filter) Match(ticketID int) bool {
	if len(f.ticketIDs) == 0 {
		return true
	}
	_, ok := f.ticketIDs[ticketID]
	return ok
}

// Serve streams ticket updates accepted by filter until ctx is done, the
// gateway closes, or the client goes away.
func (g *Gateway) Serve(ctx context.Context, w FlushWriter, filter Filter) error {
	return g.ServeSource(ctx, w, func(emit func(Frame)) func() {
		_, unsubscribe := g.bus.Subscribe(func(_ context.Context, u domain.TicketUpdate) error {
			if filter.Match(u.TicketID) {
				emit(Frame{Event: events.EventTicketUpdate, Data: u})
			}
			return nil
		})
		return unsubscribe
	})
}

// ServeSource streams frames produced by attach. The connection is detached
// from its source on every exit path.
func (g *Gateway) ServeSource(ctx context.Context, w FlushWriter, attach Attach) error {
	connID := uuid.NewString()
	logger := g.logger.With(zap.String("connection_id", connID))

	g.active.Add(1)
	defer g.active.Add(-1)

	if err := writeFrame(w, Frame{Event: events.EventConnected, Data: events.ConnectedPayload{
		Message:      "connected to ticket stream",
		ConnectionID: connID,
	}}); err != nil {
		logger.Debug("stream closed before connect frame", zap.Error(err))
		return err
	}

	queue := newFrameQueue(g.cfg.QueueSize)
	detach := attach(queue.push)
	defer detach()

	ticker := time.NewTicker(g.cfg.Heartbeat)
	defer ticker.Stop()

	logger.Debug("stream opened")
	defer func() {
		if dropped := queue.droppedCount(); dropped > 0 {
			logger.Warn("stream dropped frames for slow client", zap.Int("dropped", dropped))
		}
		logger.Debug("stream closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.closed:
			// frames already queued still reach the client
			if err := writeFrames(w, queue.drain()); err != nil {
				return err
			}
			return ErrGatewayClosed
		case <-queue.ready:
			if err := writeFrames(w, queue.drain()); err != nil {
				return err
			}
		case <-ticker.C:
			if err := writeFrame(w, Frame{Event: events.EventHeartbeat, Data: events.HeartbeatPayload{
				Timestamp: g.now().UTC().Format(time.RFC3339),
			}}); err != nil {
				return err
			}
		}
	}
}

func writeFrames(w FlushWriter, frames []Frame) error {
	for _, frame := range frames {
		if err := writeFrame(w, frame); err != nil {
			return err
		}
	}
	return nil
}

// ActiveConnections reports currently open streams.
func (g *Gateway) ActiveConnections() int {
	return int(g.active.Load())
}

// Close ends every open stream.
func (g *Gateway) Close() {
	g.closeOnce.Do(func() { close(g.closed) })
}
