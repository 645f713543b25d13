package timeline

import (
	"context"
	"sync"

	"github.com/spec-kit/ticket-portal/internal/domain"
)

type inflight[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// loadingCache memoizes successful loads. Concurrent callers for the same key
// share one load; failures are returned to every waiter and not stored.
type loadingCache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]V
	pending map[K]*inflight[V]
}

func newLoadingCache[K comparable, V any]() *loadingCache[K, V] {
	return &loadingCache[K, V]{
		entries: make(map[K]V),
		pending: make(map[K]*inflight[V]),
	}
}

func (c *loadingCache[K, V]) getOrLoad(ctx context.Context, key K, load func(context.Context) (V, error)) (V, error) {
	c.mu.Lock()
	if v, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	if call, ok := c.pending[key]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.val, call.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}
	call := &inflight[V]{done: make(chan struct{})}
	c.pending[key] = call
	c.mu.Unlock()

	call.val, call.err = load(ctx)

	c.mu.Lock()
	delete(c.pending, key)
	if call.err == nil {
		c.entries[key] = call.val
	}
	c.mu.Unlock()
	close(call.done)
	return call.val, call.err
}

func (c *loadingCache[K, V]) peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *loadingCache[K, V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// UserNameCache resolves backend users for one viewing session.
type UserNameCache struct {
	c *loadingCache[int, domain.BackendUser]
}

// NewUserNameCache returns an empty cache.
func NewUserNameCache() *UserNameCache {
	return &UserNameCache{c: newLoadingCache[int, domain.BackendUser]()}
}

// Get returns the cached user or loads it.
func (u *UserNameCache) Get(ctx context.Context, id int, load func(context.Context) (domain.BackendUser, error)) (domain.BackendUser, error) {
	return u.c.getOrLoad(ctx, id, load)
}

// Len returns the number of cached users.
func (u *UserNameCache) Len() int { return u.c.len() }

// AgentSetCache holds the agent set of each ticket for one viewing session.
type AgentSetCache struct {
	c *loadingCache[int, AgentSet]
}

// NewAgentSetCache returns an empty cache.
func NewAgentSetCache() *AgentSetCache {
	return &AgentSetCache{c: newLoadingCache[int, AgentSet]()}
}

// Get returns the cached agent set of a ticket or loads it.
func (a *AgentSetCache) Get(ctx context.Context, ticketID int, load func(context.Context) (AgentSet, error)) (AgentSet, error) {
	return a.c.getOrLoad(ctx, ticketID, load)
}

// Cached reports the agent set of a ticket without loading.
func (a *AgentSetCache) Cached(ticketID int) (AgentSet, bool) { return a.c.peek(ticketID) }
