package timeline

import (
	"sync"
	"time"
)

// Session holds the caches of one viewer credential. Caches are never shared
// between credentials.
type Session struct {
	credential string
	users      *UserNameCache
	agents     *AgentSetCache
	now        func() time.Time

	mu       sync.Mutex
	lastUsed time.Time
}

// NewSession returns a session with empty caches.
func NewSession(credential string) *Session {
	return newSession(credential, time.Now)
}

func newSession(credential string, now func() time.Time) *Session {
	return &Session{
		credential: credential,
		users:      NewUserNameCache(),
		agents:     NewAgentSetCache(),
		now:        now,
		lastUsed:   now(),
	}
}

// Credential is the backend session token.
func (s *Session) Credential() string { return s.credential }

// Users exposes the user name cache.
func (s *Session) Users() *UserNameCache { return s.users }

// Agents exposes the agent set cache.
func (s *Session) Agents() *AgentSetCache { return s.agents }

// Touch marks the session as used.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastUsed = s.now()
	s.mu.Unlock()
}

// LastUsed returns when the session was last touched.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// SessionRegistry maps credentials to sessions.
type SessionRegistry struct {
	idle time.Duration
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// RegistryOption customizes a SessionRegistry.
type RegistryOption func(*SessionRegistry)

// WithRegistryClock replaces the clock.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *SessionRegistry) { r.now = now }
}

// NewSessionRegistry evicts sessions idle for longer than idle.
func NewSessionRegistry(idle time.Duration, opts ...RegistryOption) *SessionRegistry {
	r := &SessionRegistry{
		idle:     idle,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire returns the session for credential, creating it on first use.
func (r *SessionRegistry) Acquire(credential string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[credential]
	if !ok {
		s = newSession(credential, r.now)
		r.sessions[credential] = s
		return s
	}
	s.Touch()
	return s
}

// Close drops the session and its caches.
func (r *SessionRegistry) Close(credential string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[credential]; !ok {
		return false
	}
	delete(r.sessions, credential)
	return true
}

// EvictIdle removes sessions unused for longer than the idle timeout.
func (r *SessionRegistry) EvictIdle() int {
	cutoff := r.now().Add(-r.idle)
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for cred, s := range r.sessions {
		if s.LastUsed().Before(cutoff) {
			delete(r.sessions, cred)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of open sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
