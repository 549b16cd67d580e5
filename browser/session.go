package browser

import (
	"context"
	"time"
)

type State int

const (
	StateIdle State = iota
	StateInUse
	StateUnhealthy
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInUse:
		return "in_use"
	default:
		return "unhealthy"
	}
}

// Session is one rendering engine on loan from a Pool. A session must only
// be used by the caller that acquired it, until it is released.
type Session struct {
	ID        string
	CreatedAt time.Time

	pool     *Pool
	handle   Handle
	overflow bool

	// guarded by pool.mu
	state     State
	lastUsed  time.Time
	releasing bool
	closed    bool
}

func (s *Session) Load(ctx context.Context, url string) (Page, error) {
	return s.handle.Load(ctx, url)
}

// MarkUnhealthy flags the session so the pool destroys it on release
// instead of lending it again.
func (s *Session) MarkUnhealthy() {
	s.pool.mu.Lock()
	s.state = StateUnhealthy
	s.pool.mu.Unlock()
}

func (s *Session) State() State {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	return s.state
}

func (s *Session) LastUsedAt() time.Time {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	return s.lastUsed
}

// Overflow reports whether the session was granted past the pool size. Such
// sessions are closed when released.
func (s *Session) Overflow() bool { return s.overflow }
