package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"lunchmind/metrics"
)

var (
	ErrSessionCreation = errors.New("browser: session creation failed")
	ErrAcquireTimeout  = errors.New("browser: acquire timed out")
	ErrPoolClosed      = errors.New("browser: pool closed")
)

// Pool lends a bounded set of rendering sessions. Idle sessions are reused,
// new ones are created while the pool is under Size, and callers beyond that
// wait for a release.
type Pool struct {
	cfg      PoolConfig
	launcher Launcher
	logger   *zap.Logger
	clock    clock.Clock
	metrics  *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
	idle     []*Session
	pending  int
	notify   chan struct{}
	closed   bool

	stop chan struct{}
	done chan struct{}
}

type Stats struct {
	Size  int `json:"size"`
	Total int `json:"total"`
	InUse int `json:"in_use"`
	Idle  int `json:"idle"`
}

type Option func(*Pool)

func WithClock(c clock.Clock) Option {
	return func(p *Pool) { p.clock = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

func NewPool(cfg PoolConfig, launcher Launcher, logger *zap.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Size < 1 {
		cfg.Size = 1
	}
	p := &Pool{
		cfg:      cfg,
		launcher: launcher,
		logger:   logger,
		clock:    clock.New(),
		sessions: make(map[string]*Session),
		notify:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	if cfg.SweepInterval > 0 {
		p.stop = make(chan struct{})
		p.done = make(chan struct{})
		go p.sweepLoop()
	}
	return p
}

func (p *Pool) Size() int { return p.cfg.Size }

// Acquire lends a session. When the pool is saturated it waits up to
// AcquireTimeout for a release, then either grants an overflow session or
// fails with ErrAcquireTimeout.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	start := p.clock.Now()
	defer func() { p.metrics.ObserveAcquire(p.clock.Since(start)) }()

	var timer *clock.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if n := len(p.idle); n > 0 {
			s := p.idle[n-1]
			p.idle = p.idle[:n-1]
			s.state = StateInUse
			s.lastUsed = p.clock.Now()
			p.gaugesLocked()
			p.mu.Unlock()
			return s, nil
		}
		if len(p.sessions)+p.pending < p.cfg.Size {
			p.pending++
			p.mu.Unlock()
			return p.create(ctx)
		}
		wait := p.notify
		p.mu.Unlock()

		if timer == nil {
			timer = p.clock.Timer(p.cfg.AcquireTimeout)
		}
		select {
		case <-wait:
		case <-timer.C:
			return p.grantOverflow(ctx)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Pool) create(ctx context.Context) (*Session, error) {
	h, err := p.launcher.Launch(ctx)

	p.mu.Lock()
	p.pending--
	if err != nil {
		// capacity freed, a waiter may try creating instead
		p.broadcastLocked()
		p.mu.Unlock()
		p.metrics.SessionEvent("create_failed")
		p.logger.Warn("failed to create session", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrSessionCreation, err)
	}
	if p.closed {
		p.mu.Unlock()
		_ = h.Close()
		return nil, ErrPoolClosed
	}
	s := p.newSession(h)
	s.state = StateInUse
	p.sessions[s.ID] = s
	p.gaugesLocked()
	p.mu.Unlock()

	p.metrics.SessionEvent("created")
	p.logger.Debug("session created", zap.String("session_id", s.ID))
	return s, nil
}

func (p *Pool) grantOverflow(ctx context.Context) (*Session, error) {
	if !p.cfg.AllowOverflow {
		return nil, ErrAcquireTimeout
	}
	h, err := p.launcher.Launch(ctx)
	if err != nil {
		p.metrics.SessionEvent("create_failed")
		return nil, fmt.Errorf("%w: %w", ErrSessionCreation, err)
	}

	p.mu.Lock()
	s := p.newSession(h)
	s.overflow = true
	s.state = StateInUse
	p.mu.Unlock()

	p.metrics.SessionEvent("overflow")
	p.logger.Info("pool saturated, granted overflow session",
		zap.String("session_id", s.ID),
		zap.Int("size", p.cfg.Size))
	return s, nil
}

func (p *Pool) newSession(h Handle) *Session {
	now := p.clock.Now()
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		pool:      p,
		handle:    h,
		lastUsed:  now,
	}
}

// Release returns a session to the pool. The session is reset first; if the
// reset fails, the session was marked unhealthy, or the pool is closed, it is
// destroyed instead. Releasing a session that is not on loan is a no-op.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}
	if s.overflow {
		p.mu.Lock()
		already := s.closed
		s.closed = true
		p.mu.Unlock()
		if !already {
			p.closeHandle(s, "overflow_released")
		}
		return
	}

	p.mu.Lock()
	if cur, ok := p.sessions[s.ID]; !ok || cur != s || s.state == StateIdle || s.releasing {
		p.mu.Unlock()
		p.logger.Warn("ignoring release of session not on loan", zap.String("session_id", s.ID))
		return
	}
	if s.state == StateUnhealthy || p.closed {
		p.removeLocked(s)
		p.mu.Unlock()
		p.closeHandle(s, "destroyed")
		return
	}
	s.releasing = true
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ResetTimeout)
	err := s.handle.Reset(ctx)
	cancel()

	p.mu.Lock()
	s.releasing = false
	if err != nil || p.closed || s.state == StateUnhealthy {
		p.removeLocked(s)
		p.mu.Unlock()
		if err != nil {
			p.logger.Warn("session reset failed, destroying", zap.String("session_id", s.ID), zap.Error(err))
		}
		p.closeHandle(s, "destroyed")
		return
	}
	s.state = StateIdle
	s.lastUsed = p.clock.Now()
	p.idle = append(p.idle, s)
	p.broadcastLocked()
	p.gaugesLocked()
	p.mu.Unlock()
}

// Destroy removes a session from the pool and closes it regardless of its
// state.
func (p *Pool) Destroy(s *Session) {
	if s == nil {
		return
	}
	p.mu.Lock()
	if s.overflow {
		if s.closed {
			p.mu.Unlock()
			return
		}
		s.closed = true
		p.mu.Unlock()
		p.closeHandle(s, "overflow_released")
		return
	}
	if cur, ok := p.sessions[s.ID]; !ok || cur != s {
		p.mu.Unlock()
		return
	}
	p.removeLocked(s)
	p.mu.Unlock()
	p.closeHandle(s, "destroyed")
}

// With acquires a session, runs fn and releases the session on every exit
// path, panics included.
func (p *Pool) With(ctx context.Context, fn func(*Session) error) error {
	s, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(s)
	return fn(s)
}

// Sweep destroys idle sessions that exceeded MaxIdle or fail a ping.
func (p *Pool) Sweep(ctx context.Context) {
	now := p.clock.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	var expired, check []*Session
	idle := p.idle
	p.idle = nil
	for _, s := range idle {
		if p.cfg.MaxIdle > 0 && now.Sub(s.lastUsed) > p.cfg.MaxIdle {
			delete(p.sessions, s.ID)
			s.state = StateUnhealthy
			expired = append(expired, s)
			continue
		}
		// held while pinging so nobody borrows it mid-check
		s.state = StateInUse
		check = append(check, s)
	}
	if len(expired) > 0 {
		p.broadcastLocked()
	}
	p.gaugesLocked()
	p.mu.Unlock()

	for _, s := range expired {
		p.logger.Debug("session idle too long", zap.String("session_id", s.ID))
		p.closeHandle(s, "expired")
	}

	failed := make(map[*Session]error)
	for _, s := range check {
		pctx, cancel := context.WithTimeout(ctx, p.cfg.PingTimeout)
		if err := s.handle.Ping(pctx); err != nil {
			failed[s] = err
		}
		cancel()
	}

	var dead []*Session
	p.mu.Lock()
	for _, s := range check {
		if _, bad := failed[s]; bad || p.closed {
			delete(p.sessions, s.ID)
			s.state = StateUnhealthy
			dead = append(dead, s)
			continue
		}
		s.state = StateIdle
		p.idle = append(p.idle, s)
	}
	if len(check) > 0 {
		p.broadcastLocked()
	}
	p.gaugesLocked()
	p.mu.Unlock()

	for _, s := range dead {
		if err := failed[s]; err != nil {
			p.logger.Warn("session failed health check", zap.String("session_id", s.ID), zap.Error(err))
		}
		p.closeHandle(s, "unhealthy")
	}
}

func (p *Pool) sweepLoop() {
	defer close(p.done)
	ticker := p.clock.Ticker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.Sweep(context.Background())
		}
	}
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Size:  p.cfg.Size,
		Total: len(p.sessions),
		InUse: len(p.sessions) - len(p.idle),
		Idle:  len(p.idle),
	}
}

// Close stops the sweeper and closes every idle session. Sessions still on
// loan are closed when they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	for _, s := range idle {
		delete(p.sessions, s.ID)
		s.state = StateUnhealthy
	}
	p.broadcastLocked()
	p.gaugesLocked()
	p.mu.Unlock()

	if p.stop != nil {
		close(p.stop)
		<-p.done
	}

	var err error
	for _, s := range idle {
		err = multierr.Append(err, s.handle.Close())
		p.metrics.SessionEvent("destroyed")
	}
	return err
}

func (p *Pool) removeLocked(s *Session) {
	delete(p.sessions, s.ID)
	for i, other := range p.idle {
		if other == s {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			break
		}
	}
	s.state = StateUnhealthy
	p.broadcastLocked()
	p.gaugesLocked()
}

func (p *Pool) closeHandle(s *Session, event string) {
	if err := s.handle.Close(); err != nil {
		p.logger.Debug("failed to close session", zap.String("session_id", s.ID), zap.Error(err))
	}
	p.metrics.SessionEvent(event)
}

// broadcastLocked wakes every waiter in Acquire.
func (p *Pool) broadcastLocked() {
	close(p.notify)
	p.notify = make(chan struct{})
}

func (p *Pool) gaugesLocked() {
	p.metrics.SetSessions(len(p.idle), len(p.sessions)-len(p.idle))
}
