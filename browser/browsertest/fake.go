// Package browsertest provides an in-memory rendering engine for tests.
package browsertest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"lunchmind/browser"
)

var ErrClosed = errors.New("browsertest: handle closed")

// LoadFunc renders url. It runs on the caller's goroutine.
type LoadFunc func(ctx context.Context, url string) (browser.Page, error)

// Launcher hands out fake handles. Zero value is usable and returns empty
// pages.
type Launcher struct {
	OnLoad    LoadFunc
	LaunchErr error
	ResetErr  error
	PingErr   error
	// LoadDelay is waited before OnLoad, respecting ctx.
	LoadDelay time.Duration

	launched atomic.Int32
	closed   atomic.Int32

	mu      sync.Mutex
	handles []*Handle
}

func (l *Launcher) Launch(ctx context.Context) (browser.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	l.launched.Add(1)
	h := &Handle{l: l}
	l.mu.Lock()
	l.handles = append(l.handles, h)
	l.mu.Unlock()
	return h, nil
}

// Launched is the number of handles created so far.
func (l *Launcher) Launched() int { return int(l.launched.Load()) }

// Closed is the number of handles closed so far.
func (l *Launcher) Closed() int { return int(l.closed.Load()) }

func (l *Launcher) Handles() []*Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Handle(nil), l.handles...)
}

type Handle struct {
	l      *Launcher
	closed atomic.Bool
	loads  atomic.Int32
	resets atomic.Int32

	mu   sync.Mutex
	urls []string
}

func (h *Handle) Load(ctx context.Context, url string) (browser.Page, error) {
	if h.closed.Load() {
		return browser.Page{}, ErrClosed
	}
	h.loads.Add(1)
	h.mu.Lock()
	h.urls = append(h.urls, url)
	h.mu.Unlock()

	if h.l.LoadDelay > 0 {
		t := time.NewTimer(h.l.LoadDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return browser.Page{}, ctx.Err()
		}
	}
	if h.l.OnLoad == nil {
		return browser.Page{URL: url, HTML: "<html><body></body></html>"}, nil
	}
	return h.l.OnLoad(ctx, url)
}

func (h *Handle) Reset(context.Context) error {
	if h.closed.Load() {
		return ErrClosed
	}
	h.resets.Add(1)
	return h.l.ResetErr
}

func (h *Handle) Ping(context.Context) error {
	if h.closed.Load() {
		return ErrClosed
	}
	return h.l.PingErr
}

func (h *Handle) Close() error {
	if h.closed.CompareAndSwap(false, true) {
		h.l.closed.Add(1)
	}
	return nil
}

func (h *Handle) IsClosed() bool { return h.closed.Load() }
func (h *Handle) Loads() int     { return int(h.loads.Load()) }
func (h *Handle) Resets() int    { return int(h.resets.Load()) }

// URLs returns every url loaded through this handle, in order.
func (h *Handle) URLs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.urls...)
}
