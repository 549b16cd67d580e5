package browser

import "context"

// Page is the state of a tab after a navigation settled.
type Page struct {
	URL   string
	Title string
	HTML  string
}

// Handle drives one rendering engine instance.
type Handle interface {
	// Load navigates to url and returns the rendered document.
	Load(ctx context.Context, url string) (Page, error)
	// Reset clears navigation and cookie state so the handle can be lent again.
	Reset(ctx context.Context) error
	// Ping is a cheap liveness probe.
	Ping(ctx context.Context) error
	Close() error
}

// Launcher starts rendering engines.
type Launcher interface {
	Launch(ctx context.Context) (Handle, error)
}
