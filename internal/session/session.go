// Package session manages stateful rendering sessions.
package session

import "context"

// Session is one live handle into the rendering engine, typically a browser
// tab. A session is not safe for concurrent use; callers get exclusive access
// through Pool.WithSession.
type Session interface {
	// Navigate loads url and waits for it to finish loading.
	Navigate(ctx context.Context, url string) error

	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error

	// Focus focuses the first element matching selector.
	Focus(ctx context.Context, selector string) error

	// Fill replaces the value of the input matching selector and notifies the
	// page as if the user had typed it.
	Fill(ctx context.Context, selector, value string) error

	// Screenshot returns a PNG of a width x height region anchored at the
	// top-left corner of the element matching selector.
	Screenshot(ctx context.Context, selector string, width, height int) ([]byte, error)

	// Close releases the session. It is called once.
	Close() error
}

// Engine creates sessions against one running rendering backend.
type Engine interface {
	NewSession(ctx context.Context) (Session, error)
}
