// Package stream opens video sources and keeps the connection handle.
//
// Concrete backends (OpenCV, V4L2, snapshot file) live in sub-packages and
// are plugged in through an OpenFunc, so the connector and everything above
// it can run against a fake source in tests.
package stream

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/DroneEye/internal/debug"
	"github.com/cjeanneret/DroneEye/internal/logic/framebuf"
)

// Capture is an open video source.
type Capture interface {
	// IsOpen reports whether the source is usable.
	IsOpen() bool
	// Read blocks until one frame is available (or the backend's own
	// timeout expires). ok is false when the read did not succeed.
	Read() (img framebuf.Image, ok bool)
	// Close releases the underlying device or network resource.
	Close() error
}

// OpenFunc opens the source named by address.
// A nil error with a Capture that is not open counts as a failed attempt.
type OpenFunc func(address string) (Capture, error)

// ConnectionError is returned when the retry budget is exhausted.
type ConnectionError struct {
	Address  string
	Attempts int
	Err      error // last backend error, may be nil
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("open stream %s: failed after %d attempt(s): %v", e.Address, e.Attempts, e.Err)
	}
	return fmt.Sprintf("open stream %s: failed after %d attempt(s)", e.Address, e.Attempts)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Connector owns the connection handle for one controller.
type Connector struct {
	open OpenFunc

	mu     sync.Mutex
	handle Capture
}

// NewConnector creates a connector that opens sources with fn.
func NewConnector(fn OpenFunc) *Connector {
	return &Connector{open: fn}
}

// Open tries to open address once, then retries immediately up to
// maxRetries-1 more times. maxRetries below 1 is treated as 1.
// A previously open handle is closed first.
func (c *Connector) Open(address string, maxRetries int) (Capture, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle != nil {
		debug.Verbose("Closing previous stream handle before re-opening")
		_ = c.handle.Close()
		c.handle = nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		debug.Attempt(attempt, maxRetries, address)

		h, err := c.open(address)
		if err == nil && h != nil && h.IsOpen() {
			c.handle = h
			debug.Info("Stream %s opened", address)
			return h, nil
		}
		if h != nil {
			_ = h.Close()
		}
		if err != nil {
			lastErr = err
			debug.Verbose("Attempt %d failed: %v", attempt, err)
		}
	}

	connErr := &ConnectionError{Address: address, Attempts: maxRetries, Err: lastErr}
	debug.Error(connErr)
	return nil, connErr
}

// Handle returns the open handle, or nil.
func (c *Connector) Handle() Capture {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// IsOpen reports whether the connector holds an open handle.
func (c *Connector) IsOpen() bool {
	h := c.Handle()
	return h != nil && h.IsOpen()
}

// Close releases the handle. Calling Close without a handle is a no-op.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle == nil {
		return nil
	}
	err := c.handle.Close()
	c.handle = nil
	if err != nil {
		return fmt.Errorf("close stream: %w", err)
	}
	return nil
}
