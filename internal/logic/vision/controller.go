// Package vision is the public facade of the frame-acquisition subsystem.
//
// A Controller connects to a stream, runs one background sampling loop
// and hands out the most recent frame without ever blocking on the
// producer. Its lifecycle is
//
//	Created -> Opened -> Running -> Stopped
//
// and Stopped is terminal: a controller is not restarted, a new one is
// created instead.
package vision

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cjeanneret/DroneEye/internal/debug"
	"github.com/cjeanneret/DroneEye/internal/hw/indicator"
	"github.com/cjeanneret/DroneEye/internal/hw/stream"
	"github.com/cjeanneret/DroneEye/internal/logic/framebuf"
	"github.com/cjeanneret/DroneEye/internal/logic/sampling"
)

// State is the controller lifecycle state.
type State int

const (
	StateCreated State = iota
	StateOpened
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOpened:
		return "opened"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options are fixed at construction time.
type Options struct {
	Address           string  // stream address passed to the OpenFunc
	FPS               float64 // target sampling rate, > 0
	Capacity          int     // ring depth, >= 1
	WarnAfterFailures int     // see sampling.Config

	// Indicator is optional; nil means no status light.
	Indicator indicator.Indicator
}

// Stats summarises the controller for status reporting.
type Stats struct {
	ID       string
	State    string
	Address  string
	FPS      float64
	Capacity int
	Buffered int
	sampling.Stats
}

// Controller composes connector, ring buffer and sampling loop.
type Controller struct {
	id        string
	opts      Options
	connector *stream.Connector
	ring      *framebuf.Ring
	led       indicator.Indicator

	mu     sync.Mutex
	state  State
	loop   *sampling.Loop
	cancel context.CancelFunc
	done   chan struct{} // closed when the sampling goroutine exits
	closed bool
}

// New validates opts and builds a controller in state Created.
// open is the capture backend used by Open.
func New(opts Options, open stream.OpenFunc) (*Controller, error) {
	if !(opts.FPS > 0) {
		return nil, fmt.Errorf("%w: fps must be > 0, got %v", ErrInvalidOptions, opts.FPS)
	}
	if opts.Capacity < 1 {
		return nil, fmt.Errorf("%w: capacity must be >= 1, got %d", ErrInvalidOptions, opts.Capacity)
	}
	if open == nil {
		return nil, fmt.Errorf("%w: nil open function", ErrInvalidOptions)
	}

	led := opts.Indicator
	if led == nil {
		led = indicator.Nop{}
	}

	return &Controller{
		id:        uuid.NewString(),
		opts:      opts,
		connector: stream.NewConnector(open),
		ring:      framebuf.NewRing(opts.Capacity),
		led:       led,
	}, nil
}

// ID returns the unique identifier of this controller instance.
func (c *Controller) ID() string {
	return c.id
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open connects to the stream with at most maxRetries attempts. It does
// not start sampling. Calling Open again before Start re-opens the stream.
// The returned error is a *stream.ConnectionError when the budget runs out.
func (c *Controller) Open(maxRetries int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateCreated && c.state != StateOpened {
		return &UsageError{Op: "open", State: c.state}
	}

	if _, err := c.connector.Open(c.opts.Address, maxRetries); err != nil {
		c.state = StateCreated
		return err
	}
	c.state = StateOpened
	debug.Info("Controller %s: stream open", c.id)
	return nil
}

// IsOpen reports whether the connection handle is open.
func (c *Controller) IsOpen() bool {
	return c.connector.IsOpen()
}

// Start launches the sampling loop. It requires state Opened; starting
// twice, before Open, or after Stop returns a *UsageError and never
// spawns a second producer.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpened {
		return &UsageError{Op: "start", State: c.state}
	}
	handle := c.connector.Handle()
	if handle == nil || !handle.IsOpen() {
		return &UsageError{Op: "start", State: c.state}
	}

	c.loop = sampling.New(handle, c.ring, sampling.Config{
		FPS:               c.opts.FPS,
		WarnAfterFailures: c.opts.WarnAfterFailures,
		OnFrame: func(framebuf.Frame) {
			_ = c.led.Toggle()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state = StateRunning

	if err := c.led.On(); err != nil {
		debug.Error(fmt.Errorf("indicator on: %w", err))
	}

	go func(loop *sampling.Loop, done chan struct{}) {
		defer close(done)
		loop.Run(ctx)
	}(c.loop, c.done)

	debug.Info("Controller %s: sampling started", c.id)
	return nil
}

// LatestFrame returns the newest frame without waiting for the producer.
// Before the first capture it returns the empty sentinel (Valid == false).
func (c *Controller) LatestFrame() framebuf.Frame {
	return c.ring.ReadLatest()
}

// Buffered returns the number of valid frames held in the ring.
func (c *Controller) Buffered() int {
	return c.ring.Len()
}

// Stop asks the sampling loop to exit after its current iteration and
// returns immediately. It never fails and may be called in any state;
// the controller cannot be started again afterwards. Use Wait to block
// until the loop has exited.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStopped {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.state = StateStopped
	debug.Info("Controller %s: stop requested", c.id)
}

// Wait blocks until the sampling goroutine has exited or ctx is done.
// It returns immediately if sampling was never started.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops sampling, waits for the loop to exit, then releases the
// connection handle and switches the indicator off. It is safe to call
// in any state and more than once. Close waits without limit; use
// CloseContext to bound the wait.
func (c *Controller) Close() error {
	return c.CloseContext(context.Background())
}

// CloseContext is Close with a bounded wait. If ctx ends while the loop
// is still inside a read, it returns ctx.Err() and leaves the handle
// open: the producer still owns it. A later Close can finish the job.
func (c *Controller) CloseContext(ctx context.Context) error {
	c.Stop()
	if err := c.Wait(ctx); err != nil {
		debug.Warn("Controller %s: sampling loop still running, stream left open: %v", c.id, err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.led.Off(); err != nil {
		debug.Error(fmt.Errorf("indicator off: %w", err))
	}
	if err := c.connector.Close(); err != nil {
		return err
	}
	debug.Info("Controller %s: closed", c.id)
	return nil
}

// Stats returns a snapshot of the controller state and loop counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	state := c.state
	loop := c.loop
	c.mu.Unlock()

	st := Stats{
		ID:       c.id,
		State:    state.String(),
		Address:  c.opts.Address,
		FPS:      c.opts.FPS,
		Capacity: c.ring.Capacity(),
		Buffered: c.ring.Len(),
	}
	if loop != nil {
		st.Stats = loop.Stats()
	}
	return st
}
