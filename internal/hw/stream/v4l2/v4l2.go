//go:build linux

// Package v4l2 captures MJPEG frames from a local Video4Linux2 device
// (USB camera, capture dongle fed by the drone's analog video link).
package v4l2

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blackjack/webcam"

	"github.com/cjeanneret/DroneEye/internal/debug"
	"github.com/cjeanneret/DroneEye/internal/hw/stream"
	"github.com/cjeanneret/DroneEye/internal/logic/framebuf"
)

// formatMJPEG is the V4L2 fourcc 'MJPG'.
const formatMJPEG webcam.PixelFormat = 0x47504A4D

// Options configures the requested capture format.
type Options struct {
	Width       uint32
	Height      uint32
	ReadTimeout time.Duration // how long Read waits for the driver
}

// Capture is an open, streaming V4L2 device.
type Capture struct {
	mu      sync.Mutex
	cam     *webcam.Webcam
	width   int
	height  int
	timeout uint32 // seconds, as expected by WaitForFrame
}

// Opener returns a stream.OpenFunc bound to opts.
func Opener(opts Options) stream.OpenFunc {
	return func(address string) (stream.Capture, error) {
		return Open(address, opts)
	}
}

// Open opens the device at path (e.g. /dev/video0) and starts streaming.
func Open(path string, opts Options) (*Capture, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, fmt.Errorf("v4l2: open %s: %w", path, err)
	}

	formats := cam.GetSupportedFormats()
	if _, ok := formats[formatMJPEG]; !ok {
		cam.Close()
		return nil, fmt.Errorf("v4l2: %s does not support MJPEG", path)
	}

	_, w, h, err := cam.SetImageFormat(formatMJPEG, opts.Width, opts.Height)
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("v4l2: set format %dx%d: %w", opts.Width, opts.Height, err)
	}
	debug.Verbose("V4L2 %s: MJPEG %dx%d (requested %dx%d)", path, w, h, opts.Width, opts.Height)

	if err := cam.SetBufferCount(2); err != nil {
		debug.Verbose("V4L2 %s: SetBufferCount: %v", path, err)
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("v4l2: start streaming: %w", err)
	}

	timeout := uint32(opts.ReadTimeout / time.Second)
	if timeout == 0 {
		timeout = 1
	}

	return &Capture{cam: cam, width: int(w), height: int(h), timeout: timeout}, nil
}

var _ stream.Capture = (*Capture)(nil)

// IsOpen reports whether the device is still streaming.
func (c *Capture) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cam != nil
}

// Read waits for the next MJPEG frame and copies it out of the mmap buffer.
func (c *Capture) Read() (framebuf.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cam == nil {
		return framebuf.Image{}, false
	}

	err := c.cam.WaitForFrame(c.timeout)
	var timeoutErr *webcam.Timeout
	if errors.As(err, &timeoutErr) {
		debug.Live("V4L2: timeout waiting for frame")
		return framebuf.Image{}, false
	}
	if err != nil {
		debug.Live("V4L2: wait for frame: %v", err)
		return framebuf.Image{}, false
	}

	data, err := c.cam.ReadFrame()
	if err != nil || len(data) == 0 {
		return framebuf.Image{}, false
	}
	frame := make([]byte, len(data))
	copy(frame, data)

	return framebuf.Image{
		Width:  c.width,
		Height: c.height,
		Format: framebuf.FormatJPEG,
		Data:   frame,
	}, true
}

// Close stops streaming and closes the device.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cam == nil {
		return nil
	}
	_ = c.cam.StopStreaming()
	err := c.cam.Close()
	c.cam = nil
	return err
}
