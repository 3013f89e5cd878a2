//go:build !linux

package v4l2

import (
	"errors"
	"time"

	"github.com/cjeanneret/DroneEye/internal/hw/stream"
)

// Options configures the requested capture format.
type Options struct {
	Width       uint32
	Height      uint32
	ReadTimeout time.Duration
}

// ErrUnsupported is returned on platforms without Video4Linux2.
var ErrUnsupported = errors.New("v4l2: only available on linux")

// Opener returns a stream.OpenFunc that always fails off Linux.
func Opener(opts Options) stream.OpenFunc {
	return func(address string) (stream.Capture, error) {
		return nil, ErrUnsupported
	}
}
