// Package opencv captures frames through OpenCV's VideoCapture, which
// handles RTSP/HTTP stream URLs as well as local device indexes.
package opencv

import (
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/cjeanneret/DroneEye/internal/debug"
	"github.com/cjeanneret/DroneEye/internal/hw/stream"
	"github.com/cjeanneret/DroneEye/internal/logic/framebuf"
)

// Capture wraps a gocv.VideoCapture and a reusable Mat.
type Capture struct {
	mu  sync.Mutex
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// Open opens a stream URL, a file path, or a device index ("0", "1", ...).
func Open(address string) (stream.Capture, error) {
	var source interface{} = address
	if id, err := strconv.Atoi(address); err == nil {
		source = id
	}

	vc, err := gocv.OpenVideoCapture(source)
	if err != nil {
		// gocv hands back the native handle even on failure
		if vc != nil {
			vc.Close()
		}
		return nil, fmt.Errorf("opencv: open %s: %w", address, err)
	}
	// Keep only the newest decoded frame queued; older ones are stale.
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	debug.Verbose("OpenCV capture opened: %s (%.0fx%.0f @ %.1f fps)",
		address,
		vc.Get(gocv.VideoCaptureFrameWidth),
		vc.Get(gocv.VideoCaptureFrameHeight),
		vc.Get(gocv.VideoCaptureFPS))

	return &Capture{vc: vc, mat: gocv.NewMat()}, nil
}

var _ stream.Capture = (*Capture)(nil)

// IsOpen reports whether the underlying VideoCapture is opened.
func (c *Capture) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vc != nil && c.vc.IsOpened()
}

// Read grabs and decodes one frame as BGR24.
func (c *Capture) Read() (framebuf.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return framebuf.Image{}, false
	}
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return framebuf.Image{}, false
	}
	if c.mat.Type() != gocv.MatTypeCV8UC3 {
		debug.Live("OpenCV: unexpected mat type %v, frame skipped", c.mat.Type())
		return framebuf.Image{}, false
	}

	// ToBytes copies out of the Mat, so the frame owns its pixels.
	return framebuf.Image{
		Width:  c.mat.Cols(),
		Height: c.mat.Rows(),
		Format: framebuf.FormatBGR24,
		Data:   c.mat.ToBytes(),
	}, true
}

// Close releases the Mat and the VideoCapture.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return nil
	}
	err := c.vc.Close()
	c.vc = nil
	if cerr := c.mat.Close(); err == nil {
		err = cerr
	}
	return err
}
