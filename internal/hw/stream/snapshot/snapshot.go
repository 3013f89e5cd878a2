// Package snapshot follows a JPEG file that an external grabber keeps
// overwriting (for example `ffmpeg -i rtsp://... -update 1 latest.jpg`).
// Every complete rewrite of the file counts as one new frame.
package snapshot

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cjeanneret/DroneEye/internal/debug"
	"github.com/cjeanneret/DroneEye/internal/hw/stream"
	"github.com/cjeanneret/DroneEye/internal/logic/framebuf"
)

// DefaultReadTimeout bounds how long Read waits for a new version of the file.
const DefaultReadTimeout = time.Second

// Capture watches one file.
type Capture struct {
	path    string
	timeout time.Duration
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	img     framebuf.Image
	version uint64 // bumped on every complete JPEG loaded
	seen    uint64 // last version handed out by Read
	closed  bool

	updated chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// Opener returns a stream.OpenFunc using timeout for reads.
func Opener(timeout time.Duration) stream.OpenFunc {
	return func(address string) (stream.Capture, error) {
		return Open(address, timeout)
	}
}

// Open starts watching path. The file may not exist yet, but its
// directory must.
func Open(path string, timeout time.Duration) (*Capture, error) {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	path = filepath.Clean(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("snapshot: new watcher: %w", err)
	}
	// Watch the directory: grabbers often replace the file via rename,
	// which drops a watch placed on the file itself.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("snapshot: watch %s: %w", filepath.Dir(path), err)
	}

	c := &Capture{
		path:    path,
		timeout: timeout,
		watcher: w,
		updated: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	c.load()

	c.wg.Add(1)
	go c.watch()

	debug.Verbose("Snapshot capture watching %s", path)
	return c, nil
}

var _ stream.Capture = (*Capture)(nil)

func (c *Capture) watch() {
	defer c.wg.Done()
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != c.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				c.load()
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			debug.Live("Snapshot watcher: %v", err)
		case <-c.done:
			return
		}
	}
}

// load reads the file and publishes it if it is a complete JPEG.
func (c *Capture) load() {
	data, err := os.ReadFile(c.path)
	if err != nil || !completeJPEG(data) {
		return
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return
	}

	c.mu.Lock()
	c.img = framebuf.Image{Width: cfg.Width, Height: cfg.Height, Format: framebuf.FormatJPEG, Data: data}
	c.version++
	c.mu.Unlock()

	select {
	case c.updated <- struct{}{}:
	default:
	}
}

// completeJPEG checks the SOI and EOI markers so half-written files are ignored.
func completeJPEG(data []byte) bool {
	n := len(data)
	return n >= 4 && data[0] == 0xFF && data[1] == 0xD8 && data[n-2] == 0xFF && data[n-1] == 0xD9
}

// IsOpen reports whether the watcher is running.
func (c *Capture) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Read returns the next unseen version of the file, waiting up to the
// read timeout for one to appear.
func (c *Capture) Read() (framebuf.Image, bool) {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return framebuf.Image{}, false
		}
		if c.version > c.seen {
			c.seen = c.version
			img := c.img
			c.mu.Unlock()
			return img, true
		}
		c.mu.Unlock()

		select {
		case <-c.updated:
		case <-timer.C:
			return framebuf.Image{}, false
		case <-c.done:
			return framebuf.Image{}, false
		}
	}
}

// Close stops the watcher.
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	err := c.watcher.Close()
	c.wg.Wait()
	return err
}
