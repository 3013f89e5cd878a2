package web

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/DroneEye/internal/debug"
	"github.com/cjeanneret/DroneEye/internal/logic/framebuf"
)

// EncodedFrame is a captured frame already compressed to JPEG, shared
// read-only by every stream client.
type EncodedFrame struct {
	Seq        uint64    `json:"seq"`
	CapturedAt time.Time `json:"captured_at"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Size       int       `json:"size"`
	JPEG       []byte    `json:"-"`
}

// FrameHub polls a frame source and encodes each new frame once, then
// hands it to all /stream and /ws clients. Clients keep at most one
// pending frame: a slow client skips frames instead of queueing them.
type FrameHub struct {
	latest   func() framebuf.Frame
	quality  int
	interval time.Duration

	mu      sync.RWMutex
	subs    map[chan EncodedFrame]struct{}
	last    EncodedFrame
	lastSeq uint64
}

// NewFrameHub polls latest every interval and encodes with the given
// JPEG quality.
func NewFrameHub(latest func() framebuf.Frame, quality int, interval time.Duration) *FrameHub {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &FrameHub{
		latest:   latest,
		quality:  quality,
		interval: interval,
		subs:     make(map[chan EncodedFrame]struct{}),
	}
}

// Run polls until ctx is cancelled.
func (h *FrameHub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.poll()
		}
	}
}

// poll publishes the current frame if its sequence advanced. It reports
// whether a frame was published.
func (h *FrameHub) poll() bool {
	f := h.latest()
	if !f.Valid {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if f.Seq == h.lastSeq {
		return false
	}
	h.lastSeq = f.Seq

	data, err := f.Image.JPEG(h.quality)
	if err != nil {
		debug.Error(fmt.Errorf("encode frame %d: %w", f.Seq, err))
		return false
	}
	h.last = EncodedFrame{
		Seq:        f.Seq,
		CapturedAt: f.CapturedAt,
		Width:      f.Image.Width,
		Height:     f.Image.Height,
		Size:       len(data),
		JPEG:       data,
	}
	for ch := range h.subs {
		select {
		case <-ch:
		default:
		}
		ch <- h.last
	}
	debug.Trace("hub: published frame %d to %d clients", f.Seq, len(h.subs))
	return true
}

// Latest returns the most recently published frame.
func (h *FrameHub) Latest() (EncodedFrame, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last, h.last.Seq != 0
}

// Subscribe registers a client. The latest published frame, if any, is
// delivered first. The cancel func is idempotent.
func (h *FrameHub) Subscribe() (<-chan EncodedFrame, func()) {
	ch := make(chan EncodedFrame, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	if h.last.Seq != 0 {
		ch <- h.last
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
}

// Clients returns the number of subscribed stream clients.
func (h *FrameHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
