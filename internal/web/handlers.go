package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"github.com/cjeanneret/DroneEye/internal/debug"
	"github.com/cjeanneret/DroneEye/internal/logic/framebuf"
	"github.com/cjeanneret/DroneEye/internal/logic/vision"
)

const mjpegBoundary = "frame"

// Vision is the part of *vision.Controller the HTTP surface consumes.
type Vision interface {
	LatestFrame() framebuf.Frame
	Start() error
	Stop()
	Stats() vision.Stats
}

// StatusResponse is the body of GET /status and of POST /start|/stop.
type StatusResponse struct {
	ID          string  `json:"id"`
	State       string  `json:"state"`
	Address     string  `json:"address"`
	FPS         float64 `json:"fps"`
	Capacity    int     `json:"capacity"`
	Buffered    int     `json:"buffered"`
	Captured    uint64  `json:"captured"`
	Failed      uint64  `json:"failed"`
	Consecutive uint64  `json:"consecutive_failures"`
	LatestSeq   uint64  `json:"latest_seq"`
	Clients     int     `json:"stream_clients"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Vision      Vision
	Frames      *FrameHub
	JPEGQuality int
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, v Vision, frames *FrameHub, jpegQuality int, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Vision:      v,
		Frames:      frames,
		JPEGQuality: jpegQuality,
		staticFS:    staticFS,
	}
}

func (h *Handlers) status() StatusResponse {
	st := h.Vision.Stats()
	resp := StatusResponse{
		ID:          st.ID,
		State:       st.State,
		Address:     st.Address,
		FPS:         st.FPS,
		Capacity:    st.Capacity,
		Buffered:    st.Buffered,
		Captured:    st.Captured,
		Failed:      st.Failed,
		Consecutive: st.Consecutive,
		LatestSeq:   st.LastSeq,
	}
	if h.Frames != nil {
		resp.Clients = h.Frames.Clients()
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStatus handles GET /status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status())
}

// HandleFrame handles GET /frame: the latest frame as a JPEG image.
func (h *Handlers) HandleFrame(w http.ResponseWriter, r *http.Request) {
	f := h.Vision.LatestFrame()
	if !f.Valid {
		http.Error(w, "no frame captured yet", http.StatusServiceUnavailable)
		return
	}
	data, err := f.Image.JPEG(h.JPEGQuality)
	if err != nil {
		debug.Error(fmt.Errorf("encode frame %d: %w", f.Seq, err))
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Sequence", strconv.FormatUint(f.Seq, 10))
	w.Header().Set("X-Frame-Captured-At", f.CapturedAt.Format(time.RFC3339Nano))
	w.Write(data)
}

// HandleStream handles GET /stream as MJPEG (multipart/x-mixed-replace).
// A part is written only when a new frame has been published.
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "close")

	mw := multipart.NewWriter(w)
	mw.SetBoundary(mjpegBoundary)

	frames, unsub := h.Frames.Subscribe()
	defer unsub()

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return
			}
			if err := writeJPEGPart(mw, f); err != nil {
				debug.Verbose("stream client gone: %v", err)
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeJPEGPart(mw *multipart.Writer, f EncodedFrame) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", "image/jpeg")
	header.Set("Content-Length", strconv.Itoa(len(f.JPEG)))
	header.Set("X-Frame-Sequence", strconv.FormatUint(f.Seq, 10))
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write(f.JPEG)
	return err
}

// HandleStart handles POST /start.
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	if err := h.Vision.Start(); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, vision.ErrUsage) {
			code = http.StatusConflict
		}
		http.Error(w, err.Error(), code)
		return
	}
	h.Broadcaster.BroadcastMsg("Sampling started")
	writeJSON(w, http.StatusOK, h.status())
}

// HandleStop handles POST /stop. Stopping is terminal for the controller.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.Vision.Stop()
	h.Broadcaster.BroadcastMsg("Sampling stopped")
	writeJSON(w, http.StatusOK, h.status())
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()
		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
