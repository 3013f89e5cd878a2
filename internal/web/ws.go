package web

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cjeanneret/DroneEye/internal/debug"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 << 10,
	CheckOrigin: func(r *http.Request) bool {
		return true // LAN tool, the page may be served from another host
	},
}

// wsFrameMeta precedes every binary JPEG message on /ws.
type wsFrameMeta struct {
	Type   string `json:"type"`
	Client string `json:"client"`
	EncodedFrame
}

// HandleWS handles GET /ws. For each new frame the client receives a JSON
// text message with the frame metadata, then the JPEG as a binary message.
// Messages sent by the client are read and discarded.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Verbose("ws upgrade: %v", err)
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	debug.Info("ws client %s connected from %s", id, r.RemoteAddr)
	defer debug.Info("ws client %s disconnected", id)

	frames, unsub := h.Frames.Subscribe()
	defer unsub()

	// Reader goroutine: detects close frames and dead peers.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(wsFrameMeta{Type: "frame", Client: id, EncodedFrame: f}); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, f.JPEG); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
