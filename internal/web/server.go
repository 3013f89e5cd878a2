package web

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/cjeanneret/DroneEye/internal/debug"
	"github.com/cjeanneret/DroneEye/internal/logic/sampling"
)

// Options configures NewServer.
type Options struct {
	Addr        string
	JPEGQuality int
	FPS         float64 // hub poll rate, usually the sampling rate
}

// Server wraps the HTTP server, its handlers and the frame hub.
type Server struct {
	addr     string
	handlers *Handlers
	hub      *FrameHub
}

// NewServer creates a server for the given controller.
func NewServer(opts Options, broadcaster *StatusBroadcaster, v Vision) (*Server, error) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, err
	}
	hub := NewFrameHub(v.LatestFrame, opts.JPEGQuality, sampling.Interval(opts.FPS))
	return &Server{
		addr:     opts.Addr,
		handlers: NewHandlers(broadcaster, v, hub, opts.JPEGQuality, subFS),
		hub:      hub,
	}, nil
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", s.handlers.HandleStatus)
	mux.HandleFunc("GET /status/stream", s.handlers.HandleStatusStream)
	mux.HandleFunc("GET /frame", s.handlers.HandleFrame)
	mux.HandleFunc("GET /stream", s.handlers.HandleStream)
	mux.HandleFunc("GET /ws", s.handlers.HandleWS)
	mux.HandleFunc("POST /start", s.handlers.HandleStart)
	mux.HandleFunc("POST /stop", s.handlers.HandleStop)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.handlers.staticFS))))
	mux.HandleFunc("GET /{$}", s.handlers.ServeIndex) // exact match for root only

	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully. The
// frame hub runs for the same lifetime.
func (s *Server) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
		// streaming handlers watch r.Context(); tie it to ctx so they
		// return on shutdown instead of holding connections open
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("Web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
