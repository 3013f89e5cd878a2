package sampling

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/DroneEye/internal/debug"
	"github.com/cjeanneret/DroneEye/internal/logic/framebuf"
)

// Source is the read side of an open stream handle.
type Source interface {
	Read() (framebuf.Image, bool)
}

// Sink receives captured frames. *framebuf.Ring implements it.
type Sink interface {
	Write(f framebuf.Frame) int
}

// Config holds the loop parameters.
type Config struct {
	FPS               float64 // target sampling rate, > 0
	WarnAfterFailures int     // log a warning every N consecutive failed reads; 0 = never

	// OnFrame, if set, is called from the loop goroutine after each write.
	OnFrame func(f framebuf.Frame)
}

// Stats is a point-in-time view of the loop counters.
type Stats struct {
	Captured    uint64 // successful reads written to the sink
	Failed      uint64 // reads that did not succeed
	Consecutive uint64 // current run of failed reads
	LastSeq     uint64 // sequence number of the last written frame
}

// Loop reads one frame per tick from a Source and writes it to a Sink.
// Exactly one goroutine may call Run; it is the sink's only writer.
type Loop struct {
	src      Source
	sink     Sink
	cfg      Config
	interval time.Duration

	seq         atomic.Uint64
	captured    atomic.Uint64
	failed      atomic.Uint64
	consecutive atomic.Uint64
}

// New creates a loop. cfg.FPS must be positive.
func New(src Source, sink Sink, cfg Config) *Loop {
	return &Loop{
		src:      src,
		sink:     sink,
		cfg:      cfg,
		interval: Interval(cfg.FPS),
	}
}

// Interval converts a rate into the sleep between two iterations.
func Interval(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}

// Run samples until ctx is cancelled. Cancellation is checked between
// iterations and during the wait; a read already in progress finishes
// (or hits the backend timeout) first.
func (l *Loop) Run(ctx context.Context) {
	debug.Info("Sampling loop started (%.1f fps, interval %v)", l.cfg.FPS, l.interval)
	defer debug.Info("Sampling loop stopped")

	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		l.step()

		timer.Reset(l.interval)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// step performs one read and, on success, one write.
func (l *Loop) step() {
	img, ok := l.src.Read()
	if !ok {
		l.failed.Add(1)
		n := l.consecutive.Add(1)
		debug.Live("Read failed (%d in a row), keeping previous frame", n)
		if w := l.cfg.WarnAfterFailures; w > 0 && n%uint64(w) == 0 {
			debug.Warn("%d consecutive failed reads from stream", n)
		}
		return
	}

	l.consecutive.Store(0)
	f := framebuf.Frame{
		Image:      img,
		Valid:      true,
		Seq:        l.seq.Add(1),
		CapturedAt: time.Now(),
	}
	slot := l.sink.Write(f)
	l.captured.Add(1)
	debug.Frame(f.Seq, slot)

	if l.cfg.OnFrame != nil {
		l.cfg.OnFrame(f)
	}
}

// Stats returns the current counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Captured:    l.captured.Load(),
		Failed:      l.failed.Load(),
		Consecutive: l.consecutive.Load(),
		LastSeq:     l.seq.Load(),
	}
}
