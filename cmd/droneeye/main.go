package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cjeanneret/DroneEye/internal/config"
	"github.com/cjeanneret/DroneEye/internal/debug"
	"github.com/cjeanneret/DroneEye/internal/hw/gpio"
	"github.com/cjeanneret/DroneEye/internal/hw/indicator"
	"github.com/cjeanneret/DroneEye/internal/hw/stream"
	"github.com/cjeanneret/DroneEye/internal/hw/stream/opencv"
	"github.com/cjeanneret/DroneEye/internal/hw/stream/snapshot"
	"github.com/cjeanneret/DroneEye/internal/hw/stream/v4l2"
	"github.com/cjeanneret/DroneEye/internal/logic/vision"
	"github.com/cjeanneret/DroneEye/internal/web"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	fps := flag.Float64("fps", 0, "override sampling rate in frames per second (0-60]")
	bufferSize := flag.Int("buffer_size", 0, "override frame buffer depth (1-1000)")
	maxRetries := flag.Int("max_retries", 0, "override stream open attempts (1-100)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Zero means "use config value"
	overrides := cliOverrides{FPS: *fps, BufferSize: *bufferSize, MaxRetries: *maxRetries}
	if err := validateCLIOverrides(overrides); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, overrides)

	var broadcaster *web.StatusBroadcaster
	debug.Init(cfg.Defaults.DebugLevel)
	if webPort.port() > 0 {
		broadcaster = web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	}
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.PrintStruct("Stream config", cfg.Stream)
	debug.PrintStruct("Sampling config", cfg.Sampling)

	debug.Step(1, "Initializing GPIO driver")
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()
	led := newIndicatorFromConfig(gpioDriver, cfg)

	debug.Step(2, "Selecting capture backend")
	open, err := newOpenerFromConfig(cfg)
	if err != nil {
		log.Fatalf("init capture backend failed: %v", err)
	}
	debug.Value("Source", cfg.Stream.Source)
	debug.Value("Address", cfg.Stream.Address)

	ctl, err := vision.New(vision.Options{
		Address:           cfg.Stream.Address,
		FPS:               cfg.Sampling.FPS,
		Capacity:          cfg.Sampling.BufferSize,
		WarnAfterFailures: cfg.WarnAfter(),
		Indicator:         led,
	}, open)
	if err != nil {
		log.Fatalf("create controller failed: %v", err)
	}

	debug.Step(3, "Opening stream")
	if err := ctl.Open(cfg.Stream.MaxRetries); err != nil {
		var connErr *stream.ConnectionError
		if errors.As(err, &connErr) {
			log.Fatalf("stream unavailable at %s after %d attempts: %v", connErr.Address, connErr.Attempts, connErr.Err)
		}
		log.Fatalf("open stream failed: %v", err)
	}

	debug.Step(4, "Starting sampling")
	if err := ctl.Start(); err != nil {
		ctl.Close()
		log.Fatalf("start sampling failed: %v", err)
	}

	if port := webPort.port(); port > 0 {
		srv, err := web.NewServer(web.Options{
			Addr:        fmt.Sprintf(":%d", port),
			JPEGQuality: cfg.Web.JPEGQuality,
			FPS:         cfg.Sampling.FPS,
		}, broadcaster, ctl)
		if err != nil {
			shutdown(ctl)
			log.Fatalf("web server: %v", err)
		}
		if err := srv.Run(ctx); err != nil {
			log.Printf("web server: %v", err)
		}
	} else {
		logSummary(ctx, ctl, time.Second)
	}

	shutdown(ctl)
}

// logSummary prints one status line per period until ctx is done.
func logSummary(ctx context.Context, ctl *vision.Controller, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Print(summaryLine(ctl.Stats()))
		}
	}
}

func summaryLine(st vision.Stats) string {
	return fmt.Sprintf("state=%s seq=%d captured=%d failed=%d buffered=%d/%d",
		st.State, st.LastSeq, st.Captured, st.Failed, st.Buffered, st.Capacity)
}

// shutdown stops sampling, waits for the loop to exit and releases the
// stream. A loop stuck in a read is reported and the stream is left to
// the process exit, since the producer may still be using it.
func shutdown(ctl *vision.Controller) {
	debug.Section("Shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := ctl.CloseContext(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Printf("sampling loop did not exit within %s, exiting without releasing the stream", shutdownTimeout)
		} else {
			log.Printf("close controller: %v", err)
		}
	}
	log.Print(summaryLine(ctl.Stats()))
}

// cliOverrides holds command-line values that replace config values.
// Zero fields are ignored.
type cliOverrides struct {
	FPS        float64
	BufferSize int
	MaxRetries int
}

// validateCLIOverrides checks that non-zero CLI overrides are within the
// ranges accepted in the YAML file.
func validateCLIOverrides(o cliOverrides) error {
	if o.FPS != 0 {
		if math.IsNaN(o.FPS) || math.IsInf(o.FPS, 0) || o.FPS < 0 || o.FPS > config.MaxFPS {
			return fmt.Errorf("fps must be in (0, %d], got %g", config.MaxFPS, o.FPS)
		}
	}
	if o.BufferSize != 0 && (o.BufferSize < 1 || o.BufferSize > config.MaxBufferSize) {
		return fmt.Errorf("buffer_size must be between 1 and %d, got %d", config.MaxBufferSize, o.BufferSize)
	}
	if o.MaxRetries != 0 && (o.MaxRetries < 1 || o.MaxRetries > config.MaxRetries) {
		return fmt.Errorf("max_retries must be between 1 and %d, got %d", config.MaxRetries, o.MaxRetries)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-zero values are applied.
func applyOverrides(cfg *config.Config, o cliOverrides) {
	if o.FPS > 0 {
		cfg.Sampling.FPS = o.FPS
	}
	if o.BufferSize > 0 {
		cfg.Sampling.BufferSize = o.BufferSize
	}
	if o.MaxRetries > 0 {
		cfg.Stream.MaxRetries = o.MaxRetries
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

// newOpenerFromConfig selects the capture backend based on configuration.
func newOpenerFromConfig(cfg *config.Config) (stream.OpenFunc, error) {
	switch cfg.Stream.Source {
	case config.SourceOpenCV:
		return opencv.Open, nil
	case config.SourceV4L2:
		return v4l2.Opener(v4l2.Options{
			Width:       uint32(cfg.Stream.Width),
			Height:      uint32(cfg.Stream.Height),
			ReadTimeout: cfg.ReadTimeout(),
		}), nil
	case config.SourceSnapshot:
		return snapshot.Opener(cfg.ReadTimeout()), nil
	default:
		return nil, fmt.Errorf("unsupported stream source: %s", cfg.Stream.Source)
	}
}

// newIndicatorFromConfig returns the status LED, or a no-op when no pin
// is configured.
func newIndicatorFromConfig(g gpio.Driver, cfg *config.Config) indicator.Indicator {
	if !cfg.LEDEnabled() {
		return indicator.Nop{}
	}
	debug.Value("LED pin", cfg.Indicator.LedPin)
	return indicator.NewLED(g, cfg.Indicator.LedPin)
}
