package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a config file accepted by Load.
const MaxConfigFileBytes = 64 << 10

// Capture backends selectable with stream.source.
const (
	SourceOpenCV   = "opencv"
	SourceV4L2     = "v4l2"
	SourceSnapshot = "snapshot"
)

// Defaults taken from the drone's FPV camera setup.
const (
	DefaultAddress     = "rtsp://192.168.99.1/media/stream2"
	DefaultV4L2Device  = "/dev/video0"
	DefaultMaxRetries  = 3
	DefaultFPS         = 10
	DefaultBufferSize  = 10
	DefaultWarnAfter   = 30
	DefaultJPEGQuality = 80
)

// Limits shared by YAML validation and CLI overrides.
const (
	MaxFPS        = 60
	MaxBufferSize = 1000
	MaxRetries    = 100
	MaxBCMPin     = 27
)

// StreamConfig selects and addresses the video source.
type StreamConfig struct {
	Source        string `yaml:"source"`          // opencv | v4l2 | snapshot
	Address       string `yaml:"address"`         // URL, device index, device path or file path
	MaxRetries    int    `yaml:"max_retries"`     // open attempts before giving up
	Width         int    `yaml:"width"`           // v4l2 only
	Height        int    `yaml:"height"`          // v4l2 only
	ReadTimeoutMs int    `yaml:"read_timeout_ms"` // v4l2 and snapshot: max wait for one frame
}

// SamplingConfig controls the background capture loop and buffer.
type SamplingConfig struct {
	FPS               float64 `yaml:"fps"`                 // target frames per second (keep low on a Pi)
	BufferSize        int     `yaml:"buffer_size"`         // ring depth
	WarnAfterFailures int     `yaml:"warn_after_failures"` // 0 = default, negative = never warn
}

// IndicatorConfig is optional: a status LED on a GPIO pin.
type IndicatorConfig struct {
	LedPin int `yaml:"led_pin"` // BCM pin, 0 = no LED
}

// WebConfig tunes the HTTP surface.
type WebConfig struct {
	JPEGQuality int `yaml:"jpeg_quality"` // 1-100
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Stream    StreamConfig    `yaml:"stream"`
	Sampling  SamplingConfig  `yaml:"sampling"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Web       WebConfig       `yaml:"web"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// ValidateConfigPath accepts only *.yaml files located directly in a
// configs/ directory, without parent traversal.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	clean := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(clean), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Stream.Source == "" {
		c.Stream.Source = SourceOpenCV
	}
	if c.Stream.Address == "" {
		switch c.Stream.Source {
		case SourceOpenCV:
			c.Stream.Address = DefaultAddress
		case SourceV4L2:
			c.Stream.Address = DefaultV4L2Device
		case SourceSnapshot:
			return fmt.Errorf("stream.address is required for source %q", SourceSnapshot)
		}
	}
	if c.Stream.MaxRetries <= 0 {
		c.Stream.MaxRetries = DefaultMaxRetries
	}
	if c.Stream.Width <= 0 {
		c.Stream.Width = 640
	}
	if c.Stream.Height <= 0 {
		c.Stream.Height = 480
	}
	if c.Stream.ReadTimeoutMs <= 0 {
		c.Stream.ReadTimeoutMs = 1000
	}
	if c.Sampling.FPS == 0 {
		c.Sampling.FPS = DefaultFPS
	}
	if c.Sampling.BufferSize == 0 {
		c.Sampling.BufferSize = DefaultBufferSize
	}
	if c.Sampling.WarnAfterFailures == 0 {
		c.Sampling.WarnAfterFailures = DefaultWarnAfter
	}
	if c.Web.JPEGQuality == 0 {
		c.Web.JPEGQuality = DefaultJPEGQuality
	}
	return nil
}

// Validate checks value ranges. Load calls it after filling defaults.
func (c *Config) Validate() error {
	switch c.Stream.Source {
	case SourceOpenCV, SourceV4L2, SourceSnapshot:
	default:
		return fmt.Errorf("stream.source must be %s, %s or %s, got %q", SourceOpenCV, SourceV4L2, SourceSnapshot, c.Stream.Source)
	}
	if c.Stream.MaxRetries > MaxRetries {
		return fmt.Errorf("stream.max_retries must be <= %d, got %d", MaxRetries, c.Stream.MaxRetries)
	}
	if !(c.Sampling.FPS > 0) || c.Sampling.FPS > MaxFPS {
		return fmt.Errorf("sampling.fps must be in (0, %d], got %g", MaxFPS, c.Sampling.FPS)
	}
	if c.Sampling.BufferSize < 1 || c.Sampling.BufferSize > MaxBufferSize {
		return fmt.Errorf("sampling.buffer_size must be between 1 and %d, got %d", MaxBufferSize, c.Sampling.BufferSize)
	}
	if c.Indicator.LedPin < 0 || c.Indicator.LedPin > MaxBCMPin {
		return fmt.Errorf("indicator.led_pin must be between 0 and %d, got %d", MaxBCMPin, c.Indicator.LedPin)
	}
	if c.Web.JPEGQuality < 1 || c.Web.JPEGQuality > 100 {
		return fmt.Errorf("web.jpeg_quality must be between 1 and 100, got %d", c.Web.JPEGQuality)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// ReadTimeout returns the per-read wait for backends that support it.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Stream.ReadTimeoutMs) * time.Millisecond
}

// WarnAfter returns the consecutive-failure warning threshold (0 = never).
func (c *Config) WarnAfter() int {
	if c.Sampling.WarnAfterFailures < 0 {
		return 0
	}
	return c.Sampling.WarnAfterFailures
}

// LEDEnabled reports whether a status LED pin is configured.
func (c *Config) LEDEnabled() bool {
	return c.Indicator.LedPin > 0
}
