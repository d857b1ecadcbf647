package config

import (
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ghalamif/insightcap/internal/adapters/frames"
	"github.com/ghalamif/insightcap/internal/adapters/observability"
	"github.com/ghalamif/insightcap/internal/codec"
	"github.com/ghalamif/insightcap/internal/domain"
	"github.com/ghalamif/insightcap/internal/ports"
)

// Source kinds.
const (
	SourceMemory    = "memory"
	SourceReplay    = "replay"
	SourceWebSocket = "websocket"
	SourceSynthetic = "synthetic"
)

// EnvPrefix namespaces environment overrides, e.g. INSIGHTCAP_ROOT.
const EnvPrefix = "INSIGHTCAP_"

type Config struct {
	Capture     CaptureConfig     `yaml:"capture"`
	Clock       ClockConfig       `yaml:"clock"`
	Camera      CameraConfig      `yaml:"camera"`
	EyeTracking EyeTrackingConfig `yaml:"eye_tracking"`
	Source      SourceConfig      `yaml:"source"`
	Pump        PumpConfig        `yaml:"pump"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

type CaptureConfig struct {
	Root string `yaml:"root"`
	// Streams defaults to every stream when omitted.
	Streams *domain.CaptureConfig `yaml:"streams"`
}

type ClockConfig struct {
	Default  string            `yaml:"default"`
	Streams  map[string]string `yaml:"streams"`
	TimeZone string            `yaml:"time_zone"`
}

type CameraConfig struct {
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	Location     string `yaml:"location"`
	MaxDimension int    `yaml:"max_dimension"`
	Compression  string `yaml:"compression"`
}

type EyeTrackingConfig struct {
	ConfidenceGating bool    `yaml:"confidence_gating"`
	MinConfidence    float32 `yaml:"min_confidence"`
}

type SourceConfig struct {
	Kind      string          `yaml:"kind"`
	Replay    ReplayConfig    `yaml:"replay"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Synthetic SyntheticConfig `yaml:"synthetic"`
}

type ReplayConfig struct {
	Path string `yaml:"path"`
	Pace bool   `yaml:"pace"`
}

type WebSocketConfig struct {
	URL              string            `yaml:"url"`
	HandshakeTimeout time.Duration     `yaml:"handshake_timeout"`
	Policy           ports.QueuePolicy `yaml:"policy"`
}

type SyntheticConfig struct {
	Seed      int64   `yaml:"seed"`
	HeartRate uint32  `yaml:"heart_rate"`
	FrameRate float32 `yaml:"frame_rate"`
	ImuBatch  int     `yaml:"imu_batch"`
}

type PumpConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
}

type MetricsConfig struct {
	Addr     string `yaml:"addr"`
	Disabled bool   `yaml:"disabled"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// LoadEnvFiles reads KEY=VALUE files into the environment without overriding
// variables that are already set. Missing files are skipped.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env.local", ".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads a YAML config. An empty path yields the defaults. Environment
// overrides are applied before defaults and validation.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	set("ROOT", &c.Capture.Root)
	set("SOURCE_KIND", &c.Source.Kind)
	set("SOURCE_URL", &c.Source.WebSocket.URL)
	set("REPLAY_PATH", &c.Source.Replay.Path)
	set("METRICS_ADDR", &c.Metrics.Addr)
	set("LOG_LEVEL", &c.Log.Level)
	set("CLOCK", &c.Clock.Default)
	set("TIME_ZONE", &c.Clock.TimeZone)
}

func (c *Config) applyDefaults() {
	if c.Capture.Root == "" {
		c.Capture.Root = "."
	}
	if c.Capture.Streams == nil {
		all := domain.AllEnabled()
		c.Capture.Streams = &all
	}
	if c.Clock.Default == "" {
		c.Clock.Default = string(domain.ClockHardware)
	}
	if c.Camera.Width == 0 {
		c.Camera.Width = codec.DefaultFrameWidth
	}
	if c.Camera.Height == 0 {
		c.Camera.Height = codec.DefaultFrameHeight
	}
	if c.Camera.Compression == "" {
		c.Camera.Compression = "default"
	}
	if c.EyeTracking.ConfidenceGating && c.EyeTracking.MinConfidence == 0 {
		c.EyeTracking.MinConfidence = 0.5
	}
	if c.Source.Kind == "" {
		c.Source.Kind = SourceWebSocket
	}
	if c.Source.WebSocket.HandshakeTimeout == 0 {
		c.Source.WebSocket.HandshakeTimeout = 5 * time.Second
	}
	pol := &c.Source.WebSocket.Policy
	if pol.MaxQueueLen == 0 {
		pol.MaxQueueLen = 10_000
	}
	if pol.IdleSleep == 0 {
		pol.IdleSleep = 5 * time.Millisecond
	}
	if pol.OnQueueFull == "" {
		pol.OnQueueFull = "drop"
	}
	if c.Source.Synthetic.HeartRate == 0 {
		c.Source.Synthetic.HeartRate = 72
	}
	if c.Source.Synthetic.FrameRate == 0 {
		c.Source.Synthetic.FrameRate = 30
	}
	if c.Source.Synthetic.ImuBatch == 0 {
		c.Source.Synthetic.ImuBatch = 4
	}
	if c.Pump.TickInterval == 0 {
		// Roughly one poll per 90 Hz display frame.
		c.Pump.TickInterval = 11 * time.Millisecond
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	if !c.Capture.Streams.Any() {
		return fmt.Errorf("capture.streams: at least one stream must be enabled")
	}
	if _, err := c.ClockPlan(); err != nil {
		return fmt.Errorf("clock: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("clock.time_zone: %w", err)
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		return fmt.Errorf("camera: width and height must be positive")
	}
	if c.Camera.MaxDimension < 0 {
		return fmt.Errorf("camera.max_dimension must not be negative")
	}
	if _, err := parseCompression(c.Camera.Compression); err != nil {
		return fmt.Errorf("camera.compression: %w", err)
	}
	if g := c.EyeTracking.MinConfidence; g < 0 || g > 1 {
		return fmt.Errorf("eye_tracking.min_confidence must be within [0,1], got %v", g)
	}
	switch c.Source.Kind {
	case SourceMemory, SourceSynthetic:
	case SourceReplay:
		if c.Source.Replay.Path == "" {
			return fmt.Errorf("source.replay.path is required for replay source")
		}
	case SourceWebSocket:
		if c.Source.WebSocket.URL == "" {
			return fmt.Errorf("source.websocket.url is required for websocket source")
		}
		switch c.Source.WebSocket.Policy.OnQueueFull {
		case "drop", "block":
		default:
			return fmt.Errorf("source.websocket.policy.on_queue_full must be drop or block")
		}
	default:
		return fmt.Errorf("source.kind %q is not one of memory, replay, websocket, synthetic", c.Source.Kind)
	}
	if c.Pump.TickInterval < 0 {
		return fmt.Errorf("pump.tick_interval must not be negative")
	}
	if !c.Metrics.Disabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	if _, err := observability.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// ClockPlan resolves the configured clock domains.
func (c *Config) ClockPlan() (codec.ClockPlan, error) {
	def, err := domain.ParseClockDomain(c.Clock.Default)
	if err != nil {
		return codec.ClockPlan{}, err
	}
	plan := codec.ClockPlan{Default: def}
	for name, d := range c.Clock.Streams {
		kind, err := domain.ParseStreamKind(name)
		if err != nil {
			return codec.ClockPlan{}, err
		}
		cd, err := domain.ParseClockDomain(d)
		if err != nil {
			return codec.ClockPlan{}, fmt.Errorf("%s: %w", name, err)
		}
		if plan.Streams == nil {
			plan.Streams = make(map[domain.StreamKind]domain.ClockDomain)
		}
		plan.Streams[kind] = cd
	}
	return plan, nil
}

// Location returns the zone timestamps are rendered in; local time when unset.
func (c *Config) Location() (*time.Location, error) {
	if c.Clock.TimeZone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Clock.TimeZone)
}

// CodecOptions builds decoder options from a validated config.
func (c *Config) CodecOptions() codec.Options {
	plan, _ := c.ClockPlan()
	loc, _ := c.Location()
	return codec.Options{
		Clocks:     plan,
		Normalizer: domain.Normalizer{Location: loc},
		Gating: codec.Gating{
			Enabled:       c.EyeTracking.ConfidenceGating,
			MinConfidence: c.EyeTracking.MinConfidence,
		},
		FrameWidth:     c.Camera.Width,
		FrameHeight:    c.Camera.Height,
		CameraLocation: c.Camera.Location,
	}
}

// FrameWriter builds the PNG writer from a validated config.
func (c *Config) FrameWriter() frames.Writer {
	level, _ := parseCompression(c.Camera.Compression)
	return frames.Writer{
		Width:        c.Camera.Width,
		Height:       c.Camera.Height,
		MaxDimension: c.Camera.MaxDimension,
		Compression:  level,
	}
}

func parseCompression(s string) (png.CompressionLevel, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return png.DefaultCompression, nil
	case "none":
		return png.NoCompression, nil
	case "fast", "speed":
		return png.BestSpeed, nil
	case "best":
		return png.BestCompression, nil
	default:
		return 0, fmt.Errorf("unknown level %q", s)
	}
}
