package insightcap

import (
	"context"

	base "github.com/ghalamif/insightcap/pkg/insightcap"
)

// Re-exported errors for convenience.
var (
	ErrTransport              = base.ErrTransport
	ErrClockDomainUnavailable = base.ErrClockDomainUnavailable
	ErrSessionClosed          = base.ErrSessionClosed
	ErrChannelTapClosed       = base.ErrChannelTapClosed
)

// Source kinds accepted in SourceConfig.Kind.
const (
	SourceMemory    = base.SourceMemory
	SourceReplay    = base.SourceReplay
	SourceWebSocket = base.SourceWebSocket
	SourceSynthetic = base.SourceSynthetic
)

// Streams a session can record.
const (
	HeartRate   = base.HeartRate
	EyeTracking = base.EyeTracking
	CameraFrame = base.CameraFrame
	Imu         = base.Imu
)

// Type aliases so consumers can import github.com/ghalamif/insightcap directly.
type (
	Config            = base.Config
	CaptureConfig     = base.CaptureConfig
	ClockConfig       = base.ClockConfig
	CameraConfig      = base.CameraConfig
	EyeTrackingConfig = base.EyeTrackingConfig
	SourceConfig      = base.SourceConfig
	ReplayConfig      = base.ReplayConfig
	WebSocketConfig   = base.WebSocketConfig
	SyntheticConfig   = base.SyntheticConfig
	PumpConfig        = base.PumpConfig
	MetricsConfig     = base.MetricsConfig
	LogConfig         = base.LogConfig
	QueuePolicy       = base.QueuePolicy
	Recorder          = base.Recorder
	RecorderOption    = base.RecorderOption
	Record            = base.Record
	RecordFunc        = base.RecordFunc
	RecordWriter      = base.RecordWriter
	RawMessage        = base.RawMessage
	MessageSource     = base.MessageSource
	Observability     = base.Observability
	Field             = base.Field
	Streams           = base.Streams
	StreamKind        = base.StreamKind
	Stats             = base.Stats
	StreamError       = base.StreamError
	SynthOptions      = base.SynthOptions
)

// AllStreams enables every stream.
func AllStreams() Streams { return base.AllStreams() }

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func LoadEnvFiles(files ...string) error {
	return base.LoadEnvFiles(files...)
}

// Recorder helpers.
func Conf(path string, opts ...RecorderOption) (*Recorder, error) {
	return base.Conf(path, opts...)
}

func Capture(ctx context.Context, path string, opts ...RecorderOption) error {
	return base.Capture(ctx, path, opts...)
}

func NewRecorder(cfg *Config, opts ...RecorderOption) (*Recorder, error) {
	return base.NewRecorder(cfg, opts...)
}

func WithSource(src MessageSource) RecorderOption {
	return base.WithSource(src)
}

func WithObservability(obs Observability) RecorderOption {
	return base.WithObservability(obs)
}

func WithTap(w RecordWriter) RecorderOption {
	return base.WithTap(w)
}

func WithCallback(name string, fn RecordFunc) RecorderOption {
	return base.WithCallback(name, fn)
}

// Tap adapters.
func NewCallbackTap(name string, fn RecordFunc) RecordWriter {
	return base.NewCallbackTap(name, fn)
}

func NewChannelTap(name string, buffer int) (RecordWriter, <-chan Record, func()) {
	return base.NewChannelTap(name, buffer)
}

// Recordings.
func Synthesize(path string, opts SynthOptions) (int, error) {
	return base.Synthesize(path, opts)
}
