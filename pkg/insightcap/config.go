package insightcap

import (
	"github.com/ghalamif/insightcap/internal/app/config"
	"github.com/ghalamif/insightcap/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	CaptureConfig     = config.CaptureConfig
	ClockConfig       = config.ClockConfig
	CameraConfig      = config.CameraConfig
	EyeTrackingConfig = config.EyeTrackingConfig
	SourceConfig      = config.SourceConfig
	ReplayConfig      = config.ReplayConfig
	WebSocketConfig   = config.WebSocketConfig
	SyntheticConfig   = config.SyntheticConfig
	PumpConfig        = config.PumpConfig
	MetricsConfig     = config.MetricsConfig
	LogConfig         = config.LogConfig
	// QueuePolicy bounds the websocket bridge buffer.
	QueuePolicy = ports.QueuePolicy
)

// Source kinds accepted in SourceConfig.Kind.
const (
	SourceMemory    = config.SourceMemory
	SourceReplay    = config.SourceReplay
	SourceWebSocket = config.SourceWebSocket
	SourceSynthetic = config.SourceSynthetic
)

// LoadConfig loads YAML from disk using the internal config reader. An empty
// path yields defaults plus environment overrides.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// LoadEnvFiles loads .env style files (".env.local" and ".env" by default).
func LoadEnvFiles(files ...string) error {
	return config.LoadEnvFiles(files...)
}
