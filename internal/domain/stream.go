package domain

import (
	"fmt"
	"strings"
)

// StreamKind identifies one of the fixed telemetry categories a session records.
type StreamKind uint8

const (
	HeartRate StreamKind = iota
	EyeTracking
	CameraFrame
	Imu
)

// AllStreams lists every StreamKind in column-documentation order.
var AllStreams = []StreamKind{HeartRate, EyeTracking, CameraFrame, Imu}

func (k StreamKind) String() string {
	switch k {
	case HeartRate:
		return "heart_rate"
	case EyeTracking:
		return "eye_tracking"
	case CameraFrame:
		return "camera"
	case Imu:
		return "imu"
	default:
		return fmt.Sprintf("stream(%d)", uint8(k))
	}
}

// FilePrefix is the per-stream log file prefix, e.g. HR_20231003_10_00_00.csv.
func (k StreamKind) FilePrefix() string {
	switch k {
	case HeartRate:
		return "HR"
	case EyeTracking:
		return "Eye"
	case CameraFrame:
		return "Face"
	case Imu:
		return "IMU"
	default:
		return "Unknown"
	}
}

// ParseStreamKind accepts the names produced by String.
func ParseStreamKind(s string) (StreamKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "heart_rate", "hr":
		return HeartRate, nil
	case "eye_tracking", "eye":
		return EyeTracking, nil
	case "camera", "camera_frame", "face":
		return CameraFrame, nil
	case "imu":
		return Imu, nil
	default:
		return 0, fmt.Errorf("unknown stream %q", s)
	}
}

// CaptureConfig holds one enablement flag per StreamKind. It is fixed for the
// lifetime of a session.
type CaptureConfig struct {
	HeartRate   bool `yaml:"heart_rate"`
	EyeTracking bool `yaml:"eye_tracking"`
	Camera      bool `yaml:"camera"`
	Imu         bool `yaml:"imu"`
}

// AllEnabled records every stream.
func AllEnabled() CaptureConfig {
	return CaptureConfig{HeartRate: true, EyeTracking: true, Camera: true, Imu: true}
}

func (c CaptureConfig) Enabled(k StreamKind) bool {
	switch k {
	case HeartRate:
		return c.HeartRate
	case EyeTracking:
		return c.EyeTracking
	case CameraFrame:
		return c.Camera
	case Imu:
		return c.Imu
	default:
		return false
	}
}

// EnabledStreams returns the enabled kinds in AllStreams order.
func (c CaptureConfig) EnabledStreams() []StreamKind {
	out := make([]StreamKind, 0, len(AllStreams))
	for _, k := range AllStreams {
		if c.Enabled(k) {
			out = append(out, k)
		}
	}
	return out
}

// Any reports whether at least one stream is enabled.
func (c CaptureConfig) Any() bool {
	return c.HeartRate || c.EyeTracking || c.Camera || c.Imu
}
