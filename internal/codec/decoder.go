package codec

import (
	"errors"

	"github.com/ghalamif/insightcap/internal/domain"
)

// ErrFrameSize is returned when a camera buffer does not match the configured
// frame geometry.
var ErrFrameSize = errors.New("camera frame size mismatch")

// Decoder turns one RawMessage into a Record. Decoders are pure: they never
// perform I/O. A nil Record with a nil error means the message is filtered out
// and must be discarded silently.
type Decoder interface {
	Decode(raw *domain.RawMessage) (domain.Record, error)
}

// ClockPlan picks the clock domain each stream stamps its records with.
type ClockPlan struct {
	Default domain.ClockDomain
	Streams map[domain.StreamKind]domain.ClockDomain
}

func (p ClockPlan) For(k domain.StreamKind) domain.ClockDomain {
	if d, ok := p.Streams[k]; ok && d != "" {
		return d
	}
	if p.Default != "" {
		return p.Default
	}
	return domain.ClockHardware
}

// Gating withholds optional eye-tracking fields whose confidence is below
// MinConfidence. Disabled by default: every field is recorded as reported.
type Gating struct {
	Enabled       bool
	MinConfidence float32
}

type Options struct {
	Clocks     ClockPlan
	Normalizer domain.Normalizer
	Gating     Gating

	FrameWidth  int
	FrameHeight int
	// CameraLocation, when set, keeps only frames from the sensor at that
	// location (e.g. "Mouth").
	CameraLocation string
}

const (
	DefaultFrameWidth  = 400
	DefaultFrameHeight = 400
)

func (o Options) frameSize() (int, int) {
	w, h := o.FrameWidth, o.FrameHeight
	if w <= 0 {
		w = DefaultFrameWidth
	}
	if h <= 0 {
		h = DefaultFrameHeight
	}
	return w, h
}

// stamp normalizes the message time from the stream's configured clock.
func stamp(raw *domain.RawMessage, k domain.StreamKind, o Options) (string, error) {
	ticks, err := raw.Header.Ticks(o.Clocks.For(k))
	if err != nil {
		return "", err
	}
	return o.Normalizer.Format(ticks), nil
}

// Entry binds a message type to its stream and decoder.
type Entry struct {
	Kind    domain.StreamKind
	Decoder Decoder
}

// Table is the pump's dispatch table. Types absent from the table are either
// unknown or belong to a disabled stream.
type Table map[domain.MessageType]Entry

// NewTable builds decoders for every enabled stream.
func NewTable(capture domain.CaptureConfig, o Options) Table {
	t := make(Table, 4)
	if capture.HeartRate {
		t[domain.MessageHeartRate] = Entry{Kind: domain.HeartRate, Decoder: HeartRateDecoder{Options: o}}
	}
	if capture.EyeTracking {
		t[domain.MessageEyeTracking] = Entry{Kind: domain.EyeTracking, Decoder: EyeTrackingDecoder{Options: o}}
	}
	if capture.Camera {
		t[domain.MessageCameraImage] = Entry{Kind: domain.CameraFrame, Decoder: CameraDecoder{Options: o}}
	}
	if capture.Imu {
		t[domain.MessageIMUFrame] = Entry{Kind: domain.Imu, Decoder: ImuDecoder{Options: o}}
	}
	return t
}

func (t Table) Lookup(mt domain.MessageType) (Entry, bool) {
	e, ok := t[mt]
	return e, ok
}
