package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrClockDomainUnavailable is returned when a message does not carry the
// clock domain configured for its stream.
var ErrClockDomainUnavailable = errors.New("clock domain not present in message header")

// MessageType is the device runtime's type tag for a RawMessage.
type MessageType uint32

// Tags published by the device runtime. Only the first four map to a
// StreamKind; the rest are subscribed upstream but never recorded.
const (
	MessageNone                   MessageType = 0
	MessageHeartRate              MessageType = 1
	MessageEyeTracking            MessageType = 2
	MessageCameraImage            MessageType = 3
	MessageIMUFrame               MessageType = 4
	MessagePPGFrame               MessageType = 5
	MessageVSync                  MessageType = 6
	MessageSubscriptionResultList MessageType = 7
)

func (t MessageType) String() string {
	switch t {
	case MessageNone:
		return "none"
	case MessageHeartRate:
		return "heart_rate"
	case MessageEyeTracking:
		return "eye_tracking"
	case MessageCameraImage:
		return "camera_image"
	case MessageIMUFrame:
		return "imu_frame"
	case MessagePPGFrame:
		return "ppg_frame"
	case MessageVSync:
		return "vsync"
	case MessageSubscriptionResultList:
		return "subscription_result_list"
	default:
		return fmt.Sprintf("message(%d)", uint32(t))
	}
}

// StreamFor maps a message tag to the stream that records it.
func StreamFor(t MessageType) (StreamKind, bool) {
	switch t {
	case MessageHeartRate:
		return HeartRate, true
	case MessageEyeTracking:
		return EyeTracking, true
	case MessageCameraImage:
		return CameraFrame, true
	case MessageIMUFrame:
		return Imu, true
	default:
		return 0, false
	}
}

// ClockDomain names one of the independent clocks stamped on every message.
type ClockDomain string

const (
	ClockHardware ClockDomain = "hardware"
	ClockSystem   ClockDomain = "system"
	ClockOmnicept ClockDomain = "omnicept"
)

func ParseClockDomain(s string) (ClockDomain, error) {
	switch ClockDomain(strings.ToLower(strings.TrimSpace(s))) {
	case ClockHardware:
		return ClockHardware, nil
	case ClockSystem:
		return ClockSystem, nil
	case ClockOmnicept:
		return ClockOmnicept, nil
	default:
		return "", fmt.Errorf("unknown clock domain %q", s)
	}
}

// Header carries the message timestamps, all in microseconds since the Unix
// epoch. Hardware time is always present.
type Header struct {
	Type           MessageType `cbor:"1,keyasint" json:"type"`
	HardwareMicros int64       `cbor:"2,keyasint" json:"hardware_us"`
	SystemMicros   *int64      `cbor:"3,keyasint,omitempty" json:"system_us,omitempty"`
	OmniceptMicros *int64      `cbor:"4,keyasint,omitempty" json:"omnicept_us,omitempty"`
}

// Ticks returns the timestamp for exactly one clock domain.
func (h Header) Ticks(d ClockDomain) (int64, error) {
	switch d {
	case ClockHardware, "":
		return h.HardwareMicros, nil
	case ClockSystem:
		if h.SystemMicros == nil {
			return 0, fmt.Errorf("%w: %s", ErrClockDomainUnavailable, d)
		}
		return *h.SystemMicros, nil
	case ClockOmnicept:
		if h.OmniceptMicros == nil {
			return 0, fmt.Errorf("%w: %s", ErrClockDomainUnavailable, d)
		}
		return *h.OmniceptMicros, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrClockDomainUnavailable, d)
	}
}

// RawMessage is an undecoded device message. It is consumed by a decoder and
// never retained.
type RawMessage struct {
	Header  Header `cbor:"1,keyasint" json:"header"`
	Payload []byte `cbor:"2,keyasint" json:"payload"`
}
