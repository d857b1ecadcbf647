package codec

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/ghalamif/insightcap/internal/domain"
)

// ErrMalformedPayload is returned when a payload cannot be decoded into the
// structure its message type promises.
var ErrMalformedPayload = errors.New("malformed payload")

// Payloads are CBOR with integer keys and Core Deterministic Encoding so the
// same message always produces the same bytes in recordings.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		// Unknown keys from newer runtimes are ignored.
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

type HeartRatePayload struct {
	Rate uint32 `cbor:"1,keyasint"`
}

type EyePayload struct {
	Gaze                    domain.Vec3  `cbor:"1,keyasint"`
	GazeConfidence          float32      `cbor:"2,keyasint"`
	PupilPosition           *domain.Vec2 `cbor:"3,keyasint,omitempty"`
	PupilPositionConfidence float32      `cbor:"4,keyasint"`
	Openness                float32      `cbor:"5,keyasint"`
	OpennessConfidence      float32      `cbor:"6,keyasint"`
	PupilDilation           float32      `cbor:"7,keyasint"`
	PupilDilationConfidence float32      `cbor:"8,keyasint"`
}

type EyeTrackingPayload struct {
	Left                   EyePayload  `cbor:"1,keyasint"`
	Right                  EyePayload  `cbor:"2,keyasint"`
	CombinedGaze           domain.Vec3 `cbor:"3,keyasint"`
	CombinedGazeConfidence float32     `cbor:"4,keyasint"`
}

type CameraImagePayload struct {
	FrameNumber     uint64  `cbor:"1,keyasint"`
	FramesPerSecond float32 `cbor:"2,keyasint"`
	Width           uint32  `cbor:"3,keyasint"`
	Height          uint32  `cbor:"4,keyasint"`
	SensorLocation  string  `cbor:"5,keyasint,omitempty"`
	ImageData       []byte  `cbor:"6,keyasint"`
}

// IMUSamplePayload is one reading. DeviceID is whatever the runtime sends and
// is not used for ordering.
type IMUSamplePayload struct {
	DeviceID uint32      `cbor:"1,keyasint,omitempty"`
	Acc      domain.Vec3 `cbor:"2,keyasint"`
	Gyro     domain.Vec3 `cbor:"3,keyasint"`
}

type IMUFramePayload struct {
	Samples []IMUSamplePayload `cbor:"1,keyasint"`
}

// Marshal encodes a payload or a whole RawMessage.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewMessage encodes payload and wraps it with the given header.
func NewMessage(h domain.Header, payload any) (*domain.RawMessage, error) {
	b, err := Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", h.Type, err)
	}
	return &domain.RawMessage{Header: h, Payload: b}, nil
}

func unmarshalPayload(raw *domain.RawMessage, v any) error {
	if raw == nil {
		return fmt.Errorf("%w: nil message", ErrMalformedPayload)
	}
	if err := decMode.Unmarshal(raw.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, raw.Header.Type, err)
	}
	return nil
}

// EncoderMode and DecoderMode expose the configured modes to stream readers
// and writers.
func EncoderMode() cbor.EncMode { return encMode }
func DecoderMode() cbor.DecMode { return decMode }
