package domain

import (
	"strconv"
)

// Record is a decoded message ready to be serialized into its stream's log.
type Record interface {
	Kind() StreamKind
	Time() string
	// Rows returns the CSV rows for the record, each matching Schema(Kind()).
	Rows() [][]string
}

type Vec2 struct {
	X float32 `cbor:"1,keyasint" json:"x"`
	Y float32 `cbor:"2,keyasint" json:"y"`
}

type Vec3 struct {
	X float32 `cbor:"1,keyasint" json:"x"`
	Y float32 `cbor:"2,keyasint" json:"y"`
	Z float32 `cbor:"3,keyasint" json:"z"`
}

// Gaze is a direction vector with its tracking confidence.
type Gaze struct {
	Vec3
	Confidence float32
}

// Scalar is a measured value and its confidence. Valid is false when the
// value was withheld by confidence gating.
type Scalar struct {
	Value      float32
	Confidence float32
	Valid      bool
}

// EyeSample is one eye's reading. PupilPosition is nil when the sensor was not
// tracking the pupil for this frame or when gating withheld it.
type EyeSample struct {
	Gaze                    Gaze
	PupilPosition           *Vec2
	PupilPositionConfidence float32
	Openness                Scalar
	PupilDilation           Scalar
}

type HeartRateRecord struct {
	At   string
	Rate uint32
}

type EyeTrackingRecord struct {
	At       string
	Left     EyeSample
	Right    EyeSample
	Combined Gaze
}

// CameraFrameRecord carries an 8-bit single-channel image of Width x Height.
type CameraFrameRecord struct {
	At          string
	FrameNumber uint64
	FPS         float32
	Width       int
	Height      int
	Pixels      []byte
}

// ImuSample is one reading in a batch; Index is its position in the batch.
type ImuSample struct {
	Index uint32
	Acc   Vec3
	Gyro  Vec3
}

type ImuRecord struct {
	At      string
	Samples []ImuSample
}

var schemas = map[StreamKind][]string{
	HeartRate: {"Time", "HR"},
	EyeTracking: {
		"Time",
		"leftGazeX", "leftGazeY", "leftGazeZ", "leftGazeConfidence",
		"leftPupilPositionX", "leftPupilPositionY", "leftPupilPositionConfidence",
		"leftOpenness", "leftOpennessConfidence",
		"leftPupilDilation", "leftPupilDilationConfidence",
		"rightGazeX", "rightGazeY", "rightGazeZ", "rightGazeConfidence",
		"rightPupilPositionX", "rightPupilPositionY", "rightPupilPositionConfidence",
		"rightOpenness", "rightOpennessConfidence",
		"rightPupilDilation", "rightPupilDilationConfidence",
		"combinedGazeX", "combinedGazeY", "combinedGazeZ", "combinedGazeConfidence",
	},
	CameraFrame: {"Time", "frameNumber", "fps"},
	Imu:         {"Time", "IMU#", "Acc-X", "Acc-Y", "Acc-Z", "Gyro-X", "Gyro-Y", "Gyro-Z"},
}

// Schema returns the fixed column order for a stream. Callers must not modify
// the returned slice.
func Schema(k StreamKind) []string {
	return schemas[k]
}

func (r *HeartRateRecord) Kind() StreamKind { return HeartRate }
func (r *HeartRateRecord) Time() string     { return r.At }

func (r *HeartRateRecord) Rows() [][]string {
	return [][]string{{r.At, strconv.FormatUint(uint64(r.Rate), 10)}}
}

func (r *EyeTrackingRecord) Kind() StreamKind { return EyeTracking }
func (r *EyeTrackingRecord) Time() string     { return r.At }

func (r *EyeTrackingRecord) Rows() [][]string {
	row := make([]string, 0, len(schemas[EyeTracking]))
	row = append(row, r.At)
	row = r.Left.appendFields(row)
	row = r.Right.appendFields(row)
	row = r.Combined.appendFields(row)
	return [][]string{row}
}

func (e EyeSample) appendFields(row []string) []string {
	row = e.Gaze.appendFields(row)
	if e.PupilPosition != nil {
		row = append(row, ftoa(e.PupilPosition.X), ftoa(e.PupilPosition.Y), ftoa(e.PupilPositionConfidence))
	} else {
		row = append(row, "", "", ftoa(e.PupilPositionConfidence))
	}
	row = e.Openness.appendFields(row)
	return e.PupilDilation.appendFields(row)
}

func (g Gaze) appendFields(row []string) []string {
	return append(row, ftoa(g.X), ftoa(g.Y), ftoa(g.Z), ftoa(g.Confidence))
}

func (s Scalar) appendFields(row []string) []string {
	if !s.Valid {
		return append(row, "", ftoa(s.Confidence))
	}
	return append(row, ftoa(s.Value), ftoa(s.Confidence))
}

func (r *CameraFrameRecord) Kind() StreamKind { return CameraFrame }
func (r *CameraFrameRecord) Time() string     { return r.At }

func (r *CameraFrameRecord) Rows() [][]string {
	return [][]string{{r.At, strconv.FormatUint(r.FrameNumber, 10), ftoa(r.FPS)}}
}

func (r *ImuRecord) Kind() StreamKind { return Imu }
func (r *ImuRecord) Time() string     { return r.At }

// Rows emits one row per sample in batch order.
func (r *ImuRecord) Rows() [][]string {
	rows := make([][]string, 0, len(r.Samples))
	for _, s := range r.Samples {
		rows = append(rows, []string{
			r.At,
			strconv.FormatUint(uint64(s.Index), 10),
			ftoa(s.Acc.X), ftoa(s.Acc.Y), ftoa(s.Acc.Z),
			ftoa(s.Gyro.X), ftoa(s.Gyro.Y), ftoa(s.Gyro.Z),
		})
	}
	return rows
}

func ftoa(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}
