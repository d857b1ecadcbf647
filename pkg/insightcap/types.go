package insightcap

import (
	"github.com/ghalamif/insightcap/internal/app/pump"
	"github.com/ghalamif/insightcap/internal/app/session"
	"github.com/ghalamif/insightcap/internal/domain"
	"github.com/ghalamif/insightcap/internal/ports"
)

// Record is a decoded device message ready for its stream log.
type Record = domain.Record

type (
	RawMessage        = domain.RawMessage
	Header            = domain.Header
	MessageType       = domain.MessageType
	StreamKind        = domain.StreamKind
	Streams           = domain.CaptureConfig
	ClockDomain       = domain.ClockDomain
	HeartRateRecord   = domain.HeartRateRecord
	EyeTrackingRecord = domain.EyeTrackingRecord
	CameraFrameRecord = domain.CameraFrameRecord
	ImuRecord         = domain.ImuRecord
)

// MessageSource yields raw device messages without blocking.
type MessageSource = ports.MessageSource

// RecordWriter consumes decoded records.
type RecordWriter = ports.RecordWriter

// Observability emits logs and metrics about the capture.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// Stats summarizes what the pump has done so far.
type Stats = pump.Result

// StreamError is returned when a record cannot be persisted.
type StreamError = session.StreamError

const (
	HeartRate   = domain.HeartRate
	EyeTracking = domain.EyeTracking
	CameraFrame = domain.CameraFrame
	Imu         = domain.Imu
)

var (
	ErrTransport              = ports.ErrTransport
	ErrClockDomainUnavailable = domain.ErrClockDomainUnavailable
	ErrSessionClosed          = session.ErrSessionClosed
)

// AllStreams enables every stream.
func AllStreams() Streams { return domain.AllEnabled() }
