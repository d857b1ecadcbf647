package ports

import (
	"errors"

	"github.com/ghalamif/insightcap/internal/domain"
)

// ErrTransport marks a failure to retrieve messages from the device runtime.
var ErrTransport = errors.New("transport failure")

// MessageSource yields device messages without blocking. TryNext returns
// (nil, nil) when nothing is queued right now; that is not end of stream.
type MessageSource interface {
	TryNext() (*domain.RawMessage, error)
}

// FiniteSource is implemented by sources that can run out, such as recordings.
type FiniteSource interface {
	MessageSource
	Done() bool
}

// RecordWriter persists decoded records.
type RecordWriter interface {
	Write(rec domain.Record) error
}
