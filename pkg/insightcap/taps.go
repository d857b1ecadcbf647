package insightcap

import (
	"errors"
	"fmt"
	"sync"
)

// ErrChannelTapClosed is returned when a channel tap is written to after being closed.
var ErrChannelTapClosed = errors.New("insightcap: channel tap closed")

// RecordFunc receives every record after it has been persisted.
type RecordFunc func(Record) error

// NewCallbackTap adapts a RecordFunc into a RecordWriter so callers can
// observe the capture without defining structs.
func NewCallbackTap(name string, fn RecordFunc) RecordWriter {
	if name == "" {
		name = "callback"
	}
	return &callbackTap{name: name, fn: fn}
}

// NewChannelTap exposes records via a channel; it returns the tap, the
// read-only channel, and a close function the caller should invoke during
// shutdown. A full channel blocks the pump, so size buffer accordingly.
func NewChannelTap(name string, buffer int) (RecordWriter, <-chan Record, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Record, buffer)
	t := &channelTap{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return t, ch, func() { t.close() }
}

type callbackTap struct {
	name string
	fn   RecordFunc
}

func (t *callbackTap) Write(rec Record) error {
	if t.fn == nil {
		return fmt.Errorf("callback tap %q: nil handler", t.name)
	}
	return t.fn(rec)
}

type channelTap struct {
	name   string
	ch     chan Record
	closed chan struct{}
	once   sync.Once
	mu     sync.RWMutex
}

func (t *channelTap) Write(rec Record) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	select {
	case <-t.closed:
		return ErrChannelTapClosed
	default:
	}

	select {
	case <-t.closed:
		return ErrChannelTapClosed
	case t.ch <- rec:
		return nil
	}
}

func (t *channelTap) close() {
	t.once.Do(func() {
		close(t.closed)
		// Wait for in-flight writes before closing the data channel.
		t.mu.Lock()
		close(t.ch)
		t.mu.Unlock()
	})
}

// teeWriter persists to primary first; taps only see records that made it to
// disk. Tap failures are logged and never fail the write.
type teeWriter struct {
	primary RecordWriter
	taps    []RecordWriter
	obs     Observability
}

func (w *teeWriter) Write(rec Record) error {
	if err := w.primary.Write(rec); err != nil {
		return err
	}
	for _, t := range w.taps {
		if err := t.Write(rec); err != nil {
			w.obs.LogError("tap_write_failed", err, Field{Key: "stream", Value: rec.Kind().String()})
		}
	}
	return nil
}
