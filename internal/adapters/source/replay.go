package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/ghalamif/insightcap/internal/codec"
	"github.com/ghalamif/insightcap/internal/domain"
	"github.com/ghalamif/insightcap/internal/ports"
)

// Recordings are a plain concatenation of CBOR-encoded RawMessages, zstd
// compressed when the file name ends in ".zst".
func compressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// Replay reads a recording. With pacing on, each message is released only
// once the wall time since the first message reaches its recorded hardware
// time offset.
type Replay struct {
	f   *os.File
	zr  *zstd.Decoder
	dec *cbor.Decoder

	pace    bool
	now     func() time.Time
	started time.Time
	first   int64

	pending *domain.RawMessage
	done    bool
	read    int
}

func OpenReplay(path string, pace bool) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	r := &Replay{f: f, pace: pace, now: time.Now}

	var in io.Reader = bufio.NewReader(f)
	if compressed(path) {
		zr, err := zstd.NewReader(in)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		r.zr = zr
		in = zr
	}
	r.dec = codec.DecoderMode().NewDecoder(in)
	return r, nil
}

func (r *Replay) TryNext() (*domain.RawMessage, error) {
	if r.done {
		return nil, nil
	}
	if r.pending == nil {
		var m domain.RawMessage
		if err := r.dec.Decode(&m); err != nil {
			r.done = true
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: recording message %d: %v", ports.ErrTransport, r.read+1, err)
		}
		r.read++
		r.pending = &m
	}

	if r.pace {
		ticks := r.pending.Header.HardwareMicros
		if r.started.IsZero() {
			r.started = r.now()
			r.first = ticks
		}
		due := time.Duration(ticks-r.first) * time.Microsecond
		if r.now().Sub(r.started) < due {
			return nil, nil
		}
	}

	m := r.pending
	r.pending = nil
	return m, nil
}

// Done reports whether the recording has been read to its end.
func (r *Replay) Done() bool { return r.done && r.pending == nil }

// Read returns how many messages have been decoded so far.
func (r *Replay) Read() int { return r.read }

func (r *Replay) Close() error {
	if r.zr != nil {
		r.zr.Close()
	}
	return r.f.Close()
}

var _ ports.FiniteSource = (*Replay)(nil)

// Recording appends RawMessages to a file readable by OpenReplay.
type Recording struct {
	f   *os.File
	bw  *bufio.Writer
	zw  *zstd.Encoder
	enc *cbor.Encoder
	n   int
}

func CreateRecording(path string) (*Recording, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	rec := &Recording{f: f, bw: bufio.NewWriter(f)}

	var out io.Writer = rec.bw
	if compressed(path) {
		zw, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		rec.zw = zw
		out = zw
	}
	rec.enc = codec.EncoderMode().NewEncoder(out)
	return rec, nil
}

func (r *Recording) Append(m *domain.RawMessage) error {
	if err := r.enc.Encode(m); err != nil {
		return fmt.Errorf("record message %d: %w", r.n+1, err)
	}
	r.n++
	return nil
}

func (r *Recording) Count() int { return r.n }

// Close flushes every layer and closes the file.
func (r *Recording) Close() error {
	var errs []error
	if r.zw != nil {
		errs = append(errs, r.zw.Close())
	}
	errs = append(errs, r.bw.Flush(), r.f.Close())
	return errors.Join(errs...)
}
