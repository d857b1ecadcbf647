package pump

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ghalamif/insightcap/internal/adapters/observability"
	"github.com/ghalamif/insightcap/internal/codec"
	"github.com/ghalamif/insightcap/internal/domain"
	"github.com/ghalamif/insightcap/internal/ports"
)

// DecodeError is a message of an enabled stream that could not be decoded.
type DecodeError struct {
	Kind domain.StreamKind
	Type domain.MessageType
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Result counts what one drain did.
type Result struct {
	Retrieved int
	Written   int
	// Discarded counts messages of disabled or unknown types and camera frames
	// rejected by the location filter.
	Discarded    int
	DecodeErrors int
	WriteErrors  int
	Transport    bool
}

func (r *Result) add(o Result) {
	r.Retrieved += o.Retrieved
	r.Written += o.Written
	r.Discarded += o.Discarded
	r.DecodeErrors += o.DecodeErrors
	r.WriteErrors += o.WriteErrors
	r.Transport = r.Transport || o.Transport
}

// Pump relays messages from a source to a writer. It holds no buffer of its
// own: every message it retrieves is decoded and written before the next one.
type Pump struct {
	Source ports.MessageSource
	Table  codec.Table
	Writer ports.RecordWriter
	Obs    ports.Observability

	mu     sync.Mutex
	totals Result
	polls  uint64
}

func New(src ports.MessageSource, table codec.Table, w ports.RecordWriter, obs ports.Observability) *Pump {
	if obs == nil {
		obs = observability.Nop{}
	}
	return &Pump{Source: src, Table: table, Writer: w, Obs: obs}
}

// PollOnce drains src into w without logging or metrics.
func PollOnce(src ports.MessageSource, table codec.Table, w ports.RecordWriter) (Result, error) {
	return New(src, table, w, nil).PollOnce()
}

// PollOnce drains the source until it has nothing queued. A transport
// failure ends the drain and is not retried until the next poll. Decode and
// write failures are collected while the drain continues.
func (p *Pump) PollOnce() (Result, error) {
	var (
		res  Result
		errs []error
	)
	for {
		raw, err := p.Source.TryNext()
		if err != nil {
			res.Transport = true
			p.Obs.IncCounter(observability.TransportErrors, "", 1)
			p.Obs.LogError("transport_retrieve_failed", err)
			if !errors.Is(err, ports.ErrTransport) {
				err = fmt.Errorf("%w: %v", ports.ErrTransport, err)
			}
			errs = append(errs, err)
			break
		}
		if raw == nil {
			break
		}
		res.Retrieved++

		entry, ok := p.Table.Lookup(raw.Header.Type)
		if !ok {
			res.Discarded++
			continue
		}
		stream := entry.Kind.String()

		rec, err := entry.Decoder.Decode(raw)
		if err != nil {
			res.DecodeErrors++
			derr := &DecodeError{Kind: entry.Kind, Type: raw.Header.Type, Err: err}
			p.Obs.IncCounter(observability.DecodeErrors, stream, 1)
			p.Obs.LogError("decode_failed", err, ports.Field{Key: "stream", Value: stream})
			errs = append(errs, derr)
			continue
		}
		if rec == nil {
			res.Discarded++
			continue
		}
		p.Obs.IncCounter(observability.MessagesDecoded, stream, 1)

		if err := p.Writer.Write(rec); err != nil {
			res.WriteErrors++
			p.Obs.LogError("write_failed", err,
				ports.Field{Key: "stream", Value: stream},
				ports.Field{Key: "time", Value: rec.Time()})
			errs = append(errs, err)
			continue
		}
		res.Written++
	}

	p.mu.Lock()
	p.totals.add(res)
	p.polls++
	p.mu.Unlock()
	return res, errors.Join(errs...)
}

// Run polls on every tick until ctx is cancelled or a finite source is
// exhausted. Per-message failures are logged by PollOnce and never stop the
// session.
func (p *Pump) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 11 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	finite, _ := p.Source.(ports.FiniteSource)
	for {
		select {
		case <-ctx.Done():
			// One last drain so nothing already delivered is lost.
			p.poll()
			return nil
		case <-ticker.C:
			p.poll()
			if finite != nil && finite.Done() {
				return nil
			}
		}
	}
}

func (p *Pump) poll() {
	start := time.Now()
	_, _ = p.PollOnce()
	p.Obs.ObserveLatency(observability.PollLatency, time.Since(start).Seconds())
}

// Totals returns the accumulated results of every poll so far.
func (p *Pump) Totals() (Result, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totals, p.polls
}
