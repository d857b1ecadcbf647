package observability

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/insightcap/internal/ports"
)

// Metric names.
const (
	MessagesDecoded   = "insightcap_messages_decoded_total"
	RecordsWritten    = "insightcap_records_written_total"
	DecodeErrors      = "insightcap_decode_errors_total"
	WriteErrors       = "insightcap_write_errors_total"
	FramesWritten     = "insightcap_frames_written_total"
	TransportErrors   = "insightcap_transport_errors_total"
	SourceDropped     = "insightcap_source_dropped_total"
	LogSizeBytes      = "insightcap_log_size_bytes"
	SourceQueueLength = "insightcap_source_queue_length"
	PollLatency       = "insightcap_poll_duration_seconds"
)

type PromObs struct {
	log *slog.Logger

	counters       map[string]prometheus.Counter
	streamCounters map[string]*prometheus.CounterVec
	gauges         map[string]prometheus.Gauge
	streamGauges   map[string]*prometheus.GaugeVec
	histos         map[string]prometheus.Observer
}

// NewPromObs registers the capture metrics with reg (the default registerer
// when nil) and logs through logger.
func NewPromObs(logger *slog.Logger, reg prometheus.Registerer) *PromObs {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	decoded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: MessagesDecoded,
		Help: "Messages decoded into records, by stream.",
	}, []string{"stream"})
	written := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: RecordsWritten,
		Help: "Records appended to their stream log.",
	}, []string{"stream"})
	decodeErrs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: DecodeErrors,
		Help: "Messages of an enabled stream that could not be decoded.",
	}, []string{"stream"})
	writeErrs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: WriteErrors,
		Help: "Records that failed to persist.",
	}, []string{"stream"})
	frames := prometheus.NewCounter(prometheus.CounterOpts{
		Name: FramesWritten,
		Help: "Camera frames written as PNG files.",
	})
	transport := prometheus.NewCounter(prometheus.CounterOpts{
		Name: TransportErrors,
		Help: "Polls cut short because the message source failed.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: SourceDropped,
		Help: "Messages lost because the source buffer was full.",
	})
	logSize := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: LogSizeBytes,
		Help: "Size of each stream log on disk.",
	}, []string{"stream"})
	queueLen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: SourceQueueLength,
		Help: "Messages buffered by the source and not yet polled.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    PollLatency,
		Help:    "Time spent draining the source in one poll.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	reg.MustRegister(decoded, written, decodeErrs, writeErrs, frames, transport, dropped, logSize, queueLen, latency)

	return &PromObs{
		log: logger,
		counters: map[string]prometheus.Counter{
			FramesWritten:   frames,
			TransportErrors: transport,
			SourceDropped:   dropped,
		},
		streamCounters: map[string]*prometheus.CounterVec{
			MessagesDecoded: decoded,
			RecordsWritten:  written,
			DecodeErrors:    decodeErrs,
			WriteErrors:     writeErrs,
		},
		gauges: map[string]prometheus.Gauge{
			SourceQueueLength: queueLen,
		},
		streamGauges: map[string]*prometheus.GaugeVec{
			LogSizeBytes: logSize,
		},
		histos: map[string]prometheus.Observer{
			PollLatency: latency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, attrs(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(attrs(fields), slog.Any("error", err))...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(attrs(fields), slog.Any("error", err), slog.Bool("critical", true))...)
}

func (p *PromObs) IncCounter(name, stream string, v float64) {
	if vec, ok := p.streamCounters[name]; ok {
		vec.WithLabelValues(stream).Add(v)
		return
	}
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name, stream string, v float64) {
	if vec, ok := p.streamGauges[name]; ok {
		vec.WithLabelValues(stream).Set(v)
		return
	}
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func attrs(fields []ports.Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
