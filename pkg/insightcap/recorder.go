package insightcap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/insightcap/internal/adapters/observability"
	"github.com/ghalamif/insightcap/internal/adapters/source"
	"github.com/ghalamif/insightcap/internal/app/pump"
	"github.com/ghalamif/insightcap/internal/app/session"
	"github.com/ghalamif/insightcap/internal/codec"
)

// ServiceName tags every log line.
const ServiceName = "insightcap"

// RecorderOption customizes the dependencies used by Recorder.
type RecorderOption func(*recorderOverrides)

type recorderOverrides struct {
	source        MessageSource
	observability Observability
	logger        *slog.Logger
	registry      *prometheus.Registry
	taps          []RecordWriter
	now           func() time.Time
}

// WithSource injects a message source in place of the one named by the config.
func WithSource(src MessageSource) RecorderOption {
	return func(o *recorderOverrides) {
		o.source = src
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RecorderOption {
	return func(o *recorderOverrides) {
		o.observability = obs
	}
}

// WithLogger replaces the default JSON logger on stderr.
func WithLogger(l *slog.Logger) RecorderOption {
	return func(o *recorderOverrides) {
		o.logger = l
	}
}

// WithRegistry registers metrics on reg instead of the global registry and
// serves them from it.
func WithRegistry(reg *prometheus.Registry) RecorderOption {
	return func(o *recorderOverrides) {
		o.registry = reg
	}
}

// WithTap forwards every persisted record to w as well.
func WithTap(w RecordWriter) RecorderOption {
	return func(o *recorderOverrides) {
		if w != nil {
			o.taps = append(o.taps, w)
		}
	}
}

// WithCallback is shorthand for WithTap(NewCallbackTap(name, fn)).
func WithCallback(name string, fn RecordFunc) RecorderOption {
	return WithTap(NewCallbackTap(name, fn))
}

// WithClock overrides the time used to name the session.
func WithClock(now func() time.Time) RecorderOption {
	return func(o *recorderOverrides) {
		o.now = now
	}
}

// Recorder wires source → pump → session and exposes lifecycle hooks for
// embedding a capture inside any Go service.
type Recorder struct {
	cfg       *Config
	overrides recorderOverrides
	obs       Observability
	gatherer  prometheus.Gatherer

	mu         sync.Mutex
	src        MessageSource
	memory     *source.Memory
	session    *session.Session
	pump       *pump.Pump
	metricsSrv *http.Server
	metricsLn  net.Listener
	cancel     context.CancelFunc
	pumpDone   chan error
	stopped    bool
}

// NewRecorder validates the wiring without touching the filesystem or the
// network; Start does that.
func NewRecorder(cfg *Config, opts ...RecorderOption) (*Recorder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides recorderOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	r := &Recorder{cfg: cfg, overrides: overrides}

	obs := overrides.observability
	if obs == nil {
		logger := overrides.logger
		if logger == nil {
			level, err := observability.ParseLevel(cfg.Log.Level)
			if err != nil {
				return nil, err
			}
			logger = observability.NewLogger(ServiceName, level, os.Stderr)
		}
		if overrides.registry != nil {
			obs = observability.NewPromObs(logger, overrides.registry)
		} else {
			obs = observability.NewPromObs(logger, nil)
		}
	}
	r.obs = obs

	if overrides.registry != nil {
		r.gatherer = overrides.registry
	} else {
		r.gatherer = prometheus.DefaultGatherer
	}

	if overrides.source == nil && cfg.Source.Kind == SourceMemory {
		r.memory = source.NewMemory()
	}
	return r, nil
}

// Config returns the configuration the recorder was built with.
func (r *Recorder) Config() *Config { return r.cfg }

// Publish feeds a message to a recorder whose source kind is "memory".
func (r *Recorder) Publish(m *RawMessage) error {
	if r.memory == nil {
		return fmt.Errorf("publish requires source kind %q", SourceMemory)
	}
	r.memory.Push(m)
	return nil
}

// EndInput tells a memory-sourced recorder that no more messages will be
// published; Run returns once they are drained.
func (r *Recorder) EndInput() {
	if r.memory != nil {
		r.memory.CloseInput()
	}
}

func (r *Recorder) openSource(ctx context.Context) (MessageSource, error) {
	if r.overrides.source != nil {
		return r.overrides.source, nil
	}
	if r.memory != nil {
		return r.memory, nil
	}

	sc := r.cfg.Source
	switch sc.Kind {
	case SourceReplay:
		return source.OpenReplay(sc.Replay.Path, sc.Replay.Pace)
	case SourceSynthetic:
		return source.NewSynthetic(source.SyntheticConfig{
			Seed:        sc.Synthetic.Seed,
			HeartRate:   sc.Synthetic.HeartRate,
			FrameRate:   sc.Synthetic.FrameRate,
			ImuBatch:    sc.Synthetic.ImuBatch,
			FrameWidth:  r.cfg.Camera.Width,
			FrameHeight: r.cfg.Camera.Height,
			Location:    r.cfg.Camera.Location,
		}, 0), nil
	case SourceWebSocket:
		return source.DialBridge(ctx, source.BridgeConfig{
			URL:              sc.WebSocket.URL,
			HandshakeTimeout: sc.WebSocket.HandshakeTimeout,
			Policy:           sc.WebSocket.Policy,
		}, r.obs)
	default:
		return nil, fmt.Errorf("unsupported source kind %q", sc.Kind)
	}
}

// Start opens the session and the source, launches the pump and the metrics
// server, and returns immediately.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pump != nil {
		return fmt.Errorf("recorder already started")
	}

	// Everything fallible that creates no files runs before the session
	// exists, so a failed start leaves nothing on disk.
	if !r.cfg.Metrics.Disabled {
		if err := r.startMetrics(); err != nil {
			return err
		}
	}

	src, err := r.openSource(ctx)
	if err != nil {
		r.stopMetrics()
		return fmt.Errorf("open source: %w", err)
	}

	streams := AllStreams()
	if r.cfg.Capture.Streams != nil {
		streams = *r.cfg.Capture.Streams
	}

	sess, err := session.Open(session.Options{
		Capture: streams,
		Root:    r.cfg.Capture.Root,
		Frames:  r.cfg.FrameWriter(),
		Clocks:  r.cfg.CodecOptions().Clocks,
		Now:     r.overrides.now,
		Obs:     r.obs,
	})
	if err != nil {
		closeIfCloser(src)
		r.stopMetrics()
		return fmt.Errorf("open session: %w", err)
	}

	var w RecordWriter = sess
	if len(r.overrides.taps) > 0 {
		w = &teeWriter{primary: sess, taps: r.overrides.taps, obs: r.obs}
	}
	table := codec.NewTable(streams, r.cfg.CodecOptions())

	r.src = src
	r.session = sess
	r.pump = pump.New(src, table, w, r.obs)

	pumpCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.pumpDone = make(chan error, 1)
	go func() {
		r.pumpDone <- r.pump.Run(pumpCtx, r.cfg.Pump.TickInterval)
		close(r.pumpDone)
	}()
	return nil
}

// Run starts the recorder and blocks until ctx is cancelled or a finite
// source is exhausted, then shuts down gracefully.
func (r *Recorder) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}

	var pumpErr error
	select {
	case <-ctx.Done():
	case pumpErr = <-r.pumpDone:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(pumpErr, r.Shutdown(shutdownCtx))
}

// Shutdown stops the pump after a final drain, then closes the source, the
// session and the metrics server.
func (r *Recorder) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.pump == nil {
		return nil
	}
	r.stopped = true

	var errs []error
	r.cancel()
	select {
	case err := <-r.pumpDone:
		if err != nil {
			errs = append(errs, err)
		}
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("pump did not stop: %w", ctx.Err()))
	}

	if err := closeIfCloser(r.src); err != nil {
		errs = append(errs, fmt.Errorf("close source: %w", err))
	}
	if err := r.session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close session: %w", err))
	}
	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SessionDir is the directory of the running session, or "" before Start.
func (r *Recorder) SessionDir() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return ""
	}
	return r.session.Dir
}

// Stats returns the accumulated pump counters and the number of polls.
func (r *Recorder) Stats() (Stats, uint64) {
	r.mu.Lock()
	p := r.pump
	r.mu.Unlock()
	if p == nil {
		return Stats{}, 0
	}
	return p.Totals()
}

// MetricsAddr is the bound metrics address once Start has run.
func (r *Recorder) MetricsAddr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.metricsLn == nil {
		return ""
	}
	return r.metricsLn.Addr().String()
}

// MetricsHandler serves /metrics and /healthz.
func (r *Recorder) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (r *Recorder) startMetrics() error {
	ln, err := net.Listen("tcp", r.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", r.cfg.Metrics.Addr, err)
	}
	r.metricsLn = ln
	r.metricsSrv = &http.Server{
		Handler:           r.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := r.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("metrics_server_exited", err)
		}
	}()
	return nil
}

func (r *Recorder) stopMetrics() {
	if r.metricsSrv != nil {
		_ = r.metricsSrv.Close()
	}
	if r.metricsLn != nil {
		_ = r.metricsLn.Close()
	}
	r.metricsSrv = nil
	r.metricsLn = nil
}

func closeIfCloser(v any) error {
	if c, ok := v.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
