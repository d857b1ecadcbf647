package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/insightcap/internal/adapters/csvlog"
	"github.com/ghalamif/insightcap/internal/adapters/frames"
	"github.com/ghalamif/insightcap/internal/adapters/observability"
	"github.com/ghalamif/insightcap/internal/codec"
	"github.com/ghalamif/insightcap/internal/domain"
	"github.com/ghalamif/insightcap/internal/ports"
)

// StampLayout names the session directory and its files.
const StampLayout = "20060102_15_04_05"

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrStreamDisabled = errors.New("stream not enabled in this session")
	ErrNoStreams      = errors.New("no streams enabled")
)

// StreamError is a persistence failure for one record.
type StreamError struct {
	Kind domain.StreamKind
	Time string
	Err  error
}

func (e *StreamError) Error() string {
	if e.Time == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s at %s: %v", e.Kind, e.Time, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

type Options struct {
	Capture domain.CaptureConfig
	// Root is the parent of the session directory; the working directory
	// when empty.
	Root   string
	Frames frames.Writer
	Clocks codec.ClockPlan
	Now    func() time.Time
	Obs    ports.Observability
}

// StreamHandle owns one stream's log and, for the camera, its frame directory
// and scratch buffer.
type StreamHandle struct {
	Kind     domain.StreamKind
	Log      *csvlog.Log
	FrameDir string
	scratch  *frames.Scratch
}

// Session is one capture run. It is not safe for concurrent use; the pump
// writes from a single goroutine.
type Session struct {
	ID        string
	Dir       string
	Stamp     string
	CreatedAt time.Time
	Capture   domain.CaptureConfig

	handles  map[domain.StreamKind]*StreamHandle
	frames   frames.Writer
	obs      ports.Observability
	now      func() time.Time
	manifest Manifest
	closed   bool
}

// Open creates the session directory tree and every enabled stream's log with
// its header. On failure nothing created by this call is left behind.
func Open(opts Options) (s *Session, err error) {
	if !opts.Capture.Any() {
		return nil, ErrNoStreams
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Obs == nil {
		opts.Obs = observability.Nop{}
	}
	if opts.Frames.Width <= 0 {
		opts.Frames.Width = codec.DefaultFrameWidth
	}
	if opts.Frames.Height <= 0 {
		opts.Frames.Height = codec.DefaultFrameHeight
	}
	root := opts.Root
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
	}

	created := opts.Now()
	stamp := created.Format(StampLayout)
	dir := filepath.Join(root, stamp+"_captures")

	cleanup, err := makeDirs(dir)
	if err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	defer func() {
		if err != nil {
			cleanup()
		}
	}()

	s = &Session{
		ID:        uuid.NewString(),
		Dir:       dir,
		Stamp:     stamp,
		CreatedAt: created,
		Capture:   opts.Capture,
		handles:   make(map[domain.StreamKind]*StreamHandle, 4),
		frames:    opts.Frames,
		obs:       opts.Obs,
		now:       opts.Now,
	}

	for _, kind := range opts.Capture.EnabledStreams() {
		h, err := s.openStream(kind)
		if err != nil {
			return nil, fmt.Errorf("open %s stream: %w", kind, err)
		}
		s.handles[kind] = h
	}

	// Reopening a directory in the same second continues the same session.
	if prev, err := ReadManifest(dir); err == nil && prev.ID != "" {
		s.ID = prev.ID
	}
	s.manifest = newManifest(s, opts.Clocks)
	if err := writeManifest(dir, s.manifest); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	s.obs.LogInfo("capture_started",
		ports.Field{Key: "session_id", Value: s.ID},
		ports.Field{Key: "dir", Value: dir},
		ports.Field{Key: "streams", Value: streamNames(opts.Capture)})
	return s, nil
}

func (s *Session) openStream(kind domain.StreamKind) (*StreamHandle, error) {
	path := filepath.Join(s.Dir, kind.FilePrefix()+"_"+s.Stamp+".csv")
	lg, err := csvlog.Open(path, kind)
	if err != nil {
		return nil, err
	}
	if err := lg.EnsureHeader(); err != nil {
		return nil, err
	}
	h := &StreamHandle{Kind: kind, Log: lg}

	if kind == domain.CameraFrame {
		h.FrameDir = filepath.Join(s.Dir, "FaceImages_"+s.Stamp)
		if err := os.MkdirAll(h.FrameDir, 0o755); err != nil {
			return nil, err
		}
		h.scratch = s.frames.NewScratch()
	}
	return h, nil
}

// makeDirs creates dir and any missing parents, returning a func that removes
// only what was created.
func makeDirs(dir string) (func(), error) {
	var fresh []string
	for p := filepath.Clean(dir); ; p = filepath.Dir(p) {
		if _, err := os.Stat(p); err == nil {
			break
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		fresh = append(fresh, p)
		if parent := filepath.Dir(p); parent == p {
			break
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return func() {
		if len(fresh) > 0 {
			// fresh is ordered leaf first; the outermost new dir holds the rest.
			_ = os.RemoveAll(fresh[len(fresh)-1])
		}
	}, nil
}

// Handle returns the stream handle for kind, if enabled.
func (s *Session) Handle(kind domain.StreamKind) (*StreamHandle, bool) {
	h, ok := s.handles[kind]
	return h, ok
}

// Write appends rec to its stream's log; camera records also produce a PNG.
func (s *Session) Write(rec domain.Record) error {
	kind := rec.Kind()
	if s.closed {
		return &StreamError{Kind: kind, Time: rec.Time(), Err: ErrSessionClosed}
	}
	h, ok := s.handles[kind]
	if !ok {
		return &StreamError{Kind: kind, Time: rec.Time(), Err: ErrStreamDisabled}
	}

	// A camera record is its frame plus its row: the frame goes first and is
	// removed again if the row cannot be appended.
	var framePath string
	if cam, ok := rec.(*domain.CameraFrameRecord); ok {
		path, err := s.frames.Write(h.scratch, h.FrameDir, cam)
		if err != nil {
			s.obs.IncCounter(observability.WriteErrors, kind.String(), 1)
			return &StreamError{Kind: kind, Time: rec.Time(), Err: err}
		}
		framePath = path
	}

	if err := h.Log.Append(rec); err != nil {
		if framePath != "" {
			_ = os.Remove(framePath)
		}
		s.obs.IncCounter(observability.WriteErrors, kind.String(), 1)
		return &StreamError{Kind: kind, Time: rec.Time(), Err: err}
	}
	s.obs.IncCounter(observability.RecordsWritten, kind.String(), 1)
	s.obs.SetGauge(observability.LogSizeBytes, kind.String(), float64(h.Log.Stats().SizeBytes))
	if framePath != "" {
		s.obs.IncCounter(observability.FramesWritten, "", 1)
	}
	return nil
}

// Close finalizes the manifest. Logs need no flush since every append is
// already on disk. Close is idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	ended := s.now()
	s.manifest.EndedAt = &ended
	for i := range s.manifest.Streams {
		ms := &s.manifest.Streams[i]
		if h, ok := s.handles[ms.kind]; ok {
			ms.Rows = h.Log.Stats().Rows
		}
	}
	err := writeManifest(s.Dir, s.manifest)

	s.obs.LogInfo("capture_ended",
		ports.Field{Key: "session_id", Value: s.ID},
		ports.Field{Key: "dir", Value: s.Dir},
		ports.Field{Key: "duration", Value: ended.Sub(s.CreatedAt).String()})
	return err
}

func streamNames(c domain.CaptureConfig) []string {
	var out []string
	for _, k := range c.EnabledStreams() {
		out = append(out, k.String())
	}
	return out
}

var _ ports.RecordWriter = (*Session)(nil)
