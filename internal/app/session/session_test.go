package session

import (
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ghalamif/insightcap/internal/adapters/frames"
	"github.com/ghalamif/insightcap/internal/codec"
	"github.com/ghalamif/insightcap/internal/domain"
)

var fixedStart = time.Date(2023, 10, 3, 10, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return fixedStart }
}

func listTree(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		out = append(out, rel)
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return out
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestOpenCreatesLayout(t *testing.T) {
	root := t.TempDir()
	s, err := Open(Options{Capture: domain.AllEnabled(), Root: root, Now: fixedClock()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	wantDir := filepath.Join(root, "20231003_10_00_00_captures")
	if s.Dir != wantDir {
		t.Fatalf("dir = %s, want %s", s.Dir, wantDir)
	}
	for _, kind := range domain.AllStreams {
		path := filepath.Join(wantDir, kind.FilePrefix()+"_20231003_10_00_00.csv")
		lines := readLines(t, path)
		if len(lines) != 1 || lines[0] != strings.Join(domain.Schema(kind), ",") {
			t.Fatalf("%s: unexpected content %q", kind, lines)
		}
	}
	if fi, err := os.Stat(filepath.Join(wantDir, "FaceImages_20231003_10_00_00")); err != nil || !fi.IsDir() {
		t.Fatalf("frame dir missing: %v", err)
	}

	m, err := ReadManifest(wantDir)
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if m.ID != s.ID || len(m.Streams) != 4 || m.Frame == nil || m.Frame.Width != codec.DefaultFrameWidth {
		t.Fatalf("unexpected manifest %+v", m)
	}
}

func TestHeartRateEndToEnd(t *testing.T) {
	root := t.TempDir()
	s, err := Open(Options{Capture: domain.CaptureConfig{HeartRate: true}, Root: root, Now: fixedClock()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	norm := domain.Normalizer{Location: time.UTC}
	raw, err := codec.NewMessage(domain.Header{Type: domain.MessageHeartRate, HardwareMicros: 1_696_327_200_123_999}, codec.HeartRatePayload{Rate: 72})
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	rec, err := codec.HeartRateDecoder{Options: codec.Options{Normalizer: norm}}.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := s.Write(rec); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines := readLines(t, filepath.Join(s.Dir, "HR_20231003_10_00_00.csv"))
	want := []string{"Time,HR", "2023-10-03 10:00:00:123,72"}
	if len(lines) != len(want) || lines[0] != want[0] || lines[1] != want[1] {
		t.Fatalf("got %q, want %q", lines, want)
	}
	for _, name := range []string{"Eye_20231003_10_00_00.csv", "Face_20231003_10_00_00.csv", "IMU_20231003_10_00_00.csv", "FaceImages_20231003_10_00_00"} {
		if _, err := os.Stat(filepath.Join(s.Dir, name)); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("%s should not exist (err=%v)", name, err)
		}
	}

	m, err := ReadManifest(s.Dir)
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if m.EndedAt == nil || len(m.Streams) != 1 || m.Streams[0].Rows != 1 || m.Streams[0].Clock != "hardware" {
		t.Fatalf("unexpected manifest %+v", m)
	}
}

func TestWriteDisabledStreamTouchesNothing(t *testing.T) {
	root := t.TempDir()
	s, err := Open(Options{Capture: domain.CaptureConfig{HeartRate: true}, Root: root, Now: fixedClock()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	before := listTree(t, root)
	err = s.Write(&domain.ImuRecord{At: "2023-10-03 10:00:00:000", Samples: []domain.ImuSample{{Index: 0}}})
	var se *StreamError
	if !errors.As(err, &se) || !errors.Is(err, ErrStreamDisabled) || se.Kind != domain.Imu {
		t.Fatalf("expected disabled stream error, got %v", err)
	}
	after := listTree(t, root)
	if strings.Join(before, "|") != strings.Join(after, "|") {
		t.Fatalf("tree changed: %v -> %v", before, after)
	}
}

func TestCameraWriteProducesFrame(t *testing.T) {
	root := t.TempDir()
	s, err := Open(Options{
		Capture: domain.CaptureConfig{Camera: true},
		Root:    root,
		Now:     fixedClock(),
		Frames:  frames.Writer{Width: 4, Height: 2},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	rec := &domain.CameraFrameRecord{At: "2023-10-03 10:00:00:500", FrameNumber: 7, FPS: 30, Width: 4, Height: 2, Pixels: make([]byte, 8)}
	if err := s.Write(rec); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, _ := s.Handle(domain.CameraFrame)
	f, err := os.Open(filepath.Join(h.FrameDir, frames.FileName(7, rec.At)))
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 2 {
		t.Fatalf("bounds = %v", b)
	}
	lines := readLines(t, h.Log.Path())
	if len(lines) != 2 || lines[1] != "2023-10-03 10:00:00:500,7,30" {
		t.Fatalf("unexpected log %q", lines)
	}
}

func TestWriteAfterClose(t *testing.T) {
	s, err := Open(Options{Capture: domain.CaptureConfig{HeartRate: true}, Root: t.TempDir(), Now: fixedClock()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := s.Write(&domain.HeartRateRecord{At: "x", Rate: 1}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestReopenKeepsSingleHeader(t *testing.T) {
	root := t.TempDir()
	opts := Options{Capture: domain.CaptureConfig{HeartRate: true}, Root: root, Now: fixedClock()}
	s, err := Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Write(&domain.HeartRateRecord{At: "a", Rate: 60}); err != nil {
		t.Fatalf("write: %v", err)
	}
	s.Close()

	s2, err := Open(opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	lines := readLines(t, filepath.Join(s2.Dir, "HR_20231003_10_00_00.csv"))
	if len(lines) != 2 || lines[0] != "Time,HR" {
		t.Fatalf("unexpected content %q", lines)
	}
}

func TestOpenNoStreams(t *testing.T) {
	root := t.TempDir()
	if _, err := Open(Options{Root: root}); !errors.Is(err, ErrNoStreams) {
		t.Fatalf("expected ErrNoStreams, got %v", err)
	}
	if entries, _ := os.ReadDir(root); len(entries) != 0 {
		t.Fatalf("root should be untouched, has %d entries", len(entries))
	}
}

func TestOpenFailureKeepsExistingDir(t *testing.T) {
	root := t.TempDir()
	// A directory where the HR log should go makes the header write fail.
	dir := filepath.Join(root, "20231003_10_00_00_captures")
	if err := os.MkdirAll(filepath.Join(dir, "HR_20231003_10_00_00.csv"), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := Open(Options{Capture: domain.CaptureConfig{HeartRate: true}, Root: root, Now: fixedClock()}); err == nil {
		t.Fatalf("expected failure when log path is a directory")
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("pre-existing session dir removed: %v", err)
	}
}

func TestMakeDirsCleanupRemovesOnlyCreated(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "a", "b", "c")
	cleanup, err := makeDirs(target)
	if err != nil {
		t.Fatalf("makeDirs: %v", err)
	}
	cleanup()
	if _, err := os.Stat(filepath.Join(base, "a")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("created parents should be removed, err=%v", err)
	}
	if _, err := os.Stat(base); err != nil {
		t.Fatalf("base removed: %v", err)
	}
}

func TestCameraFrameFailureLeavesNoRow(t *testing.T) {
	s, err := Open(Options{
		Capture: domain.CaptureConfig{Camera: true},
		Root:    t.TempDir(),
		Now:     fixedClock(),
		Frames:  frames.Writer{Width: 4, Height: 2},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	h, _ := s.Handle(domain.CameraFrame)
	if err := os.RemoveAll(h.FrameDir); err != nil {
		t.Fatalf("remove frame dir: %v", err)
	}
	rec := &domain.CameraFrameRecord{At: "2023-10-03 10:00:00:500", FrameNumber: 1, FPS: 30, Width: 4, Height: 2, Pixels: make([]byte, 8)}
	var se *StreamError
	if err := s.Write(rec); !errors.As(err, &se) || se.Kind != domain.CameraFrame {
		t.Fatalf("expected camera StreamError, got %v", err)
	}
	if lines := readLines(t, h.Log.Path()); len(lines) != 1 {
		t.Fatalf("row persisted without its frame: %q", lines)
	}
	if rows := h.Log.Stats().Rows; rows != 0 {
		t.Fatalf("rows = %d, want 0", rows)
	}
}

func TestCameraRowFailureRemovesFrame(t *testing.T) {
	s, err := Open(Options{
		Capture: domain.CaptureConfig{Camera: true},
		Root:    t.TempDir(),
		Now:     fixedClock(),
		Frames:  frames.Writer{Width: 4, Height: 2},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	// A directory in place of the log makes every append fail.
	h, _ := s.Handle(domain.CameraFrame)
	if err := os.Remove(h.Log.Path()); err != nil {
		t.Fatalf("remove log: %v", err)
	}
	if err := os.Mkdir(h.Log.Path(), 0o755); err != nil {
		t.Fatalf("block log: %v", err)
	}

	rec := &domain.CameraFrameRecord{At: "2023-10-03 10:00:00:500", FrameNumber: 2, FPS: 30, Width: 4, Height: 2, Pixels: make([]byte, 8)}
	if err := s.Write(rec); err == nil {
		t.Fatalf("expected append failure")
	}
	entries, err := os.ReadDir(h.FrameDir)
	if err != nil {
		t.Fatalf("read frame dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("frame left behind without its row: %v", entries)
	}
}

func TestReopenContinuesSession(t *testing.T) {
	root := t.TempDir()
	opts := Options{Capture: domain.CaptureConfig{HeartRate: true}, Root: root, Now: fixedClock()}
	s, err := Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, at := range []string{"a", "b"} {
		if err := s.Write(&domain.HeartRateRecord{At: at, Rate: 60}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if s2.ID != s.ID {
		t.Fatalf("reopen changed session id %q -> %q", s.ID, s2.ID)
	}
	if err := s2.Write(&domain.HeartRateRecord{At: "c", Rate: 61}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s2.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	m, err := ReadManifest(s2.Dir)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if m.ID != s.ID || len(m.Streams) != 1 || m.Streams[0].Rows != 3 {
		t.Fatalf("unexpected manifest %+v", m)
	}
}
