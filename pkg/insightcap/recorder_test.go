package insightcap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ghalamif/insightcap/internal/adapters/observability"
	"github.com/ghalamif/insightcap/internal/codec"
	"github.com/ghalamif/insightcap/internal/domain"
)

var sessionStart = time.Date(2023, 10, 3, 10, 0, 0, 0, time.UTC)

func testConfig(t *testing.T, kind string) *Config {
	t.Helper()
	t.Setenv("INSIGHTCAP_SOURCE_KIND", kind)
	t.Setenv("INSIGHTCAP_ROOT", t.TempDir())
	t.Setenv("INSIGHTCAP_TIME_ZONE", "UTC")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Metrics.Disabled = true
	cfg.Pump.TickInterval = time.Millisecond
	return cfg
}

func quietLogger() *slog.Logger {
	return observability.NewLogger(ServiceName, slog.LevelError, io.Discard)
}

func hr(t *testing.T, micros int64, rate uint32) *RawMessage {
	t.Helper()
	m, err := codec.NewMessage(domain.Header{Type: domain.MessageHeartRate, HardwareMicros: micros}, codec.HeartRatePayload{Rate: rate})
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	return m
}

func TestRecorderPublishAndRun(t *testing.T) {
	cfg := testConfig(t, SourceMemory)
	hrOnly := Streams{HeartRate: true}
	cfg.Capture.Streams = &hrOnly

	var (
		mu   sync.Mutex
		seen []Record
	)
	reg := prometheus.NewRegistry()
	rec, err := NewRecorder(cfg,
		WithRegistry(reg),
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return sessionStart }),
		WithCallback("collect", func(r Record) error {
			mu.Lock()
			seen = append(seen, r)
			mu.Unlock()
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := rec.Publish(hr(t, 1_696_327_200_000_000+int64(i)*1000, uint32(70+i))); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	rec.EndInput()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rec.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	dir := rec.SessionDir()
	data, err := os.ReadFile(filepath.Join(dir, "HR_20231003_10_00_00.csv"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	want := "Time,HR\n2023-10-03 10:00:00:000,70\n2023-10-03 10:00:00:001,71\n2023-10-03 10:00:00:002,72\n"
	if string(data) != want {
		t.Fatalf("log = %q, want %q", data, want)
	}
	if len(seen) != 3 {
		t.Fatalf("callback saw %d records", len(seen))
	}
	stats, _ := rec.Stats()
	if stats.Written != 3 {
		t.Fatalf("stats = %+v", stats)
	}

	expected := `
# HELP insightcap_records_written_total Records appended to their stream log.
# TYPE insightcap_records_written_total counter
insightcap_records_written_total{stream="heart_rate"} 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), observability.RecordsWritten); err != nil {
		t.Fatalf("records written metric: %v", err)
	}
}

func TestRecorderReplaySource(t *testing.T) {
	cfg := testConfig(t, SourceSynthetic)
	path := filepath.Join(t.TempDir(), "rec.cbor.zst")
	n, err := Synthesize(path, SynthOptions{Config: SyntheticConfig{Seed: 3}, Ticks: 4, Width: 8, Height: 8, Start: sessionStart})
	if err != nil || n != 16 {
		t.Fatalf("synthesize: %d messages, %v", n, err)
	}

	cfg.Source.Kind = SourceReplay
	cfg.Source.Replay.Path = path
	cfg.Camera.Width, cfg.Camera.Height = 8, 8

	rec, err := NewRecorder(cfg, WithRegistry(prometheus.NewRegistry()), WithLogger(quietLogger()),
		WithClock(func() time.Time { return sessionStart }))
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rec.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	stats, _ := rec.Stats()
	if stats.Written != 16 || stats.DecodeErrors != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	frames, err := os.ReadDir(filepath.Join(rec.SessionDir(), "FaceImages_20231003_10_00_00"))
	if err != nil || len(frames) != 4 {
		t.Fatalf("expected 4 frames, got %d (%v)", len(frames), err)
	}
}

func TestRecorderChannelTap(t *testing.T) {
	cfg := testConfig(t, SourceMemory)
	tap, ch, closeTap := NewChannelTap("live", 8)
	defer closeTap()

	rec, err := NewRecorder(cfg, WithRegistry(prometheus.NewRegistry()), WithLogger(quietLogger()), WithTap(tap))
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.Publish(hr(t, 1, 60))

	select {
	case r := <-ch:
		if r.Kind() != HeartRate {
			t.Fatalf("unexpected record kind %s", r.Kind())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("tap did not receive the record")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rec.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := rec.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestChannelTapClosed(t *testing.T) {
	tap, ch, closeTap := NewChannelTap("", 1)
	closeTap()
	if err := tap.Write(&HeartRateRecord{At: "x", Rate: 1}); !errors.Is(err, ErrChannelTapClosed) {
		t.Fatalf("expected ErrChannelTapClosed, got %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
}

func TestTapFailureDoesNotFailWrite(t *testing.T) {
	primary := NewCallbackTap("primary", func(Record) error { return nil })
	w := &teeWriter{
		primary: primary,
		taps:    []RecordWriter{NewCallbackTap("bad", func(Record) error { return errors.New("boom") })},
		obs:     observability.Nop{},
	}
	if err := w.Write(&HeartRateRecord{At: "x", Rate: 1}); err != nil {
		t.Fatalf("tap failure leaked: %v", err)
	}
}

func TestPublishRequiresMemorySource(t *testing.T) {
	cfg := testConfig(t, SourceSynthetic)
	rec, err := NewRecorder(cfg, WithRegistry(prometheus.NewRegistry()), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	if err := rec.Publish(hr(t, 1, 60)); err == nil {
		t.Fatalf("expected publish to fail for synthetic source")
	}
}

func TestMetricsHandler(t *testing.T) {
	cfg := testConfig(t, SourceMemory)
	reg := prometheus.NewRegistry()
	rec, err := NewRecorder(cfg, WithRegistry(reg), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	srv := httptest.NewServer(rec.MetricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v %v", resp, err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "insightcap_poll_duration_seconds") {
		t.Fatalf("metrics output missing poll histogram")
	}
}

func TestNewRecorderRequiresConfig(t *testing.T) {
	if _, err := NewRecorder(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestStartFailureLeavesNoSession(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	cfg := testConfig(t, SourceMemory)
	cfg.Metrics.Disabled = false
	cfg.Metrics.Addr = busy.Addr().String()

	rec, err := NewRecorder(cfg, WithRegistry(prometheus.NewRegistry()), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	if err := rec.Start(context.Background()); err == nil {
		t.Fatalf("expected start to fail while the metrics port is taken")
	}

	entries, err := os.ReadDir(cfg.Capture.Root)
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("failed start left %d entries in the capture root", len(entries))
	}
	if rec.SessionDir() != "" {
		t.Fatalf("no session should be attached after a failed start")
	}
}

func TestStartFailureOnSourceReleasesMetricsPort(t *testing.T) {
	cfg := testConfig(t, SourceMemory)
	cfg.Metrics.Disabled = false
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.Source.Kind = SourceReplay
	cfg.Source.Replay.Path = filepath.Join(t.TempDir(), "missing.cbor")

	rec, err := NewRecorder(cfg, WithRegistry(prometheus.NewRegistry()), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	if err := rec.Start(context.Background()); err == nil {
		t.Fatalf("expected start to fail for a missing recording")
	}
	if rec.MetricsAddr() != "" {
		t.Fatalf("metrics listener still held after a failed start")
	}
	if entries, _ := os.ReadDir(cfg.Capture.Root); len(entries) != 0 {
		t.Fatalf("failed start left %d entries in the capture root", len(entries))
	}
}
