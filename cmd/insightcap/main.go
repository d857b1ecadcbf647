package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ghalamif/insightcap"
	"github.com/ghalamif/insightcap/internal/app/session"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "synth":
		err = synthCommand(os.Args[2:])
	case "inspect":
		err = inspectCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("insightcap %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", "", "Path to capture configuration file (defaults plus INSIGHTCAP_* env when empty)")
	root := fs.String("root", "", "Directory that receives the session folder")
	replay := fs.String("replay", "", "Replay a recording instead of the configured source")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := insightcap.LoadEnvFiles(); err != nil {
		return err
	}
	// Flags go through the environment so they win over the file before validation.
	if *root != "" {
		os.Setenv("INSIGHTCAP_ROOT", *root)
	}
	if *replay != "" {
		os.Setenv("INSIGHTCAP_SOURCE_KIND", insightcap.SourceReplay)
		os.Setenv("INSIGHTCAP_REPLAY_PATH", *replay)
	}
	cfg, err := insightcap.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rec, err := insightcap.NewRecorder(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rec.Run(ctx); err != nil {
		return err
	}
	stats, polls := rec.Stats()
	fmt.Printf("session %s: %d records written, %d discarded, %d decode errors, %d write errors over %d polls\n",
		rec.SessionDir(), stats.Written, stats.Discarded, stats.DecodeErrors, stats.WriteErrors, polls)
	return nil
}

func validateCommand(args []string) error {
	fs := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", "./config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := insightcap.LoadEnvFiles(); err != nil {
		return err
	}
	cfg, err := insightcap.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	var streams []string
	for _, k := range cfg.Capture.Streams.EnabledStreams() {
		streams = append(streams, k.String())
	}
	fmt.Printf("config %s looks good: source=%s streams=%s\n", *cfgPath, cfg.Source.Kind, strings.Join(streams, ","))
	return nil
}

func synthCommand(args []string) error {
	fs := pflag.NewFlagSet("synth", pflag.ContinueOnError)
	out := fs.StringP("out", "o", "synthetic.cbor.zst", "Recording to write (.zst suffix compresses)")
	ticks := fs.Int("ticks", 300, "Rounds of messages; each round has one message per stream")
	seed := fs.Int64("seed", 1, "Random seed")
	width := fs.Int("width", 400, "Camera frame width")
	height := fs.Int("height", 400, "Camera frame height")
	location := fs.String("location", "", "Camera sensor location stamped on frames")
	if err := fs.Parse(args); err != nil {
		return err
	}

	n, err := insightcap.Synthesize(*out, insightcap.SynthOptions{
		Config:   insightcap.SyntheticConfig{Seed: *seed},
		Ticks:    *ticks,
		Width:    *width,
		Height:   *height,
		Location: *location,
	})
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d messages to %s\n", n, *out)
	return nil
}

func inspectCommand(args []string) error {
	fs := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: insightcap inspect <session-dir>")
	}

	m, err := session.ReadManifest(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("session %s\nstarted %s\n", m.ID, m.StartedAt.Format(time.RFC3339))
	if m.EndedAt != nil {
		fmt.Printf("ended   %s (%s)\n", m.EndedAt.Format(time.RFC3339), m.EndedAt.Sub(m.StartedAt).Round(time.Second))
	} else {
		fmt.Println("ended   (capture did not finish cleanly)")
	}
	for _, s := range m.Streams {
		fmt.Printf("  %-13s %-32s clock=%-9s rows=%d\n", s.Name, s.File, s.Clock, s.Rows)
	}
	if m.Frame != nil {
		fmt.Printf("  frames %dx%d in %s\n", m.Frame.Width, m.Frame.Height, m.Frame.Dir)
	}
	return nil
}

func statsCommand(args []string) error {
	fs := pflag.NewFlagSet("stats", pflag.ContinueOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

// printMetricsSnapshot sums each capture metric across its stream labels and
// shows the per-stream written counts.
func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	totals := map[string]float64{}
	perStream := map[string]float64{}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || !strings.HasPrefix(line, "insightcap_") {
			continue
		}
		sp := strings.LastIndexByte(line, ' ')
		if sp < 0 {
			continue
		}
		value, err := strconv.ParseFloat(line[sp+1:], 64)
		if err != nil {
			continue
		}
		series := line[:sp]
		name, labels, _ := strings.Cut(series, "{")
		totals[name] += value
		if name == "insightcap_records_written_total" {
			if _, rest, ok := strings.Cut(labels, `stream="`); ok {
				stream, _, _ := strings.Cut(rest, `"`)
				perStream[stream] += value
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	streams := make([]string, 0, len(perStream))
	for s := range perStream {
		streams = append(streams, s+"="+strconv.FormatFloat(perStream[s], 'f', 0, 64))
	}
	sort.Strings(streams)

	fmt.Printf("[%s] written=%.0f frames=%.0f decode_errors=%.0f write_errors=%.0f transport_errors=%.0f dropped=%.0f queue=%.0f [%s]\n",
		time.Now().Format(time.RFC3339),
		totals["insightcap_records_written_total"],
		totals["insightcap_frames_written_total"],
		totals["insightcap_decode_errors_total"],
		totals["insightcap_write_errors_total"],
		totals["insightcap_transport_errors_total"],
		totals["insightcap_source_dropped_total"],
		totals["insightcap_source_queue_length"],
		strings.Join(streams, " "),
	)
	return nil
}

func printUsage() {
	fmt.Printf(`insightcap CLI

Usage:
  insightcap <command> [flags]

Commands:
  run        Record a capture session using the provided config
  validate   Load and validate a config file without starting a capture
  stats      Poll the Prometheus metrics endpoint and print live counters
  synth      Write a synthetic device recording for replay
  inspect    Print the manifest of a finished session directory

Examples:
  insightcap run --config ./config.yaml
  insightcap run --replay ./synthetic.cbor.zst --root ./captures
  insightcap validate --config ./config.yaml
  insightcap stats --url http://localhost:9100/metrics --interval 1s
  insightcap synth --out ./synthetic.cbor.zst --ticks 900
  insightcap inspect ./captures/20231003_10_00_00_captures
`)
}
