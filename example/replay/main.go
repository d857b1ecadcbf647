package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ghalamif/insightcap"
)

// Synthesizes a short recording, replays it into a fresh session and prints
// every heart rate record as it is persisted.
func main() {
	dir, err := os.MkdirTemp("", "insightcap-example-")
	if err != nil {
		log.Fatalf("temp dir: %v", err)
	}
	recording := filepath.Join(dir, "demo.cbor.zst")

	n, err := insightcap.Synthesize(recording, insightcap.SynthOptions{Ticks: 30, Width: 64, Height: 64})
	if err != nil {
		log.Fatalf("synthesize: %v", err)
	}
	fmt.Printf("recorded %d messages\n", n)

	os.Setenv("INSIGHTCAP_SOURCE_KIND", insightcap.SourceReplay)
	os.Setenv("INSIGHTCAP_REPLAY_PATH", recording)
	cfg, err := insightcap.LoadConfig("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.Capture.Root = dir
	cfg.Camera.Width, cfg.Camera.Height = 64, 64
	cfg.Metrics.Disabled = true

	rec, err := insightcap.NewRecorder(cfg, insightcap.WithCallback("stdout", func(r insightcap.Record) error {
		if r.Kind() == insightcap.HeartRate {
			fmt.Printf("%s %v\n", r.Time(), r.Rows()[0][1])
		}
		return nil
	}))
	if err != nil {
		log.Fatalf("new recorder: %v", err)
	}
	if err := rec.Run(context.Background()); err != nil {
		log.Fatalf("capture: %v", err)
	}
	fmt.Printf("session written to %s\n", rec.SessionDir())
}
