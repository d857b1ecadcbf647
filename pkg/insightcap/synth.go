package insightcap

import (
	"fmt"
	"time"

	"github.com/ghalamif/insightcap/internal/adapters/source"
)

// SynthOptions controls Synthesize.
type SynthOptions struct {
	Config        SyntheticConfig
	Ticks         int
	Width, Height int
	Location      string
	Start         time.Time
}

// Synthesize writes a deterministic recording of Ticks rounds of every
// message kind to path, zstd compressed when path ends in ".zst". It returns
// the number of messages written.
func Synthesize(path string, opts SynthOptions) (int, error) {
	if opts.Ticks <= 0 {
		return 0, fmt.Errorf("ticks must be positive")
	}
	gen := source.NewSynthetic(source.SyntheticConfig{
		Seed:        opts.Config.Seed,
		Start:       opts.Start,
		HeartRate:   opts.Config.HeartRate,
		FrameRate:   opts.Config.FrameRate,
		ImuBatch:    opts.Config.ImuBatch,
		FrameWidth:  opts.Width,
		FrameHeight: opts.Height,
		Location:    opts.Location,
	}, opts.Ticks)

	rec, err := source.CreateRecording(path)
	if err != nil {
		return 0, err
	}
	for !gen.Done() {
		m, err := gen.TryNext()
		if err != nil {
			rec.Close()
			return rec.Count(), err
		}
		if m == nil {
			continue
		}
		if err := rec.Append(m); err != nil {
			rec.Close()
			return rec.Count(), err
		}
	}
	return rec.Count(), rec.Close()
}
