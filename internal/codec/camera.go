package codec

import (
	"fmt"
	"strings"

	"github.com/ghalamif/insightcap/internal/domain"
)

type CameraDecoder struct {
	Options Options
}

// Decode hands the pixel buffer through untouched. The payload may omit its
// geometry, in which case the configured frame size is assumed.
func (d CameraDecoder) Decode(raw *domain.RawMessage) (domain.Record, error) {
	var p CameraImagePayload
	if err := unmarshalPayload(raw, &p); err != nil {
		return nil, err
	}
	if loc := d.Options.CameraLocation; loc != "" && !strings.EqualFold(loc, p.SensorLocation) {
		return nil, nil
	}

	w, h := d.Options.frameSize()
	if p.Width != 0 && p.Height != 0 && (int(p.Width) != w || int(p.Height) != h) {
		return nil, fmt.Errorf("%w: frame %d is %dx%d, want %dx%d", ErrFrameSize, p.FrameNumber, p.Width, p.Height, w, h)
	}
	if len(p.ImageData) != w*h {
		return nil, fmt.Errorf("%w: frame %d has %d bytes, want %d", ErrFrameSize, p.FrameNumber, len(p.ImageData), w*h)
	}

	at, err := stamp(raw, domain.CameraFrame, d.Options)
	if err != nil {
		return nil, err
	}
	return &domain.CameraFrameRecord{
		At:          at,
		FrameNumber: p.FrameNumber,
		FPS:         p.FramesPerSecond,
		Width:       w,
		Height:      h,
		Pixels:      p.ImageData,
	}, nil
}
