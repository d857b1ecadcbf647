package source

import (
	"math"
	"math/rand"
	"time"

	"github.com/ghalamif/insightcap/internal/codec"
	"github.com/ghalamif/insightcap/internal/domain"
	"github.com/ghalamif/insightcap/internal/ports"
)

type SyntheticConfig struct {
	Seed        int64
	Start       time.Time
	HeartRate   uint32
	FrameRate   float32
	ImuBatch    int
	FrameWidth  int
	FrameHeight int
	// Location is stamped on camera payloads.
	Location string
}

// Synthetic produces a deterministic device stream: for every tick one
// message of each recorded kind, all stamped on three clocks. It is used for
// demos and to produce test recordings.
type Synthetic struct {
	cfg     SyntheticConfig
	rng     *rand.Rand
	tick    int
	step    time.Duration
	limit   int
	pending []*domain.RawMessage
}

// NewSynthetic generates ticks messages of each kind; ticks <= 0 is endless.
func NewSynthetic(cfg SyntheticConfig, ticks int) *Synthetic {
	if cfg.Start.IsZero() {
		cfg.Start = time.Now()
	}
	if cfg.HeartRate == 0 {
		cfg.HeartRate = 72
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.ImuBatch <= 0 {
		cfg.ImuBatch = 4
	}
	if cfg.FrameWidth <= 0 {
		cfg.FrameWidth = codec.DefaultFrameWidth
	}
	if cfg.FrameHeight <= 0 {
		cfg.FrameHeight = codec.DefaultFrameHeight
	}
	return &Synthetic{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		step:  time.Duration(float64(time.Second) / float64(cfg.FrameRate)),
		limit: ticks,
	}
}

func (s *Synthetic) TryNext() (*domain.RawMessage, error) {
	if len(s.pending) == 0 {
		if s.Done() {
			return nil, nil
		}
		batch, err := s.generate()
		if err != nil {
			return nil, err
		}
		s.pending = batch
	}
	m := s.pending[0]
	s.pending = s.pending[1:]
	return m, nil
}

func (s *Synthetic) Done() bool {
	return s.limit > 0 && s.tick >= s.limit && len(s.pending) == 0
}

func (s *Synthetic) header(t domain.MessageType, at time.Time) domain.Header {
	hw := at.UnixMicro()
	sys := hw + 250
	omni := hw - 1_000
	return domain.Header{Type: t, HardwareMicros: hw, SystemMicros: &sys, OmniceptMicros: &omni}
}

func (s *Synthetic) generate() ([]*domain.RawMessage, error) {
	n := s.tick
	s.tick++
	at := s.cfg.Start.Add(time.Duration(n) * s.step)
	phase := float64(n) / float64(s.cfg.FrameRate)

	hr := codec.HeartRatePayload{Rate: s.cfg.HeartRate + uint32(s.rng.Intn(5))}
	eye := codec.EyeTrackingPayload{
		Left:                   s.eye(phase),
		Right:                  s.eye(phase + 0.05),
		CombinedGaze:           domain.Vec3{X: float32(math.Sin(phase) * 0.2), Y: 0.05, Z: 0.97},
		CombinedGazeConfidence: 0.95,
	}
	cam := codec.CameraImagePayload{
		FrameNumber:     uint64(n),
		FramesPerSecond: s.cfg.FrameRate,
		Width:           uint32(s.cfg.FrameWidth),
		Height:          uint32(s.cfg.FrameHeight),
		SensorLocation:  s.cfg.Location,
		ImageData:       s.frame(n),
	}
	imu := codec.IMUFramePayload{Samples: make([]codec.IMUSamplePayload, s.cfg.ImuBatch)}
	for i := range imu.Samples {
		imu.Samples[i] = codec.IMUSamplePayload{
			DeviceID: 1,
			Acc:      domain.Vec3{X: s.noise(0.02), Y: 9.81 + s.noise(0.02), Z: s.noise(0.02)},
			Gyro:     domain.Vec3{X: s.noise(0.01), Y: s.noise(0.01), Z: s.noise(0.01)},
		}
	}

	out := make([]*domain.RawMessage, 0, 4)
	for _, p := range []struct {
		t       domain.MessageType
		payload any
	}{
		{domain.MessageHeartRate, hr},
		{domain.MessageEyeTracking, eye},
		{domain.MessageCameraImage, cam},
		{domain.MessageIMUFrame, imu},
	} {
		m, err := codec.NewMessage(s.header(p.t, at), p.payload)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Synthetic) eye(phase float64) codec.EyePayload {
	conf := float32(0.6 + 0.4*s.rng.Float64())
	p := codec.EyePayload{
		Gaze:                    domain.Vec3{X: float32(math.Sin(phase) * 0.2), Y: 0.05, Z: 0.97},
		GazeConfidence:          conf,
		PupilPositionConfidence: conf,
		Openness:                float32(0.7 + 0.3*math.Cos(phase)),
		OpennessConfidence:      conf,
		PupilDilation:           float32(3 + s.rng.Float64()),
		PupilDilationConfidence: conf,
	}
	// Blinks drop pupil tracking for the frame.
	if s.rng.Intn(20) != 0 {
		p.PupilPosition = &domain.Vec2{X: 0.5 + s.noise(0.05), Y: 0.5 + s.noise(0.05)}
	}
	return p
}

// frame renders a moving diagonal gradient.
func (s *Synthetic) frame(n int) []byte {
	w, h := s.cfg.FrameWidth, s.cfg.FrameHeight
	px := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px[y*w+x] = byte(x + y + n*4)
		}
	}
	return px
}

func (s *Synthetic) noise(scale float64) float32 {
	return float32((s.rng.Float64()*2 - 1) * scale)
}

var _ ports.FiniteSource = (*Synthetic)(nil)
