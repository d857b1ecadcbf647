package codec

import "github.com/ghalamif/insightcap/internal/domain"

type EyeTrackingDecoder struct {
	Options Options
}

func (d EyeTrackingDecoder) Decode(raw *domain.RawMessage) (domain.Record, error) {
	var p EyeTrackingPayload
	if err := unmarshalPayload(raw, &p); err != nil {
		return nil, err
	}
	at, err := stamp(raw, domain.EyeTracking, d.Options)
	if err != nil {
		return nil, err
	}
	return &domain.EyeTrackingRecord{
		At:    at,
		Left:  d.eye(p.Left),
		Right: d.eye(p.Right),
		Combined: domain.Gaze{
			Vec3:       p.CombinedGaze,
			Confidence: p.CombinedGazeConfidence,
		},
	}, nil
}

// eye copies one eye's reading. Gaze is always kept; the optional fields are
// withheld only when gating is enabled and their confidence is too low. A
// missing pupil position stays nil rather than failing the record.
func (d EyeTrackingDecoder) eye(p EyePayload) domain.EyeSample {
	s := domain.EyeSample{
		Gaze:                    domain.Gaze{Vec3: p.Gaze, Confidence: p.GazeConfidence},
		PupilPositionConfidence: p.PupilPositionConfidence,
		Openness:                domain.Scalar{Value: p.Openness, Confidence: p.OpennessConfidence, Valid: true},
		PupilDilation:           domain.Scalar{Value: p.PupilDilation, Confidence: p.PupilDilationConfidence, Valid: true},
	}
	if p.PupilPosition != nil {
		pos := *p.PupilPosition
		s.PupilPosition = &pos
	}

	g := d.Options.Gating
	if !g.Enabled {
		return s
	}
	if p.PupilPositionConfidence < g.MinConfidence {
		s.PupilPosition = nil
	}
	if p.OpennessConfidence < g.MinConfidence {
		s.Openness.Valid = false
	}
	if p.PupilDilationConfidence < g.MinConfidence {
		s.PupilDilation.Valid = false
	}
	return s
}
