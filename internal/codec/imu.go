package codec

import "github.com/ghalamif/insightcap/internal/domain"

type ImuDecoder struct {
	Options Options
}

// Decode indexes samples by their position in the batch.
func (d ImuDecoder) Decode(raw *domain.RawMessage) (domain.Record, error) {
	var p IMUFramePayload
	if err := unmarshalPayload(raw, &p); err != nil {
		return nil, err
	}
	at, err := stamp(raw, domain.Imu, d.Options)
	if err != nil {
		return nil, err
	}
	rec := &domain.ImuRecord{At: at, Samples: make([]domain.ImuSample, len(p.Samples))}
	for i, s := range p.Samples {
		rec.Samples[i] = domain.ImuSample{Index: uint32(i), Acc: s.Acc, Gyro: s.Gyro}
	}
	return rec, nil
}
