package codec

import "github.com/ghalamif/insightcap/internal/domain"

type HeartRateDecoder struct {
	Options Options
}

func (d HeartRateDecoder) Decode(raw *domain.RawMessage) (domain.Record, error) {
	var p HeartRatePayload
	if err := unmarshalPayload(raw, &p); err != nil {
		return nil, err
	}
	at, err := stamp(raw, domain.HeartRate, d.Options)
	if err != nil {
		return nil, err
	}
	return &domain.HeartRateRecord{At: at, Rate: p.Rate}, nil
}
