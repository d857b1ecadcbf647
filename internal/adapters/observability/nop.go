package observability

import "github.com/ghalamif/insightcap/internal/ports"

// Nop discards logs and metrics.
type Nop struct{}

func (Nop) LogInfo(string, ...ports.Field)            {}
func (Nop) LogError(string, error, ...ports.Field)    {}
func (Nop) LogCritical(string, error, ...ports.Field) {}
func (Nop) IncCounter(string, string, float64)        {}
func (Nop) ObserveLatency(string, float64)            {}
func (Nop) SetGauge(string, string, float64)          {}

var _ ports.Observability = Nop{}
