package ports

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	// IncCounter adds v to a counter. stream may be empty for unlabelled counters.
	IncCounter(name, stream string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name, stream string, v float64)
}

type Field struct {
	Key   string
	Value any
}
