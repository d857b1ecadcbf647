package ports

import "time"

// QueuePolicy bounds the buffer between a push-style transport and the pump.
type QueuePolicy struct {
	MaxQueueLen int           `yaml:"max_queue_len"`
	IdleSleep   time.Duration `yaml:"idle_sleep"`

	OnQueueFull string `yaml:"on_queue_full"` // "drop", "block"
}
