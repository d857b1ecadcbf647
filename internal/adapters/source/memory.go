package source

import (
	"fmt"
	"sync"

	"github.com/ghalamif/insightcap/internal/adapters/queue"
	"github.com/ghalamif/insightcap/internal/domain"
	"github.com/ghalamif/insightcap/internal/ports"
)

// Memory is an in-process source fed by Push. It is safe for concurrent use.
type Memory struct {
	q *queue.MemQueue

	mu     sync.Mutex
	err    error
	closed bool
}

func NewMemory(msgs ...*domain.RawMessage) *Memory {
	m := &Memory{q: queue.NewMemQueue(0)}
	for _, msg := range msgs {
		m.q.Enqueue(msg)
	}
	return m
}

func (m *Memory) Push(msg *domain.RawMessage) {
	m.q.Enqueue(msg)
}

// Fail makes the next TryNext report a transport error.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// CloseInput marks the source finished once its queue drains.
func (m *Memory) CloseInput() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *Memory) TryNext() (*domain.RawMessage, error) {
	m.mu.Lock()
	err := m.err
	m.err = nil
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrTransport, err)
	}
	if batch := m.q.DequeueBatch(1); len(batch) == 1 {
		return batch[0], nil
	}
	return nil, nil
}

func (m *Memory) Done() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed && m.q.Len() == 0
}

func (m *Memory) Len() int { return m.q.Len() }

var _ ports.FiniteSource = (*Memory)(nil)
