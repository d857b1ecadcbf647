package queue

import (
	"sync"

	"github.com/ghalamif/insightcap/internal/domain"
	"github.com/ghalamif/insightcap/internal/ports"
)

// MemQueue is a bounded in-memory FIFO of raw messages. A capacity of zero or
// less means unbounded.
type MemQueue struct {
	mu   sync.Mutex
	data []*domain.RawMessage
	cap  int
}

func NewMemQueue(capacity int) *MemQueue {
	initial := capacity
	if initial <= 0 || initial > 4096 {
		initial = 4096
	}
	return &MemQueue{
		data: make([]*domain.RawMessage, 0, initial),
		cap:  capacity,
	}
}

func (q *MemQueue) Enqueue(m *domain.RawMessage) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cap > 0 && len(q.data) >= q.cap {
		return false
	}
	q.data = append(q.data, m)
	return true
}

func (q *MemQueue) DequeueBatch(max int) []*domain.RawMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]*domain.RawMessage, max)
	copy(out, q.data[:max])
	n := copy(q.data, q.data[max:])
	clear(q.data[n:])
	q.data = q.data[:n]
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

var _ ports.MessageQueue = (*MemQueue)(nil)
