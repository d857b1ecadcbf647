package ports

import "github.com/ghalamif/insightcap/internal/domain"

type MessageQueue interface {
	Enqueue(m *domain.RawMessage) bool
	DequeueBatch(max int) []*domain.RawMessage
	Len() int
}
