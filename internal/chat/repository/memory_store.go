package repository

import (
	"context"
	"sync"

	"realtime_chat_service/internal/chat/domain"
)

// memoryMessageStore 單機開發與測試用的 in-memory log
type memoryMessageStore struct {
	mu       sync.RWMutex
	messages []domain.Message
}

// NewMemoryMessageStore create an in-memory MessageStore
func NewMemoryMessageStore() MessageStore {
	return &memoryMessageStore{}
}

// Append insert one message
func (r *memoryMessageStore) Append(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, *msg)
	return nil
}

// FindAllOrderedByCreation snapshot in append order
func (r *memoryMessageStore) FindAllOrderedByCreation(_ context.Context) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Message, len(r.messages))
	copy(out, r.messages)
	return out, nil
}
