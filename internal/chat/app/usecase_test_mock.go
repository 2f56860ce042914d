package app

import (
	"context"
	"sync"

	"realtime_chat_service/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

// MockMessageStore Mock MessageStore
type MockMessageStore struct {
	mock.Mock
}

// Append moke append msg
func (m *MockMessageStore) Append(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// FindAllOrderedByCreation moke find all msg by creation order
func (m *MockMessageStore) FindAllOrderedByCreation(ctx context.Context) ([]domain.Message, error) {
	args := m.Called(ctx)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// recordingBus 依序記錄 publish 出去的事件，驗證 fan-out 順序與對象用
type recordingBus struct {
	mu        sync.Mutex
	published []publishedEvent
}

type publishedEvent struct {
	channel string
	event   domain.WSEvent
}

func newRecordingBus() *recordingBus {
	return &recordingBus{}
}

// Publish 記錄一筆 publish
func (b *recordingBus) Publish(channel string, event domain.WSEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedEvent{channel: channel, event: event})
	return nil
}

// Subscribe 測試用 no-op
func (b *recordingBus) Subscribe(_ context.Context, _ string, _ func(event domain.WSEvent)) error {
	return nil
}

func (b *recordingBus) events() []publishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]publishedEvent, len(b.published))
	copy(out, b.published)
	return out
}

func (b *recordingBus) channels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.published))
	for _, p := range b.published {
		out = append(out, p.channel)
	}
	return out
}
