package repository

import (
	"context"
	"sync"

	"realtime_chat_service/internal/chat/domain"
)

// MemoryBus 單節點時不經過 redis 的 in-process bus。
// 每個 channel 可以有多個訂閱者，publish 同步呼叫所有 handler。
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]*memorySub
}

type memorySub struct {
	handler func(event domain.WSEvent)
	done    <-chan struct{}
}

// NewMemoryBus create an in-process EventBus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memorySub)}
}

// Publish 同步送給 channel 的所有存活訂閱者
func (b *MemoryBus) Publish(channel string, event domain.WSEvent) error {
	b.mu.RLock()
	subs := make([]*memorySub, len(b.subs[channel]))
	copy(subs, b.subs[channel])
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case <-s.done:
			// 訂閱者已退訂
		default:
			s.handler(event)
		}
	}
	return nil
}

// Subscribe 註冊 handler；ctx 取消後停止接收並於下次 publish 時清掉
func (b *MemoryBus) Subscribe(ctx context.Context, channel string, handler func(event domain.WSEvent)) error {
	sub := &memorySub{handler: handler, done: ctx.Done()}

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], sub)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		remaining := b.subs[channel][:0]
		for _, s := range b.subs[channel] {
			if s != sub {
				remaining = append(remaining, s)
			}
		}
		if len(remaining) == 0 {
			delete(b.subs, channel)
		} else {
			b.subs[channel] = remaining
		}
	}()

	return nil
}
