package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"realtime_chat_service/internal/chat/domain"
	"realtime_chat_service/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// ConnChannel 每條連線專屬的 fan-out channel 名稱
func ConnChannel(connectionID string) string {
	return "chat:conn:" + connectionID
}

// EventBus definition fan-out bus
// Delivery/presence 把事件發布到每條連線的 channel，
// websocket handler 訂閱自己的 channel 後寫回 client。
type EventBus interface {
	Publish(channel string, event domain.WSEvent) error
	// Subscribe 訂閱 channel，收到事件後呼叫 handler；ctx 取消時退訂
	Subscribe(ctx context.Context, channel string, handler func(event domain.WSEvent)) error
}

// RedisPubSub definition redis pub/sub bus
type RedisPubSub struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{
		client: client,
		ctx:    context.Background(),
	}
}

// Publish 將 event 序列化後，發布到指定 channel
func (r *RedisPubSub) Publish(channel string, event domain.WSEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(r.ctx, channel, data).Err()
}

// Subscribe 訂閱 channel，收到訊息後呼叫 handler 處理
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string, handler func(event domain.WSEvent)) error {
	sub := r.client.Subscribe(r.ctx, channel)
	go func() {
		ch := sub.Channel()

		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}

				var event domain.WSEvent
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					logger.Log.Errorf("pubsub unmarshal error:", err)
					continue
				}
				handler(event)
			case <-ctx.Done():
				logger.Log.Info(fmt.Sprintf("%s , sub close", channel))
				// 當 ctx 被取消時，退出循環並關閉訂閱
				sub.Close()
				return
			}
		}
	}()
	return nil
}
