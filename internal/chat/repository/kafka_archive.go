package repository

import (
	"context"
	"encoding/json"

	"realtime_chat_service/internal/chat/domain"
	"realtime_chat_service/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageArchive 把每筆已持久化的訊息非同步複寫到 kafka topic，
// 作為訊息 log 的下游稽核串流。失敗只記 log，不影響遞送。
type MessageArchive struct {
	writer *kafka.Writer
}

// NewMessageArchive create a kafka-backed MessageArchive
func NewMessageArchive(writer *kafka.Writer) *MessageArchive {
	return &MessageArchive{writer: writer}
}

// Archive 非同步寫入一筆訊息，key 用 message id
func (a *MessageArchive) Archive(msg *domain.Message) {
	if a == nil || a.writer == nil {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logger.Log.Errorf("archive marshal error:", err)
		return
	}

	go func() {
		err := a.writer.WriteMessages(context.Background(), kafka.Message{
			Key:   []byte(msg.ID),
			Value: data,
		})
		if err != nil {
			logger.Log.Errorf("archive write error:", err)
		}
	}()
}
