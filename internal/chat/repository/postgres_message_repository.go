package repository

import (
	"context"

	"realtime_chat_service/internal/chat/domain"

	"gorm.io/gorm"
)

type postgresMessageStore struct {
	db *gorm.DB
}

// NewPostgresMessageStore create a MessageStore backed by postgreSQL via GORM
func NewPostgresMessageStore(db *gorm.DB) (MessageStore, error) {
	if err := db.AutoMigrate(&domain.Message{}); err != nil {
		return nil, err
	}
	return &postgresMessageStore{db: db}, nil
}

// Append insert one message
func (r *postgresMessageStore) Append(ctx context.Context, msg *domain.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// FindAllOrderedByCreation 依 timestamp 升冪取全部訊息，seq 破 tie。
// seq 重啟後歸零，不能單獨當建立順序用。
func (r *postgresMessageStore) FindAllOrderedByCreation(ctx context.Context) ([]domain.Message, error) {
	var messages []domain.Message
	err := r.db.WithContext(ctx).Order("timestamp asc, seq asc").Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}
