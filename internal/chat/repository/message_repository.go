package repository

import (
	"context"

	"realtime_chat_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageStore definition append-only message log
// 核心只需要 append 與「依建立順序取全部」兩個操作，不需要 update/delete。
type MessageStore interface {
	// Append 寫入一筆訊息。失敗時該訊息不得對任何 client 可見。
	Append(ctx context.Context, msg *domain.Message) error
	// FindAllOrderedByCreation 依建立順序（timestamp 升冪，seq 破 tie）回傳所有訊息
	FindAllOrderedByCreation(ctx context.Context) ([]domain.Message, error)
}

type mongoMessageStore struct {
	coll *mongo.Collection
}

// NewMongoMessageStore create a MessageStore backed by mongo
func NewMongoMessageStore(db *mongo.Database) MessageStore {
	return &mongoMessageStore{
		coll: db.Collection("chat_messages"),
	}
}

// Append insert one message
func (r *mongoMessageStore) Append(ctx context.Context, msg *domain.Message) error {
	_, err := r.coll.InsertOne(ctx, msg)
	return err
}

// FindAllOrderedByCreation 依 timestamp 升冪取全部訊息，seq 破 tie。
// seq 是 process 內的計數器，重啟後歸零，不能單獨當建立順序用。
func (r *mongoMessageStore) FindAllOrderedByCreation(ctx context.Context) ([]domain.Message, error) {
	opts := options.Find()
	opts.SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "seq", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var messages []domain.Message
	if err := cur.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
