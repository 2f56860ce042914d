package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"realtime_chat_service/internal/chat/app"
	"realtime_chat_service/internal/chat/repository"
	"realtime_chat_service/internal/chat/router"
	"realtime_chat_service/pkg/config"
	"realtime_chat_service/pkg/database"
	"realtime_chat_service/pkg/logger"
	testtool "realtime_chat_service/pkg/test_tool"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	cfg := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)

	ctx := context.Background()

	// 1. message log backend
	store := newMessageStore(ctx, cfg)

	// 2. fan-out bus
	bus := newEventBus(cfg)

	// 3. kafka archive sink（brokers 留空表示停用）
	var archive *repository.MessageArchive
	if len(cfg.Kafka.Brokers) > 0 {
		writer, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			RetryCount:    cfg.Kafka.RetryCount,
			RetryInterval: time.Duration(cfg.Kafka.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal("kafka archive unavailable", zap.Error(err))
		}
		archive = repository.NewMessageArchive(writer)
	}

	// 4. registries 與 use cases
	sessions := app.NewSessionRegistry()
	rooms := app.NewRoomRegistry()
	delivery := app.NewDeliveryUseCase(sessions, rooms, store, bus, archive)
	handler := app.NewChatWebsocketHandler(sessions, rooms, delivery, bus, cfg.TypingExpiry)

	testtool.StartPprof()

	// 5. 啟動 Fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r, handler)

	port := ":" + cfg.Port
	log.Printf("Chat Service listening on %s", port)
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}

func newMessageStore(ctx context.Context, cfg config.Chat) repository.MessageStore {
	switch cfg.Store {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d",
			cfg.Postgres.Host, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Database, cfg.Postgres.Port)
		db, err := database.NewPostgresDB(database.Connection{
			ConnectStr:    dsn,
			RetryCount:    cfg.Postgres.RetryCount,
			RetryInterval: time.Duration(cfg.Postgres.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal("Unable to connect to postgreSQL database after retries", zap.Error(err))
		}
		store, err := repository.NewPostgresMessageStore(db)
		if err != nil {
			logger.Log.Fatal("message table migration failed", zap.Error(err))
		}
		return store

	case "memory":
		return repository.NewMemoryMessageStore()

	default: // mongo
		uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
		mongo, err := database.NewMongoDB(ctx,
			database.Connection{
				ConnectStr:    uri,
				RetryCount:    cfg.MongoSQL.RetryCount,
				RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval),
			},
			cfg.MongoSQL.Database)
		if err != nil {
			logger.Log.Fatal(
				"Unable to connect to mongoDB database after retries",
				zap.String("address", fmt.Sprintf("[%s]", uri)),
				zap.Error(err),
			)
		}
		return repository.NewMongoMessageStore(mongo.Database)
	}
}

func newEventBus(cfg config.Chat) repository.EventBus {
	if cfg.Bus == "memory" {
		return repository.NewMemoryBus()
	}

	addr := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(addr, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}
	return repository.NewRedisPubSub(redisClient)
}
