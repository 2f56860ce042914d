package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"realtime_chat_service/internal/chat/domain"
	"realtime_chat_service/internal/chat/repository"
	"realtime_chat_service/pkg/database"
	"realtime_chat_service/pkg/logger"
	testtool "realtime_chat_service/pkg/test_tool"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// **測試用的容器**
var mongoContainer testcontainers.Container
var redisContainer testcontainers.Container
var chatApp *fiber.App
var chatHandler *ChatWebsocketHandler
var msgStore repository.MessageStore

// **TestMain 初始化測試環境**
func TestMain(m *testing.M) {
	ctx := context.Background()
	logger.SetNewNop()

	// **啟動 MongoDB**
	mongoContainer, mongoHost, mongoPort, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "mongo:latest",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp"),
	})
	if err != nil {
		log.Fatalf("❌ Failed to start MongoDB container: %v", err)
	}
	fmt.Printf("✅ MongoDB running at %s:%s\n", mongoHost, mongoPort)

	// **啟動 Redis**
	redisContainer, redisHost, redisPort, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:latest",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	})
	if err != nil {
		log.Fatalf("❌ Failed to start Redis container: %v", err)
	}
	fmt.Printf("✅ Redis running at %s:%s\n", redisHost, redisPort)

	// **初始化 MongoDB**
	mongo, err := database.NewMongoDB(ctx, database.Connection{
		ConnectStr:    fmt.Sprintf("mongodb://%s:%s", mongoHost, mongoPort),
		RetryCount:    5,
		RetryInterval: 5,
	}, "test_chat_db")
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer mongo.Close(ctx)

	// **初始化 Redis**
	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort),
		DB:   0,
	})

	// **初始化 Repository 與 UseCase**
	msgStore = repository.NewMongoMessageStore(mongo.Database)
	bus := repository.NewRedisPubSub(redisClient)

	sessions := NewSessionRegistry()
	rooms := NewRoomRegistry()
	delivery := NewDeliveryUseCase(sessions, rooms, msgStore, bus, nil)
	chatHandler = NewChatWebsocketHandler(sessions, rooms, delivery, bus, 0)

	// **初始化 Fiber WebSocket Server**
	chatApp = fiber.New()
	chatApp.Get("/ws", websocket.New(func(c *websocket.Conn) {
		chatHandler.HandleConnection(context.Background(), c)
	}))

	// **啟動 WebSocket Server**
	go func() {
		if err := chatApp.Listen(":8081"); err != nil {
			log.Fatalf("❌ Failed to start WebSocket server: %v", err)
		}
	}()
	fmt.Println("✅ WebSocket Server started at ws://localhost:8081/ws")

	// **等待 WebSocket Server 啟動**
	time.Sleep(5 * time.Second)

	// **執行測試**
	code := m.Run()

	// **清理測試環境**
	_ = mongoContainer.Terminate(ctx)
	_ = redisContainer.Terminate(ctx)
	chatApp.Shutdown()

	os.Exit(code)
}

// wsDial 建立一條測試連線
func wsDial(t *testing.T) *gws.Conn {
	conn, _, err := gws.DefaultDialer.Dial("ws://127.0.0.1:8081/ws", nil)
	assert.NoError(t, err, "WebSocket 連線失敗")
	return conn
}

// sendEvent 送出一個 client event
func sendEvent(t *testing.T, conn *gws.Conn, event domain.WSEvent) {
	b, err := json.Marshal(event)
	assert.NoError(t, err)
	assert.NoError(t, conn.WriteMessage(gws.TextMessage, b))
}

// waitFor 讀取直到出現指定的 server event，其餘的略過
func waitFor(t *testing.T, conn *gws.Conn, want domain.Event) domain.WSEvent {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("等不到 %s: %v", want, err)
		}
		var event domain.WSEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			t.Fatalf("無法解析 server event: %v", err)
		}
		if event.Event == want {
			return event
		}
	}
}

// wsAnnounce 送 user_join 並回傳 server 配發的 connection id
func wsAnnounce(t *testing.T, conn *gws.Conn, username string) string {
	sendEvent(t, conn, domain.NewWSEvent(domain.EventUserJoin, domain.UserJoinPayload{Username: username}))

	ack := waitFor(t, conn, domain.EventJoinedAck)
	var payload domain.JoinedAckPayload
	assert.NoError(t, json.Unmarshal(ack.Payload, &payload))
	assert.NotEmpty(t, payload.ConnectionID)
	assert.NotEmpty(t, payload.ResumeToken)

	// announce 後 server 依序回放 history、user_list、rooms
	waitFor(t, conn, domain.EventChatHistory)
	waitFor(t, conn, domain.EventUserList)
	waitFor(t, conn, domain.EventRooms)
	return payload.ConnectionID
}

// ✅ 1️⃣ Announce 測試：連線後綁定身份並取得初始狀態
func TestWebSocketAnnounce(t *testing.T) {
	conn := wsDial(t)
	defer conn.Close()

	connectionID := wsAnnounce(t, conn, "alice-"+uuid.New().String())
	assert.NotEmpty(t, connectionID)
}

// ✅ 2️⃣ 全域訊息測試：兩條連線互相收到訊息
func TestWebSocketGlobalMessage(t *testing.T) {
	sender := wsDial(t)
	defer sender.Close()
	receiver := wsDial(t)
	defer receiver.Close()

	wsAnnounce(t, sender, "sender-"+uuid.New().String())
	wsAnnounce(t, receiver, "receiver-"+uuid.New().String())

	body := "hello " + uuid.New().String()
	sendEvent(t, sender, domain.NewWSEvent(domain.EventSendMessage, domain.SendMessagePayload{Body: body}))

	for _, conn := range []*gws.Conn{sender, receiver} {
		event := waitFor(t, conn, domain.EventReceiveMessage)
		var msg domain.Message
		assert.NoError(t, json.Unmarshal(event.Payload, &msg))
		assert.Equal(t, body, msg.Body)
		assert.NotEmpty(t, msg.ID)
	}
}

// ✅ 3️⃣ 房間訊息測試：create → join → 房間成員收到，其他人收不到
func TestWebSocketRoomMessage(t *testing.T) {
	member := wsDial(t)
	defer member.Close()

	wsAnnounce(t, member, "member-"+uuid.New().String())

	roomID := "room-" + uuid.New().String()
	sendEvent(t, member, domain.NewWSEvent(domain.EventCreateRoom, domain.RoomPayload{RoomID: roomID}))
	waitFor(t, member, domain.EventRooms)

	sendEvent(t, member, domain.NewWSEvent(domain.EventJoinRoom, domain.RoomPayload{RoomID: roomID}))
	waitFor(t, member, domain.EventRooms)

	body := "room talk " + uuid.New().String()
	sendEvent(t, member, domain.NewWSEvent(domain.EventRoomMessage, domain.RoomMessagePayload{RoomID: roomID, Body: body}))

	event := waitFor(t, member, domain.EventRoomMessage)
	var msg domain.Message
	assert.NoError(t, json.Unmarshal(event.Payload, &msg))
	assert.Equal(t, body, msg.Body)
	assert.Equal(t, roomID, msg.RoomID)
}

// ✅ 4️⃣ 已讀回條測試：ack_read 轉播 message_read
func TestWebSocketReadReceipt(t *testing.T) {
	conn := wsDial(t)
	defer conn.Close()

	connectionID := wsAnnounce(t, conn, "reader-"+uuid.New().String())

	sendEvent(t, conn, domain.NewWSEvent(domain.EventSendMessage, domain.SendMessagePayload{Body: "read me"}))
	event := waitFor(t, conn, domain.EventReceiveMessage)
	var msg domain.Message
	assert.NoError(t, json.Unmarshal(event.Payload, &msg))

	sendEvent(t, conn, domain.NewWSEvent(domain.EventAckRead, domain.AckPayload{MessageID: msg.ID}))

	relay := waitFor(t, conn, domain.EventMessageRead)
	var ack domain.AckUpdatePayload
	assert.NoError(t, json.Unmarshal(relay.Payload, &ack))
	assert.Equal(t, msg.ID, ack.MessageID)
	assert.Equal(t, connectionID, ack.ConnectionID)
}

// ✅ 5️⃣ Typing 測試：輸入狀態廣播 typing_users
func TestWebSocketTyping(t *testing.T) {
	typist := wsDial(t)
	defer typist.Close()
	watcher := wsDial(t)
	defer watcher.Close()

	username := "typist-" + uuid.New().String()
	wsAnnounce(t, typist, username)
	wsAnnounce(t, watcher, "watcher-"+uuid.New().String())

	sendEvent(t, typist, domain.NewWSEvent(domain.EventTyping, domain.TypingPayload{IsTyping: true}))

	event := waitFor(t, watcher, domain.EventTypingUsers)
	var payload domain.TypingUsersPayload
	assert.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Contains(t, payload.Typists, username)
}

// ✅ 6️⃣ 未 announce 測試：messaging operation 只回 error 給發起端
func TestWebSocketNotAnnounced(t *testing.T) {
	conn := wsDial(t)
	defer conn.Close()

	sendEvent(t, conn, domain.NewWSEvent(domain.EventSendMessage, domain.SendMessagePayload{Body: "too soon"}))

	event := waitFor(t, conn, domain.EventError)
	var payload domain.ErrorPayload
	assert.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, domain.EventSendMessage, payload.Event)

	// room operation 同樣要先 announce，leave 也不例外
	sendEvent(t, conn, domain.NewWSEvent(domain.EventLeaveRoom, domain.RoomPayload{RoomID: "room-1"}))

	event = waitFor(t, conn, domain.EventError)
	assert.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, domain.EventLeaveRoom, payload.Event)
}

// ✅ 7️⃣ History 順序測試：seq 計數器重啟歸零後，建立順序仍照 timestamp
func TestMongoHistoryOrderAfterRestart(t *testing.T) {
	ctx := context.Background()

	// 重啟前的兩筆訊息：seq 已累積到 4、5
	before1 := domain.Message{ID: uuid.New().String(), Seq: 4, Body: "before-1", Timestamp: 1_000}
	before2 := domain.Message{ID: uuid.New().String(), Seq: 5, Body: "before-2", Timestamp: 2_000}
	// 重啟後的新訊息：timestamp 較晚但 seq 重新從 1 起算
	after := domain.Message{ID: uuid.New().String(), Seq: 1, Body: "after-restart", Timestamp: 3_000}

	for _, msg := range []domain.Message{before1, before2, after} {
		m := msg
		assert.NoError(t, msgStore.Append(ctx, &m))
	}

	history, err := msgStore.FindAllOrderedByCreation(ctx)
	assert.NoError(t, err)

	position := make(map[string]int)
	for i, msg := range history {
		position[msg.ID] = i
	}
	assert.Less(t, position[before1.ID], position[before2.ID])
	assert.Less(t, position[before2.ID], position[after.ID], "重啟後的訊息不得排在舊訊息之前")
}

// ✅ 8️⃣ 未知 event 測試：連線不中斷，回 error
func TestWebSocketUnknownEvent(t *testing.T) {
	conn := wsDial(t)
	defer conn.Close()

	assert.NoError(t, conn.WriteMessage(gws.TextMessage, []byte(`{"event":"no_such_event"}`)))

	event := waitFor(t, conn, domain.EventError)
	var payload domain.ErrorPayload
	assert.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "unknown event", payload.Message)
}
