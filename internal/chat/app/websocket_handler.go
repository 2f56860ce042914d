package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"realtime_chat_service/internal/chat/domain"
	"realtime_chat_service/internal/chat/repository"
	errprocess "realtime_chat_service/pkg/err"
	"realtime_chat_service/pkg/logger"
	"realtime_chat_service/pkg/middlewares"
	t_token "realtime_chat_service/pkg/token"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const tokenIssuer = "chat_service"

// eventHandler 處理單一 client event；回傳的 error 只回報給發起的連線
type eventHandler func(ctx context.Context, st *connState, payload json.RawMessage) error

// connState 一條連線的狀態。寫入統一走 write() 序列化。
type connState struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (st *connState) write(event domain.WSEvent) {
	b, _ := json.Marshal(event)
	st.writeMu.Lock()
	defer st.writeMu.Unlock()
	if err := st.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		logger.Log.Errorf("write message error:", err)
	}
}

// ChatWebsocketHandler websocket 連線的進入點，
// 事件用 typed dispatch table 分派到各 use case。
type ChatWebsocketHandler struct {
	sessions *SessionRegistry
	rooms    *RoomRegistry
	typing   *TypingTracker
	delivery *DeliveryUseCase
	bus      repository.EventBus

	dispatch map[domain.Event]eventHandler
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(
	sessions *SessionRegistry,
	rooms *RoomRegistry,
	delivery *DeliveryUseCase,
	bus repository.EventBus,
	typingExpiry time.Duration,
) *ChatWebsocketHandler {
	h := &ChatWebsocketHandler{
		sessions: sessions,
		rooms:    rooms,
		delivery: delivery,
		bus:      bus,
	}

	// stuck typist 過期時也要把更新後的集合推出去
	h.typing = NewTypingTracker(typingExpiry, h.broadcastTyping)

	h.dispatch = map[domain.Event]eventHandler{
		domain.EventUserJoin:       h.onUserJoin,
		domain.EventSendMessage:    h.onSendMessage,
		domain.EventPrivateMessage: h.onPrivateMessage,
		domain.EventRoomMessage:    h.onRoomMessage,
		domain.EventTyping:         h.onTyping,
		domain.EventCreateRoom:     h.onCreateRoom,
		domain.EventJoinRoom:       h.onJoinRoom,
		domain.EventLeaveRoom:      h.onLeaveRoom,
		domain.EventAckDelivered:   h.onAckDelivered,
		domain.EventAckRead:        h.onAckRead,
	}

	return h
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	st := &connState{
		id:   uuid.New().String(),
		conn: conn,
	}

	ticker := time.NewTicker(10 * time.Minute)
	ctxClose, cancel := context.WithCancel(context.Background())

	// 斷線清理必須執行，與先前是否發生錯誤無關
	defer func() {
		ticker.Stop()
		logger.Log.Info("websocket close", zap.String("connectionID", st.id))
		conn.Close()
		cancel()
		h.release(st.id)
	}()

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(appData),
			time.Now().Add(time.Second),
		)
	})

	// 訂閱自己連線的 fan-out channel，事件進來直接寫回 client
	if err := h.bus.Subscribe(ctxClose, repository.ConnChannel(st.id), st.write); err != nil {
		logger.Log.Errorf("subscribe error:", err)
		return
	}

	// resume token 有效時直接恢復身份，client 不必重送 user_join
	if username, ok := conn.Locals(middlewares.ResumeUsername).(string); ok && username != "" {
		h.announce(ctx, st, username)
	}

	// 定期發送 Ping
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
					logger.Log.Errorf("Ping error:", err)
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Info("connection closed", zap.String("connectionID", st.id))
			} else {
				logger.Log.Errorf("websocket read error:", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		h.execEvent(ctx, st, message)
	}
}

// execEvent 解析 envelope 並分派。錯誤只回報發起端，絕不中斷連線。
func (h *ChatWebsocketHandler) execEvent(ctx context.Context, st *connState, raw []byte) {
	var event domain.WSEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		h.sendError(st, "", "malformed event")
		return
	}

	handler, ok := h.dispatch[event.Event]
	if !ok {
		h.sendError(st, event.Event, "unknown event")
		return
	}

	if err := handler(ctx, st, event.Payload); err != nil {
		logger.Log.Error("websocket event err",
			zap.String("connectionID", st.id),
			zap.String("event", string(event.Event)),
			zap.String("err", err.Error()),
		)
		h.sendError(st, event.Event, err.Error())
	}
}

// ------- client → server handlers -------

func (h *ChatWebsocketHandler) onUserJoin(ctx context.Context, st *connState, payload json.RawMessage) error {
	var req domain.UserJoinPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}
	if req.Username == "" {
		return errprocess.Set("username is required")
	}

	h.announce(ctx, st, req.Username)
	return nil
}

func (h *ChatWebsocketHandler) onSendMessage(ctx context.Context, st *connState, payload json.RawMessage) error {
	identity, ok := h.sessions.Get(st.id)
	if !ok {
		return domain.ErrNotAnnounced
	}

	var req domain.SendMessagePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}

	_, err := h.delivery.Send(ctx, identity, req.Body, domain.ScopeGlobal, "", "")
	return err
}

func (h *ChatWebsocketHandler) onPrivateMessage(ctx context.Context, st *connState, payload json.RawMessage) error {
	identity, ok := h.sessions.Get(st.id)
	if !ok {
		return domain.ErrNotAnnounced
	}

	var req domain.PrivateMessagePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}

	_, err := h.delivery.Send(ctx, identity, req.Body, domain.ScopePrivate, req.To, "")
	return err
}

func (h *ChatWebsocketHandler) onRoomMessage(ctx context.Context, st *connState, payload json.RawMessage) error {
	identity, ok := h.sessions.Get(st.id)
	if !ok {
		return domain.ErrNotAnnounced
	}

	var req domain.RoomMessagePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}

	_, err := h.delivery.Send(ctx, identity, req.Body, domain.ScopeRoom, "", req.RoomID)
	return err
}

func (h *ChatWebsocketHandler) onTyping(_ context.Context, st *connState, payload json.RawMessage) error {
	identity, ok := h.sessions.Get(st.id)
	if !ok {
		return domain.ErrNotAnnounced
	}

	var req domain.TypingPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}

	typists := h.typing.SetTyping(req.RoomID, identity.Username, req.IsTyping)
	h.broadcastTyping(req.RoomID, typists)
	return nil
}

func (h *ChatWebsocketHandler) onCreateRoom(_ context.Context, st *connState, payload json.RawMessage) error {
	if _, ok := h.sessions.Get(st.id); !ok {
		return domain.ErrNotAnnounced
	}

	var req domain.RoomPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}
	if req.RoomID == "" {
		return errprocess.Set("room_id is required")
	}

	if err := h.rooms.Create(req.RoomID, st.id); err != nil {
		return err
	}
	h.broadcastRooms()
	return nil
}

func (h *ChatWebsocketHandler) onJoinRoom(_ context.Context, st *connState, payload json.RawMessage) error {
	if _, ok := h.sessions.Get(st.id); !ok {
		return domain.ErrNotAnnounced
	}

	var req domain.RoomPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}
	if req.RoomID == "" {
		return errprocess.Set("room_id is required")
	}

	// 房間不存在時隱式建立，join 冪等
	h.rooms.Join(req.RoomID, st.id)
	h.broadcastRooms()
	return nil
}

func (h *ChatWebsocketHandler) onLeaveRoom(_ context.Context, st *connState, payload json.RawMessage) error {
	if _, ok := h.sessions.Get(st.id); !ok {
		return domain.ErrNotAnnounced
	}

	var req domain.RoomPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}

	h.rooms.Leave(req.RoomID, st.id)
	h.broadcastRooms()
	return nil
}

func (h *ChatWebsocketHandler) onAckDelivered(_ context.Context, st *connState, payload json.RawMessage) error {
	var req domain.AckPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}

	h.delivery.AckDelivered(st.id, req.MessageID)
	return nil
}

func (h *ChatWebsocketHandler) onAckRead(_ context.Context, st *connState, payload json.RawMessage) error {
	var req domain.AckPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}

	h.delivery.AckRead(st.id, req.MessageID)
	return nil
}

// ------- presence / broadcast helpers -------

// announce 綁定身份並回放初始狀態。
// 重複 announce 是 no-op：不重播 user_joined（server 端鏡像 client 的 notice 去重），
// 但 joined_ack 與 history 照樣重送，容忍 reconnect race。
func (h *ChatWebsocketHandler) announce(ctx context.Context, st *connState, username string) {
	identity, first := h.sessions.Admit(st.id, username)

	resumeToken, err := t_token.GenerateResumeToken(identity.Username, tokenIssuer)
	if err != nil {
		logger.Log.Errorf("resume token error:", err)
	}

	st.write(domain.NewWSEvent(domain.EventJoinedAck, domain.JoinedAckPayload{
		ConnectionID: identity.ConnectionID,
		ResumeToken:  resumeToken,
	}))

	history, err := h.delivery.History(ctx)
	if err != nil {
		logger.Log.Errorf("history fetch error:", err)
	} else {
		st.write(domain.NewWSEvent(domain.EventChatHistory, history))
	}

	st.write(domain.NewWSEvent(domain.EventUserList, h.sessions.ListOnline()))
	st.write(domain.NewWSEvent(domain.EventRooms, h.rooms.Summaries()))

	if !first {
		return
	}

	joined := domain.NewWSEvent(domain.EventUserJoined, identity)
	userList := domain.NewWSEvent(domain.EventUserList, h.sessions.ListOnline())
	for _, connectionID := range h.sessions.ConnectionIDs() {
		if connectionID == st.id {
			continue
		}
		h.publish(connectionID, joined)
		h.publish(connectionID, userList)
	}
}

// release 斷線清理：session、room、typing 的成員資格全部移除
func (h *ChatWebsocketHandler) release(connectionID string) {
	identity, ok := h.sessions.Release(connectionID)
	h.rooms.LeaveAll(connectionID)
	if !ok {
		return
	}
	h.typing.ClearUser(identity.Username)

	left := domain.NewWSEvent(domain.EventUserLeft, identity)
	userList := domain.NewWSEvent(domain.EventUserList, h.sessions.ListOnline())
	for _, id := range h.sessions.ConnectionIDs() {
		h.publish(id, left)
		h.publish(id, userList)
	}
}

// broadcastTyping scope 為空時全域，否則只推給房間成員
func (h *ChatWebsocketHandler) broadcastTyping(scope string, typists []string) {
	event := domain.NewWSEvent(domain.EventTypingUsers, domain.TypingUsersPayload{
		RoomID:  scope,
		Typists: typists,
	})

	if scope == domain.GlobalTypingScope {
		for _, id := range h.sessions.ConnectionIDs() {
			h.publish(id, event)
		}
		return
	}

	members, err := h.rooms.MembersOf(scope)
	if err != nil {
		return
	}
	for _, id := range members {
		h.publish(id, event)
	}
}

func (h *ChatWebsocketHandler) broadcastRooms() {
	event := domain.NewWSEvent(domain.EventRooms, h.rooms.Summaries())
	for _, id := range h.sessions.ConnectionIDs() {
		h.publish(id, event)
	}
}

func (h *ChatWebsocketHandler) publish(connectionID string, event domain.WSEvent) {
	if err := h.bus.Publish(repository.ConnChannel(connectionID), event); err != nil {
		logger.Log.Errorf("publish error:", err)
	}
}

// sendError 只回報給發起的連線
func (h *ChatWebsocketHandler) sendError(st *connState, event domain.Event, msg string) {
	st.write(domain.NewWSEvent(domain.EventError, domain.ErrorPayload{
		Event:   event,
		Message: msg,
	}))
}
