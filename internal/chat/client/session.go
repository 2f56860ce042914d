package client

import (
	"encoding/json"
	"sync"

	"realtime_chat_service/internal/chat/domain"
	"realtime_chat_service/pkg/logger"
)

// Emitter 把 client event 送回 server 的出口，由 transport 層實作
type Emitter interface {
	Emit(event domain.WSEvent) error
}

// Session client 端的連線會話狀態機。
// announce 旗標斷線時重置，每次 reconnect 恰好重新 announce 一次；
// 在收到新的 chat_history 之前，本地的線上名單不可信（ready=false）。
type Session struct {
	mu          sync.Mutex
	username    string
	myID        string
	resumeToken string
	announced   bool
	ready       bool

	users   []domain.Identity
	typists map[string][]string // scope -> usernames
	rooms   []domain.RoomSummary

	timeline *Reconciler
	emitter  Emitter

	dispatch map[domain.Event]func(payload json.RawMessage)
}

// NewSession create Session
func NewSession(username string) *Session {
	s := &Session{
		username: username,
		typists:  make(map[string][]string),
		timeline: NewReconciler(),
	}

	s.dispatch = map[domain.Event]func(json.RawMessage){
		domain.EventJoinedAck:        s.onJoinedAck,
		domain.EventChatHistory:      s.onChatHistory,
		domain.EventReceiveMessage:   s.onMessage,
		domain.EventPrivateMessage:   s.onMessage,
		domain.EventRoomMessage:      s.onMessage,
		domain.EventUserList:         s.onUserList,
		domain.EventUserJoined:       s.onUserJoined,
		domain.EventUserLeft:         s.onUserLeft,
		domain.EventTypingUsers:      s.onTypingUsers,
		domain.EventRooms:            s.onRooms,
		domain.EventMessageDelivered: s.onDelivered,
		domain.EventMessageRead:      s.onRead,
	}

	return s
}

// Timeline 本地 timeline
func (s *Session) Timeline() *Reconciler {
	return s.timeline
}

// OnConnect transport 連上後呼叫。
// 每次 reconnect 恰好 announce 一次，由 announced 旗標把關。
func (s *Session) OnConnect(emitter Emitter) {
	s.mu.Lock()
	s.emitter = emitter
	shouldAnnounce := s.username != "" && !s.announced
	if shouldAnnounce {
		s.announced = true
	}
	username := s.username
	s.mu.Unlock()

	if shouldAnnounce {
		s.emit(domain.NewWSEvent(domain.EventUserJoin, domain.UserJoinPayload{Username: username}))
	}
}

// OnDisconnect transport 斷線後呼叫，重置 announce 與 ready 旗標
func (s *Session) OnDisconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announced = false
	s.ready = false
	s.emitter = nil
}

// HandleEvent 整合一則 server event 進本地狀態
func (s *Session) HandleEvent(event domain.WSEvent) {
	handler, ok := s.dispatch[event.Event]
	if !ok {
		return
	}
	handler(event.Payload)
}

// ------- server → client handlers -------

func (s *Session) onJoinedAck(payload json.RawMessage) {
	var ack domain.JoinedAckPayload
	if err := json.Unmarshal(payload, &ack); err != nil {
		return
	}
	s.mu.Lock()
	s.myID = ack.ConnectionID
	if ack.ResumeToken != "" {
		s.resumeToken = ack.ResumeToken
	}
	s.mu.Unlock()
}

func (s *Session) onChatHistory(payload json.RawMessage) {
	var history []domain.Message
	if err := json.Unmarshal(payload, &history); err != nil {
		return
	}
	s.timeline.IntegrateHistory(history)

	// history 到手後本地狀態才可信
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
}

func (s *Session) onMessage(payload json.RawMessage) {
	var msg domain.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return
	}
	if s.timeline.IntegrateLive(msg) {
		// 新整合進來的訊息回報 ack_delivered
		s.emit(domain.NewWSEvent(domain.EventAckDelivered, domain.AckPayload{MessageID: msg.ID}))
	}
}

func (s *Session) onUserList(payload json.RawMessage) {
	var users []domain.Identity
	if err := json.Unmarshal(payload, &users); err != nil {
		return
	}
	s.mu.Lock()
	s.users = users
	s.mu.Unlock()
}

func (s *Session) onUserJoined(payload json.RawMessage) {
	var identity domain.Identity
	if err := json.Unmarshal(payload, &identity); err != nil {
		return
	}
	s.timeline.JoinedNotice(identity.Username)
}

func (s *Session) onUserLeft(payload json.RawMessage) {
	var identity domain.Identity
	if err := json.Unmarshal(payload, &identity); err != nil {
		return
	}
	s.timeline.LeftNotice(identity.Username)
}

func (s *Session) onTypingUsers(payload json.RawMessage) {
	var typing domain.TypingUsersPayload
	if err := json.Unmarshal(payload, &typing); err != nil {
		return
	}
	s.mu.Lock()
	s.typists[typing.RoomID] = typing.Typists
	s.mu.Unlock()
}

func (s *Session) onRooms(payload json.RawMessage) {
	var rooms []domain.RoomSummary
	if err := json.Unmarshal(payload, &rooms); err != nil {
		return
	}
	s.mu.Lock()
	s.rooms = rooms
	s.mu.Unlock()
}

func (s *Session) onDelivered(payload json.RawMessage) {
	var ack domain.AckUpdatePayload
	if err := json.Unmarshal(payload, &ack); err != nil {
		return
	}
	s.timeline.IntegrateAckUpdate(ack.MessageID, ack.ConnectionID, AckDelivered)
}

func (s *Session) onRead(payload json.RawMessage) {
	var ack domain.AckUpdatePayload
	if err := json.Unmarshal(payload, &ack); err != nil {
		return
	}
	s.timeline.IntegrateAckUpdate(ack.MessageID, ack.ConnectionID, AckRead)
}

// ------- client actions -------

// SendMessage 送全域訊息
func (s *Session) SendMessage(body string) {
	s.emit(domain.NewWSEvent(domain.EventSendMessage, domain.SendMessagePayload{Body: body}))
}

// SendPrivateMessage 送私訊給指定 connection
func (s *Session) SendPrivateMessage(to, body string) {
	s.emit(domain.NewWSEvent(domain.EventPrivateMessage, domain.PrivateMessagePayload{To: to, Body: body}))
}

// SendRoomMessage 送房間訊息
func (s *Session) SendRoomMessage(roomID, body string) {
	s.emit(domain.NewWSEvent(domain.EventRoomMessage, domain.RoomMessagePayload{RoomID: roomID, Body: body}))
}

// SetTyping 回報輸入狀態，roomID 留空表示全域
func (s *Session) SetTyping(roomID string, isTyping bool) {
	s.emit(domain.NewWSEvent(domain.EventTyping, domain.TypingPayload{IsTyping: isTyping, RoomID: roomID}))
}

// CreateRoom 建立房間
func (s *Session) CreateRoom(roomID string) {
	s.emit(domain.NewWSEvent(domain.EventCreateRoom, domain.RoomPayload{RoomID: roomID}))
}

// JoinRoom 加入房間
func (s *Session) JoinRoom(roomID string) {
	s.emit(domain.NewWSEvent(domain.EventJoinRoom, domain.RoomPayload{RoomID: roomID}))
}

// LeaveRoom 離開房間
func (s *Session) LeaveRoom(roomID string) {
	s.emit(domain.NewWSEvent(domain.EventLeaveRoom, domain.RoomPayload{RoomID: roomID}))
}

// MarkRead 回報已讀
func (s *Session) MarkRead(messageID string) {
	s.emit(domain.NewWSEvent(domain.EventAckRead, domain.AckPayload{MessageID: messageID}))
}

// ------- state accessors -------

// ID server 配發的 connection id
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.myID
}

// ResumeToken joined_ack 帶回的 resume token
func (s *Session) ResumeToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeToken
}

// Ready 是否已收到 fresh history
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Announced 這次連線是否已 announce
func (s *Session) Announced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.announced
}

// Users 線上名單 snapshot
func (s *Session) Users() []domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Identity, len(s.users))
	copy(out, s.users)
	return out
}

// Typists scope 目前輸入中的使用者
func (s *Session) Typists(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.typists[roomID]))
	copy(out, s.typists[roomID])
	return out
}

// Rooms 房間摘要 snapshot
func (s *Session) Rooms() []domain.RoomSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RoomSummary, len(s.rooms))
	copy(out, s.rooms)
	return out
}

func (s *Session) emit(event domain.WSEvent) {
	s.mu.Lock()
	emitter := s.emitter
	s.mu.Unlock()

	if emitter == nil {
		return
	}
	if err := emitter.Emit(event); err != nil {
		logger.Log.Errorf("emit error:", err)
	}
}
