package domain

import "encoding/json"

// Event definition websocket event kind
type Event string

const (
	// EventUserJoin client announce identity
	EventUserJoin Event = "user_join"
	// EventUserJoined server presence broadcast on admit
	EventUserJoined Event = "user_joined"
	// EventUserLeft server presence broadcast on release
	EventUserLeft Event = "user_left"
	// EventUserList server push of the online user snapshot
	EventUserList Event = "user_list"
	// EventJoinedAck server ack of the announce, carries connection id and resume token
	EventJoinedAck Event = "joined_ack"
	// EventChatHistory server push of the full history on connect
	EventChatHistory Event = "chat_history"

	// EventSendMessage client global message
	EventSendMessage Event = "send_message"
	// EventReceiveMessage server global message fan-out
	EventReceiveMessage Event = "receive_message"
	// EventPrivateMessage client request and server fan-out for private scope
	EventPrivateMessage Event = "private_message"
	// EventRoomMessage client request and server fan-out for room scope
	EventRoomMessage Event = "room_message"

	// EventTyping client typing state change
	EventTyping Event = "typing"
	// EventTypingUsers server push of the scoped typist set
	EventTypingUsers Event = "typing_users"

	// EventCreateRoom client create room
	EventCreateRoom Event = "create_room"
	// EventJoinRoom client join room
	EventJoinRoom Event = "join_room"
	// EventLeaveRoom client leave room
	EventLeaveRoom Event = "leave_room"
	// EventRooms server push of room summaries
	EventRooms Event = "rooms"

	// EventAckDelivered client delivery acknowledgment
	EventAckDelivered Event = "ack_delivered"
	// EventAckRead client read acknowledgment
	EventAckRead Event = "ack_read"
	// EventMessageDelivered server relay of a delivery ack
	EventMessageDelivered Event = "message_delivered"
	// EventMessageRead server relay of a read ack
	EventMessageRead Event = "message_read"

	// EventError server error report to the originating client only
	EventError Event = "error"
)

// WSEvent websocket envelope，所有事件都用這個外層格式
type WSEvent struct {
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewWSEvent marshals payload into an envelope. Marshal errors are
// impossible for the payload types used here, so they are swallowed.
func NewWSEvent(event Event, payload interface{}) WSEvent {
	raw, _ := json.Marshal(payload)
	return WSEvent{Event: event, Payload: raw}
}

// UserJoinPayload client→server announce
type UserJoinPayload struct {
	Username string `json:"username"`
}

// SendMessagePayload client→server global message
type SendMessagePayload struct {
	Body string `json:"body"`
}

// PrivateMessagePayload client→server private message
type PrivateMessagePayload struct {
	To   string `json:"to"` // target connection id
	Body string `json:"body"`
}

// RoomMessagePayload client→server room message
type RoomMessagePayload struct {
	RoomID string `json:"room_id"`
	Body   string `json:"body"`
}

// TypingPayload client→server typing state. RoomID empty = global scope.
type TypingPayload struct {
	IsTyping bool   `json:"is_typing"`
	RoomID   string `json:"room_id,omitempty"`
}

// TypingUsersPayload server→clients scoped typist set
type TypingUsersPayload struct {
	RoomID  string   `json:"room_id,omitempty"`
	Typists []string `json:"typists"`
}

// RoomPayload client→server create/join/leave room
type RoomPayload struct {
	RoomID string `json:"room_id"`
}

// AckPayload client→server delivered/read acknowledgment
type AckPayload struct {
	MessageID string `json:"message_id"`
}

// AckUpdatePayload server→clients relay of a delivered/read ack
type AckUpdatePayload struct {
	MessageID    string `json:"message_id"`
	ConnectionID string `json:"connection_id"`
}

// JoinedAckPayload server→client announce ack
type JoinedAckPayload struct {
	ConnectionID string `json:"id"`
	ResumeToken  string `json:"resume_token,omitempty"`
}

// ErrorPayload server→client error report
type ErrorPayload struct {
	Event   Event  `json:"event,omitempty"` // the event that failed
	Message string `json:"message"`
}
