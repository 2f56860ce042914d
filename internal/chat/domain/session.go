package domain

// Identity definition 一條連線上的使用者身份
// ConnectionID 由 channel 配發，只在連線存活期間唯一；
// Username 由 client 提供，不保證唯一，只能透過重新 announce 變更。
type Identity struct {
	ConnectionID string `json:"id"`
	Username     string `json:"username"`
}

// Room definition chat room membership set
// Members 保存 connection id。房間成員清空後 metadata 仍保留。
type Room struct {
	RoomID    string   `json:"room_id"`
	Creator   string   `json:"creator,omitempty"` // connection id of first creator
	Members   []string `json:"members"`
	CreatedAt int64    `json:"created_at"`
}

// RoomSummary definition rooms event payload entry
type RoomSummary struct {
	RoomID  string `json:"room_id"`
	Members int    `json:"members"`
}

// GlobalTypingScope is the typing scope key for the global chat.
// Room scopes use the room id as key.
const GlobalTypingScope = ""
