package domain

// Scope definition message addressing mode
type Scope string

const (
	// ScopeGlobal broadcast to every connection
	ScopeGlobal Scope = "global"
	// ScopePrivate exactly one target connection plus sender echo
	ScopePrivate Scope = "private"
	// ScopeRoom fan-out to the room member set
	ScopeRoom Scope = "room"
)

// Message 表示一則聊天訊息，append-only：除了 DeliveredTo/ReadBy 之外不可變
type Message struct {
	ID     string `bson:"id" json:"id" gorm:"primaryKey"`
	Seq    uint64 `bson:"seq" json:"seq" gorm:"index"` // server 插入順序，timestamp 相同時用來排序
	Sender string `bson:"sender" json:"sender"`
	Body   string `bson:"body" json:"body"`
	// Timestamp unix milliseconds, assigned by the server at send time
	Timestamp int64  `bson:"timestamp" json:"timestamp"`
	Scope     Scope  `bson:"scope" json:"scope"`
	Target    string `bson:"target,omitempty" json:"target,omitempty"`   // private: 對象 connection id
	RoomID    string `bson:"room_id,omitempty" json:"room_id,omitempty"` // room scope
	System    bool   `bson:"system,omitempty" json:"system,omitempty"`   // synthetic join/left notice

	// DeliveredTo / ReadBy grow-only sets of connection ids. ReadBy ⊆ DeliveredTo.
	DeliveredTo []string `bson:"delivered_to,omitempty" json:"delivered_to,omitempty" gorm:"serializer:json"`
	ReadBy      []string `bson:"read_by,omitempty" json:"read_by,omitempty" gorm:"serializer:json"`
}

// Before reports whether m precedes other in the presented timeline:
// total order by timestamp, ties broken by server insertion sequence.
func (m *Message) Before(other *Message) bool {
	if m.Timestamp != other.Timestamp {
		return m.Timestamp < other.Timestamp
	}
	return m.Seq < other.Seq
}
