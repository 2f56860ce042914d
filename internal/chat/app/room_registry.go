package app

import (
	"sync"
	"time"

	"realtime_chat_service/internal/chat/domain"

	"github.com/samber/lo"
)

// RoomRegistry 房間成員集合。join/leave 冪等；房間清空後 metadata 保留。
type RoomRegistry struct {
	mu    sync.Mutex
	rooms map[string]*domain.Room
	order []string // room id，依建立順序
}

// NewRoomRegistry create RoomRegistry
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[string]*domain.Room),
	}
}

// Create 建立房間，已存在時回 ErrRoomExists
func (r *RoomRegistry) Create(roomID, creatorConnectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[roomID]; ok {
		return domain.ErrRoomExists
	}
	r.addRoom(roomID, creatorConnectionID)
	return nil
}

// Join 加入房間。房間不存在時隱式建立；重複加入為 no-op。
func (r *RoomRegistry) Join(roomID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		room = r.addRoom(roomID, connectionID)
	}
	if !lo.Contains(room.Members, connectionID) {
		room.Members = append(room.Members, connectionID)
	}
}

// Leave 離開房間。非成員或房間不存在皆為 no-op。
func (r *RoomRegistry) Leave(roomID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	room.Members = lo.Without(room.Members, connectionID)
}

// LeaveAll 斷線清理：把連線從所有房間移除
func (r *RoomRegistry) LeaveAll(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, room := range r.rooms {
		room.Members = lo.Without(room.Members, connectionID)
	}
}

// MembersOf 回傳房間成員 snapshot，從未建立過的房間回 ErrRoomNotFound
func (r *RoomRegistry) MembersOf(roomID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	members := make([]string, len(room.Members))
	copy(members, room.Members)
	return members, nil
}

// Summaries 依建立順序回傳房間摘要
func (r *RoomRegistry) Summaries() []domain.RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	summaries := make([]domain.RoomSummary, 0, len(r.order))
	for _, id := range r.order {
		summaries = append(summaries, domain.RoomSummary{
			RoomID:  id,
			Members: len(r.rooms[id].Members),
		})
	}
	return summaries
}

// addRoom caller 必須持有 r.mu
func (r *RoomRegistry) addRoom(roomID, creatorConnectionID string) *domain.Room {
	room := &domain.Room{
		RoomID:    roomID,
		Creator:   creatorConnectionID,
		CreatedAt: time.Now().Unix(),
	}
	r.rooms[roomID] = room
	r.order = append(r.order, roomID)
	return room
}
