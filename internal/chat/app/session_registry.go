package app

import (
	"sync"

	"realtime_chat_service/internal/chat/domain"
)

// SessionRegistry 線上身份的唯一來源。
// 一條連線最多一個 Identity；messaging operation 前必須先 admit。
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*domain.Identity
	order    []string // connection id，依 admit 順序
}

// NewSessionRegistry create SessionRegistry
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*domain.Identity),
	}
}

// Admit 將 username 綁定到連線上。
// 回傳 admitted=true 表示這是該連線第一次 announce；
// 重複 announce 是 no-op（容忍 reconnect race），僅在 username 改變時更新身份，
// 且不重播 user_joined，與 client 端 notice 去重規則鏡像。
func (s *SessionRegistry) Admit(connectionID, username string) (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[connectionID]; ok {
		if username != "" && username != existing.Username {
			existing.Username = username
		}
		return *existing, false
	}

	identity := &domain.Identity{ConnectionID: connectionID, Username: username}
	s.sessions[connectionID] = identity
	s.order = append(s.order, connectionID)
	return *identity, true
}

// Release 移除連線身份。未 admit 過的連線為 no-op。
func (s *SessionRegistry) Release(connectionID string) (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.sessions[connectionID]
	if !ok {
		return domain.Identity{}, false
	}

	delete(s.sessions, connectionID)
	for i, id := range s.order {
		if id == connectionID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return *identity, true
}

// Get 查詢連線身份
func (s *SessionRegistry) Get(connectionID string) (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.sessions[connectionID]
	if !ok {
		return domain.Identity{}, false
	}
	return *identity, true
}

// ListOnline 依 admit 順序回傳線上身份 snapshot
func (s *SessionRegistry) ListOnline() []domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	online := make([]domain.Identity, 0, len(s.order))
	for _, id := range s.order {
		online = append(online, *s.sessions[id])
	}
	return online
}

// ConnectionIDs 目前所有連線 id snapshot，給 global fan-out 用
func (s *SessionRegistry) ConnectionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}
