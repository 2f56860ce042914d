package domain

import "errors"

// 錯誤分類，對應各 operation 的失敗情況。
// 重複 announce 與未知 message id 的 ack 屬於 tolerated no-op，不產生錯誤。
var (
	// ErrNotAnnounced messaging operation before identity admission
	ErrNotAnnounced = errors.New("identity required before messaging")
	// ErrRoomExists create on an existing room id
	ErrRoomExists = errors.New("room already exists")
	// ErrRoomNotFound lookup of a room never created and never joined
	ErrRoomNotFound = errors.New("room not found")
	// ErrPersistence message store rejected the append, send aborted before fan-out
	ErrPersistence = errors.New("message persistence failed")
)
