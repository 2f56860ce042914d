package app

import (
	"sort"
	"sync"
	"time"
)

// ClientTypingDebounce client 端停止輸入後送出 typing=false 的約定間隔
const ClientTypingDebounce = 1200 * time.Millisecond

// DefaultTypingExpiry server 端 stuck-typist 過期時間，取 client debounce 的兩倍。
// client 斷線或漏送 typing=false 時由此兜底。
const DefaultTypingExpiry = 2 * ClientTypingDebounce

// TypingTracker 各 scope 正在輸入中的 username 集合。
// scope key: domain.GlobalTypingScope 或 room id。Ephemeral，不持久化。
type TypingTracker struct {
	mu      sync.Mutex
	typists map[string]map[string]*time.Timer // scope -> username -> expiry timer
	expiry  time.Duration

	// onExpire 過期自動移除 typist 後通知（推送更新後的集合）
	onExpire func(scope string, typists []string)
}

// NewTypingTracker create TypingTracker；expiry <= 0 時用預設值
func NewTypingTracker(expiry time.Duration, onExpire func(scope string, typists []string)) *TypingTracker {
	if expiry <= 0 {
		expiry = DefaultTypingExpiry
	}
	return &TypingTracker{
		typists:  make(map[string]map[string]*time.Timer),
		expiry:   expiry,
		onExpire: onExpire,
	}
}

// SetTyping 更新 scope 的 typist 集合並回傳更新後的集合。
// typing=true 會重設該 typist 的過期計時。
func (t *TypingTracker) SetTyping(scope, username string, isTyping bool) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.typists[scope]
	if !ok {
		if !isTyping {
			return nil
		}
		set = make(map[string]*time.Timer)
		t.typists[scope] = set
	}

	if isTyping {
		if timer, ok := set[username]; ok {
			timer.Stop()
		}
		set[username] = time.AfterFunc(t.expiry, func() {
			t.expire(scope, username)
		})
	} else {
		if timer, ok := set[username]; ok {
			timer.Stop()
			delete(set, username)
		}
	}

	return typistsLocked(set)
}

// Typists scope 目前的 typist 集合 snapshot
func (t *TypingTracker) Typists(scope string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return typistsLocked(t.typists[scope])
}

// ClearUser 斷線清理：把 username 從所有 scope 移除
func (t *TypingTracker) ClearUser(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, set := range t.typists {
		if timer, ok := set[username]; ok {
			timer.Stop()
			delete(set, username)
		}
	}
}

func (t *TypingTracker) expire(scope, username string) {
	t.mu.Lock()
	set, ok := t.typists[scope]
	if !ok {
		t.mu.Unlock()
		return
	}
	if _, ok := set[username]; !ok {
		t.mu.Unlock()
		return
	}
	delete(set, username)
	remaining := typistsLocked(set)
	t.mu.Unlock()

	if t.onExpire != nil {
		t.onExpire(scope, remaining)
	}
}

// typistsLocked caller 必須持有 t.mu；排序讓輸出穩定
func typistsLocked(set map[string]*time.Timer) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for username := range set {
		out = append(out, username)
	}
	sort.Strings(out)
	return out
}
