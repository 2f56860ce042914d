// Package client implements the client-side half of the messaging protocol:
// the local timeline reconciliation and the connection-session state machine.
package client

import (
	"sort"
	"sync"
	"time"

	"realtime_chat_service/internal/chat/domain"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// AckKind definition ack update type
type AckKind string

const (
	// AckDelivered message_delivered relay
	AckDelivered AckKind = "delivered"
	// AckRead message_read relay
	AckRead AckKind = "read"
)

// Reconciler 維護 client 本地的 timeline：有序、去重的訊息序列。
// server 推來的 history、live 訊息與亂序 ack 都在這裡收斂。
type Reconciler struct {
	mu       sync.Mutex
	messages []domain.Message
	seen     map[string]struct{}
}

// NewReconciler create Reconciler
func NewReconciler() *Reconciler {
	return &Reconciler{
		seen: make(map[string]struct{}),
	}
}

// IntegrateHistory 整批取代目前的 timeline，初次連線時使用
func (r *Reconciler) IntegrateHistory(batch []domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = make([]domain.Message, len(batch))
	copy(r.messages, batch)
	r.seen = make(map[string]struct{}, len(batch))
	for _, msg := range batch {
		r.seen[msg.ID] = struct{}{}
	}
}

// IntegrateLive 插入一則 live 訊息。
// 已看過的 id 為 no-op；回傳 true 表示新整合進來，caller 需回 ack_delivered。
func (r *Reconciler) IntegrateLive(msg domain.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[msg.ID]; ok {
		return false
	}
	r.seen[msg.ID] = struct{}{}
	r.messages = append(r.messages, msg)
	return true
}

// IntegrateOlder 合併往回翻頁取得的舊訊息。
// 去重後整段依 timestamp 穩定排序：舊批次可能比新訊息晚到，
// 所以必須重排；tie 保留原相對順序。
func (r *Reconciler) IntegrateOlder(batch []domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	merged := make([]domain.Message, 0, len(batch)+len(r.messages))
	for _, msg := range batch {
		if _, ok := r.seen[msg.ID]; ok {
			continue
		}
		r.seen[msg.ID] = struct{}{}
		merged = append(merged, msg)
	}
	merged = append(merged, r.messages...)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	r.messages = merged
}

// IntegrateAckUpdate 把 connection 併入對應訊息的 ack 集合。
// 訊息不在本地時為 no-op（可能已被淘汰出視圖）。
func (r *Reconciler) IntegrateAckUpdate(messageID, connectionID string, kind AckKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.messages {
		if r.messages[i].ID != messageID {
			continue
		}
		switch kind {
		case AckRead:
			if !lo.Contains(r.messages[i].ReadBy, connectionID) {
				r.messages[i].ReadBy = append(r.messages[i].ReadBy, connectionID)
			}
			// 讀過即視為已送達
			fallthrough
		case AckDelivered:
			if !lo.Contains(r.messages[i].DeliveredTo, connectionID) {
				r.messages[i].DeliveredTo = append(r.messages[i].DeliveredTo, connectionID)
			}
		}
		return true
	}
	return false
}

// JoinedNotice 插入「xxx joined the chat」合成訊息。
// 與最後一筆完全相同的 joined notice 去重，避免 reconnect race 重複顯示。
func (r *Reconciler) JoinedNotice(username string) bool {
	return r.systemNotice(username+" joined the chat", true)
}

// LeftNotice 插入「xxx left the chat」合成訊息
func (r *Reconciler) LeftNotice(username string) bool {
	return r.systemNotice(username+" left the chat", false)
}

func (r *Reconciler) systemNotice(body string, suppressRepeat bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if suppressRepeat && len(r.messages) > 0 {
		last := r.messages[len(r.messages)-1]
		if last.System && last.Body == body {
			return false
		}
	}

	notice := domain.Message{
		ID:        uuid.New().String(),
		Body:      body,
		Timestamp: time.Now().UnixMilli(),
		System:    true,
	}
	r.seen[notice.ID] = struct{}{}
	r.messages = append(r.messages, notice)
	return true
}

// Messages timeline snapshot
func (r *Reconciler) Messages() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Find 依 id 查本地訊息
func (r *Reconciler) Find(messageID string) (domain.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, msg := range r.messages {
		if msg.ID == messageID {
			return msg, true
		}
	}
	return domain.Message{}, false
}
