package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"realtime_chat_service/internal/chat/domain"
	"realtime_chat_service/internal/chat/repository"
	"realtime_chat_service/pkg/logger"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// DeliveryUseCase 負責訊息遞送：建立訊息、持久化、fan-out、收斂 ack。
// per-message 狀態機：Created → Persisted → Delivered(partial/complete) → Read(partial/complete)。
type DeliveryUseCase struct {
	sessions *SessionRegistry
	rooms    *RoomRegistry
	store    repository.MessageStore
	bus      repository.EventBus
	archive  *repository.MessageArchive

	// sendMu 序列化 persist→publish，保證 broadcast 順序等於持久化完成順序
	sendMu sync.Mutex
	seq    uint64

	mu     sync.Mutex
	issued map[string]*domain.Message // message id -> 已發出的訊息，ack 收斂用
}

// NewDeliveryUseCase create DeliveryUseCase；archive 可為 nil
func NewDeliveryUseCase(
	sessions *SessionRegistry,
	rooms *RoomRegistry,
	store repository.MessageStore,
	bus repository.EventBus,
	archive *repository.MessageArchive,
) *DeliveryUseCase {
	return &DeliveryUseCase{
		sessions: sessions,
		rooms:    rooms,
		store:    store,
		bus:      bus,
		archive:  archive,
		issued:   make(map[string]*domain.Message),
	}
}

// Send 建立並遞送一則訊息。
// 持久化失敗時回 ErrPersistence 且不 fan-out：訊息永遠先落地才可見。
// fan-out 到零個對象（例如空房間）是合法的，不視為錯誤。
func (uc *DeliveryUseCase) Send(ctx context.Context, sender domain.Identity, body string, scope domain.Scope, target, roomID string) (*domain.Message, error) {
	// 1. 先解析 audience，房間不存在時在持久化前就失敗
	audience, event, err := uc.resolveAudience(sender, scope, target, roomID)
	if err != nil {
		return nil, err
	}

	uc.sendMu.Lock()
	defer uc.sendMu.Unlock()

	// 2. 建立訊息：uuid + 單調遞增 seq，timestamp 相同時 seq 決定順序
	uc.seq++
	msg := &domain.Message{
		ID:        uuid.New().String(),
		Seq:       uc.seq,
		Sender:    sender.Username,
		Body:      body,
		Timestamp: time.Now().UnixMilli(),
		Scope:     scope,
		Target:    target,
		RoomID:    roomID,
	}

	// 3. 持久化，失敗則中止，不得讓其他 client 看到
	if err := uc.store.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	uc.mu.Lock()
	uc.issued[msg.ID] = msg
	uc.mu.Unlock()

	// 4. fan-out 給解析出的 audience
	payload := domain.NewWSEvent(event, msg)
	for _, connectionID := range audience {
		if err := uc.bus.Publish(repository.ConnChannel(connectionID), payload); err != nil {
			logger.Log.Errorf("fan-out publish error:", err)
		}
	}

	// 5. 非同步複寫到 archive
	uc.archive.Archive(msg)

	return msg, nil
}

// AckDelivered 把 connection 加入訊息的 deliveredTo 並轉播 message_delivered。
// 未知的 message id 容忍為 no-op（ack 可能跟 history 淘汰 race）。
func (uc *DeliveryUseCase) AckDelivered(connectionID, messageID string) {
	uc.mu.Lock()
	msg, ok := uc.issued[messageID]
	if !ok {
		uc.mu.Unlock()
		logger.Log.Debug("ack_delivered for unknown message: " + messageID)
		return
	}
	if lo.Contains(msg.DeliveredTo, connectionID) {
		uc.mu.Unlock()
		return
	}
	msg.DeliveredTo = append(msg.DeliveredTo, connectionID)
	uc.mu.Unlock()

	uc.broadcastAll(domain.NewWSEvent(domain.EventMessageDelivered, domain.AckUpdatePayload{
		MessageID:    messageID,
		ConnectionID: connectionID,
	}))
}

// AckRead 把 connection 加入 readBy，讀過即視為已送達（readBy ⊆ deliveredTo）。
func (uc *DeliveryUseCase) AckRead(connectionID, messageID string) {
	uc.mu.Lock()
	msg, ok := uc.issued[messageID]
	if !ok {
		uc.mu.Unlock()
		logger.Log.Debug("ack_read for unknown message: " + messageID)
		return
	}
	if !lo.Contains(msg.DeliveredTo, connectionID) {
		msg.DeliveredTo = append(msg.DeliveredTo, connectionID)
	}
	if lo.Contains(msg.ReadBy, connectionID) {
		uc.mu.Unlock()
		return
	}
	msg.ReadBy = append(msg.ReadBy, connectionID)
	uc.mu.Unlock()

	uc.broadcastAll(domain.NewWSEvent(domain.EventMessageRead, domain.AckUpdatePayload{
		MessageID:    messageID,
		ConnectionID: connectionID,
	}))
}

// Issued 查詢已發出的訊息 snapshot，測試與 handler 用
func (uc *DeliveryUseCase) Issued(messageID string) (domain.Message, bool) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	msg, ok := uc.issued[messageID]
	if !ok {
		return domain.Message{}, false
	}
	return *msg, true
}

// History 依建立順序取回完整訊息 log
func (uc *DeliveryUseCase) History(ctx context.Context) ([]domain.Message, error) {
	return uc.store.FindAllOrderedByCreation(ctx)
}

func (uc *DeliveryUseCase) resolveAudience(sender domain.Identity, scope domain.Scope, target, roomID string) ([]string, domain.Event, error) {
	switch scope {
	case domain.ScopePrivate:
		// 對象加上 sender 自己的 echo
		audience := []string{target}
		if target != sender.ConnectionID {
			audience = append(audience, sender.ConnectionID)
		}
		return audience, domain.EventPrivateMessage, nil
	case domain.ScopeRoom:
		audience, err := uc.rooms.MembersOf(roomID)
		if err != nil {
			return nil, "", err
		}
		return audience, domain.EventRoomMessage, nil
	default:
		return uc.sessions.ConnectionIDs(), domain.EventReceiveMessage, nil
	}
}

func (uc *DeliveryUseCase) broadcastAll(event domain.WSEvent) {
	for _, connectionID := range uc.sessions.ConnectionIDs() {
		if err := uc.bus.Publish(repository.ConnChannel(connectionID), event); err != nil {
			logger.Log.Errorf("broadcast publish error:", err)
		}
	}
}
