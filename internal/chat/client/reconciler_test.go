package client

import (
	"testing"

	"realtime_chat_service/internal/chat/domain"

	"github.com/stretchr/testify/assert"
)

// 測試 IntegrateLive 去重：同一個 id 第二次整合為 no-op
func TestReconciler_IntegrateLiveDedup(t *testing.T) {
	rec := NewReconciler()
	msg := domain.Message{ID: "msg-1", Body: "hello", Timestamp: 100}

	assert.True(t, rec.IntegrateLive(msg))
	assert.False(t, rec.IntegrateLive(msg), "重複的 live 訊息不得再整合")
	assert.Len(t, rec.Messages(), 1)
}

// 測試 IntegrateHistory 整批取代 timeline
func TestReconciler_IntegrateHistory(t *testing.T) {
	rec := NewReconciler()
	rec.IntegrateLive(domain.Message{ID: "stale", Body: "old view", Timestamp: 1})

	rec.IntegrateHistory([]domain.Message{
		{ID: "msg-1", Timestamp: 10},
		{ID: "msg-2", Timestamp: 20},
	})

	timeline := rec.Messages()
	assert.Len(t, timeline, 2)
	assert.Equal(t, "msg-1", timeline[0].ID)
	assert.Equal(t, "msg-2", timeline[1].ID)

	// 取代後舊視圖的 id 不再算看過
	assert.True(t, rec.IntegrateLive(domain.Message{ID: "stale", Timestamp: 30}))
}

// 測試 IntegrateOlder：與現有 timeline 重疊時去重，整段依 timestamp 重排
func TestReconciler_IntegrateOlder(t *testing.T) {
	rec := NewReconciler()
	rec.IntegrateHistory([]domain.Message{
		{ID: "msg-3", Timestamp: 30},
		{ID: "msg-4", Timestamp: 40},
	})

	// 舊批次部分重疊（msg-3），且比現有 timeline 晚到
	rec.IntegrateOlder([]domain.Message{
		{ID: "msg-1", Timestamp: 10},
		{ID: "msg-2", Timestamp: 20},
		{ID: "msg-3", Timestamp: 30},
	})

	timeline := rec.Messages()
	assert.Len(t, timeline, 4)
	ids := []string{timeline[0].ID, timeline[1].ID, timeline[2].ID, timeline[3].ID}
	assert.Equal(t, []string{"msg-1", "msg-2", "msg-3", "msg-4"}, ids)
}

// 測試 IntegrateOlder 的 timestamp tie：穩定排序保留原相對順序
func TestReconciler_IntegrateOlderStableTie(t *testing.T) {
	rec := NewReconciler()
	rec.IntegrateHistory([]domain.Message{
		{ID: "msg-b", Timestamp: 20},
	})

	rec.IntegrateOlder([]domain.Message{
		{ID: "msg-a", Timestamp: 20},
	})

	// tie 時舊批次排在前（prepend 後穩定排序）
	timeline := rec.Messages()
	assert.Equal(t, "msg-a", timeline[0].ID)
	assert.Equal(t, "msg-b", timeline[1].ID)
}

// 測試 IntegrateAckUpdate：read 蘊含 delivered；本地沒有的訊息為 no-op
func TestReconciler_IntegrateAckUpdate(t *testing.T) {
	rec := NewReconciler()
	rec.IntegrateLive(domain.Message{ID: "msg-1", Timestamp: 10})

	assert.True(t, rec.IntegrateAckUpdate("msg-1", "conn-b", AckRead))

	msg, ok := rec.Find("msg-1")
	assert.True(t, ok)
	assert.Equal(t, []string{"conn-b"}, msg.ReadBy)
	assert.Equal(t, []string{"conn-b"}, msg.DeliveredTo)

	// 重複 ack 不重複累積
	assert.True(t, rec.IntegrateAckUpdate("msg-1", "conn-b", AckDelivered))
	msg, _ = rec.Find("msg-1")
	assert.Equal(t, []string{"conn-b"}, msg.DeliveredTo)

	// 不在本地的訊息容忍為 no-op
	assert.False(t, rec.IntegrateAckUpdate("msg-ghost", "conn-b", AckDelivered))
}

// 測試 joined notice 去重：連續兩筆相同的 joined notice 只留一筆
func TestReconciler_JoinedNoticeSuppress(t *testing.T) {
	rec := NewReconciler()

	assert.True(t, rec.JoinedNotice("alice"))
	assert.False(t, rec.JoinedNotice("alice"), "連續相同的 joined notice 要被壓掉")
	assert.Len(t, rec.Messages(), 1)

	// 中間插了別的訊息後就不再壓
	rec.IntegrateLive(domain.Message{ID: "msg-1", Timestamp: 10})
	assert.True(t, rec.JoinedNotice("alice"))

	timeline := rec.Messages()
	assert.Len(t, timeline, 3)
	assert.True(t, timeline[2].System)
	assert.Equal(t, "alice joined the chat", timeline[2].Body)
}

// 測試 left notice：不做去重
func TestReconciler_LeftNotice(t *testing.T) {
	rec := NewReconciler()

	assert.True(t, rec.LeftNotice("bob"))
	assert.True(t, rec.LeftNotice("bob"))

	timeline := rec.Messages()
	assert.Len(t, timeline, 2)
	assert.Equal(t, "bob left the chat", timeline[0].Body)
	assert.True(t, timeline[0].System)
}
