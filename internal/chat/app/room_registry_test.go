package app

import (
	"testing"

	"realtime_chat_service/internal/chat/domain"

	"github.com/stretchr/testify/assert"
)

// 測試 Create：重複建立回 ErrRoomExists
func TestRoomRegistry_Create(t *testing.T) {
	reg := NewRoomRegistry()

	err := reg.Create("room-1", "conn-a")
	assert.NoError(t, err)

	err = reg.Create("room-1", "conn-b")
	assert.ErrorIs(t, err, domain.ErrRoomExists)
}

// 測試 Join 冪等：join;join;leave;leave 結果等同 join;leave
func TestRoomRegistry_JoinLeaveIdempotent(t *testing.T) {
	reg := NewRoomRegistry()

	reg.Join("room-1", "conn-a")
	reg.Join("room-1", "conn-a")

	members, err := reg.MembersOf("room-1")
	assert.NoError(t, err)
	assert.Equal(t, []string{"conn-a"}, members)

	reg.Leave("room-1", "conn-a")
	reg.Leave("room-1", "conn-a")

	members, err = reg.MembersOf("room-1")
	assert.NoError(t, err)
	assert.Empty(t, members)
}

// 測試隱式建立：join 不存在的房間會自動建立
func TestRoomRegistry_JoinImplicitCreate(t *testing.T) {
	reg := NewRoomRegistry()

	reg.Join("room-x", "conn-a")

	members, err := reg.MembersOf("room-x")
	assert.NoError(t, err)
	assert.Equal(t, []string{"conn-a"}, members)
}

// 測試房間清空後 metadata 保留：MembersOf 回空集合而非 ErrRoomNotFound
func TestRoomRegistry_EmptyRoomRetained(t *testing.T) {
	reg := NewRoomRegistry()
	reg.Join("room-1", "conn-a")
	reg.Leave("room-1", "conn-a")

	members, err := reg.MembersOf("room-1")
	assert.NoError(t, err)
	assert.Empty(t, members)

	summaries := reg.Summaries()
	assert.Len(t, summaries, 1)
	assert.Equal(t, "room-1", summaries[0].RoomID)
	assert.Equal(t, 0, summaries[0].Members)
}

// 測試從未建立過的房間回 ErrRoomNotFound
func TestRoomRegistry_MembersOfUnknown(t *testing.T) {
	reg := NewRoomRegistry()

	_, err := reg.MembersOf("room-ghost")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

// 測試 LeaveAll：斷線清理把連線從所有房間移除
func TestRoomRegistry_LeaveAll(t *testing.T) {
	reg := NewRoomRegistry()
	reg.Join("room-1", "conn-a")
	reg.Join("room-1", "conn-b")
	reg.Join("room-2", "conn-a")

	reg.LeaveAll("conn-a")

	members, _ := reg.MembersOf("room-1")
	assert.Equal(t, []string{"conn-b"}, members)
	members, _ = reg.MembersOf("room-2")
	assert.Empty(t, members)
}

// 測試 Summaries 依建立順序回傳
func TestRoomRegistry_SummariesOrder(t *testing.T) {
	reg := NewRoomRegistry()
	assert.NoError(t, reg.Create("room-b", "conn-a"))
	assert.NoError(t, reg.Create("room-a", "conn-a"))
	reg.Join("room-a", "conn-a")

	summaries := reg.Summaries()
	assert.Len(t, summaries, 2)
	assert.Equal(t, "room-b", summaries[0].RoomID)
	assert.Equal(t, "room-a", summaries[1].RoomID)
	assert.Equal(t, 1, summaries[1].Members)
}
