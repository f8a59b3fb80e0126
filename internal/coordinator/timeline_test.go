package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bandhannova07/Bringlare-Chat/internal/model"
)

func ts(sec int) time.Time {
	return time.Date(2026, 8, 1, 12, 0, sec, 0, time.UTC)
}

func tsp(sec int) *time.Time {
	t := ts(sec)
	return &t
}

func TestTimelineDedupProvisionalThenDurable(t *testing.T) {
	tl := NewTimeline("chat-1")

	tl.ApplyOptimistic(model.Message{
		ProvisionalID: "prov-1",
		ChatID:        "chat-1",
		SenderID:      "alice",
		Content:       "hi",
		CreatedAt:     ts(10),
	})
	tl.ApplyRealtime(model.Message{
		ProvisionalID: "prov-1",
		ChatID:        "chat-1",
		SenderID:      "alice",
		Content:       "hi",
		CreatedAt:     ts(10),
	})
	tl.ApplyDurable(model.Message{
		ID:            "dur-1",
		ProvisionalID: "prov-1",
		ChatID:        "chat-1",
		SenderID:      "alice",
		Content:       "hi",
		CreatedAt:     ts(10),
		ServerAt:      tsp(11),
	})

	assert.Equal(t, 1, tl.Len(), "three sources of one message must collapse into one entry")

	e, ok := tl.Entry("prov-1")
	require.True(t, ok)
	assert.Equal(t, "dur-1", e.Message.ID)
	assert.Equal(t, PhaseConfirmed, e.Phase)
	assert.True(t, e.FromRealtime)
	assert.True(t, e.FromDurable)
	require.NotNil(t, e.Message.ServerAt)
	assert.Equal(t, ts(11), *e.Message.ServerAt)
}

func TestTimelineRealtimeDuplicatesIdempotent(t *testing.T) {
	tl := NewTimeline("chat-1")
	m := model.Message{ProvisionalID: "prov-1", ChatID: "chat-1", SenderID: "bob", Content: "x", CreatedAt: ts(1)}

	tl.ApplyRealtime(m)
	tl.ApplyRealtime(m)
	tl.ApplyRealtime(m)

	assert.Equal(t, 1, tl.Len())
}

func TestTimelineDurableWithoutProvisionalMatchesByID(t *testing.T) {
	tl := NewTimeline("chat-1")

	// Событие от другой сессии: provisional id наш клиент не знает.
	tl.ApplyRealtime(model.Message{ID: "dur-9", ChatID: "chat-1", SenderID: "bob", Content: "yo", CreatedAt: ts(5)})
	tl.ApplyDurable(model.Message{ID: "dur-9", ChatID: "chat-1", SenderID: "bob", Content: "yo", CreatedAt: ts(5), ServerAt: tsp(5)})

	assert.Equal(t, 1, tl.Len())
}

func TestTimelineRealtimeByIDThenDurableWithProvisional(t *testing.T) {
	tl := NewTimeline("chat-1")

	// Realtime-событие пришло только с durable id, provisional id принесла
	// поздняя durable-запись. Оба ключа должны вести к одной записи.
	tl.ApplyRealtime(model.Message{ID: "dur-1", ChatID: "chat-1", SenderID: "bob", Content: "yo", CreatedAt: ts(5)})
	tl.ApplyDurable(model.Message{ID: "dur-1", ProvisionalID: "prov-1", ChatID: "chat-1", SenderID: "bob", Content: "yo", CreatedAt: ts(5), ServerAt: tsp(6)})

	assert.Equal(t, 1, tl.Len(), "one logical message must not render twice")
	require.Len(t, tl.Entries(), 1)

	e, ok := tl.Entry("prov-1")
	require.True(t, ok)
	assert.Equal(t, "dur-1", e.Message.ID)
	e, ok = tl.Entry("dur-1")
	require.True(t, ok)
	assert.Equal(t, "prov-1", e.Message.ProvisionalID)
}

func TestTimelineDurableContentAuthoritative(t *testing.T) {
	tl := NewTimeline("chat-1")

	tl.ApplyOptimistic(model.Message{ProvisionalID: "p1", ChatID: "chat-1", SenderID: "a", Content: "draft", CreatedAt: ts(10)})
	tl.ApplyDurable(model.Message{
		ID: "d1", ProvisionalID: "p1", ChatID: "chat-1", SenderID: "a",
		Content: "stored", CreatedAt: ts(10), ServerAt: tsp(12),
	})

	e, ok := tl.Entry("p1")
	require.True(t, ok)
	assert.Equal(t, "stored", e.Message.Content)
	assert.Equal(t, ts(12), e.Message.EffectiveTime())
}

func TestTimelineResortOnServerTime(t *testing.T) {
	tl := NewTimeline("chat-1")

	// Часы отправителя A спешат: локально его сообщение "позже" сообщения B.
	tl.ApplyOptimistic(model.Message{ProvisionalID: "pa", ChatID: "chat-1", SenderID: "a", Content: "from A", CreatedAt: ts(30)})
	tl.ApplyRealtime(model.Message{ID: "db", ChatID: "chat-1", SenderID: "b", Content: "from B", CreatedAt: ts(20), ServerAt: tsp(20)})

	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "from B", entries[0].Message.Content)
	assert.Equal(t, "from A", entries[1].Message.Content)

	// Серверное время ставит A раньше B: порядок меняется.
	tl.ApplyDurable(model.Message{ID: "da", ProvisionalID: "pa", ChatID: "chat-1", SenderID: "a", Content: "from A", CreatedAt: ts(30), ServerAt: tsp(15)})

	entries = tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "from A", entries[0].Message.Content)
	assert.Equal(t, "from B", entries[1].Message.Content)
}

func TestTimelineEqualTimesStableOrder(t *testing.T) {
	tl := NewTimeline("chat-1")
	tl.ApplyRealtime(model.Message{ID: "b", ChatID: "chat-1", SenderID: "x", Content: "2", CreatedAt: ts(5), ServerAt: tsp(5)})
	tl.ApplyRealtime(model.Message{ID: "a", ChatID: "chat-1", SenderID: "x", Content: "1", CreatedAt: ts(5), ServerAt: tsp(5)})

	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Message.ID)
	assert.Equal(t, "b", entries[1].Message.ID)
}

func TestTimelineReadCursor(t *testing.T) {
	tl := NewTimeline("chat-1")

	tl.ApplyDurable(model.Message{ID: "m1", ChatID: "chat-1", SenderID: "alice", Content: "old", CreatedAt: ts(10), ServerAt: tsp(10)})
	tl.ApplyDurable(model.Message{ID: "m2", ChatID: "chat-1", SenderID: "alice", Content: "new", CreatedAt: ts(20), ServerAt: tsp(20)})
	tl.ApplyDurable(model.Message{ID: "m3", ChatID: "chat-1", SenderID: "bob", Content: "own", CreatedAt: ts(5), ServerAt: tsp(5)})

	// Боб прочитал до ts(15): m1 прочитано, m2 только доставлено.
	tl.AdvanceReadCursor("bob", ts(15))

	e1, _ := tl.Entry("m1")
	e2, _ := tl.Entry("m2")
	e3, _ := tl.Entry("m3")
	assert.Equal(t, model.MessageStatusRead, e1.Message.Status)
	assert.Equal(t, model.MessageStatusDelivered, e2.Message.Status)
	assert.Equal(t, model.MessageStatusSent, e3.Message.Status, "own cursor must not touch own messages")
}

func TestTimelineStatusNeverRegresses(t *testing.T) {
	tl := NewTimeline("chat-1")
	tl.ApplyDurable(model.Message{ID: "m1", ChatID: "chat-1", SenderID: "alice", Content: "x", CreatedAt: ts(10), ServerAt: tsp(10)})

	tl.AdvanceReadCursor("bob", ts(20)) // read
	tl.AdvanceReadCursor("bob", ts(5))  // устаревший курсор не понижает статус

	e, _ := tl.Entry("m1")
	assert.Equal(t, model.MessageStatusRead, e.Message.Status)

	// Поздняя durable-запись со статусом sent тоже не понижает.
	tl.ApplyDurable(model.Message{ID: "m1", ChatID: "chat-1", SenderID: "alice", Content: "x", Status: model.MessageStatusSent, CreatedAt: ts(10), ServerAt: tsp(10)})
	e, _ = tl.Entry("m1")
	assert.Equal(t, model.MessageStatusRead, e.Message.Status)
}

func TestTimelinePersistFailedAndWithdraw(t *testing.T) {
	tl := NewTimeline("chat-1")
	tl.ApplyOptimistic(model.Message{ProvisionalID: "p1", ChatID: "chat-1", SenderID: "a", Content: "x", CreatedAt: ts(1)})
	tl.ApplyOptimistic(model.Message{ProvisionalID: "p2", ChatID: "chat-1", SenderID: "a", Content: "y", CreatedAt: ts(2)})

	tl.MarkPersistFailed("p1")
	e, _ := tl.Entry("p1")
	assert.True(t, e.PersistFailed)
	assert.Equal(t, 2, tl.Len(), "persist-failed entry stays visible")

	tl.Withdraw("p2")
	assert.Equal(t, 1, tl.Len())
	failed := tl.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "p2", failed[0].ProvisionalID)

	m, ok := tl.TakeFailed("p2")
	require.True(t, ok)
	assert.Equal(t, "y", m.Content)
	assert.Empty(t, tl.Failed())
}

func TestTimelineLateDurableClearsPersistFailed(t *testing.T) {
	tl := NewTimeline("chat-1")
	tl.ApplyOptimistic(model.Message{ProvisionalID: "p1", ChatID: "chat-1", SenderID: "a", Content: "x", CreatedAt: ts(1)})
	tl.MarkPersistFailed("p1")

	// Ручной повтор или чужая сессия всё же дописали сообщение в историю.
	tl.ApplyDurable(model.Message{ID: "d1", ProvisionalID: "p1", ChatID: "chat-1", SenderID: "a", Content: "x", CreatedAt: ts(1), ServerAt: tsp(2)})

	e, _ := tl.Entry("p1")
	assert.False(t, e.PersistFailed)
}
