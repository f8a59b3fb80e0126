package coordinator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bandhannova07/Bringlare-Chat/internal/model"
)

type dispatchRecorder struct {
	mu   sync.Mutex
	got  []*model.Message
	done chan struct{}
}

func newDispatchRecorder() *dispatchRecorder {
	return &dispatchRecorder{done: make(chan struct{}, 16)}
}

func (r *dispatchRecorder) dispatch(_ context.Context, m *model.Message) {
	r.mu.Lock()
	r.got = append(r.got, m)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *dispatchRecorder) wait(t *testing.T) *model.Message {
	t.Helper()
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.got[len(r.got)-1]
}

func TestComposerSubmitValidation(t *testing.T) {
	rec := newDispatchRecorder()
	c := NewComposer(NewTimeline("c1"), rec.dispatch)
	ctx := context.Background()

	_, err := c.Submit(ctx, "", "alice", Body{Content: "hi"})
	assert.ErrorIs(t, err, ErrNoChat)

	_, err = c.Submit(ctx, "c1", "", Body{Content: "hi"})
	assert.ErrorIs(t, err, ErrNoAuthor)

	_, err = c.Submit(ctx, "c1", "alice", Body{Content: "   \n\t "})
	assert.ErrorIs(t, err, ErrEmptyBody)

	_, err = c.Submit(ctx, "c1", "alice", Body{Kind: model.MessageKindImage})
	assert.ErrorIs(t, err, ErrBadFileRef)

	_, err = c.Submit(ctx, "c1", "alice", Body{Kind: "sticker", Content: "hi"})
	assert.ErrorIs(t, err, ErrBadKind)
}

func TestComposerSubmitReturnsStableCopy(t *testing.T) {
	rec := newDispatchRecorder()
	c := NewComposer(NewTimeline("c1"), rec.dispatch)

	m, err := c.Submit(context.Background(), "c1", "alice", Body{Content: "hi"})
	require.NoError(t, err)

	// Фоновая запись присваивает durable id своей копии, а не возвращённому
	// сообщению: его можно читать без синхронизации с dispatch.
	got := rec.wait(t)
	require.NotSame(t, m, got)
	got.ID = "dur-1"
	assert.Empty(t, m.ID)
}

func TestComposerSubmitOptimisticInsert(t *testing.T) {
	rec := newDispatchRecorder()
	tl := NewTimeline("c1")
	c := NewComposer(tl, rec.dispatch)

	m, err := c.Submit(context.Background(), "c1", "alice", Body{Content: "  hello  "})
	require.NoError(t, err)

	assert.NotEmpty(t, m.ProvisionalID)
	assert.Empty(t, m.ID, "durable id is assigned later by the store")
	assert.Equal(t, "hello", m.Content, "body is trimmed")
	assert.Equal(t, model.MessageKindText, m.Kind)
	assert.Equal(t, model.MessageStatusSent, m.Status)
	assert.False(t, m.CreatedAt.IsZero())

	// Запись видна в ленте до любого сетевого подтверждения.
	e, ok := tl.Entry(m.ProvisionalID)
	require.True(t, ok)
	assert.Equal(t, PhaseOptimistic, e.Phase)

	got := rec.wait(t)
	assert.Equal(t, m.ProvisionalID, got.ProvisionalID)
}

func TestComposerSubmitUniqueProvisionalIDs(t *testing.T) {
	rec := newDispatchRecorder()
	c := NewComposer(NewTimeline("c1"), rec.dispatch)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		m, err := c.Submit(context.Background(), "c1", "alice", Body{Content: "same text"})
		require.NoError(t, err)
		assert.False(t, seen[m.ProvisionalID], "provisional ids must be unique even for identical bodies")
		seen[m.ProvisionalID] = true
		rec.wait(t)
	}
}

func TestComposerFileMessage(t *testing.T) {
	rec := newDispatchRecorder()
	c := NewComposer(NewTimeline("c1"), rec.dispatch)

	m, err := c.Submit(context.Background(), "c1", "alice", Body{
		Kind:    model.MessageKindImage,
		FileURL: "https://files.local/pic.png",
	})
	require.NoError(t, err)
	assert.Equal(t, model.MessageKindImage, m.Kind)
	assert.True(t, m.IsFile())
	rec.wait(t)
}

func TestComposerResubmit(t *testing.T) {
	rec := newDispatchRecorder()
	tl := NewTimeline("c1")
	c := NewComposer(tl, rec.dispatch)

	m, err := c.Submit(context.Background(), "c1", "alice", Body{Content: "x"})
	require.NoError(t, err)
	rec.wait(t)

	tl.Withdraw(m.ProvisionalID)
	require.Equal(t, 0, tl.Len())

	re, ok := c.Resubmit(context.Background(), m.ProvisionalID)
	require.True(t, ok)
	assert.Equal(t, m.ProvisionalID, re.ProvisionalID, "retry keeps the provisional id")
	assert.Equal(t, 1, tl.Len())
	rec.wait(t)

	_, ok = c.Resubmit(context.Background(), "unknown")
	assert.False(t, ok)
}
