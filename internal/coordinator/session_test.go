package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bandhannova07/Bringlare-Chat/internal/model"
)

// fakeChannel — канал вещания в памяти с управляемой доставкой.
type fakeChannel struct {
	mu         sync.Mutex
	publishErr error
	published  []model.Message
	subs       map[int]func(model.Message)
	nextSub    int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{subs: make(map[int]func(model.Message))}
}

func (c *fakeChannel) Publish(_ context.Context, _ string, m model.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, m)
	return nil
}

func (c *fakeChannel) Subscribe(_ string, fn func(model.Message)) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return &fakeSub{c: c, id: id}
}

// deliver доставляет событие всем активным подписчикам.
func (c *fakeChannel) deliver(m model.Message) {
	c.mu.Lock()
	fns := make([]func(model.Message), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}

func (c *fakeChannel) activeSubs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

type fakeSub struct {
	c  *fakeChannel
	id int
}

func (s *fakeSub) Cancel() {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	delete(s.c.subs, s.id)
}

// fakeHistory отдаёт страницы истории; release задерживает ответ до закрытия.
type fakeHistory struct {
	mu       sync.Mutex
	pages    []model.Message
	err      error
	release  chan struct{}
	requests int
}

func (h *fakeHistory) ChatMessages(ctx context.Context, _ string, limit, offset int) ([]model.Message, error) {
	if h.release != nil {
		select {
		case <-h.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests++
	if h.err != nil {
		return nil, h.err
	}
	if offset >= len(h.pages) {
		return nil, nil
	}
	end := offset + limit
	if end > len(h.pages) {
		end = len(h.pages)
	}
	return h.pages[offset:end], nil
}

type sessWriter struct {
	mu    sync.Mutex
	err   error
	next  int
	wrote []string
}

func (w *sessWriter) InsertMessage(_ context.Context, m *model.Message) (string, time.Time, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return "", time.Time{}, w.err
	}
	w.next++
	w.wrote = append(w.wrote, m.ProvisionalID)
	return "dur-" + m.ProvisionalID, ts(w.next), nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not reached in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSessionSendReconcilesDurableResult(t *testing.T) {
	ch := newFakeChannel()
	wr := &sessWriter{}
	hist := &fakeHistory{}

	var outcomes []Outcome
	var omu sync.Mutex
	s := NewChatSession("c1", "alice", ch, wr, hist, func(_ *model.Message, o Outcome) {
		omu.Lock()
		outcomes = append(outcomes, o)
		omu.Unlock()
	})
	s.Open(context.Background())
	defer s.Close()

	m, err := s.Send(Body{Content: "hello"})
	require.NoError(t, err)

	waitFor(t, func() bool {
		e, ok := s.Timeline().Entry(m.ProvisionalID)
		return ok && e.FromDurable
	})

	e, _ := s.Timeline().Entry(m.ProvisionalID)
	assert.Equal(t, "dur-"+m.ProvisionalID, e.Message.ID)
	assert.Equal(t, PhaseConfirmed, e.Phase)

	omu.Lock()
	require.Len(t, outcomes, 1)
	assert.Equal(t, BothSucceeded, outcomes[0])
	omu.Unlock()
}

func TestSessionPersistFailedStaysVisible(t *testing.T) {
	ch := newFakeChannel()
	wr := &sessWriter{err: errors.New("db down")}
	hist := &fakeHistory{}

	done := make(chan Outcome, 1)
	s := NewChatSession("c1", "alice", ch, wr, hist, func(_ *model.Message, o Outcome) { done <- o })
	s.dispatcher.sleep = func(context.Context, time.Duration) error { return nil }
	s.Open(context.Background())
	defer s.Close()

	m, err := s.Send(Body{Content: "hello"})
	require.NoError(t, err)

	assert.Equal(t, RealtimeOnlySucceeded, <-done)
	e, ok := s.Timeline().Entry(m.ProvisionalID)
	require.True(t, ok)
	assert.True(t, e.PersistFailed)
}

func TestSessionBothFailedWithdrawsAndRetries(t *testing.T) {
	ch := newFakeChannel()
	ch.publishErr = errors.New("channel down")
	wr := &sessWriter{err: errors.New("db down")}
	hist := &fakeHistory{}

	done := make(chan Outcome, 2)
	s := NewChatSession("c1", "alice", ch, wr, hist, func(_ *model.Message, o Outcome) { done <- o })
	s.dispatcher.sleep = func(context.Context, time.Duration) error { return nil }
	s.Open(context.Background())
	defer s.Close()

	m, err := s.Send(Body{Content: "hello"})
	require.NoError(t, err)

	assert.Equal(t, BothFailed, <-done)
	assert.Equal(t, 0, s.Timeline().Len())
	require.Len(t, s.Timeline().Failed(), 1)

	// Сеть починилась: ручной повтор с тем же provisional id.
	ch.mu.Lock()
	ch.publishErr = nil
	ch.mu.Unlock()
	wr.mu.Lock()
	wr.err = nil
	wr.mu.Unlock()

	re, ok := s.Retry(m.ProvisionalID)
	require.True(t, ok)
	assert.Equal(t, m.ProvisionalID, re.ProvisionalID)

	assert.Equal(t, BothSucceeded, <-done)
	e, ok := s.Timeline().Entry(m.ProvisionalID)
	require.True(t, ok)
	assert.Equal(t, "dur-"+m.ProvisionalID, e.Message.ID)
}

func TestSessionMergesHistoryAndRealtime(t *testing.T) {
	ch := newFakeChannel()
	wr := &sessWriter{}
	hist := &fakeHistory{pages: []model.Message{
		{ID: "d1", ChatID: "c1", SenderID: "bob", Content: "one", CreatedAt: ts(1), ServerAt: tsp(1)},
		{ID: "d2", ChatID: "c1", SenderID: "bob", Content: "two", CreatedAt: ts(2), ServerAt: tsp(2)},
	}}

	s := NewChatSession("c1", "alice", ch, wr, hist, nil)
	s.Open(context.Background())
	defer s.Close()

	// То же сообщение приходит и по каналу: дубля быть не должно.
	ch.deliver(model.Message{ID: "d2", ChatID: "c1", SenderID: "bob", Content: "two", CreatedAt: ts(2), ServerAt: tsp(2)})
	ch.deliver(model.Message{ID: "d3", ChatID: "c1", SenderID: "bob", Content: "three", CreatedAt: ts(3), ServerAt: tsp(3)})

	waitFor(t, func() bool { return s.Timeline().Len() == 3 })

	entries := s.Timeline().Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "one", entries[0].Message.Content)
	assert.Equal(t, "two", entries[1].Message.Content)
	assert.Equal(t, "three", entries[2].Message.Content)
}

func TestSessionCloseCancelsSubscription(t *testing.T) {
	ch := newFakeChannel()
	wr := &sessWriter{}
	hist := &fakeHistory{}

	s := NewChatSession("c1", "alice", ch, wr, hist, nil)
	s.Open(context.Background())
	require.Equal(t, 1, ch.activeSubs())

	s.Close()
	assert.Equal(t, 0, ch.activeSubs())

	// Событие после Close ленту не меняет.
	s.onRealtime(model.Message{ID: "late", ChatID: "c1", SenderID: "bob", Content: "late", CreatedAt: ts(9)})
	assert.Equal(t, 0, s.Timeline().Len())

	_, err := s.Send(Body{Content: "x"})
	assert.Error(t, err)
}

func TestSessionLateHistoryDiscardedAfterClose(t *testing.T) {
	ch := newFakeChannel()
	wr := &sessWriter{}
	hist := &fakeHistory{
		pages:   []model.Message{{ID: "d1", ChatID: "c1", SenderID: "bob", Content: "one", CreatedAt: ts(1), ServerAt: tsp(1)}},
		release: make(chan struct{}),
	}

	s := NewChatSession("c1", "alice", ch, wr, hist, nil)
	s.Open(context.Background())

	// История ещё в полёте; Close должен её обогнать.
	s.Close()
	close(hist.release)

	assert.Equal(t, 0, s.Timeline().Len(), "history arriving after Close must be discarded")
}
