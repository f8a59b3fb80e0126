package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bandhannova07/Bringlare-Chat/internal/model"
)

type fakePublisher struct {
	err   error
	calls int
}

func (f *fakePublisher) Publish(_ context.Context, _ string, _ model.Message) error {
	f.calls++
	return f.err
}

type fakeWriter struct {
	failFirst int // сколько первых вызовов вернут ошибку
	calls     int
	serverAt  time.Time
}

func (f *fakeWriter) InsertMessage(_ context.Context, _ *model.Message) (string, time.Time, error) {
	f.calls++
	if f.calls <= f.failFirst {
		return "", time.Time{}, errors.New("insert failed")
	}
	return "dur-1", f.serverAt, nil
}

func newTestDispatcher(rt RealtimePublisher, store DurableWriter) (*Dispatcher, *[]time.Duration) {
	d := NewDispatcher(rt, store)
	var slept []time.Duration
	d.sleep = func(_ context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}
	return d, &slept
}

func TestDispatchBothSucceeded(t *testing.T) {
	pub := &fakePublisher{}
	wr := &fakeWriter{serverAt: ts(42)}
	d, slept := newTestDispatcher(pub, wr)

	m := &model.Message{ProvisionalID: "p1", ChatID: "c1", SenderID: "a", Content: "x", CreatedAt: ts(1)}
	o := d.Dispatch(context.Background(), m)

	assert.Equal(t, BothSucceeded, o)
	assert.True(t, o.Persisted())
	assert.Equal(t, 1, pub.calls)
	assert.Equal(t, 1, wr.calls)
	assert.Empty(t, *slept)
	assert.Equal(t, "dur-1", m.ID)
	require.NotNil(t, m.ServerAt)
	assert.Equal(t, ts(42), *m.ServerAt)
}

func TestDispatchRealtimeFailureNotRetried(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel down")}
	wr := &fakeWriter{serverAt: ts(42)}
	d, _ := newTestDispatcher(pub, wr)

	m := &model.Message{ProvisionalID: "p1", ChatID: "c1", SenderID: "a", Content: "x", CreatedAt: ts(1)}
	o := d.Dispatch(context.Background(), m)

	assert.Equal(t, DurableOnlySucceeded, o)
	assert.Equal(t, 1, pub.calls, "realtime publish is fire-and-forget")
	assert.Equal(t, "dur-1", m.ID, "durable write proceeds despite realtime failure")
}

func TestDispatchDurableRetriesWithDoublingBackoff(t *testing.T) {
	pub := &fakePublisher{}
	wr := &fakeWriter{failFirst: 2, serverAt: ts(42)}
	d, slept := newTestDispatcher(pub, wr)

	m := &model.Message{ProvisionalID: "p1", ChatID: "c1", SenderID: "a", Content: "x", CreatedAt: ts(1)}
	o := d.Dispatch(context.Background(), m)

	assert.Equal(t, BothSucceeded, o)
	assert.Equal(t, 3, wr.calls)
	assert.Equal(t, []time.Duration{defaultBaseBackoff, 2 * defaultBaseBackoff}, *slept)
}

func TestDispatchDurableExhaustsAttempts(t *testing.T) {
	pub := &fakePublisher{}
	wr := &fakeWriter{failFirst: 100}
	d, slept := newTestDispatcher(pub, wr)

	m := &model.Message{ProvisionalID: "p1", ChatID: "c1", SenderID: "a", Content: "x", CreatedAt: ts(1)}
	o := d.Dispatch(context.Background(), m)

	assert.Equal(t, RealtimeOnlySucceeded, o)
	assert.False(t, o.Persisted())
	assert.Equal(t, defaultMaxAttempts, wr.calls)
	assert.Len(t, *slept, defaultMaxAttempts-1, "no sleep after the final attempt")
	assert.Empty(t, m.ID)
}

func TestDispatchBothFailed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel down")}
	wr := &fakeWriter{failFirst: 100}
	d, _ := newTestDispatcher(pub, wr)

	m := &model.Message{ProvisionalID: "p1", ChatID: "c1", SenderID: "a", Content: "x", CreatedAt: ts(1)}
	o := d.Dispatch(context.Background(), m)

	assert.Equal(t, BothFailed, o)
}

func TestDispatchStopsOnCancelledContext(t *testing.T) {
	pub := &fakePublisher{}
	wr := &fakeWriter{failFirst: 100}
	d := NewDispatcher(pub, wr)
	d.sleep = func(_ context.Context, _ time.Duration) error { return context.Canceled }

	m := &model.Message{ProvisionalID: "p1", ChatID: "c1", SenderID: "a", Content: "x", CreatedAt: ts(1)}
	o := d.Dispatch(context.Background(), m)

	assert.Equal(t, RealtimeOnlySucceeded, o)
	assert.Equal(t, 1, wr.calls, "cancelled sleep aborts remaining attempts")
}
