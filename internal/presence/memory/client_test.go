package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bandhannova07/Bringlare-Chat/internal/presence"
)

type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.cur = c.cur.Add(d)
	c.mu.Unlock()
}

func TestTypingExpiresByTTL(t *testing.T) {
	clock := &fakeClock{cur: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	c := NewWithClock(clock.now)
	ctx := context.Background()

	require.NoError(t, c.SetTyping(ctx, "chat-1", "alice"))
	require.NoError(t, c.SetTyping(ctx, "chat-1", "bob"))

	users, err := c.TypingUsers(ctx, "chat-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, users)

	// Повторный сигнал продлевает индикатор только Алисе.
	clock.advance(2 * time.Second)
	require.NoError(t, c.SetTyping(ctx, "chat-1", "alice"))

	clock.advance(2 * time.Second)
	users, err = c.TypingUsers(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users, "bob's indicator expired without a refresh")

	clock.advance(presence.TypingTTL)
	users, err = c.TypingUsers(ctx, "chat-1")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestTypingScopedToChat(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.SetTyping(ctx, "chat-1", "alice"))

	users, err := c.TypingUsers(ctx, "chat-2")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestClearTyping(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.SetTyping(ctx, "chat-1", "alice"))
	require.NoError(t, c.ClearTyping(ctx, "chat-1", "alice"))

	users, err := c.TypingUsers(ctx, "chat-1")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestOnlineHeartbeat(t *testing.T) {
	clock := &fakeClock{cur: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	c := NewWithClock(clock.now)
	ctx := context.Background()

	on, err := c.Online(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, c.Heartbeat(ctx, "alice"))
	on, err = c.Online(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, on)

	clock.advance(presence.OnlineTTL + time.Second)
	on, err = c.Online(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, on, "missed heartbeats mean offline")
}

func TestSetOffline(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.Heartbeat(ctx, "alice"))
	require.NoError(t, c.SetOffline(ctx, "alice"))

	on, err := c.Online(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, on)
}

func TestOnlineUsersBatch(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.Heartbeat(ctx, "alice"))

	got, err := c.OnlineUsers(ctx, []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"alice": true, "bob": false}, got)
}
