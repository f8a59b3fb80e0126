package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bandhannova07/Bringlare-Chat/internal/presence"
)

type Client struct {
	mu     sync.RWMutex
	typing map[string]map[string]time.Time // chatID -> userID -> expiry
	online map[string]time.Time            // userID -> expiry

	now func() time.Time
}

func New() *Client {
	return &Client{
		typing: make(map[string]map[string]time.Time),
		online: make(map[string]time.Time),
		now:    time.Now,
	}
}

// NewWithClock — для тестов с управляемым временем.
func NewWithClock(now func() time.Time) *Client {
	c := New()
	c.now = now
	return c
}

func (c *Client) Close() error { return nil }

func (c *Client) SetTyping(ctx context.Context, chatID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.typing[chatID]
	if !ok {
		m = make(map[string]time.Time)
		c.typing[chatID] = m
	}
	m[userID] = c.now().Add(presence.TypingTTL)
	return nil
}

func (c *Client) ClearTyping(ctx context.Context, chatID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.typing[chatID]; ok {
		delete(m, userID)
	}
	return nil
}

func (c *Client) TypingUsers(ctx context.Context, chatID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	var users []string
	for userID, exp := range c.typing[chatID] {
		if now.After(exp) {
			delete(c.typing[chatID], userID)
			continue
		}
		users = append(users, userID)
	}
	return users, nil
}

func (c *Client) Heartbeat(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online[userID] = c.now().Add(presence.OnlineTTL)
	return nil
}

func (c *Client) SetOffline(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.online, userID)
	return nil
}

func (c *Client) Online(ctx context.Context, userID string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	exp, ok := c.online[userID]
	return ok && c.now().Before(exp), nil
}

func (c *Client) OnlineUsers(ctx context.Context, userIDs []string) (map[string]bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	out := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		exp, ok := c.online[id]
		out[id] = ok && now.Before(exp)
	}
	return out, nil
}
