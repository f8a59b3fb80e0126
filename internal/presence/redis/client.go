package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/bandhannova07/Bringlare-Chat/internal/presence"
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func typingKey(chatID, userID string) string {
	return "typing:" + chatID + ":" + userID
}

// SetTyping ставит индикатор печати с коротким TTL. Клиент шлёт сигнал
// периодически, пока пользователь печатает; перестал — ключ истекает сам.
func (c *Client) SetTyping(ctx context.Context, chatID, userID string) error {
	return c.cli.Set(ctx, typingKey(chatID, userID), "1", presence.TypingTTL).Err()
}

// ClearTyping гасит индикатор досрочно (сообщение отправлено).
func (c *Client) ClearTyping(ctx context.Context, chatID, userID string) error {
	return c.cli.Del(ctx, typingKey(chatID, userID)).Err()
}

// TypingUsers возвращает тех, кто сейчас печатает в чате.
// SCAN вместо KEYS: не блокируем Redis на больших инстансах.
func (c *Client) TypingUsers(ctx context.Context, chatID string) ([]string, error) {
	prefix := "typing:" + chatID + ":"
	var users []string
	iter := c.cli.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		users = append(users, iter.Val()[len(prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan typing: %w", err)
	}
	return users, nil
}

// Heartbeat продлевает статус "в сети". Без heartbeat ключ истекает и
// пользователь считается офлайн.
func (c *Client) Heartbeat(ctx context.Context, userID string) error {
	return c.cli.Set(ctx, "online:"+userID, "1", presence.OnlineTTL).Err()
}

// SetOffline снимает статус сразу (явное отключение, не ждём TTL).
func (c *Client) SetOffline(ctx context.Context, userID string) error {
	return c.cli.Del(ctx, "online:"+userID).Err()
}

func (c *Client) Online(ctx context.Context, userID string) (bool, error) {
	n, err := c.cli.Exists(ctx, "online:"+userID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// OnlineUsers проверяет статусы пачкой (для списка чатов).
func (c *Client) OnlineUsers(ctx context.Context, userIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = "online:" + id
	}
	vals, err := c.cli.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget online: %w", err)
	}
	for i, v := range vals {
		out[userIDs[i]] = v != nil
	}
	return out, nil
}
