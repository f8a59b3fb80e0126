// Package presence отслеживает эфемерное состояние собеседников: кто печатает
// и кто в сети. Сигналы рекомендательные; индикаторы гаснут сами по TTL,
// отдельного события "перестал печатать" нет.
package presence

import (
	"context"
	"time"
)

const (
	// TypingTTL — время жизни индикатора "печатает" без повторного сигнала.
	TypingTTL = 3 * time.Second
	// OnlineTTL — время жизни статуса "в сети" без heartbeat.
	OnlineTTL = 60 * time.Second
)

// Store — хранилище индикаторов печати и онлайн-статусов.
// Реализации: redis.Client, memory.Client (для -dev без Redis).
type Store interface {
	SetTyping(ctx context.Context, chatID, userID string) error
	ClearTyping(ctx context.Context, chatID, userID string) error
	TypingUsers(ctx context.Context, chatID string) ([]string, error)
	Heartbeat(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	Online(ctx context.Context, userID string) (bool, error)
	OnlineUsers(ctx context.Context, userIDs []string) (map[string]bool, error)
	Close() error
}
