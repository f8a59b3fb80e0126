package model

import "time"

type ChatType string

const (
	ChatTypeDirect ChatType = "direct"
	ChatTypeGroup  ChatType = "group"
)

// Chat — диалог или группа. Name обязателен для групп; для direct-чата имя
// выводится из собеседника на стороне выдачи.
type Chat struct {
	ID        string    `json:"id"`
	ChatType  ChatType  `json:"chat_type"`
	Name      string    `json:"name,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	// Денормализованная сводка последнего сообщения — для сортировки списка чатов.
	LastMessage   string     `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// ChatParticipant — участник чата. LeftAt != nil означает, что участник вышел:
// он исключается из текущего состава, но его старые сообщения остаются.
type ChatParticipant struct {
	ChatID   string     `json:"chat_id"`
	UserID   string     `json:"user_id"`
	Role     string     `json:"role"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
	// LastReadAt — курсор чтения; двигается только вперёд.
	LastReadAt time.Time `json:"last_read_at"`
}

// ChatSummary — чат со сводкой для списка: участники, последнее сообщение, непрочитанные.
type ChatSummary struct {
	Chat         Chat         `json:"chat"`
	Participants []UserPublic `json:"participants"`
	UnreadCount  int          `json:"unread_count"`
}
