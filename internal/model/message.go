package model

import "time"

type MessageKind string

const (
	MessageKindText     MessageKind = "text"
	MessageKindImage    MessageKind = "image"
	MessageKindVideo    MessageKind = "video"
	MessageKindAudio    MessageKind = "audio"
	MessageKindDocument MessageKind = "document"
)

// Valid reports whether k is one of the known message kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindImage, MessageKindVideo, MessageKindAudio, MessageKindDocument:
		return true
	}
	return false
}

// MessageStatus — статус доставки. Только растёт: sent -> delivered -> read.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// statusRank задаёт порядок статусов для монотонного сравнения.
var statusRank = map[MessageStatus]int{
	MessageStatusSent:      0,
	MessageStatusDelivered: 1,
	MessageStatusRead:      2,
}

// Before reports whether s is strictly lower than other in the delivery order.
func (s MessageStatus) Before(other MessageStatus) bool {
	return statusRank[s] < statusRank[other]
}

// MaxStatus returns the higher of two delivery statuses.
// Used by the reconciler so a late "delivered" report never downgrades "read".
func MaxStatus(a, b MessageStatus) MessageStatus {
	if a.Before(b) {
		return b
	}
	return a
}

// Message — одно сообщение. До подтверждения хранилищем у сообщения есть только
// ProvisionalID (клиентский); ID присваивается при durable-записи.
type Message struct {
	ID            string        `json:"id,omitempty"`
	ProvisionalID string        `json:"provisional_id,omitempty"`
	ChatID        string        `json:"chat_id"`
	SenderID      string        `json:"sender_id"`
	Content       string        `json:"content"`
	Kind          MessageKind   `json:"kind"`
	FileURL       string        `json:"file_url,omitempty"`
	FileName      string        `json:"file_name,omitempty"`
	FileSize      int64         `json:"file_size,omitempty"`
	Status        MessageStatus `json:"status"`
	ReplyToID     *string       `json:"reply_to_id,omitempty"`
	// Reactions: emoji -> user ids.
	Reactions map[string][]string `json:"reactions,omitempty"`
	// CreatedAt — клиентское (оптимистичное) время создания.
	CreatedAt time.Time `json:"created_at"`
	// ServerAt — авторитетное время из durable-хранилища; nil пока запись не подтверждена.
	ServerAt *time.Time  `json:"server_at,omitempty"`
	Sender   *UserPublic `json:"sender,omitempty"`
	ReplyTo  *Message    `json:"reply_to,omitempty"`
}

// DedupKey returns the identity used to merge the realtime and durable
// representations of one logical message: the provisional id while it exists,
// otherwise the durable id.
func (m *Message) DedupKey() string {
	if m.ProvisionalID != "" {
		return m.ProvisionalID
	}
	return m.ID
}

// EffectiveTime — время для сортировки в ленте: серверное, если уже известно,
// иначе клиентское.
func (m *Message) EffectiveTime() time.Time {
	if m.ServerAt != nil {
		return *m.ServerAt
	}
	return m.CreatedAt
}

// IsFile reports whether the message carries a file reference rather than plain text.
func (m *Message) IsFile() bool {
	return m.Kind != MessageKindText
}
