package realtime

import (
	"time"

	"github.com/bandhannova07/Bringlare-Chat/internal/model"
)

type EventType string

const (
	EventNewMessage           EventType = "new_message"
	EventMessagePersisted     EventType = "message_persisted"
	EventMessagePersistFailed EventType = "message_persist_failed"
	EventMessageRead          EventType = "message_read"
	EventTyping               EventType = "typing"
	EventUserOnline           EventType = "user_online"
	EventUserOffline          EventType = "user_offline"
	EventChatCreated          EventType = "chat_created"
	EventParticipantJoined    EventType = "participant_joined"
	EventParticipantLeft      EventType = "participant_left"
	EventReactionAdded        EventType = "reaction_added"
	EventReactionRemoved      EventType = "reaction_removed"
	EventError                EventType = "error"
)

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type   EventType `json:"type"`
	ChatID string    `json:"chat_id,omitempty"`

	// For new messages: client-side optimistic id, echoed back in events so the
	// sender can merge the confirmed record with its local copy.
	ProvisionalID string `json:"provisional_id,omitempty"`
	Content       string `json:"content,omitempty"`

	// For file messages
	Kind     model.MessageKind `json:"kind,omitempty"`
	FileURL  string            `json:"file_url,omitempty"`
	FileName string            `json:"file_name,omitempty"`
	FileSize int64             `json:"file_size,omitempty"`

	// For reply
	ReplyToID string `json:"reply_to_id,omitempty"`

	// For reactions
	MessageID string `json:"message_id,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// --- Typed payloads for hot-path (avoid map[string]any allocations) ---

// MessagePersistedPayload confirms the durable write of a message: carries the
// server-assigned id and timestamp keyed by the provisional id.
type MessagePersistedPayload struct {
	ProvisionalID string    `json:"provisional_id,omitempty"`
	MessageID     string    `json:"message_id"`
	ChatID        string    `json:"chat_id"`
	ServerAt      time.Time `json:"server_at"`
}

// MessagePersistFailedPayload tells the sender the message was broadcast but
// could not be stored: others may have seen it, history will not have it.
type MessagePersistFailedPayload struct {
	ProvisionalID string `json:"provisional_id"`
	ChatID        string `json:"chat_id"`
}

// ReactionPayload is broadcast when a reaction is added or removed.
type ReactionPayload struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
}

// TypingPayload is broadcast when a user is typing. The indicator is advisory
// and expires on its own; there is no explicit "stopped typing" event.
type TypingPayload struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

// MessageReadPayload is broadcast when a participant advances their read cursor.
type MessageReadPayload struct {
	ChatID string    `json:"chat_id"`
	UserID string    `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

// ParticipantPayload is broadcast when someone joins or leaves a group chat.
type ParticipantPayload struct {
	ChatID  string `json:"chat_id"`
	UserID  string `json:"user_id"`
	ActorID string `json:"actor_id,omitempty"`
}

// UserStatusPayload is broadcast for online/offline status.
type UserStatusPayload struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}
