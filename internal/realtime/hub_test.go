package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Валидация ввода идёт до обращения к репозиториям, поэтому хаб с nil-зависимостями
// годится: дошедший до БД невалидный ввод уронил бы тест паникой.
func newValidationHub() *Hub {
	return NewHub(nil, nil, nil, nil, nil, 1, nil)
}

func recvError(t *testing.T, c *Client) string {
	t.Helper()
	select {
	case msg := <-c.send:
		require.Equal(t, EventError, msg.Type)
		s, ok := msg.Payload.(string)
		require.True(t, ok)
		return s
	default:
		t.Fatal("expected an error event for the sender")
		return ""
	}
}

func TestHubRejectsWhitespaceOnlyContent(t *testing.T) {
	h := newValidationHub()
	c := NewClient(h, nil, "alice")

	h.HandleMessage(context.Background(), c, IncomingMessage{
		Type:    EventNewMessage,
		ChatID:  "chat-1",
		Content: "  \n\t ",
	})

	assert.Equal(t, "chat_id and content required", recvError(t, c))
}

func TestHubRejectsUnknownKind(t *testing.T) {
	h := newValidationHub()
	c := NewClient(h, nil, "alice")

	h.HandleMessage(context.Background(), c, IncomingMessage{
		Type:    EventNewMessage,
		ChatID:  "chat-1",
		Content: "hi",
		Kind:    "sticker",
	})

	assert.Equal(t, "unknown message kind", recvError(t, c))
}

func TestHubRejectsUnknownEventType(t *testing.T) {
	h := newValidationHub()
	c := NewClient(h, nil, "alice")

	h.HandleMessage(context.Background(), c, IncomingMessage{Type: "bogus"})

	assert.Equal(t, "unknown event type", recvError(t, c))
}
