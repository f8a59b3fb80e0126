// Package coordinator реализует координатор доставки сообщений: оптимистичная
// отправка (outbox), двойная запись в realtime-канал и durable-хранилище и
// сведение обоих потоков в одну ленту без дублей.
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/bandhannova07/Bringlare-Chat/internal/model"
)

// Ошибки валидации: отклоняются синхронно, до любой сетевой операции.
var (
	ErrNoChat     = errors.New("chat id is required")
	ErrNoAuthor   = errors.New("author id is required")
	ErrEmptyBody  = errors.New("message body is empty")
	ErrBadFileRef = errors.New("file reference is required for non-text messages")
	ErrBadKind    = errors.New("unknown message kind")
)

// RealtimePublisher публикует событие в канал вещания, ограниченный чатом.
// Путь fire-and-forget: ошибка не ретраится, подстраховкой служит durable-чтение.
type RealtimePublisher interface {
	Publish(ctx context.Context, chatID string, m model.Message) error
}

// DurableWriter сохраняет сообщение в долговременное хранилище.
// Хранилище присваивает durable id и серверное время; provisional id
// записывается рядом для последующей корреляции.
type DurableWriter interface {
	InsertMessage(ctx context.Context, m *model.Message) (id string, serverAt time.Time, err error)
}

// HistoryReader читает сохранённую историю чата (страницами, новые первыми).
type HistoryReader interface {
	ChatMessages(ctx context.Context, chatID string, limit, offset int) ([]model.Message, error)
}

// Subscription — явная отменяемая подписка. После Cancel события не доставляются.
type Subscription interface {
	Cancel()
}

// RealtimeChannel — канал вещания: публикация + подписка на события чата.
type RealtimeChannel interface {
	RealtimePublisher
	Subscribe(chatID string, fn func(model.Message)) Subscription
}

// Outcome — результат двойной записи.
type Outcome int

const (
	BothFailed Outcome = iota
	RealtimeOnlySucceeded
	DurableOnlySucceeded
	BothSucceeded
)

func (o Outcome) String() string {
	switch o {
	case BothSucceeded:
		return "both_succeeded"
	case RealtimeOnlySucceeded:
		return "realtime_only"
	case DurableOnlySucceeded:
		return "durable_only"
	default:
		return "both_failed"
	}
}

// Persisted reports whether the durable write succeeded.
func (o Outcome) Persisted() bool {
	return o == BothSucceeded || o == DurableOnlySucceeded
}
