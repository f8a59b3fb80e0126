package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bandhannova07/Bringlare-Chat/internal/logger"
	"github.com/bandhannova07/Bringlare-Chat/internal/model"
)

const defaultHistoryPage = 50

// ChatSession — активный просмотр одного чата одним пользователем: подписка на
// realtime-канал плюс фоновое чтение durable-истории, оба потока сходятся в
// ленте. Время жизни явное: Open запускает, Close останавливает; события и
// история, пришедшие после Close, отбрасываются.
type ChatSession struct {
	chatID string
	userID string

	timeline   *Timeline
	composer   *Composer
	dispatcher *Dispatcher
	channel    RealtimeChannel
	history    HistoryReader

	historyPage int
	onOutcome   func(m *model.Message, o Outcome)

	ctx    context.Context
	cancel context.CancelFunc
	sub    Subscription
	closed atomic.Bool
	wg     sync.WaitGroup

	openOnce  sync.Once
	closeOnce sync.Once
}

// NewChatSession собирает сессию. onOutcome (опционально) вызывается после
// каждой двойной записи, до применения итога к ленте он не нужен: лента
// обновляется самой сессией.
func NewChatSession(chatID, userID string, channel RealtimeChannel, store DurableWriter, history HistoryReader, onOutcome func(m *model.Message, o Outcome)) *ChatSession {
	s := &ChatSession{
		chatID:      chatID,
		userID:      userID,
		timeline:    NewTimeline(chatID),
		channel:     channel,
		history:     history,
		historyPage: defaultHistoryPage,
		onOutcome:   onOutcome,
	}
	s.dispatcher = NewDispatcher(channel, store)
	s.composer = NewComposer(s.timeline, s.dispatchAndReconcile)
	return s
}

// Open подписывает сессию на realtime-канал и запускает фоновую загрузку
// истории. Повторные вызовы — no-op.
func (s *ChatSession) Open(ctx context.Context) {
	s.openOnce.Do(func() {
		s.ctx, s.cancel = context.WithCancel(ctx)
		s.sub = s.channel.Subscribe(s.chatID, s.onRealtime)
		s.wg.Add(1)
		go s.loadHistory()
	})
}

// Close отменяет подписку и ждёт завершения фоновой работы. После возврата ни
// одно позднее событие или страница истории ленту не изменит.
func (s *ChatSession) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.sub != nil {
			s.sub.Cancel()
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// Timeline открывает ленту сессии для чтения.
func (s *ChatSession) Timeline() *Timeline { return s.timeline }

// Send отправляет сообщение: оптимистичная вставка + фоновая двойная запись.
func (s *ChatSession) Send(b Body) (*model.Message, error) {
	if s.closed.Load() {
		return nil, context.Canceled
	}
	return s.composer.Submit(s.ctx, s.chatID, s.userID, b)
}

// Retry повторяет отправку сообщения, у которого не прошла ни одна запись.
func (s *ChatSession) Retry(key string) (*model.Message, bool) {
	if s.closed.Load() {
		return nil, false
	}
	return s.composer.Resubmit(s.ctx, key)
}

// MarkRead применяет курсор чтения собеседника к ленте.
func (s *ChatSession) MarkRead(recipientID string, cursor time.Time) {
	if s.closed.Load() {
		return
	}
	s.timeline.AdvanceReadCursor(recipientID, cursor)
}

func (s *ChatSession) onRealtime(m model.Message) {
	if s.closed.Load() {
		return
	}
	s.timeline.ApplyRealtime(m)
}

func (s *ChatSession) loadHistory() {
	defer s.wg.Done()
	offset := 0
	for {
		page, err := s.history.ChatMessages(s.ctx, s.chatID, s.historyPage, offset)
		if err != nil {
			if s.ctx.Err() == nil {
				logger.Errorf("session: history chat=%s: %v", s.chatID, err)
			}
			return
		}
		if s.closed.Load() {
			return
		}
		for _, m := range page {
			s.timeline.ApplyDurable(m)
		}
		if len(page) < s.historyPage {
			return
		}
		offset += len(page)
	}
}

// dispatchAndReconcile проводит двойную запись и применяет итог к ленте.
// Сессию к этому моменту могли закрыть: итог тогда отбрасывается, durable-запись
// при этом уже состоялась и видна при следующем открытии чата.
func (s *ChatSession) dispatchAndReconcile(ctx context.Context, m *model.Message) {
	o := s.dispatcher.Dispatch(ctx, m)
	if s.closed.Load() {
		return
	}
	switch {
	case o.Persisted():
		s.timeline.ApplyDurable(*m)
	case o == RealtimeOnlySucceeded:
		s.timeline.MarkPersistFailed(m.DedupKey())
	default:
		s.timeline.Withdraw(m.DedupKey())
	}
	if s.onOutcome != nil {
		s.onOutcome(m, o)
	}
}
