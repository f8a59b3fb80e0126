package coordinator

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bandhannova07/Bringlare-Chat/internal/model"
)

// Body — пользовательский ввод для нового сообщения.
type Body struct {
	Kind      model.MessageKind
	Content   string
	FileURL   string
	FileName  string
	FileSize  int64
	ReplyToID string
}

// Composer принимает ввод, валидирует его и вставляет оптимистичную запись в
// ленту до любого сетевого вызова. Отправка идёт в фоне через dispatch.
type Composer struct {
	timeline *Timeline
	dispatch func(ctx context.Context, m *model.Message)

	now   func() time.Time
	newID func() string
}

func NewComposer(tl *Timeline, dispatch func(ctx context.Context, m *model.Message)) *Composer {
	return &Composer{
		timeline: tl,
		dispatch: dispatch,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Submit валидирует ввод, строит сообщение с уникальным provisional id и таймстемпом
// локальных часов, вставляет его в ленту и запускает фоновую отправку.
// Возвращает сообщение в оптимистичном виде: durable id появится позже.
func (c *Composer) Submit(ctx context.Context, chatID, authorID string, b Body) (*model.Message, error) {
	if chatID == "" {
		return nil, ErrNoChat
	}
	if authorID == "" {
		return nil, ErrNoAuthor
	}
	kind := b.Kind
	if kind == "" {
		kind = model.MessageKindText
	}
	if !kind.Valid() {
		return nil, ErrBadKind
	}
	content := strings.TrimSpace(b.Content)
	if kind == model.MessageKindText {
		if content == "" {
			return nil, ErrEmptyBody
		}
	} else if b.FileURL == "" {
		return nil, ErrBadFileRef
	}

	m := &model.Message{
		ProvisionalID: c.newID(),
		ChatID:        chatID,
		SenderID:      authorID,
		Content:       content,
		Kind:          kind,
		FileURL:       b.FileURL,
		FileName:      b.FileName,
		FileSize:      b.FileSize,
		Status:        model.MessageStatusSent,
		CreatedAt:     c.now(),
	}
	if b.ReplyToID != "" {
		replyTo := b.ReplyToID
		m.ReplyToID = &replyTo
	}

	c.timeline.ApplyOptimistic(*m)
	// dispatch работает со своей копией: фоновая запись durable id не должна
	// гонять данные с читателем возвращённого сообщения.
	dm := *m
	go c.dispatch(ctx, &dm)
	return m, nil
}

// Resubmit повторяет отправку сообщения, у которого не прошла ни одна запись.
// Сообщение возвращается в ленту и уходит в dispatch с прежним provisional id.
func (c *Composer) Resubmit(ctx context.Context, key string) (*model.Message, bool) {
	m, ok := c.timeline.TakeFailed(key)
	if !ok {
		return nil, false
	}
	m.Status = model.MessageStatusSent
	c.timeline.ApplyOptimistic(m)
	dm := m
	go c.dispatch(ctx, &dm)
	return &m, true
}
