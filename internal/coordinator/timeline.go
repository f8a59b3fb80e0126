package coordinator

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bandhannova07/Bringlare-Chat/internal/model"
)

// Phase — фаза записи в ленте: оптимистичная (только локально) или
// подтверждённая (видна хотя бы из одного источника: realtime или durable).
type Phase int

const (
	PhaseOptimistic Phase = iota
	PhaseConfirmed
)

// Entry — одна логическая запись ленты: сообщение + фаза + флаги доставки.
type Entry struct {
	Message model.Message
	Phase   Phase
	// PersistFailed: realtime-запись прошла, durable — нет (после всех ретраев).
	// Собеседники могли увидеть сообщение, которого нет в истории.
	PersistFailed bool
	FromRealtime  bool
	FromDurable   bool
}

// Timeline сводит realtime-события и durable-записи одного чата в единую
// упорядоченную ленту без дублей. Ключ слияния — DedupKey сообщения
// (provisional id, пока он есть, иначе durable id); durable-запись несёт
// provisional id для корреляции.
//
// Все методы потокобезопасны: подписка канала и чтение истории работают
// параллельно и сходятся здесь.
type Timeline struct {
	mu        sync.Mutex
	chatID    string
	byKey     map[string]*Entry // dedup key -> entry
	byDurable map[string]*Entry // durable id -> entry (события без provisional id)
	failed    []model.Message   // обе записи не прошли; кандидаты на ручной повтор
}

func NewTimeline(chatID string) *Timeline {
	return &Timeline{
		chatID:    chatID,
		byKey:     make(map[string]*Entry),
		byDurable: make(map[string]*Entry),
	}
}

func (t *Timeline) ChatID() string { return t.chatID }

// lookup находит запись по любому известному идентификатору сообщения.
func (t *Timeline) lookup(m *model.Message) *Entry {
	if m.ProvisionalID != "" {
		if e, ok := t.byKey[m.ProvisionalID]; ok {
			return e
		}
	}
	if m.ID != "" {
		if e, ok := t.byDurable[m.ID]; ok {
			return e
		}
		if e, ok := t.byKey[m.ID]; ok {
			return e
		}
	}
	return nil
}

func (t *Timeline) index(e *Entry) {
	t.byKey[e.Message.DedupKey()] = e
	if e.Message.ID != "" {
		t.byDurable[e.Message.ID] = e
	}
}

// ApplyOptimistic вставляет локальную запись сразу после submit, до любого
// сетевого подтверждения. Повторная вставка того же ключа — no-op.
func (t *Timeline) ApplyOptimistic(m model.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lookup(&m) != nil {
		return
	}
	if m.Status == "" {
		m.Status = model.MessageStatusSent
	}
	t.index(&Entry{Message: m, Phase: PhaseOptimistic})
}

// ApplyRealtime сводит событие realtime-канала. Канал доставляет минимум один
// раз: дубли идемпотентны. Запись становится видимой с первого источника.
func (t *Timeline) ApplyRealtime(m model.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.lookup(&m)
	if e == nil {
		if m.Status == "" {
			m.Status = model.MessageStatusSent
		}
		e = &Entry{Message: m, Phase: PhaseConfirmed, FromRealtime: true}
		t.index(e)
		return
	}
	e.Phase = PhaseConfirmed
	e.FromRealtime = true
	t.merge(e, m, false)
}

// ApplyDurable сводит запись из durable-хранилища (истории). Durable —
// авторитетный источник: его содержимое и серверное время вытесняют
// оптимистичные/realtime значения, лента пересортировывается.
func (t *Timeline) ApplyDurable(m model.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.lookup(&m)
	if e == nil {
		if m.Status == "" {
			m.Status = model.MessageStatusSent
		}
		e = &Entry{Message: m, Phase: PhaseConfirmed, FromDurable: true}
		t.index(e)
		return
	}
	e.Phase = PhaseConfirmed
	e.FromDurable = true
	e.PersistFailed = false
	t.merge(e, m, true)
}

// merge обновляет запись данными из нового источника. authoritative=true для
// durable-записей: перезаписываются содержимое и время.
func (t *Timeline) merge(e *Entry, m model.Message, authoritative bool) {
	if e.Message.ProvisionalID == "" && m.ProvisionalID != "" {
		// Dedup-ключ меняется с durable id на provisional id: старый слот
		// убираем, иначе одна запись будет видна дважды.
		if e.Message.ID != "" {
			delete(t.byKey, e.Message.ID)
		}
		e.Message.ProvisionalID = m.ProvisionalID
		t.byKey[m.ProvisionalID] = e
	}
	if e.Message.ID == "" && m.ID != "" {
		e.Message.ID = m.ID
		t.byDurable[m.ID] = e
	}
	if authoritative {
		e.Message.Content = m.Content
		e.Message.Kind = m.Kind
		e.Message.FileURL = m.FileURL
		e.Message.FileName = m.FileName
		e.Message.FileSize = m.FileSize
		e.Message.ReplyToID = m.ReplyToID
		if m.ServerAt != nil {
			e.Message.ServerAt = m.ServerAt
		}
		if len(m.Reactions) > 0 {
			e.Message.Reactions = m.Reactions
		}
	} else if e.Message.ServerAt == nil && m.ServerAt != nil {
		e.Message.ServerAt = m.ServerAt
	}
	// Статус только растёт, независимо от порядка прихода источников.
	e.Message.Status = model.MaxStatus(e.Message.Status, m.Status)
}

// AdvanceReadCursor применяет запись курсора чтения получателя: сообщения других
// отправителей со временем <= cursor становятся read; остальные — delivered
// (получатель жив и принимает). Статус никогда не понижается.
func (t *Timeline) AdvanceReadCursor(recipientID string, cursor time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.byKey {
		if e.Message.SenderID == recipientID {
			continue
		}
		if !e.Message.EffectiveTime().After(cursor) {
			e.Message.Status = model.MaxStatus(e.Message.Status, model.MessageStatusRead)
		} else {
			e.Message.Status = model.MaxStatus(e.Message.Status, model.MessageStatusDelivered)
		}
	}
}

// MarkPersistFailed помечает запись: durable-запись не прошла после ретраев.
// Запись остаётся видимой отправителю с явным признаком (не теряется молча).
func (t *Timeline) MarkPersistFailed(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.byKey[key]; ok {
		e.PersistFailed = true
	}
}

// Withdraw убирает запись из ленты (обе записи не прошли) и откладывает её
// для ручного повтора.
func (t *Timeline) Withdraw(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byKey[key]
	if !ok {
		return
	}
	delete(t.byKey, key)
	if e.Message.ID != "" {
		delete(t.byDurable, e.Message.ID)
	}
	t.failed = append(t.failed, e.Message)
}

// TakeFailed забирает отложенное сообщение для повторной отправки.
func (t *Timeline) TakeFailed(key string) (model.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, m := range t.failed {
		if m.DedupKey() == key {
			t.failed = append(t.failed[:i], t.failed[i+1:]...)
			return m, true
		}
	}
	return model.Message{}, false
}

// Failed возвращает сообщения, у которых не прошла ни одна запись.
func (t *Timeline) Failed() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Message, len(t.failed))
	copy(out, t.failed)
	return out
}

// Entry возвращает копию записи по dedup-ключу.
func (t *Timeline) Entry(key string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.byKey[key]; ok {
		return *e, true
	}
	if e, ok := t.byDurable[key]; ok {
		return *e, true
	}
	return Entry{}, false
}

// Len возвращает число видимых записей ленты.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byKey)
}

// Entries возвращает отсортированную копию ленты: по времени (серверное, если
// известно), при равенстве — по dedup-ключу для детерминизма. После прихода
// durable-времени запись может сменить позицию — это ожидаемо.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	out := make([]Entry, 0, len(t.byKey))
	for _, e := range t.byKey {
		out = append(out, *e)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].Message.EffectiveTime(), out[j].Message.EffectiveTime()
		if ti.Equal(tj) {
			return strings.Compare(out[i].Message.DedupKey(), out[j].Message.DedupKey()) < 0
		}
		return ti.Before(tj)
	})
	return out
}
