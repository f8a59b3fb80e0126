package coordinator

import (
	"context"
	"time"

	"github.com/bandhannova07/Bringlare-Chat/internal/logger"
	"github.com/bandhannova07/Bringlare-Chat/internal/model"
)

const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = 250 * time.Millisecond
)

// Dispatcher выполняет двойную запись сообщения: сначала realtime-публикация
// (один выстрел, без ретраев), затем durable-вставка с ограниченными ретраями.
// Порядок фиксирован: собеседники видят сообщение раньше, чем оно попало в
// историю, и окно между записями наблюдаемо.
type Dispatcher struct {
	realtime RealtimePublisher
	store    DurableWriter

	maxAttempts int
	baseBackoff time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(rt RealtimePublisher, store DurableWriter) *Dispatcher {
	return &Dispatcher{
		realtime:    rt,
		store:       store,
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
		sleep:       sleepCtx,
	}
}

// WithRetryPolicy настраивает ретраи durable-записи (из конфигурации).
func (d *Dispatcher) WithRetryPolicy(maxAttempts int, baseBackoff time.Duration) *Dispatcher {
	if maxAttempts > 0 {
		d.maxAttempts = maxAttempts
	}
	if baseBackoff > 0 {
		d.baseBackoff = baseBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Dispatch проводит обе записи и возвращает итог. При успешной durable-вставке
// сообщение получает серверные id и время (m мутируется на месте).
// Ошибка realtime-публикации не блокирует durable-запись и не ретраится:
// подписчики доберут сообщение из истории.
func (d *Dispatcher) Dispatch(ctx context.Context, m *model.Message) Outcome {
	realtimeOK := true
	if err := d.realtime.Publish(ctx, m.ChatID, *m); err != nil {
		realtimeOK = false
		logger.Errorf("dispatch: realtime publish chat=%s: %v", m.ChatID, err)
	}

	durableOK := false
	backoff := d.baseBackoff
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		id, serverAt, err := d.store.InsertMessage(ctx, m)
		if err == nil {
			m.ID = id
			m.ServerAt = &serverAt
			durableOK = true
			break
		}
		logger.Errorf("dispatch: durable insert chat=%s attempt=%d/%d: %v", m.ChatID, attempt, d.maxAttempts, err)
		if attempt == d.maxAttempts {
			break
		}
		if err := d.sleep(ctx, backoff); err != nil {
			break
		}
		backoff *= 2
	}

	switch {
	case realtimeOK && durableOK:
		return BothSucceeded
	case realtimeOK:
		return RealtimeOnlySucceeded
	case durableOK:
		return DurableOnlySucceeded
	default:
		return BothFailed
	}
}
