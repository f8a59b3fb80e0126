package auth

import (
	"sync"

	"github.com/bandhannova07/Bringlare-Chat/internal/model"
)

// CancelFunc отписывает наблюдателя. После вызова колбэк не вызывается.
type CancelFunc func()

// StateWatcher — наблюдаемое состояние входа. Подписчики получают текущего
// пользователя сразу при подписке (nil, пока вход не выполнен) и при каждой
// смене. Подписка явная и отменяемая, утечек наблюдателей нет.
type StateWatcher struct {
	mu      sync.Mutex
	current *model.User
	subs    map[int]func(*model.User)
	next    int
}

func NewStateWatcher() *StateWatcher {
	return &StateWatcher{subs: make(map[int]func(*model.User))}
}

// Watch подписывает колбэк и синхронно доставляет текущее состояние.
func (w *StateWatcher) Watch(fn func(*model.User)) CancelFunc {
	w.mu.Lock()
	id := w.next
	w.next++
	w.subs[id] = fn
	cur := w.current
	w.mu.Unlock()

	fn(cur)
	return func() {
		w.mu.Lock()
		delete(w.subs, id)
		w.mu.Unlock()
	}
}

// Set обновляет состояние (u == nil означает выход) и оповещает подписчиков.
func (w *StateWatcher) Set(u *model.User) {
	w.mu.Lock()
	w.current = u
	fns := make([]func(*model.User), 0, len(w.subs))
	for _, fn := range w.subs {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(u)
	}
}

// Current возвращает текущего пользователя (nil, если вход не выполнен).
func (w *StateWatcher) Current() *model.User {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}
