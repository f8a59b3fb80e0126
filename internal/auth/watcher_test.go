package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bandhannova07/Bringlare-Chat/internal/model"
)

func TestWatcherDeliversCurrentStateOnSubscribe(t *testing.T) {
	w := NewStateWatcher()

	var got []*model.User
	w.Watch(func(u *model.User) { got = append(got, u) })

	assert.Len(t, got, 1)
	assert.Nil(t, got[0], "signed-out state is delivered immediately")

	alice := &model.User{ID: "u1", Username: "alice"}
	w.Set(alice)
	assert.Len(t, got, 2)
	assert.Equal(t, alice, got[1])

	var late []*model.User
	w.Watch(func(u *model.User) { late = append(late, u) })
	assert.Equal(t, []*model.User{alice}, late, "late subscriber sees the current user at once")
}

func TestWatcherCancelStopsDelivery(t *testing.T) {
	w := NewStateWatcher()

	var got []*model.User
	cancel := w.Watch(func(u *model.User) { got = append(got, u) })
	cancel()

	w.Set(&model.User{ID: "u1"})
	assert.Len(t, got, 1, "no events after cancel")
}

func TestWatcherSignOut(t *testing.T) {
	w := NewStateWatcher()
	w.Set(&model.User{ID: "u1"})

	var got []*model.User
	w.Watch(func(u *model.User) { got = append(got, u) })

	w.Set(nil)
	assert.Len(t, got, 2)
	assert.Nil(t, got[1])
	assert.Nil(t, w.Current())
}
