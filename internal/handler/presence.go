package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bandhannova07/Bringlare-Chat/internal/middleware"
	"github.com/bandhannova07/Bringlare-Chat/internal/presence"
	"github.com/bandhannova07/Bringlare-Chat/internal/repository"
)

type PresenceHandler struct {
	store    presence.Store
	chatRepo *repository.ChatRepository
}

func NewPresenceHandler(store presence.Store, chatRepo *repository.ChatRepository) *PresenceHandler {
	return &PresenceHandler{store: store, chatRepo: chatRepo}
}

// GetTyping возвращает, кто сейчас печатает в чате. Индикатор гаснет сам
// (~3 секунды после последнего сигнала), явного "перестал печатать" нет.
func (h *PresenceHandler) GetTyping(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())

	isParticipant, err := h.chatRepo.IsParticipant(r.Context(), chatID, userID)
	if err != nil || !isParticipant {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	users, err := h.store.TypingUsers(r.Context(), chatID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get typing users")
		return
	}
	if users == nil {
		users = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"typing": users})
}

// GetOnline возвращает онлайн-статусы по списку id (query ids=a,b,c).
// Статус рекомендательный: доставка сообщений от него не зависит.
func (h *PresenceHandler) GetOnline(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("ids"))
	if raw == "" {
		writeJSON(w, http.StatusOK, map[string]bool{})
		return
	}
	ids := strings.Split(raw, ",")
	if len(ids) > 100 {
		ids = ids[:100]
	}

	statuses, err := h.store.OnlineUsers(r.Context(), ids)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get online statuses")
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}
