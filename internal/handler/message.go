package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bandhannova07/Bringlare-Chat/internal/logger"
	"github.com/bandhannova07/Bringlare-Chat/internal/middleware"
	"github.com/bandhannova07/Bringlare-Chat/internal/realtime"
	"github.com/bandhannova07/Bringlare-Chat/internal/repository"
)

type MessageHandler struct {
	msgRepo   *repository.MessageRepository
	chatRepo  *repository.ChatRepository
	reactRepo *repository.ReactionRepository
	hub       *realtime.Hub
}

func NewMessageHandler(
	msgRepo *repository.MessageRepository,
	chatRepo *repository.ChatRepository,
	reactRepo *repository.ReactionRepository,
	hub *realtime.Hub,
) *MessageHandler {
	return &MessageHandler{msgRepo: msgRepo, chatRepo: chatRepo, reactRepo: reactRepo, hub: hub}
}

// GetMessages отдаёт страницу истории чата (новые первыми) с реакциями
// и цитируемыми сообщениями.
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatId")
	userID := middleware.GetUserID(r.Context())

	isParticipant, err := h.chatRepo.IsParticipant(r.Context(), chatID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check participation")
		return
	}
	if !isParticipant {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	if limit > 100 {
		limit = 100
	}

	messages, err := h.msgRepo.ChatMessages(r.Context(), chatID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get messages")
		return
	}

	ids := make([]string, 0, len(messages))
	for i := range messages {
		ids = append(ids, messages[i].ID)
	}
	reactions, err := h.reactRepo.ForMessages(r.Context(), ids)
	if err != nil {
		logger.Errorf("GetMessages reactions chat=%s: %v", chatID, err)
	}

	for i := range messages {
		if rs, ok := reactions[messages[i].ID]; ok {
			messages[i].Reactions = rs
		}
		if messages[i].ReplyToID != nil {
			replyMsg, err := h.msgRepo.GetByID(r.Context(), *messages[i].ReplyToID)
			if err == nil {
				messages[i].ReplyTo = replyMsg
			}
		}
	}

	writeJSON(w, http.StatusOK, messages)
}

type MarkReadRequest struct {
	// ReadAt — позиция курсора чтения. Пусто — берём текущее время.
	ReadAt *time.Time `json:"read_at,omitempty"`
}

// MarkAsRead сдвигает курсор чтения вперёд. Сообщения до курсора помечаются
// прочитанными, после — доставленными; собственные сообщения не трогаются.
func (h *MessageHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatId")
	userID := middleware.GetUserID(r.Context())

	isParticipant, err := h.chatRepo.IsParticipant(r.Context(), chatID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check participation")
		return
	}
	if !isParticipant {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	var req MarkReadRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	cursor := time.Now().UTC()
	if req.ReadAt != nil {
		cursor = req.ReadAt.UTC()
	}

	if err := h.msgRepo.MarkRead(r.Context(), chatID, userID, cursor); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mark as read")
		return
	}

	h.hub.BroadcastToChat(r.Context(), chatID, realtime.OutgoingMessage{
		Type:    realtime.EventMessageRead,
		Payload: realtime.MessageReadPayload{ChatID: chatID, UserID: userID, ReadAt: cursor},
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SearchMessages ищет по тексту в чатах пользователя; chat_id сужает поиск.
func (h *MessageHandler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	limit := queryInt(r, "limit", 30)
	if limit > 50 {
		limit = 50
	}
	chatID := r.URL.Query().Get("chat_id")

	messages, err := h.msgRepo.SearchMessages(r.Context(), userID, query, limit, chatID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// GetReactions returns reactions for a message.
func (h *MessageHandler) GetReactions(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageId")
	reactions, err := h.reactRepo.ByMessage(r.Context(), messageID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get reactions")
		return
	}
	writeJSON(w, http.StatusOK, reactions)
}
