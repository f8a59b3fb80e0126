package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bandhannova07/Bringlare-Chat/internal/logger"
	"github.com/bandhannova07/Bringlare-Chat/internal/middleware"
	"github.com/bandhannova07/Bringlare-Chat/internal/model"
	"github.com/bandhannova07/Bringlare-Chat/internal/realtime"
	"github.com/bandhannova07/Bringlare-Chat/internal/repository"
)

type ChatHandler struct {
	chatRepo    *repository.ChatRepository
	userRepo    *repository.UserRepository
	contactRepo *repository.ContactRepository
	hub         *realtime.Hub
}

func NewChatHandler(chatRepo *repository.ChatRepository, userRepo *repository.UserRepository, contactRepo *repository.ContactRepository, hub *realtime.Hub) *ChatHandler {
	return &ChatHandler{chatRepo: chatRepo, userRepo: userRepo, contactRepo: contactRepo, hub: hub}
}

type CreateDirectChatRequest struct {
	UserID string `json:"user_id"`
}

type CreateGroupChatRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}

func (h *ChatHandler) CreateDirectChat(w http.ResponseWriter, r *http.Request) {
	var req CreateDirectChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	currentUserID := middleware.GetUserID(r.Context())
	if req.UserID == currentUserID {
		writeError(w, http.StatusBadRequest, "cannot create chat with yourself")
		return
	}

	blocked, err := h.contactRepo.IsBlocked(r.Context(), currentUserID, req.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check contacts")
		return
	}
	if blocked {
		writeError(w, http.StatusForbidden, "user is blocked")
		return
	}

	// Повторный вызов возвращает существующий диалог, а не создаёт дубликат.
	existing, err := h.chatRepo.FindDirectChat(r.Context(), currentUserID, req.UserID)
	if err == nil && existing != nil {
		summary, err := h.buildSummary(r.Context(), existing, currentUserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to build chat summary")
			return
		}
		writeJSON(w, http.StatusOK, summary)
		return
	}

	if _, err := h.userRepo.GetByID(r.Context(), req.UserID); err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	now := time.Now().UTC()
	chat := &model.Chat{
		ID:        uuid.New().String(),
		ChatType:  model.ChatTypeDirect,
		CreatedBy: currentUserID,
		CreatedAt: now,
	}

	if err := h.chatRepo.Create(r.Context(), chat); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create chat")
		return
	}

	for _, uid := range []string{currentUserID, req.UserID} {
		p := &model.ChatParticipant{
			ChatID:   chat.ID,
			UserID:   uid,
			Role:     "member",
			JoinedAt: now,
		}
		if err := h.chatRepo.AddParticipant(r.Context(), p); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to add participant")
			return
		}
	}

	summary, err := h.buildSummary(r.Context(), chat, currentUserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build chat summary")
		return
	}

	h.hub.BroadcastToChat(r.Context(), chat.ID, realtime.OutgoingMessage{
		Type:    realtime.EventChatCreated,
		Payload: summary,
	})

	writeJSON(w, http.StatusCreated, summary)
}

func (h *ChatHandler) CreateGroupChat(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	currentUserID := middleware.GetUserID(r.Context())
	now := time.Now().UTC()
	chat := &model.Chat{
		ID:        uuid.New().String(),
		ChatType:  model.ChatTypeGroup,
		Name:      req.Name,
		CreatedBy: currentUserID,
		CreatedAt: now,
	}

	if err := h.chatRepo.Create(r.Context(), chat); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create chat")
		return
	}

	admin := &model.ChatParticipant{
		ChatID:   chat.ID,
		UserID:   currentUserID,
		Role:     "admin",
		JoinedAt: now,
	}
	if err := h.chatRepo.AddParticipant(r.Context(), admin); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add admin")
		return
	}

	for _, uid := range req.MemberIDs {
		if uid == currentUserID {
			continue
		}
		p := &model.ChatParticipant{
			ChatID:   chat.ID,
			UserID:   uid,
			Role:     "member",
			JoinedAt: now,
		}
		if err := h.chatRepo.AddParticipant(r.Context(), p); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to add participant")
			return
		}
	}

	summary, err := h.buildSummary(r.Context(), chat, currentUserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build chat summary")
		return
	}

	h.hub.BroadcastToChat(r.Context(), chat.ID, realtime.OutgoingMessage{
		Type:    realtime.EventChatCreated,
		Payload: summary,
	})

	writeJSON(w, http.StatusCreated, summary)
}

// GetUserChats возвращает чаты пользователя со сводкой: участники, последнее
// сообщение, число непрочитанных. Сортировка — по времени последнего сообщения.
func (h *ChatHandler) GetUserChats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	summaries, err := h.chatRepo.GetUserChatSummaries(ctx, userID)
	if err != nil {
		logger.Errorf("GetUserChats user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to get chats")
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
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

	chat, err := h.chatRepo.GetByID(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get chat")
		return
	}

	summary, err := h.buildSummary(r.Context(), chat, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build chat summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetReadCursors возвращает курсоры чтения всех участников чата: по ним клиент
// показывает, кто до какого места дочитал.
func (h *ChatHandler) GetReadCursors(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())

	isParticipant, err := h.chatRepo.IsParticipant(r.Context(), chatID, userID)
	if err != nil || !isParticipant {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	cursors, err := h.chatRepo.GetReadCursors(r.Context(), chatID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get read cursors")
		return
	}
	writeJSON(w, http.StatusOK, cursors)
}

type AddParticipantsRequest struct {
	MemberIDs []string `json:"member_ids"`
}

func (h *ChatHandler) AddParticipants(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())

	var req AddParticipantsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	chat, err := h.chatRepo.GetByID(r.Context(), chatID)
	if err != nil {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	if chat.ChatType != model.ChatTypeGroup {
		writeError(w, http.StatusBadRequest, "only group chats support adding participants")
		return
	}

	isParticipant, err := h.chatRepo.IsParticipant(r.Context(), chatID, userID)
	if err != nil || !isParticipant {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	now := time.Now().UTC()
	for _, uid := range req.MemberIDs {
		p := &model.ChatParticipant{ChatID: chatID, UserID: uid, Role: "member", JoinedAt: now}
		if err := h.chatRepo.AddParticipant(r.Context(), p); err != nil {
			logger.Errorf("AddParticipants chat=%s user=%s: %v", chatID, uid, err)
			continue
		}
		h.hub.BroadcastToChat(r.Context(), chatID, realtime.OutgoingMessage{
			Type:    realtime.EventParticipantJoined,
			Payload: realtime.ParticipantPayload{ChatID: chatID, UserID: uid, ActorID: userID},
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RemoveParticipant исключает участника. Разрешено админу или самому участнику.
func (h *ChatHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	memberID := chi.URLParam(r, "memberId")
	userID := middleware.GetUserID(r.Context())

	chat, err := h.chatRepo.GetByID(r.Context(), chatID)
	if err != nil {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	if chat.ChatType != model.ChatTypeGroup {
		writeError(w, http.StatusBadRequest, "only group chats support removing participants")
		return
	}

	role, err := h.chatRepo.GetParticipantRole(r.Context(), chatID, userID)
	if err != nil {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}
	if role != "admin" && userID != memberID {
		writeError(w, http.StatusForbidden, "only admin can remove participants")
		return
	}

	if err := h.chatRepo.LeaveChat(r.Context(), chatID, memberID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove participant")
		return
	}

	h.hub.BroadcastToChat(r.Context(), chatID, realtime.OutgoingMessage{
		Type:    realtime.EventParticipantLeft,
		Payload: realtime.ParticipantPayload{ChatID: chatID, UserID: memberID, ActorID: userID},
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ChatHandler) LeaveChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())

	isParticipant, err := h.chatRepo.IsParticipant(r.Context(), chatID, userID)
	if err != nil || !isParticipant {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	if err := h.chatRepo.LeaveChat(r.Context(), chatID, userID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to leave chat")
		return
	}

	h.hub.BroadcastToChat(r.Context(), chatID, realtime.OutgoingMessage{
		Type:    realtime.EventParticipantLeft,
		Payload: realtime.ParticipantPayload{ChatID: chatID, UserID: userID},
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ChatHandler) buildSummary(ctx context.Context, chat *model.Chat, userID string) (*model.ChatSummary, error) {
	participants, err := h.chatRepo.GetParticipants(ctx, chat.ID)
	if err != nil {
		return nil, err
	}

	pub := make([]model.UserPublic, 0, len(participants))
	for i := range participants {
		pub = append(pub, participants[i].ToPublic())
	}

	unread, err := h.chatRepo.GetUnreadCount(ctx, chat.ID, userID)
	if err != nil {
		logger.Errorf("buildSummary unread chat=%s: %v", chat.ID, err)
	}

	return &model.ChatSummary{
		Chat:         *chat,
		Participants: pub,
		UnreadCount:  unread,
	}, nil
}
