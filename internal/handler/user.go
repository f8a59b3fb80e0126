package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bandhannova07/Bringlare-Chat/internal/middleware"
	"github.com/bandhannova07/Bringlare-Chat/internal/model"
	"github.com/bandhannova07/Bringlare-Chat/internal/repository"
)

// usernameRe — строчные латинские буквы, цифры и подчёркивание, 3..32 символа.
var usernameRe = regexp.MustCompile(`^[a-z0-9_]{3,32}$`)

type UserHandler struct {
	userRepo *repository.UserRepository
}

func NewUserHandler(userRepo *repository.UserRepository) *UserHandler {
	return &UserHandler{userRepo: userRepo}
}

// GetProfile возвращает полный профиль текущего пользователя (включая email).
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user, err := h.userRepo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user.ToPublic())
}

// SearchUsers ищет по username и display_name, себя из выдачи исключает.
func (h *UserHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusOK, []model.UserPublic{})
		return
	}

	users, err := h.userRepo.Search(r.Context(), query, 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	currentUserID := middleware.GetUserID(r.Context())
	result := make([]model.UserPublic, 0, len(users))
	for _, u := range users {
		if u.ID != currentUserID {
			result = append(result, u.ToPublic())
		}
	}
	writeJSON(w, http.StatusOK, result)
}

type UpdateProfileRequest struct {
	DisplayName   string `json:"display_name"`
	Username      string `json:"username"`
	AvatarURL     string `json:"avatar_url"`
	StatusMessage string `json:"status_message"`
}

// UpdateProfile обновляет display_name, username, аватар и статус. Пустые поля
// не трогаются; username проверяется на формат и уникальность.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	userID := middleware.GetUserID(r.Context())
	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	username := user.Username
	if reqName := strings.TrimSpace(strings.ToLower(req.Username)); reqName != "" && reqName != user.Username {
		if !usernameRe.MatchString(reqName) {
			writeError(w, http.StatusBadRequest, "invalid username: 3-32 chars, a-z, 0-9, underscore")
			return
		}
		existing, err := h.userRepo.GetByUsername(r.Context(), reqName)
		if err == nil && existing.ID != userID {
			writeError(w, http.StatusConflict, "username already taken")
			return
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, "failed to check username")
			return
		}
		username = reqName
	}

	displayName := user.DisplayName
	if v := strings.TrimSpace(req.DisplayName); v != "" {
		displayName = v
	}
	avatarURL := user.AvatarURL
	if v := strings.TrimSpace(req.AvatarURL); v != "" {
		avatarURL = v
	}
	statusMessage := user.StatusMessage
	if req.StatusMessage != "" {
		statusMessage = strings.TrimSpace(req.StatusMessage)
	}

	if err := h.userRepo.UpdateProfile(r.Context(), userID, displayName, username, avatarURL, statusMessage); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	user.DisplayName = displayName
	user.Username = username
	user.AvatarURL = avatarURL
	user.StatusMessage = statusMessage
	writeJSON(w, http.StatusOK, user)
}
