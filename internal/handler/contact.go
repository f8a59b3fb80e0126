package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bandhannova07/Bringlare-Chat/internal/middleware"
	"github.com/bandhannova07/Bringlare-Chat/internal/model"
	"github.com/bandhannova07/Bringlare-Chat/internal/repository"
)

type ContactHandler struct {
	contactRepo *repository.ContactRepository
	userRepo    *repository.UserRepository
}

func NewContactHandler(contactRepo *repository.ContactRepository, userRepo *repository.UserRepository) *ContactHandler {
	return &ContactHandler{contactRepo: contactRepo, userRepo: userRepo}
}

// ListContacts возвращает контакты пользователя; query status= сужает выборку
// (pending/accepted/blocked).
func (h *ContactHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var status model.ContactStatus
	switch s := r.URL.Query().Get("status"); s {
	case "":
	case string(model.ContactStatusPending), string(model.ContactStatusAccepted), string(model.ContactStatusBlocked):
		status = model.ContactStatus(s)
	default:
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	contacts, err := h.contactRepo.List(r.Context(), userID, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list contacts")
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

type AddContactRequest struct {
	// Либо user_id, либо username — что-то одно обязательно.
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func (h *ContactHandler) AddContact(w http.ResponseWriter, r *http.Request) {
	var req AddContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	userID := middleware.GetUserID(r.Context())
	targetID := req.UserID
	if targetID == "" {
		if req.Username == "" {
			writeError(w, http.StatusBadRequest, "user_id or username required")
			return
		}
		target, err := h.userRepo.GetByUsername(r.Context(), req.Username)
		if err != nil {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		targetID = target.ID
	} else {
		if _, err := h.userRepo.GetByID(r.Context(), targetID); err != nil {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
	}

	if targetID == userID {
		writeError(w, http.StatusBadRequest, "cannot add yourself")
		return
	}

	contact, err := h.contactRepo.Add(r.Context(), userID, targetID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add contact")
		return
	}
	writeJSON(w, http.StatusCreated, contact)
}

// AcceptContact переводит контакт в accepted.
func (h *ContactHandler) AcceptContact(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, model.ContactStatusAccepted)
}

// BlockContact блокирует пользователя: создание чатов с ним запрещается.
// Записи контакта может не быть — тогда создаём и сразу блокируем.
func (h *ContactHandler) BlockContact(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "userId")
	userID := middleware.GetUserID(r.Context())

	err := h.contactRepo.SetStatus(r.Context(), userID, contactID, model.ContactStatusBlocked)
	if errors.Is(err, repository.ErrNotFound) {
		if _, addErr := h.contactRepo.Add(r.Context(), userID, contactID); addErr != nil {
			writeError(w, http.StatusInternalServerError, "failed to block contact")
			return
		}
		err = h.contactRepo.SetStatus(r.Context(), userID, contactID, model.ContactStatusBlocked)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to block contact")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ContactHandler) RemoveContact(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "userId")
	userID := middleware.GetUserID(r.Context())

	if err := h.contactRepo.Remove(r.Context(), userID, contactID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove contact")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ContactHandler) setStatus(w http.ResponseWriter, r *http.Request, status model.ContactStatus) {
	contactID := chi.URLParam(r, "userId")
	userID := middleware.GetUserID(r.Context())

	err := h.contactRepo.SetStatus(r.Context(), userID, contactID, status)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "contact not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update contact")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
