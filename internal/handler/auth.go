package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bandhannova07/Bringlare-Chat/internal/logger"
)

// AuthHandler проксирует вход/регистрацию на внешний auth-провайдер, чтобы
// фронту не нужен был отдельный origin. Верификация токенов — в middleware.
type AuthHandler struct {
	providerURL string
	client      *http.Client
}

// NewAuthHandler создаёт прокси. providerURL пустой — эндпоинты отвечают 501.
func NewAuthHandler(providerURL string) *AuthHandler {
	return &AuthHandler{
		providerURL: strings.TrimSuffix(providerURL, "/"),
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	h.proxy(w, r, "/v1/sign-in")
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	h.proxy(w, r, "/v1/sign-up")
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.proxy(w, r, "/v1/sign-out")
}

func (h *AuthHandler) proxy(w http.ResponseWriter, r *http.Request, path string) {
	if h.providerURL == "" {
		writeError(w, http.StatusNotImplemented, "auth provider not configured")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, h.providerURL+path, r.Body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	req.Header.Set("Content-Type", r.Header.Get("Content-Type"))
	if auth := r.Header.Get("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		logger.Errorf("auth proxy %s: %v", path, err)
		writeError(w, http.StatusBadGateway, "auth provider unavailable")
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}
