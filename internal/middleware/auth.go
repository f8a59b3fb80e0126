package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bandhannova07/Bringlare-Chat/internal/auth"
	"github.com/bandhannova07/Bringlare-Chat/internal/logger"
	"github.com/bandhannova07/Bringlare-Chat/internal/model"
	"github.com/bandhannova07/Bringlare-Chat/internal/repository"
)

// Authenticate проверяет bearer-токен провайдера и кладёт в контекст id профиля.
// Токен берётся из Authorization или из ?token= (WebSocket-хендшейк не умеет
// заголовки). Профиль создаётся при первом входе.
func Authenticate(verifier *auth.Verifier, userRepo *repository.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" || token == r.Header.Get("Authorization") {
				token = r.URL.Query().Get("token")
			}
			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			u, err := userRepo.GetByAccountID(r.Context(), claims.AccountID)
			if errors.Is(err, repository.ErrNotFound) {
				u, err = createProfile(r.Context(), userRepo, claims)
			}
			if err != nil {
				logger.Errorf("auth resolve profile account=%s: %v", claims.AccountID, err)
				http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, u.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// createProfile заводит профиль при первом входе. Username выводится из email;
// при коллизии добавляется суффикс.
func createProfile(ctx context.Context, userRepo *repository.UserRepository, claims *auth.Claims) (*model.User, error) {
	base := claims.Email
	if idx := strings.Index(base, "@"); idx > 0 {
		base = base[:idx]
	}
	if base == "" {
		base = "user"
	}
	displayName := claims.Name
	if displayName == "" {
		displayName = base
	}

	now := time.Now().UTC()
	u := &model.User{
		ID:          uuid.New().String(),
		AccountID:   claims.AccountID,
		Email:       claims.Email,
		DisplayName: displayName,
		Username:    base,
		LastSeenAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := userRepo.Create(ctx, u); err == nil {
		return u, nil
	}
	// Username занят: уникальный суффикс из id.
	u.Username = base + "_" + u.ID[:8]
	if err := userRepo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
