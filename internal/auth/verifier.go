// Package auth проверяет токены внешнего провайдера аутентификации и ведёт
// наблюдаемое состояние входа. Сервис не хранит пароли: учётные записи живут у
// провайдера, здесь только профили.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims — данные из проверенного токена провайдера.
type Claims struct {
	AccountID string
	Email     string
	Name      string
}

// Verifier проверяет bearer-токены. Если задан секрет, проверка офлайн (HS256);
// иначе токен валидируется запросом к провайдеру.
type Verifier struct {
	secret      []byte
	providerURL string
	client      *http.Client
}

func NewVerifier(secret, providerURL string) *Verifier {
	v := &Verifier{providerURL: providerURL, client: &http.Client{Timeout: 5 * time.Second}}
	if secret != "" {
		v.secret = []byte(secret)
	}
	return v
}

type providerClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	if v.secret != nil {
		return v.verifyLocal(token)
	}
	return v.verifyRemote(ctx, token)
}

func (v *Verifier) verifyLocal(token string) (*Claims, error) {
	var pc providerClaims
	parsed, err := jwt.ParseWithClaims(token, &pc, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid || pc.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &Claims{AccountID: pc.Subject, Email: pc.Email, Name: pc.Name}, nil
}

func (v *Verifier) verifyRemote(ctx context.Context, token string) (*Claims, error) {
	if v.providerURL == "" {
		return nil, ErrInvalidToken
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.providerURL+"/v1/verify", nil)
	if err != nil {
		return nil, fmt.Errorf("auth verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth verify: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, ErrInvalidToken
	}
	var result struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || result.Sub == "" {
		return nil, ErrInvalidToken
	}
	return &Claims{AccountID: result.Sub, Email: result.Email, Name: result.Name}, nil
}
