package model

import "time"

// User — профиль пользователя. AccountID — идентификатор от внешнего
// auth-провайдера; профиль создаётся при первой аутентификации.
type User struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"account_id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name"`
	Username      string    `json:"username"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	StatusMessage string    `json:"status_message,omitempty"`
	// IsOnline/LastSeenAt — best-effort присутствие; на корректность доставки не влияет.
	IsOnline   bool      `json:"is_online"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type UserPublic struct {
	ID            string    `json:"id"`
	DisplayName   string    `json:"display_name"`
	Username      string    `json:"username"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	StatusMessage string    `json:"status_message,omitempty"`
	IsOnline      bool      `json:"is_online"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:            u.ID,
		DisplayName:   u.DisplayName,
		Username:      u.Username,
		AvatarURL:     u.AvatarURL,
		StatusMessage: u.StatusMessage,
		IsOnline:      u.IsOnline,
		LastSeenAt:    u.LastSeenAt,
	}
}
