package model

import "time"

type ContactStatus string

const (
	ContactStatusPending  ContactStatus = "pending"
	ContactStatusAccepted ContactStatus = "accepted"
	ContactStatusBlocked  ContactStatus = "blocked"
)

// Contact — односторонняя запись "user_id добавил contact_user_id".
type Contact struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	ContactUserID string        `json:"contact_user_id"`
	Status        ContactStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	ContactUser   *UserPublic   `json:"contact_user,omitempty"`
}
