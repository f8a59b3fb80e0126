package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bandhannova07/Bringlare-Chat/internal/logger"
	"github.com/bandhannova07/Bringlare-Chat/internal/model"
)

type ContactRepository struct {
	pool *pgxpool.Pool
}

func NewContactRepository(pool *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{pool: pool}
}

func (r *ContactRepository) Add(ctx context.Context, userID, contactUserID string) (*model.Contact, error) {
	defer logger.DeferLogDuration("contact.Add", time.Now())()
	c := &model.Contact{
		ID:            uuid.New().String(),
		UserID:        userID,
		ContactUserID: contactUserID,
		Status:        model.ContactStatusPending,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO contacts (id, user_id, contact_user_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, contact_user_id) DO NOTHING`,
		c.ID, c.UserID, c.ContactUserID, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("contactRepo.Add: %w", err)
	}
	return c, nil
}

func (r *ContactRepository) SetStatus(ctx context.Context, userID, contactUserID string, status model.ContactStatus) error {
	defer logger.DeferLogDuration("contact.SetStatus", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE contacts SET status = $1, updated_at = NOW()
		 WHERE user_id = $2 AND contact_user_id = $3`,
		status, userID, contactUserID,
	)
	if err != nil {
		return fmt.Errorf("contactRepo.SetStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ContactRepository) Remove(ctx context.Context, userID, contactUserID string) error {
	defer logger.DeferLogDuration("contact.Remove", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM contacts WHERE user_id = $1 AND contact_user_id = $2`,
		userID, contactUserID,
	)
	if err != nil {
		return fmt.Errorf("contactRepo.Remove: %w", err)
	}
	return nil
}

func (r *ContactRepository) Get(ctx context.Context, userID, contactUserID string) (*model.Contact, error) {
	defer logger.DeferLogDuration("contact.Get", time.Now())()
	c := &model.Contact{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, contact_user_id, status, created_at, updated_at
		 FROM contacts WHERE user_id = $1 AND contact_user_id = $2`,
		userID, contactUserID,
	).Scan(&c.ID, &c.UserID, &c.ContactUserID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("contactRepo.Get: %w", err)
	}
	return c, nil
}

// List возвращает контакты пользователя с профилями. status пустой — все.
func (r *ContactRepository) List(ctx context.Context, userID string, status model.ContactStatus) ([]model.Contact, error) {
	defer logger.DeferLogDuration("contact.List", time.Now())()
	sql := `SELECT c.id, c.user_id, c.contact_user_id, c.status, c.created_at, c.updated_at,
	        u.id, u.display_name, u.username, COALESCE(u.avatar_url,''), u.is_online, u.last_seen_at
	 FROM contacts c
	 JOIN users u ON u.id = c.contact_user_id
	 WHERE c.user_id = $1`
	args := []interface{}{userID}
	if status != "" {
		sql += ` AND c.status = $2`
		args = append(args, status)
	}
	sql += ` ORDER BY u.username`

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("contactRepo.List query: %w", err)
	}
	defer rows.Close()

	contacts := make([]model.Contact, 0, 16)
	for rows.Next() {
		var c model.Contact
		u := &model.UserPublic{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.ContactUserID, &c.Status, &c.CreatedAt, &c.UpdatedAt,
			&u.ID, &u.DisplayName, &u.Username, &u.AvatarURL, &u.IsOnline, &u.LastSeenAt); err != nil {
			return nil, fmt.Errorf("contactRepo.List scan: %w", err)
		}
		c.ContactUser = u
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contactRepo.List rows: %w", err)
	}
	return contacts, nil
}

// IsBlocked проверяет блокировку в любую сторону (блок запрещает отправку обоим).
func (r *ContactRepository) IsBlocked(ctx context.Context, userID, otherID string) (bool, error) {
	defer logger.DeferLogDuration("contact.IsBlocked", time.Now())()
	var blocked bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM contacts
			WHERE status = 'blocked'
			  AND ((user_id = $1 AND contact_user_id = $2) OR (user_id = $2 AND contact_user_id = $1))
		 )`, userID, otherID,
	).Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("contactRepo.IsBlocked: %w", err)
	}
	return blocked, nil
}
