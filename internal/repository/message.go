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

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

const messageCols = `m.id, COALESCE(m.provisional_id,''), m.chat_id, m.sender_id, m.content, m.kind,
	        COALESCE(m.file_url,''), COALESCE(m.file_name,''), COALESCE(m.file_size,0), m.status,
	        m.reply_to_id, m.created_at, m.server_at`

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message, sender *model.UserPublic) error {
	return s.Scan(&m.ID, &m.ProvisionalID, &m.ChatID, &m.SenderID, &m.Content, &m.Kind,
		&m.FileURL, &m.FileName, &m.FileSize, &m.Status,
		&m.ReplyToID, &m.CreatedAt, &m.ServerAt,
		&sender.ID, &sender.DisplayName, &sender.Username, &sender.AvatarURL, &sender.IsOnline, &sender.LastSeenAt)
}

// InsertMessage — durable-запись. Сервер присваивает id и server_at; клиентские
// provisional_id и created_at сохраняются рядом для корреляции на клиентах.
// Повторная вставка того же provisional_id (ретрай после таймаута) возвращает
// уже существующую строку, дубль не создаётся.
func (r *MessageRepository) InsertMessage(ctx context.Context, m *model.Message) (string, time.Time, error) {
	defer logger.DeferLogDuration("msg.InsertMessage", time.Now())()
	id := uuid.New().String()
	var gotID string
	var serverAt time.Time
	err := r.pool.QueryRow(ctx,
		`INSERT INTO messages (id, provisional_id, chat_id, sender_id, content, kind, file_url, file_name, file_size, status, reply_to_id, created_at, server_at)
		 VALUES ($1, NULLIF($2,''), $3, $4, $5, $6, NULLIF($7,''), NULLIF($8,''), NULLIF($9,0), $10, $11, $12, NOW())
		 ON CONFLICT (provisional_id) WHERE provisional_id IS NOT NULL
		 DO UPDATE SET provisional_id = EXCLUDED.provisional_id
		 RETURNING id, server_at`,
		id, m.ProvisionalID, m.ChatID, m.SenderID, m.Content, m.Kind, m.FileURL, m.FileName, m.FileSize, m.Status, m.ReplyToID, m.CreatedAt,
	).Scan(&gotID, &serverAt)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("msgRepo.InsertMessage: %w", err)
	}

	preview := m.Content
	if m.IsFile() && preview == "" {
		preview = m.FileName
	}
	if _, err := r.pool.Exec(ctx,
		`UPDATE chats SET last_message = $1, last_message_at = $2 WHERE id = $3`,
		preview, serverAt, m.ChatID,
	); err != nil {
		return "", time.Time{}, fmt.Errorf("msgRepo.InsertMessage last_message: %w", err)
	}
	return gotID, serverAt, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	sender := &model.UserPublic{}
	err := scanMessage(r.pool.QueryRow(ctx,
		`SELECT `+messageCols+`,
		        u.id, u.display_name, u.username, COALESCE(u.avatar_url,''), u.is_online, u.last_seen_at
		 FROM messages m
		 JOIN users u ON u.id = m.sender_id
		 WHERE m.id = $1`, id,
	), m, sender)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	m.Sender = sender
	return m, nil
}

// ChatMessages возвращает страницу истории чата, новые первыми. Порядок по
// server_at: серверное время авторитетно, клиентские часы могут врать.
func (r *MessageRepository) ChatMessages(ctx context.Context, chatID string, limit, offset int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ChatMessages", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageCols+`,
		        u.id, u.display_name, u.username, COALESCE(u.avatar_url,''), u.is_online, u.last_seen_at
		 FROM messages m
		 JOIN users u ON u.id = m.sender_id
		 WHERE m.chat_id = $1
		 ORDER BY m.server_at DESC
		 LIMIT $2 OFFSET $3`, chatID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ChatMessages query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		sender := &model.UserPublic{}
		if err := scanMessage(rows, &m, sender); err != nil {
			return nil, fmt.Errorf("msgRepo.ChatMessages scan: %w", err)
		}
		m.Sender = sender
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.ChatMessages rows: %w", err)
	}
	return messages, nil
}

// MarkRead двигает курсор чтения получателя и пересчитывает статусы чужих
// сообщений: до курсора — read, после — delivered (получатель в чате).
// Статусы не понижаются.
func (r *MessageRepository) MarkRead(ctx context.Context, chatID, userID string, cursor time.Time) error {
	defer logger.DeferLogDuration("msg.MarkRead", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE chat_participants SET last_read_at = GREATEST(last_read_at, $3)
		 WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID, cursor,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.MarkRead cursor: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE messages SET status = 'read'
		 WHERE chat_id = $1 AND sender_id != $2 AND server_at <= $3 AND status != 'read'`,
		chatID, userID, cursor,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.MarkRead read: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE messages SET status = 'delivered'
		 WHERE chat_id = $1 AND sender_id != $2 AND server_at > $3 AND status = 'sent'`,
		chatID, userID, cursor,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.MarkRead delivered: %w", err)
	}
	return nil
}

// SearchMessages ищет по содержимому в чатах пользователя (ILIKE). chatID
// непустой — поиск только в этом чате.
func (r *MessageRepository) SearchMessages(ctx context.Context, userID, query string, limit int, chatID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.SearchMessages", time.Now())()
	sql := `SELECT ` + messageCols + `,
	        u.id, u.display_name, u.username, COALESCE(u.avatar_url,''), u.is_online, u.last_seen_at
	 FROM messages m
	 JOIN users u ON u.id = m.sender_id
	 JOIN chat_participants cp ON cp.chat_id = m.chat_id AND cp.user_id = $1 AND cp.left_at IS NULL
	 WHERE m.content ILIKE '%' || $2 || '%'`
	args := []interface{}{userID, query}
	if chatID != "" {
		sql += ` AND m.chat_id = $3`
		args = append(args, chatID)
	}
	args = append(args, limit)
	sql += ` ORDER BY m.server_at DESC LIMIT $` + fmt.Sprintf("%d", len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.SearchMessages query: %w", err)
	}
	defer rows.Close()

	msgs := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		sender := &model.UserPublic{}
		if err := scanMessage(rows, &m, sender); err != nil {
			return nil, fmt.Errorf("msgRepo.SearchMessages scan: %w", err)
		}
		m.Sender = sender
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.SearchMessages rows: %w", err)
	}
	return msgs, nil
}
