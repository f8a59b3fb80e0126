package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bandhannova07/Bringlare-Chat/internal/logger"
	"github.com/bandhannova07/Bringlare-Chat/internal/model"
)

type ChatRepository struct {
	pool *pgxpool.Pool
}

func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

const chatCols = `id, chat_type, COALESCE(name,''), created_by, created_at, COALESCE(last_message,''), last_message_at`

func scanChat(s interface{ Scan(dest ...any) error }, c *model.Chat) error {
	return s.Scan(&c.ID, &c.ChatType, &c.Name, &c.CreatedBy, &c.CreatedAt, &c.LastMessage, &c.LastMessageAt)
}

func (r *ChatRepository) Create(ctx context.Context, c *model.Chat) error {
	defer logger.DeferLogDuration("chat.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chats (id, chat_type, name, created_by, created_at)
		 VALUES ($1, $2, NULLIF($3,''), $4, $5)`,
		c.ID, c.ChatType, c.Name, c.CreatedBy, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.Create: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.GetByID", time.Now())()
	c := &model.Chat{}
	err := scanChat(r.pool.QueryRow(ctx, `SELECT `+chatCols+` FROM chats WHERE id = $1`, id), c)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetByID: %w", err)
	}
	return c, nil
}

func (r *ChatRepository) AddParticipant(ctx context.Context, p *model.ChatParticipant) error {
	defer logger.DeferLogDuration("chat.AddParticipant", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chat_participants (chat_id, user_id, role, joined_at, last_read_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (chat_id, user_id) DO UPDATE SET left_at = NULL`,
		p.ChatID, p.UserID, p.Role, p.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.AddParticipant: %w", err)
	}
	return nil
}

// LeaveChat помечает участника вышедшим. Строка не удаляется: старые сообщения
// и курсор чтения остаются.
func (r *ChatRepository) LeaveChat(ctx context.Context, chatID, userID string) error {
	defer logger.DeferLogDuration("chat.LeaveChat", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE chat_participants SET left_at = NOW() WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.LeaveChat: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetParticipants(ctx context.Context, chatID string) ([]model.User, error) {
	defer logger.DeferLogDuration("chat.GetParticipants", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT u.id, u.account_id, u.email, u.display_name, u.username, COALESCE(u.avatar_url,''), COALESCE(u.status_message,''), u.is_online, u.last_seen_at, u.created_at, u.updated_at
		 FROM users u
		 JOIN chat_participants cp ON cp.user_id = u.id
		 WHERE cp.chat_id = $1 AND cp.left_at IS NULL
		 ORDER BY cp.joined_at`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetParticipants query: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, 8)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("chatRepo.GetParticipants scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatRepo.GetParticipants rows: %w", err)
	}
	return users, nil
}

// GetParticipantIDs возвращает id активных участников (для fan-out событий).
func (r *ChatRepository) GetParticipantIDs(ctx context.Context, chatID string) ([]string, error) {
	defer logger.DeferLogDuration("chat.GetParticipantIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM chat_participants WHERE chat_id = $1 AND left_at IS NULL`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetParticipantIDs query: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("chatRepo.GetParticipantIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatRepo.GetParticipantIDs rows: %w", err)
	}
	return ids, nil
}

func (r *ChatRepository) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	defer logger.DeferLogDuration("chat.IsParticipant", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id = $1 AND user_id = $2 AND left_at IS NULL)`,
		chatID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("chatRepo.IsParticipant: %w", err)
	}
	return exists, nil
}

func (r *ChatRepository) GetParticipantRole(ctx context.Context, chatID, userID string) (string, error) {
	defer logger.DeferLogDuration("chat.GetParticipantRole", time.Now())()
	var role string
	err := r.pool.QueryRow(ctx,
		`SELECT role FROM chat_participants WHERE chat_id = $1 AND user_id = $2 AND left_at IS NULL`,
		chatID, userID,
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("chatRepo.GetParticipantRole: %w", err)
	}
	return role, nil
}

// FindDirectChat ищет существующий личный чат двух пользователей.
func (r *ChatRepository) FindDirectChat(ctx context.Context, userID1, userID2 string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.FindDirectChat", time.Now())()
	c := &model.Chat{}
	err := scanChat(r.pool.QueryRow(ctx,
		`SELECT `+chatCols+`
		 FROM chats c
		 WHERE c.chat_type = 'direct'
		   AND EXISTS (SELECT 1 FROM chat_participants WHERE chat_id = c.id AND user_id = $1)
		   AND EXISTS (SELECT 1 FROM chat_participants WHERE chat_id = c.id AND user_id = $2)`,
		userID1, userID2,
	), c)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chatRepo.FindDirectChat: %w", err)
	}
	return c, nil
}

// GetUserChatIDs возвращает id чатов, где пользователь активен (для рассылки статусов).
func (r *ChatRepository) GetUserChatIDs(ctx context.Context, userID string) ([]string, error) {
	defer logger.DeferLogDuration("chat.GetUserChatIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT chat_id FROM chat_participants WHERE user_id = $1 AND left_at IS NULL`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetUserChatIDs query: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 16)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("chatRepo.GetUserChatIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatRepo.GetUserChatIDs rows: %w", err)
	}
	return ids, nil
}

// GetUserChatSummaries возвращает чаты пользователя со сводками, отсортированные
// по времени последнего сообщения.
func (r *ChatRepository) GetUserChatSummaries(ctx context.Context, userID string) ([]model.ChatSummary, error) {
	defer logger.DeferLogDuration("chat.GetUserChatSummaries", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.chat_type, COALESCE(c.name,''), c.created_by, c.created_at, COALESCE(c.last_message,''), c.last_message_at,
		        (SELECT COUNT(*) FROM messages m
		         WHERE m.chat_id = c.id AND m.sender_id != $1 AND m.server_at > cp.last_read_at)
		 FROM chats c
		 JOIN chat_participants cp ON cp.chat_id = c.id
		 WHERE cp.user_id = $1 AND cp.left_at IS NULL
		 ORDER BY COALESCE(c.last_message_at, c.created_at) DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetUserChatSummaries query: %w", err)
	}
	defer rows.Close()

	summaries := make([]model.ChatSummary, 0, 16)
	for rows.Next() {
		var s model.ChatSummary
		if err := rows.Scan(&s.Chat.ID, &s.Chat.ChatType, &s.Chat.Name, &s.Chat.CreatedBy, &s.Chat.CreatedAt,
			&s.Chat.LastMessage, &s.Chat.LastMessageAt, &s.UnreadCount); err != nil {
			return nil, fmt.Errorf("chatRepo.GetUserChatSummaries scan: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatRepo.GetUserChatSummaries rows: %w", err)
	}

	for i := range summaries {
		users, err := r.GetParticipants(ctx, summaries[i].Chat.ID)
		if err != nil {
			return nil, err
		}
		pubs := make([]model.UserPublic, 0, len(users))
		for j := range users {
			pubs = append(pubs, users[j].ToPublic())
		}
		summaries[i].Participants = pubs
	}
	return summaries, nil
}

// GetReadCursors возвращает курсоры чтения всех участников чата
// (для вычисления delivered/read на выдаче).
func (r *ChatRepository) GetReadCursors(ctx context.Context, chatID string) (map[string]time.Time, error) {
	defer logger.DeferLogDuration("chat.GetReadCursors", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, last_read_at FROM chat_participants WHERE chat_id = $1`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetReadCursors query: %w", err)
	}
	defer rows.Close()

	cursors := make(map[string]time.Time, 8)
	for rows.Next() {
		var id string
		var t time.Time
		if err := rows.Scan(&id, &t); err != nil {
			return nil, fmt.Errorf("chatRepo.GetReadCursors scan: %w", err)
		}
		cursors[id] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatRepo.GetReadCursors rows: %w", err)
	}
	return cursors, nil
}

// GetUnreadCount считает чужие сообщения после курсора чтения пользователя.
func (r *ChatRepository) GetUnreadCount(ctx context.Context, chatID, userID string) (int, error) {
	defer logger.DeferLogDuration("chat.GetUnreadCount", time.Now())()
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages m
		 JOIN chat_participants cp ON cp.chat_id = m.chat_id AND cp.user_id = $2
		 WHERE m.chat_id = $1 AND m.sender_id != $2 AND m.server_at > cp.last_read_at`,
		chatID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("chatRepo.GetUnreadCount: %w", err)
	}
	return count, nil
}
