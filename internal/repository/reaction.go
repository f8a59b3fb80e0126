package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bandhannova07/Bringlare-Chat/internal/logger"
)

type ReactionRepository struct {
	pool *pgxpool.Pool
}

func NewReactionRepository(pool *pgxpool.Pool) *ReactionRepository {
	return &ReactionRepository{pool: pool}
}

func (r *ReactionRepository) Add(ctx context.Context, messageID, userID, emoji string) error {
	defer logger.DeferLogDuration("reaction.Add", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO message_reactions (message_id, user_id, emoji)
		 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		messageID, userID, emoji,
	)
	if err != nil {
		return fmt.Errorf("reactionRepo.Add: %w", err)
	}
	return nil
}

func (r *ReactionRepository) Remove(ctx context.Context, messageID, userID, emoji string) error {
	defer logger.DeferLogDuration("reaction.Remove", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID, userID, emoji,
	)
	if err != nil {
		return fmt.Errorf("reactionRepo.Remove: %w", err)
	}
	return nil
}

// ByMessage возвращает реакции сообщения в форме emoji -> user ids
// (совпадает с model.Message.Reactions).
func (r *ReactionRepository) ByMessage(ctx context.Context, messageID string) (map[string][]string, error) {
	defer logger.DeferLogDuration("reaction.ByMessage", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT emoji, user_id FROM message_reactions
		 WHERE message_id = $1 ORDER BY created_at`, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("reactionRepo.ByMessage query: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string, 4)
	for rows.Next() {
		var emoji, userID string
		if err := rows.Scan(&emoji, &userID); err != nil {
			return nil, fmt.Errorf("reactionRepo.ByMessage scan: %w", err)
		}
		out[emoji] = append(out[emoji], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reactionRepo.ByMessage rows: %w", err)
	}
	return out, nil
}

// ForMessages грузит реакции пачкой для страницы истории.
func (r *ReactionRepository) ForMessages(ctx context.Context, messageIDs []string) (map[string]map[string][]string, error) {
	defer logger.DeferLogDuration("reaction.ForMessages", time.Now())()
	out := make(map[string]map[string][]string, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT message_id, emoji, user_id FROM message_reactions
		 WHERE message_id = ANY($1) ORDER BY created_at`, messageIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("reactionRepo.ForMessages query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msgID, emoji, userID string
		if err := rows.Scan(&msgID, &emoji, &userID); err != nil {
			return nil, fmt.Errorf("reactionRepo.ForMessages scan: %w", err)
		}
		if out[msgID] == nil {
			out[msgID] = make(map[string][]string, 4)
		}
		out[msgID][emoji] = append(out[msgID][emoji], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reactionRepo.ForMessages rows: %w", err)
	}
	return out, nil
}
