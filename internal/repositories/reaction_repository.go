package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"edu-chat-service/internal/models"
)

// ReactionRepository keeps reactions as rows keyed by (message, user).
// Membership is a key lookup, re-reacting replaces, and aggregates are a
// GROUP BY; none of it depends on parsing serialized lists.
type ReactionRepository interface {
	Upsert(ctx context.Context, messageID, userID int, emoji string) (changed bool, err error)
	Delete(ctx context.Context, messageID, userID int) (removed bool, err error)
	CountsForMessage(ctx context.Context, messageID int) ([]models.ReactionCount, error)
}

// ReactionRepo is a sqlx implementation of ReactionRepository.
type ReactionRepo struct {
	db *sqlx.DB
}

// NewReactionRepo constructs a ReactionRepo.
func NewReactionRepo(db *sqlx.DB) *ReactionRepo {
	return &ReactionRepo{db: db}
}

// Upsert sets the user's reaction on a message. A repeat with the same
// emoji changes nothing; a different emoji replaces the previous one.
func (r *ReactionRepo) Upsert(ctx context.Context, messageID, userID int, emoji string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO reactions (message_id, user_id, emoji) VALUES ($1, $2, $3)
         ON CONFLICT (message_id, user_id) DO UPDATE SET emoji = EXCLUDED.emoji, reacted_at = NOW()
         WHERE reactions.emoji <> EXCLUDED.emoji`, messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Delete removes the user's reaction if present.
func (r *ReactionRepo) Delete(ctx context.Context, messageID, userID int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM reactions WHERE message_id=$1 AND user_id=$2`, messageID, userID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountsForMessage aggregates active reactions by emoji.
func (r *ReactionRepo) CountsForMessage(ctx context.Context, messageID int) ([]models.ReactionCount, error) {
	var counts []models.ReactionCount
	err := r.db.SelectContext(ctx, &counts,
		`SELECT emoji, COUNT(*) AS count FROM reactions WHERE message_id=$1
         GROUP BY emoji ORDER BY count DESC, emoji`, messageID)
	return counts, err
}
