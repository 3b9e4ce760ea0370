package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"edu-chat-service/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrParticipantNotFound  = errors.New("participant not found")
)

// ConversationRepository abstracts conversation and participant persistence.
type ConversationRepository interface {
	GetOrCreateIndividual(ctx context.Context, userA, userB int) (models.Conversation, bool, error)
	CreateGroup(ctx context.Context, ownerID int, name, avatarURL string, memberIDs []int) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID int) (models.Conversation, error)
	ListForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error)
	GetParticipant(ctx context.Context, conversationID, userID int) (models.Participant, error)
	ActiveParticipants(ctx context.Context, conversationID int) ([]models.Participant, error)
	AddParticipant(ctx context.Context, conversationID, userID int) error
	DeactivateParticipant(ctx context.Context, conversationID, userID int) error
	MarkRead(ctx context.Context, conversationID, userID int) error
	NextSeq(ctx context.Context, conversationID int) (int64, error)
	ReconcileSeq(ctx context.Context) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `id, kind, name, avatar_url, pair_key, last_message_preview,
    last_message_sender_id, last_message_at, next_seq, archived, created_at`

// GetOrCreateIndividual returns the 1:1 conversation between two users,
// creating it when absent. Concurrent callers race on the partial unique
// index over pair_key; the loser falls back to reading the winner's row.
// The conversation and both membership rows commit in one transaction, so
// a pair_key row without participants can never become visible.
func (r *ConversationRepo) GetOrCreateIndividual(ctx context.Context, userA, userB int) (models.Conversation, bool, error) {
	if userA == userB {
		return models.Conversation{}, false, errors.New("cannot create conversation with self")
	}
	pairKey := individualPairKey(userA, userB)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, false, err
	}
	defer tx.Rollback()

	var conv models.Conversation
	err = tx.GetContext(ctx, &conv,
		`INSERT INTO conversations (kind, pair_key) VALUES ($1, $2)
         ON CONFLICT (pair_key) WHERE pair_key IS NOT NULL DO NOTHING
         RETURNING `+conversationColumns, models.KindIndividual, pairKey)
	if err == nil {
		for _, uid := range []int{userA, userB} {
			if err := upsertParticipant(ctx, tx, conv.ID, uid); err != nil {
				return models.Conversation{}, false, err
			}
		}
		if err := tx.Commit(); err != nil {
			return models.Conversation{}, false, err
		}
		return conv, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, false, err
	}

	// Insert lost the race; the row exists.
	err = r.db.GetContext(ctx, &conv,
		`SELECT `+conversationColumns+` FROM conversations WHERE pair_key=$1`, pairKey)
	if err != nil {
		return models.Conversation{}, false, err
	}
	return conv, false, nil
}

func individualPairKey(userA, userB int) string {
	lo, hi := userA, userB
	if lo > hi {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("%d:%d", lo, hi)
}

// CreateGroup creates a group conversation with the owner and members
// active, all in one transaction.
func (r *ConversationRepo) CreateGroup(ctx context.Context, ownerID int, name, avatarURL string, memberIDs []int) (models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer tx.Rollback()

	var conv models.Conversation
	err = tx.GetContext(ctx, &conv,
		`INSERT INTO conversations (kind, name, avatar_url) VALUES ($1, $2, NULLIF($3, ''))
         RETURNING `+conversationColumns, models.KindGroup, name, avatarURL)
	if err != nil {
		return models.Conversation{}, err
	}

	for _, uid := range dedupeMembers(ownerID, memberIDs) {
		if err := upsertParticipant(ctx, tx, conv.ID, uid); err != nil {
			return models.Conversation{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// dedupeMembers returns the owner followed by the members with duplicates
// (including a self-listed owner) removed, input order preserved.
func dedupeMembers(ownerID int, memberIDs []int) []int {
	seen := map[int]struct{}{ownerID: {}}
	ids := []int{ownerID}
	for _, id := range memberIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv,
		`SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// ListForUser returns non-archived conversations the user is active in,
// most recent activity first, with the user's unread counter attached.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	query := `SELECT c.id, c.kind, c.name, c.avatar_url, c.pair_key, c.last_message_preview,
            c.last_message_sender_id, c.last_message_at, c.next_seq, c.archived, c.created_at,
            p.unread_count
        FROM conversations c
        JOIN participants p ON p.conversation_id = c.id AND p.user_id = $1 AND p.active
        WHERE c.archived = FALSE
        ORDER BY COALESCE(c.last_message_at, c.created_at) DESC`
	var result []models.ConversationSummary
	err := r.db.SelectContext(ctx, &result, query, userID)
	return result, err
}

// GetParticipant fetches a membership record.
func (r *ConversationRepo) GetParticipant(ctx context.Context, conversationID, userID int) (models.Participant, error) {
	var p models.Participant
	err := r.db.GetContext(ctx, &p,
		`SELECT conversation_id, user_id, unread_count, last_read_at, active, muted, joined_at
         FROM participants WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Participant{}, ErrParticipantNotFound
	}
	return p, err
}

// ActiveParticipants returns the active membership of a conversation.
func (r *ConversationRepo) ActiveParticipants(ctx context.Context, conversationID int) ([]models.Participant, error) {
	var ps []models.Participant
	err := r.db.SelectContext(ctx, &ps,
		`SELECT conversation_id, user_id, unread_count, last_read_at, active, muted, joined_at
         FROM participants WHERE conversation_id=$1 AND active ORDER BY user_id`, conversationID)
	return ps, err
}

// AddParticipant creates or reactivates a membership record.
func (r *ConversationRepo) AddParticipant(ctx context.Context, conversationID, userID int) error {
	return upsertParticipant(ctx, r.db, conversationID, userID)
}

func upsertParticipant(ctx context.Context, ext sqlx.ExtContext, conversationID, userID int) error {
	_, err := ext.ExecContext(ctx,
		`INSERT INTO participants (conversation_id, user_id) VALUES ($1, $2)
         ON CONFLICT (conversation_id, user_id) DO UPDATE SET active = TRUE`, conversationID, userID)
	return err
}

// DeactivateParticipant soft-removes a user from a conversation.
func (r *ConversationRepo) DeactivateParticipant(ctx context.Context, conversationID, userID int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE participants SET active = FALSE WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

// MarkRead zeroes the unread counter and advances the read watermark.
// Repeating it is harmless.
func (r *ConversationRepo) MarkRead(ctx context.Context, conversationID, userID int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE participants SET unread_count = 0, last_read_at = NOW()
         WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

// NextSeq atomically allocates the next sequence number for a conversation.
// The row lock serializes allocation per conversation while leaving
// different conversations fully concurrent.
func (r *ConversationRepo) NextSeq(ctx context.Context, conversationID int) (int64, error) {
	var seq int64
	err := r.db.GetContext(ctx, &seq,
		`UPDATE conversations SET next_seq = next_seq + 1 WHERE id=$1 RETURNING next_seq`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrConversationNotFound
	}
	return seq, err
}

// ReconcileSeq raises every conversation's counter to at least the highest
// persisted message sequence. The counter is a cache of store state, not a
// source of truth; this repairs it after restores or manual edits.
func (r *ConversationRepo) ReconcileSeq(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conversations c SET next_seq = m.max_seq
         FROM (SELECT conversation_id, MAX(seq) AS max_seq FROM messages GROUP BY conversation_id) m
         WHERE m.conversation_id = c.id AND m.max_seq > c.next_seq`)
	return err
}
