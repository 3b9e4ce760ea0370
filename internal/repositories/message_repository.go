package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"

	"edu-chat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// NewMessageParams are the inputs for a transactional message send.
type NewMessageParams struct {
	ConversationID int
	Seq            int64
	SenderID       int
	Content        string
	MsgType        string
	AttachmentURL  string
}

// MessageRepository defines message persistence.
type MessageRepository interface {
	CreateMessage(ctx context.Context, p NewMessageParams) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	ListBefore(ctx context.Context, conversationID int, beforeSeq int64, limit int) ([]models.Message, error)
	EditMessage(ctx context.Context, messageID int, content string) (models.Message, error)
	SoftDeleteMessage(ctx context.Context, messageID int) error
	CountAfter(ctx context.Context, conversationID int, after sql.NullTime, excludeSender int) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, conversation_id, seq, sender_id, content, msg_type, status,
    attachment_url, deleted, edited, edited_at, created_at`

const previewMaxBytes = 120

// truncatePreview caps the last-message preview without cutting through a
// multi-byte rune; Postgres rejects invalid UTF-8, which would abort the
// whole send transaction.
func truncatePreview(content string) string {
	if len(content) <= previewMaxBytes {
		return content
	}
	cut := previewMaxBytes
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}

// CreateMessage persists a message and its side effects in one transaction:
// the conversation's last-message summary, unread+1 for every other active
// non-muted participant, and the sender's counter reset. Either all of it
// commits or none of it is observable.
func (r *MessageRepo) CreateMessage(ctx context.Context, p NewMessageParams) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var msg models.Message
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO messages (conversation_id, seq, sender_id, content, msg_type, attachment_url)
         VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
         RETURNING `+messageColumns,
		p.ConversationID, p.Seq, p.SenderID, p.Content, p.MsgType, p.AttachmentURL).StructScan(&msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}

	preview := truncatePreview(p.Content)
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_message_preview=$1, last_message_sender_id=$2, last_message_at=$3
         WHERE id=$4`, preview, p.SenderID, msg.CreatedAt, p.ConversationID); err != nil {
		return models.Message{}, fmt.Errorf("update summary: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE participants SET unread_count = unread_count + 1
         WHERE conversation_id=$1 AND user_id <> $2 AND active AND NOT muted`,
		p.ConversationID, p.SenderID); err != nil {
		return models.Message{}, fmt.Errorf("increment unread: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE participants SET unread_count = 0, last_read_at = $3
         WHERE conversation_id=$1 AND user_id=$2`,
		p.ConversationID, p.SenderID, msg.CreatedAt); err != nil {
		return models.Message{}, fmt.Errorf("reset sender unread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListBefore pages backwards through a conversation by descending sequence
// number. beforeSeq<=0 starts from the newest message. Tombstoned messages
// are returned with their content blanked so sequence slots stay visible.
func (r *MessageRepo) ListBefore(ctx context.Context, conversationID int, beforeSeq int64, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `SELECT id, conversation_id, seq, sender_id,
            CASE WHEN deleted THEN '' ELSE content END AS content,
            msg_type, status, attachment_url, deleted, edited, edited_at, created_at
        FROM messages
        WHERE conversation_id=$1 AND ($2 <= 0 OR seq < $2)
        ORDER BY seq DESC
        LIMIT $3`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, conversationID, beforeSeq, limit)
	return msgs, err
}

// EditMessage replaces the content and stamps the edit.
func (r *MessageRepo) EditMessage(ctx context.Context, messageID int, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`UPDATE messages SET content=$2, edited=TRUE, edited_at=NOW()
         WHERE id=$1 AND deleted=FALSE
         RETURNING `+messageColumns, messageID, content).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// SoftDeleteMessage tombstones a message. The row and its sequence slot
// survive so ordering stays intact for clients that already received it.
func (r *MessageRepo) SoftDeleteMessage(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET deleted = TRUE WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// CountAfter counts messages created after a watermark, excluding the
// given sender. Used by tests to check the unread invariant.
func (r *MessageRepo) CountAfter(ctx context.Context, conversationID int, after sql.NullTime, excludeSender int) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM messages
         WHERE conversation_id=$1 AND sender_id <> $2 AND ($3::timestamptz IS NULL OR created_at > $3)`,
		conversationID, excludeSender, after)
	return n, err
}
