package repositories

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edu-chat-service/internal/models"
)

func TestTruncatePreviewShortContentUnchanged(t *testing.T) {
	assert.Equal(t, "hello", truncatePreview("hello"))
	exact := strings.Repeat("a", previewMaxBytes)
	assert.Equal(t, exact, truncatePreview(exact))
}

func TestTruncatePreviewNeverSplitsRunes(t *testing.T) {
	// A multi-byte rune straddling the byte cap must be dropped whole, not
	// cut into a dangling lead byte that Postgres would reject.
	content := strings.Repeat("a", previewMaxBytes-1) + "é"
	preview := truncatePreview(content)
	assert.Equal(t, strings.Repeat("a", previewMaxBytes-1), preview)
	assert.True(t, utf8.ValidString(preview))

	content = strings.Repeat("é", 100)
	preview = truncatePreview(content)
	assert.True(t, utf8.ValidString(preview))
	assert.LessOrEqual(t, len(preview), previewMaxBytes)
	assert.Equal(t, strings.Repeat("é", previewMaxBytes/2), preview)
}

var messageCols = []string{
	"id", "conversation_id", "seq", "sender_id", "content", "msg_type", "status",
	"attachment_url", "deleted", "edited", "edited_at", "created_at",
}

func TestCreateMessagePassesRuneSafePreview(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewMessageRepo(sqlx.NewDb(db, "sqlmock"))

	content := strings.Repeat("a", previewMaxBytes-1) + "é"
	createdAt := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO messages").
		WithArgs(5, int64(7), 1, content, models.MsgText, "").
		WillReturnRows(sqlmock.NewRows(messageCols).
			AddRow(42, 5, 7, 1, content, models.MsgText, models.StatusSent, nil, false, false, nil, createdAt))
	mock.ExpectExec("UPDATE conversations SET last_message_preview").
		WithArgs(strings.Repeat("a", previewMaxBytes-1), 1, createdAt, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE participants SET unread_count = unread_count").
		WithArgs(5, 1).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE participants SET unread_count = 0").
		WithArgs(5, 1, createdAt).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg, err := repo.CreateMessage(context.Background(), NewMessageParams{
		ConversationID: 5, Seq: 7, SenderID: 1, Content: content, MsgType: models.MsgText,
	})
	require.NoError(t, err)
	assert.Equal(t, 42, msg.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
