package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"edu-chat-service/internal/models"
)

var (
	ErrCallNotFound = errors.New("call not found")
	// ErrCallConflict means the compare-and-set lost: the record was not
	// in the expected status when the update ran.
	ErrCallConflict = errors.New("call status conflict")
)

// CallStatusUpdate describes one CAS transition on a call record.
type CallStatusUpdate struct {
	Expected   []string
	Next       string
	SetMissed  bool
	SetStarted bool
	SetEnded   bool
}

// CallRepository persists call records.
type CallRepository interface {
	CreateCall(ctx context.Context, conversationID, callerID int, receiverID *int, callType string) (models.CallRecord, error)
	GetCall(ctx context.Context, callID int) (models.CallRecord, error)
	CompareAndSetStatus(ctx context.Context, callID int, upd CallStatusUpdate) (models.CallRecord, error)
	History(ctx context.Context, userID int, missedOnly bool) ([]models.CallRecord, error)
}

// CallRepo is a sqlx implementation of CallRepository.
type CallRepo struct {
	db *sqlx.DB
}

// NewCallRepo constructs a CallRepo.
func NewCallRepo(db *sqlx.DB) *CallRepo {
	return &CallRepo{db: db}
}

const callColumns = `id, conversation_id, caller_id, receiver_id, call_type, status,
    is_missed, started_at, ended_at, duration_seconds, created_at`

// CreateCall persists a new INITIATED call record.
func (r *CallRepo) CreateCall(ctx context.Context, conversationID, callerID int, receiverID *int, callType string) (models.CallRecord, error) {
	var rec models.CallRecord
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO call_records (conversation_id, caller_id, receiver_id, call_type)
         VALUES ($1, $2, $3, $4)
         RETURNING `+callColumns, conversationID, callerID, receiverID, callType).StructScan(&rec)
	return rec, err
}

// GetCall fetches a call record by id.
func (r *CallRepo) GetCall(ctx context.Context, callID int) (models.CallRecord, error) {
	var rec models.CallRecord
	err := r.db.GetContext(ctx, &rec,
		`SELECT `+callColumns+` FROM call_records WHERE id=$1`, callID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CallRecord{}, ErrCallNotFound
	}
	return rec, err
}

// CompareAndSetStatus moves a call to upd.Next only if its current status
// is one of upd.Expected. Exactly one of two racing transitions can match
// the predicate; the loser gets ErrCallConflict. Duration is computed in
// the same statement when the call ends after having started.
func (r *CallRepo) CompareAndSetStatus(ctx context.Context, callID int, upd CallStatusUpdate) (models.CallRecord, error) {
	var rec models.CallRecord
	err := r.db.QueryRowxContext(ctx,
		`UPDATE call_records SET
            status = $2,
            is_missed = is_missed OR $3,
            started_at = CASE WHEN $4 THEN NOW() ELSE started_at END,
            ended_at = CASE WHEN $5 THEN NOW() ELSE ended_at END,
            duration_seconds = CASE
                WHEN $5 AND started_at IS NOT NULL
                THEN GREATEST(0, EXTRACT(EPOCH FROM (NOW() - started_at))::int)
                ELSE duration_seconds END
         WHERE id = $1 AND status = ANY($6)
         RETURNING `+callColumns,
		callID, upd.Next, upd.SetMissed, upd.SetStarted, upd.SetEnded, pq.Array(upd.Expected)).StructScan(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing record from a lost race.
		if _, getErr := r.GetCall(ctx, callID); getErr != nil {
			return models.CallRecord{}, getErr
		}
		return models.CallRecord{}, ErrCallConflict
	}
	return rec, err
}

// History lists calls the user placed or received, newest first.
func (r *CallRepo) History(ctx context.Context, userID int, missedOnly bool) ([]models.CallRecord, error) {
	query := `SELECT ` + callColumns + ` FROM call_records
        WHERE (caller_id=$1 OR receiver_id=$1) AND ($2 = FALSE OR (is_missed AND receiver_id=$1))
        ORDER BY created_at DESC LIMIT 200`
	var recs []models.CallRecord
	err := r.db.SelectContext(ctx, &recs, query, userID, missedOnly)
	return recs, err
}
