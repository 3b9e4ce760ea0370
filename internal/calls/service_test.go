package calls

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"edu-chat-service/internal/mocks"
	"edu-chat-service/internal/models"
	"edu-chat-service/internal/repositories"
)

// memCallRepo is an in-memory CallRepository with the same
// compare-and-set semantics as the SQL implementation, so racing
// transitions can be exercised for real.
type memCallRepo struct {
	mu    sync.Mutex
	next  int
	calls map[int]models.CallRecord
}

func newMemCallRepo() *memCallRepo {
	return &memCallRepo{calls: make(map[int]models.CallRecord)}
}

func (r *memCallRepo) CreateCall(_ context.Context, conversationID, callerID int, receiverID *int, callType string) (models.CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	rec := models.CallRecord{
		ID:             r.next,
		ConversationID: conversationID,
		CallerID:       callerID,
		CallType:       callType,
		Status:         models.CallInitiated,
		CreatedAt:      time.Now(),
	}
	if receiverID != nil {
		rec.ReceiverID = sql.NullInt64{Int64: int64(*receiverID), Valid: true}
	}
	r.calls[rec.ID] = rec
	return rec, nil
}

func (r *memCallRepo) GetCall(_ context.Context, callID int) (models.CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.calls[callID]
	if !ok {
		return models.CallRecord{}, repositories.ErrCallNotFound
	}
	return rec, nil
}

func (r *memCallRepo) CompareAndSetStatus(_ context.Context, callID int, upd repositories.CallStatusUpdate) (models.CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.calls[callID]
	if !ok {
		return models.CallRecord{}, repositories.ErrCallNotFound
	}
	matched := false
	for _, status := range upd.Expected {
		if rec.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return models.CallRecord{}, repositories.ErrCallConflict
	}
	rec.Status = upd.Next
	now := time.Now()
	if upd.SetMissed {
		rec.IsMissed = true
	}
	if upd.SetStarted {
		rec.StartedAt = sql.NullTime{Time: now, Valid: true}
	}
	if upd.SetEnded {
		rec.EndedAt = sql.NullTime{Time: now, Valid: true}
		if rec.StartedAt.Valid {
			rec.DurationSeconds = int(now.Sub(rec.StartedAt.Time).Seconds())
		}
	}
	r.calls[callID] = rec
	return rec, nil
}

func (r *memCallRepo) History(_ context.Context, userID int, missedOnly bool) ([]models.CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.CallRecord
	for _, rec := range r.calls {
		party := rec.CallerID == userID || (rec.ReceiverID.Valid && int(rec.ReceiverID.Int64) == userID)
		if !party {
			continue
		}
		if missedOnly && !(rec.IsMissed && rec.ReceiverID.Valid && int(rec.ReceiverID.Int64) == userID) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func permissiveConvRepo() *mocks.ConversationRepositoryMock {
	convRepo := new(mocks.ConversationRepositoryMock)
	convRepo.On("GetParticipant", mock.Anything, mock.Anything, mock.Anything).
		Return(models.Participant{Active: true}, nil)
	return convRepo
}

func intPtr(v int) *int { return &v }

func TestInitiateOneToOneNotifiesReceiverQueue(t *testing.T) {
	repo := newMemCallRepo()
	bus := new(mocks.BroadcastRecorder)
	svc := NewService(repo, permissiveConvRepo(), bus, time.Minute)

	rec, err := svc.Initiate(context.Background(), 7, 1, intPtr(2), models.CallVoice)
	require.NoError(t, err)
	assert.Equal(t, models.CallInitiated, rec.Status)

	events := bus.Published()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventCallInitiated, events[0].Type)
	assert.Equal(t, "user-queue", bus.Topics[0])
}

func TestInitiateGroupAnnouncesOnTopic(t *testing.T) {
	repo := newMemCallRepo()
	bus := new(mocks.BroadcastRecorder)
	svc := NewService(repo, permissiveConvRepo(), bus, time.Minute)

	rec, err := svc.Initiate(context.Background(), 7, 1, nil, models.CallGroup)
	require.NoError(t, err)
	assert.False(t, rec.ReceiverID.Valid)
	assert.Equal(t, "conversation/7", bus.Topics[0])
}

func TestInitiateRequiresMembership(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	convRepo.On("GetParticipant", mock.Anything, 7, 1).
		Return(models.Participant{}, repositories.ErrParticipantNotFound)
	svc := NewService(newMemCallRepo(), convRepo, new(mocks.BroadcastRecorder), time.Minute)

	_, err := svc.Initiate(context.Background(), 7, 1, intPtr(2), models.CallVoice)
	assert.Error(t, err)
}

func TestFullAcceptedLifecycle(t *testing.T) {
	repo := newMemCallRepo()
	bus := new(mocks.BroadcastRecorder)
	svc := NewService(repo, permissiveConvRepo(), bus, time.Minute)

	rec, err := svc.Initiate(context.Background(), 7, 1, intPtr(2), models.CallVideo)
	require.NoError(t, err)

	rec, err = svc.MarkRinging(context.Background(), rec.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.CallRinging, rec.Status)

	rec, err = svc.Answer(context.Background(), rec.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.CallAccepted, rec.Status)
	assert.True(t, rec.StartedAt.Valid)

	rec, err = svc.End(context.Background(), rec.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.CallEnded, rec.Status)
	assert.True(t, rec.EndedAt.Valid)
	assert.False(t, rec.IsMissed)
}

func TestAnswerBeforeRingingIsInvalid(t *testing.T) {
	repo := newMemCallRepo()
	svc := NewService(repo, permissiveConvRepo(), new(mocks.BroadcastRecorder), time.Minute)

	rec, err := svc.Initiate(context.Background(), 7, 1, intPtr(2), models.CallVoice)
	require.NoError(t, err)

	_, err = svc.Answer(context.Background(), rec.ID, 2)
	assert.ErrorIs(t, err, ErrInvalidCallTransition)
}

func TestOnlyReceiverMayAnswer(t *testing.T) {
	repo := newMemCallRepo()
	svc := NewService(repo, permissiveConvRepo(), new(mocks.BroadcastRecorder), time.Minute)

	rec, err := svc.Initiate(context.Background(), 7, 1, intPtr(2), models.CallVoice)
	require.NoError(t, err)
	_, err = svc.MarkRinging(context.Background(), rec.ID, 2)
	require.NoError(t, err)

	_, err = svc.Answer(context.Background(), rec.ID, 3)
	assert.ErrorIs(t, err, ErrNotCallParty)
	_, err = svc.Answer(context.Background(), rec.ID, 1)
	assert.ErrorIs(t, err, ErrNotCallParty)
}

func TestRejectMarksMissed(t *testing.T) {
	repo := newMemCallRepo()
	svc := NewService(repo, permissiveConvRepo(), new(mocks.BroadcastRecorder), time.Minute)

	rec, err := svc.Initiate(context.Background(), 7, 1, intPtr(2), models.CallVoice)
	require.NoError(t, err)
	_, err = svc.MarkRinging(context.Background(), rec.ID, 2)
	require.NoError(t, err)

	rec, err = svc.Reject(context.Background(), rec.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.CallRejected, rec.Status)
	assert.True(t, rec.IsMissed)
}

func TestConcurrentAnswerRejectOneWinner(t *testing.T) {
	repo := newMemCallRepo()
	svc := NewService(repo, permissiveConvRepo(), new(mocks.BroadcastRecorder), time.Minute)

	rec, err := svc.Initiate(context.Background(), 7, 1, intPtr(2), models.CallVoice)
	require.NoError(t, err)
	_, err = svc.MarkRinging(context.Background(), rec.ID, 2)
	require.NoError(t, err)

	ops := []func(context.Context, int, int) (models.CallRecord, error){svc.Answer, svc.Reject}
	errs := make([]error, len(ops))
	var wg sync.WaitGroup
	for i, op := range ops {
		wg.Add(1)
		go func(i int, op func(context.Context, int, int) (models.CallRecord, error)) {
			defer wg.Done()
			_, errs[i] = op(context.Background(), rec.ID, 2)
		}(i, op)
	}
	wg.Wait()

	wins, losses := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, ErrInvalidCallTransition):
			losses++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	final, err := repo.GetCall(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, final.Status == models.CallAccepted || final.Status == models.CallRejected)
}

func TestRingTimeoutResolvesToMissed(t *testing.T) {
	repo := newMemCallRepo()
	bus := new(mocks.BroadcastRecorder)
	svc := NewService(repo, permissiveConvRepo(), bus, 20*time.Millisecond)

	rec, err := svc.Initiate(context.Background(), 7, 1, intPtr(2), models.CallVoice)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := repo.GetCall(context.Background(), rec.ID)
		return err == nil && got.Status == models.CallMissed
	}, time.Second, 5*time.Millisecond)

	got, err := repo.GetCall(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, got.IsMissed)

	require.Eventually(t, func() bool {
		for _, ev := range bus.Published() {
			if ev.Type == models.EventCallMissed {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestAnswerCancelsRingTimeout(t *testing.T) {
	repo := newMemCallRepo()
	svc := NewService(repo, permissiveConvRepo(), new(mocks.BroadcastRecorder), 60*time.Millisecond)

	rec, err := svc.Initiate(context.Background(), 7, 1, intPtr(2), models.CallVoice)
	require.NoError(t, err)
	_, err = svc.MarkRinging(context.Background(), rec.ID, 2)
	require.NoError(t, err)
	_, err = svc.Answer(context.Background(), rec.ID, 2)
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)

	got, err := repo.GetCall(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallAccepted, got.Status)
	assert.False(t, got.IsMissed)
}

func TestEndUnknownCall(t *testing.T) {
	svc := NewService(newMemCallRepo(), permissiveConvRepo(), new(mocks.BroadcastRecorder), time.Minute)

	_, err := svc.End(context.Background(), 99, 1)
	assert.ErrorIs(t, err, repositories.ErrCallNotFound)
}

func TestHistoryMissedFilter(t *testing.T) {
	repo := newMemCallRepo()
	svc := NewService(repo, permissiveConvRepo(), new(mocks.BroadcastRecorder), time.Minute)

	answered, err := svc.Initiate(context.Background(), 7, 1, intPtr(2), models.CallVoice)
	require.NoError(t, err)
	_, err = svc.MarkRinging(context.Background(), answered.ID, 2)
	require.NoError(t, err)
	_, err = svc.Answer(context.Background(), answered.ID, 2)
	require.NoError(t, err)
	_, err = svc.End(context.Background(), answered.ID, 1)
	require.NoError(t, err)

	rejected, err := svc.Initiate(context.Background(), 7, 1, intPtr(2), models.CallVoice)
	require.NoError(t, err)
	_, err = svc.MarkRinging(context.Background(), rejected.ID, 2)
	require.NoError(t, err)
	_, err = svc.Reject(context.Background(), rejected.ID, 2)
	require.NoError(t, err)

	all, err := svc.History(context.Background(), 2, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	missed, err := svc.History(context.Background(), 2, true)
	require.NoError(t, err)
	require.Len(t, missed, 1)
	assert.Equal(t, rejected.ID, missed[0].ID)

	// The caller never "misses" their own outgoing call.
	missed, err = svc.History(context.Background(), 1, true)
	require.NoError(t, err)
	assert.Empty(t, missed)
}
