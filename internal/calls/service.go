package calls

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"edu-chat-service/internal/chat"
	"edu-chat-service/internal/models"
	"edu-chat-service/internal/observability"
	"edu-chat-service/internal/repositories"
	"edu-chat-service/internal/ws"
)

var (
	// ErrInvalidCallTransition means the requested event is not legal
	// from the record's current status. The record is left untouched.
	ErrInvalidCallTransition = errors.New("invalid call transition")
	// ErrNotCallParty means the actor is neither the caller nor an
	// eligible receiver of the call.
	ErrNotCallParty = errors.New("not a party to this call")
)

// Service drives the call lifecycle:
//
//	INITIATED -> RINGING -> ACCEPTED -> ENDED
//	                     -> REJECTED
//	INITIATED/RINGING ---> MISSED (ring timeout)
//	INITIATED/RINGING/ACCEPTED -> ENDED (hang-up)
//
// Every transition is a single compare-and-set on the current status, so
// racing transitions resolve to exactly one winner.
type Service struct {
	callRepo repositories.CallRepository
	convRepo repositories.ConversationRepository
	bus      chat.Broadcaster

	ringTimeout time.Duration

	mu     sync.Mutex
	timers map[int]*time.Timer
}

// NewService constructs the call service.
func NewService(callRepo repositories.CallRepository, convRepo repositories.ConversationRepository, bus chat.Broadcaster, ringTimeout time.Duration) *Service {
	if ringTimeout <= 0 {
		ringTimeout = 30 * time.Second
	}
	return &Service{
		callRepo:    callRepo,
		convRepo:    convRepo,
		bus:         bus,
		ringTimeout: ringTimeout,
		timers:      make(map[int]*time.Timer),
	}
}

// Initiate persists a new call record, notifies the receiver's private
// queue and arms the ring-timeout timer. receiverID is nil for group
// calls, which are announced on the conversation topic instead.
func (s *Service) Initiate(ctx context.Context, conversationID, callerID int, receiverID *int, callType string) (models.CallRecord, error) {
	if err := s.requireActive(ctx, conversationID, callerID); err != nil {
		return models.CallRecord{}, err
	}
	if receiverID != nil {
		if err := s.requireActive(ctx, conversationID, *receiverID); err != nil {
			return models.CallRecord{}, err
		}
	}
	rec, err := s.callRepo.CreateCall(ctx, conversationID, callerID, receiverID, callType)
	if err != nil {
		return models.CallRecord{}, err
	}

	observability.IncCallTransition(models.CallInitiated)
	event := models.Event{
		Type:           models.EventCallInitiated,
		ConversationID: conversationID,
		Call:           &rec,
	}
	if receiverID != nil {
		s.bus.PublishToUser(*receiverID, event)
	} else {
		s.bus.Publish(ws.ConversationTopic(conversationID), event)
	}
	_ = observability.PublishEvent(ctx, "chat_events.calls",
		observability.NewEnvelope("chat_events", "call_initiated", rec), nil)

	s.armRingTimeout(rec.ID)
	return rec, nil
}

// MarkRinging is the receiver's delivery acknowledgement, moving the
// call from INITIATED to RINGING.
func (s *Service) MarkRinging(ctx context.Context, callID, userID int) (models.CallRecord, error) {
	rec, err := s.authorizeReceiver(ctx, callID, userID)
	if err != nil {
		return models.CallRecord{}, err
	}
	return s.transition(ctx, rec, repositories.CallStatusUpdate{
		Expected: []string{models.CallInitiated},
		Next:     models.CallRinging,
	}, models.EventCallRinging)
}

// Answer accepts a RINGING call and starts the clock.
func (s *Service) Answer(ctx context.Context, callID, userID int) (models.CallRecord, error) {
	rec, err := s.authorizeReceiver(ctx, callID, userID)
	if err != nil {
		return models.CallRecord{}, err
	}
	return s.transition(ctx, rec, repositories.CallStatusUpdate{
		Expected:   []string{models.CallRinging},
		Next:       models.CallAccepted,
		SetStarted: true,
	}, models.EventCallAccepted)
}

// Reject declines a RINGING call; the record lands terminal and is
// reported as missed to the receiver's history.
func (s *Service) Reject(ctx context.Context, callID, userID int) (models.CallRecord, error) {
	rec, err := s.authorizeReceiver(ctx, callID, userID)
	if err != nil {
		return models.CallRecord{}, err
	}
	return s.transition(ctx, rec, repositories.CallStatusUpdate{
		Expected:  []string{models.CallRinging},
		Next:      models.CallRejected,
		SetMissed: true,
	}, models.EventCallRejected)
}

// End hangs up from any non-terminal state. Duration is recorded only if
// the call had been accepted.
func (s *Service) End(ctx context.Context, callID, userID int) (models.CallRecord, error) {
	rec, err := s.callRepo.GetCall(ctx, callID)
	if err != nil {
		return models.CallRecord{}, err
	}
	if err := s.requireActive(ctx, rec.ConversationID, userID); err != nil {
		return models.CallRecord{}, err
	}
	return s.transition(ctx, rec, repositories.CallStatusUpdate{
		Expected: []string{models.CallInitiated, models.CallRinging, models.CallAccepted},
		Next:     models.CallEnded,
		SetEnded: true,
	}, models.EventCallEnded)
}

// History lists the user's calls, optionally only missed ones received.
func (s *Service) History(ctx context.Context, userID int, missedOnly bool) ([]models.CallRecord, error) {
	return s.callRepo.History(ctx, userID, missedOnly)
}

func (s *Service) transition(ctx context.Context, rec models.CallRecord, upd repositories.CallStatusUpdate, eventType string) (models.CallRecord, error) {
	updated, err := s.callRepo.CompareAndSetStatus(ctx, rec.ID, upd)
	if errors.Is(err, repositories.ErrCallConflict) {
		return models.CallRecord{}, ErrInvalidCallTransition
	}
	if err != nil {
		return models.CallRecord{}, err
	}

	if updated.Terminal() || updated.Status == models.CallAccepted {
		s.cancelRingTimeout(updated.ID)
	}
	observability.IncCallTransition(updated.Status)
	s.bus.Publish(ws.ConversationTopic(updated.ConversationID), models.Event{
		Type:           eventType,
		ConversationID: updated.ConversationID,
		Call:           &updated,
	})
	_ = observability.PublishEvent(ctx, "chat_events.calls",
		observability.NewEnvelope("chat_events", "call_"+updated.Status, updated), nil)
	return updated, nil
}

// authorizeReceiver loads the call and checks the actor may respond to
// it: the designated receiver on 1:1 calls, any active participant other
// than the caller on group calls.
func (s *Service) authorizeReceiver(ctx context.Context, callID, userID int) (models.CallRecord, error) {
	rec, err := s.callRepo.GetCall(ctx, callID)
	if err != nil {
		return models.CallRecord{}, err
	}
	if rec.ReceiverID.Valid {
		if int(rec.ReceiverID.Int64) != userID {
			return models.CallRecord{}, ErrNotCallParty
		}
		return rec, nil
	}
	if userID == rec.CallerID {
		return models.CallRecord{}, ErrNotCallParty
	}
	if err := s.requireActive(ctx, rec.ConversationID, userID); err != nil {
		return models.CallRecord{}, err
	}
	return rec, nil
}

func (s *Service) requireActive(ctx context.Context, conversationID, userID int) error {
	p, err := s.convRepo.GetParticipant(ctx, conversationID, userID)
	if errors.Is(err, repositories.ErrParticipantNotFound) {
		return chat.ErrNotParticipant
	}
	if err != nil {
		return err
	}
	if !p.Active {
		return chat.ErrNotParticipant
	}
	return nil
}

func (s *Service) armRingTimeout(callID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[callID] = time.AfterFunc(s.ringTimeout, func() {
		s.ringTimeoutFired(callID)
	})
}

func (s *Service) cancelRingTimeout(callID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[callID]; ok {
		timer.Stop()
		delete(s.timers, callID)
	}
}

// ringTimeoutFired resolves an unanswered call to MISSED. Losing the CAS
// to a concurrent answer/reject/end is the expected outcome and ignored.
func (s *Service) ringTimeoutFired(callID int) {
	s.mu.Lock()
	delete(s.timers, callID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec, err := s.callRepo.CompareAndSetStatus(ctx, callID, repositories.CallStatusUpdate{
		Expected:  []string{models.CallInitiated, models.CallRinging},
		Next:      models.CallMissed,
		SetMissed: true,
	})
	if errors.Is(err, repositories.ErrCallConflict) {
		return
	}
	if err != nil {
		log.Printf("ring timeout for call %d: %v", callID, err)
		return
	}

	observability.IncCallTransition(models.CallMissed)
	s.bus.Publish(ws.ConversationTopic(rec.ConversationID), models.Event{
		Type:           models.EventCallMissed,
		ConversationID: rec.ConversationID,
		Call:           &rec,
	})
	if rec.ReceiverID.Valid {
		s.bus.PublishToUser(int(rec.ReceiverID.Int64), models.Event{
			Type:           models.EventCallMissed,
			ConversationID: rec.ConversationID,
			Call:           &rec,
		})
	}
	_ = observability.PublishEvent(ctx, "chat_events.calls",
		observability.NewEnvelope("chat_events", "call_missed", rec), nil)
}
