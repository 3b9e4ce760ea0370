package sequencer

import (
	"context"
	"log"
)

// Store is the slice of conversation persistence the sequencer needs.
type Store interface {
	NextSeq(ctx context.Context, conversationID int) (int64, error)
	ReconcileSeq(ctx context.Context) error
}

// Sequencer hands out strictly increasing per-conversation sequence
// numbers. Allocation delegates to the store's atomic increment, so the
// store row is the single source of truth and concurrent callers for the
// same conversation serialize on it; different conversations never
// contend with each other.
type Sequencer struct {
	store Store
}

// New constructs a Sequencer.
func New(store Store) *Sequencer {
	return &Sequencer{store: store}
}

// Next returns the next sequence number for the conversation.
func (s *Sequencer) Next(ctx context.Context, conversationID int) (int64, error) {
	return s.store.NextSeq(ctx, conversationID)
}

// Reconcile raises every counter to at least the highest persisted
// message sequence. Call it once at startup; the counter must never sit
// below what is already committed.
func (s *Sequencer) Reconcile(ctx context.Context) error {
	if err := s.store.ReconcileSeq(ctx); err != nil {
		return err
	}
	log.Println("sequence counters reconciled against message store")
	return nil
}
