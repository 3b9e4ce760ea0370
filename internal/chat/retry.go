package chat

import (
	"context"
	"errors"
	"time"

	"edu-chat-service/internal/repositories"
)

// retryable reports whether an error is worth another attempt. Domain
// outcomes are final; anything else is treated as a transient store
// failure.
func retryable(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, repositories.ErrConversationNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrParticipantNotFound),
		errors.Is(err, ErrNotParticipant),
		errors.Is(err, ErrNotSender),
		errors.Is(err, ErrSelfConversation),
		errors.Is(err, ErrIndividualImmutable):
		return false
	}
	return true
}

// withRetry runs op up to retries+1 times with doubling backoff. The
// last error is returned unchanged so sentinel checks still work.
func withRetry(ctx context.Context, retries int, backoff time.Duration, op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil || !retryable(err) || attempt >= retries {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
