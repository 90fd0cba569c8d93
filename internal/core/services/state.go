package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"walkmate-bot/internal/core/domain"
	"walkmate-bot/internal/core/ports"
)

// DefaultStateTTL is how long a conversation position stays valid without activity
const DefaultStateTTL = 600 * time.Second

// StateTracker applies lazy expiry on top of a StateRepository
type StateTracker struct {
	repo ports.StateRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewStateTracker creates a tracker; ttl <= 0 falls back to DefaultStateTTL
func NewStateTracker(repo ports.StateRepository, ttl time.Duration) *StateTracker {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateTracker{
		repo: repo,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Current returns the user's live state. A record older than the TTL
// (strictly greater) counts as absent and is deleted on the way out.
func (t *StateTracker) Current(ctx context.Context, userID string) (domain.ConversationState, error) {
	rec, err := t.repo.Get(ctx, userID)
	if errors.Is(err, domain.ErrCorruptState) {
		slog.Warn("Discarding unreadable conversation state",
			"error", err,
			"user_id", userID,
		)
		t.discard(ctx, userID)
		return domain.StateNone, nil
	}
	if err != nil {
		return domain.StateNone, fmt.Errorf("get state: %w", err)
	}
	if rec == nil {
		return domain.StateNone, nil
	}

	age := t.now().Sub(rec.UpdatedAt)
	if age > t.ttl {
		slog.Info("Conversation state expired",
			"user_id", userID,
			"state", rec.State.String(),
			"age", age.Round(time.Second),
		)
		t.discard(ctx, userID)
		return domain.StateNone, nil
	}

	return rec.State, nil
}

// Apply persists the next state. StateNone clears the record.
func (t *StateTracker) Apply(ctx context.Context, userID string, next domain.ConversationState) error {
	if next == domain.StateNone {
		if err := t.repo.Clear(ctx, userID); err != nil {
			return fmt.Errorf("clear state: %w", err)
		}
		return nil
	}
	if err := t.repo.Set(ctx, userID, next, t.now()); err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	return nil
}

// discard deletes a record that no longer counts. Failure is only logged;
// the record is still treated as absent and the next read retries the delete.
func (t *StateTracker) discard(ctx context.Context, userID string) {
	if err := t.repo.Clear(ctx, userID); err != nil {
		slog.Warn("Failed to delete stale state",
			"error", err,
			"user_id", userID,
		)
	}
}
