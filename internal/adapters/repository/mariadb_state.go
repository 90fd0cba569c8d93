package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"walkmate-bot/internal/core/domain"
)

// ============================================================================
// StateRepository Implementation
// ============================================================================

// Get loads the user's state row, nil when absent
func (r *MariaDBRepository) Get(ctx context.Context, userID string) (*domain.StateRecord, error) {
	query := `SELECT state, updated_at FROM user_state WHERE user_id = ?`

	var (
		raw       string
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&raw, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("Failed to get user state",
			"error", err,
			"user_id", userID,
		)
		return nil, fmt.Errorf("get user state: %w", err)
	}

	state, err := domain.ParseConversationState(raw)
	if err != nil {
		return nil, fmt.Errorf("get user state: %w", err)
	}

	return &domain.StateRecord{
		UserID:    userID,
		State:     state,
		UpdatedAt: time.Unix(updatedAt, 0),
	}, nil
}

// Set upserts the user's state
func (r *MariaDBRepository) Set(ctx context.Context, userID string, state domain.ConversationState, at time.Time) error {
	query := `
		INSERT INTO user_state (user_id, state, updated_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			state = VALUES(state),
			updated_at = VALUES(updated_at)
	`

	if _, err := r.db.ExecContext(ctx, query, userID, state.String(), at.Unix()); err != nil {
		slog.Error("Failed to set user state",
			"error", err,
			"user_id", userID,
			"state", state.String(),
		)
		return fmt.Errorf("set user state: %w", err)
	}
	return nil
}

// Clear deletes the user's state row
func (r *MariaDBRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_state WHERE user_id = ?`, userID); err != nil {
		slog.Error("Failed to clear user state",
			"error", err,
			"user_id", userID,
		)
		return fmt.Errorf("clear user state: %w", err)
	}
	return nil
}
