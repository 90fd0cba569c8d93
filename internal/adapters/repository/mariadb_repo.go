// Package repository implements data persistence adapters
// Following Hexagonal Architecture: Adapters implement ports defined in core
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"walkmate-bot/internal/core/domain"
	"walkmate-bot/internal/core/ports"
)

// Ensure MariaDBRepository implements the required interfaces
var (
	_ ports.WebhookRepository = (*MariaDBRepository)(nil)
	_ ports.CatalogRepository = (*MariaDBRepository)(nil)
	_ ports.CatalogAdmin      = (*MariaDBRepository)(nil)
	_ ports.StateRepository   = (*MariaDBRepository)(nil)
	_ ports.DedupRepository   = (*MariaDBRepository)(nil)
	_ ports.RetentionPurger   = (*MariaDBRepository)(nil)
)

// MariaDBRepository implements persistence operations for MariaDB
type MariaDBRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewMariaDBRepository creates a new MariaDB repository instance
func NewMariaDBRepository(db *sql.DB) *MariaDBRepository {
	return &MariaDBRepository{
		db:  db,
		now: time.Now,
	}
}

// Ping checks the database connection (used by /health)
func (r *MariaDBRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ============================================================================
// WebhookRepository Implementation
// ============================================================================

// SaveLog persists a webhook delivery to the audit log
func (r *MariaDBRepository) SaveLog(ctx context.Context, log *domain.WebhookLog) error {
	query := `
		INSERT INTO webhook_logs (trace_id, payload_json, status, error_log, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		log.TraceID,
		[]byte(log.PayloadJSON),
		log.Status,
		log.ErrorLog,
		log.CreatedAt,
	)
	if err != nil {
		slog.Error("Failed to save webhook log",
			"error", err,
			"trace_id", log.TraceID,
		)
		return fmt.Errorf("save webhook log: %w", err)
	}

	slog.Debug("Webhook log saved",
		"trace_id", log.TraceID,
		"status", log.Status,
	)

	return nil
}

// ============================================================================
// DedupRepository Implementation
// ============================================================================

// IsDuplicate checks if a message id is already in processed_messages
func (r *MariaDBRepository) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	query := `SELECT 1 FROM processed_messages WHERE id = ? LIMIT 1`

	var exists int
	err := r.db.QueryRowContext(ctx, query, messageID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Error("Failed to check deduplication",
			"error", err,
			"message_id", messageID,
		)
		return false, fmt.Errorf("check duplicate: %w", err)
	}

	return true, nil
}

// MarkProcessed inserts the marker with INSERT IGNORE.
// The ttl is enforced by the watchdog purge, not by the row itself.
func (r *MariaDBRepository) MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	query := `INSERT IGNORE INTO processed_messages (id, created_at) VALUES (?, ?)`

	result, err := r.db.ExecContext(ctx, query, messageID, r.now().UTC())
	if err != nil {
		slog.Error("Failed to mark message as processed",
			"error", err,
			"message_id", messageID,
		)
		return false, fmt.Errorf("mark processed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark processed rows: %w", err)
	}

	return rows == 1, nil
}

// Release removes the marker row so a redelivery is processed again
func (r *MariaDBRepository) Release(ctx context.Context, messageID string) error {
	query := `DELETE FROM processed_messages WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, messageID); err != nil {
		slog.Error("Failed to release dedup marker",
			"error", err,
			"message_id", messageID,
		)
		return fmt.Errorf("release marker: %w", err)
	}
	return nil
}

// ============================================================================
// RetentionPurger Implementation
// ============================================================================

// PurgeProcessedBefore deletes dedup markers older than cutoff
func (r *MariaDBRepository) PurgeProcessedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	return r.purge(ctx, `DELETE FROM processed_messages WHERE created_at < ? LIMIT ?`, cutoff.UTC(), limit)
}

// PurgeStatesBefore deletes conversation states not touched since cutoff
func (r *MariaDBRepository) PurgeStatesBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	return r.purge(ctx, `DELETE FROM user_state WHERE updated_at < ? LIMIT ?`, cutoff.Unix(), limit)
}

// PurgeWebhookLogsBefore deletes audit rows older than cutoff
func (r *MariaDBRepository) PurgeWebhookLogsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	return r.purge(ctx, `DELETE FROM webhook_logs WHERE created_at < ? LIMIT ?`, cutoff.UTC(), limit)
}

func (r *MariaDBRepository) purge(ctx context.Context, query string, cutoff interface{}, limit int) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}
