// Package ports defines interfaces for dependency inversion
// Following Hexagonal Architecture: Core defines contracts, Adapters implement them
package ports

import (
	"context"
	"time"

	"walkmate-bot/internal/core/domain"
)

// WebhookRepository handles persistence of webhook audit logs
type WebhookRepository interface {
	// SaveLog persists a webhook delivery together with its final processing status
	SaveLog(ctx context.Context, log *domain.WebhookLog) error
}

// CatalogRepository is the read side of the product catalog used by the conversation engine
type CatalogRepository interface {
	// FindByKey returns every product row for an article number, in catalog order.
	// The key is matched case-insensitively; an empty slice means not found.
	FindByKey(ctx context.Context, key string) ([]domain.Product, error)

	// FindByCategory returns the first product of a category, or nil when none exists
	FindByCategory(ctx context.Context, category string) (*domain.Product, error)
}

// CatalogAdmin is the operator side of the catalog
type CatalogAdmin interface {
	Search(ctx context.Context, query string) ([]domain.Product, error)
	Create(ctx context.Context, p *domain.Product) (int64, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// StateRepository persists one conversation state per user (last writer wins)
type StateRepository interface {
	// Get returns the stored record, or nil when the user has none
	Get(ctx context.Context, userID string) (*domain.StateRecord, error)

	// Set upserts the user's state with the given update time
	Set(ctx context.Context, userID string, state domain.ConversationState, at time.Time) error

	// Clear removes the user's state; clearing a missing record is not an error
	Clear(ctx context.Context, userID string) error
}

// DedupRepository handles deduplication of inbound provider message ids
type DedupRepository interface {
	// IsDuplicate checks if a message id has already been processed
	IsDuplicate(ctx context.Context, messageID string) (bool, error)

	// MarkProcessed records the id with insert-if-absent semantics.
	// Returns false when the marker already existed (a concurrent duplicate).
	MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) (bool, error)

	// Release drops a marker so a redelivery of the id is processed again
	Release(ctx context.Context, messageID string) error
}

// RetentionPurger deletes rows that outlived their retention window.
// Implemented only by stores that cannot expire data on their own.
type RetentionPurger interface {
	PurgeProcessedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	PurgeStatesBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	PurgeWebhookLogsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}
