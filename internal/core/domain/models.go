// Package domain contains core business entities
// Following Hexagonal Architecture: These models are infrastructure-agnostic
package domain

import (
	"encoding/json"
	"time"
)

// CatalogueCategory marks the product row that holds the full catalogue image
const CatalogueCategory = "catalogue"

// Product is one catalog row: an article number with one image variant
// Several rows may share the same Key (one per colour/option)
type Product struct {
	ID          int64  `json:"id" db:"id"`
	Key         string `json:"article" db:"main_product"`    // Lower-cased article number
	Option      string `json:"option" db:"option_label"`     // Variant label, e.g. colour
	ImageRef    string `json:"image" db:"image"`             // Public URL or provider media id
	Description string `json:"description" db:"description"` // Sent as image caption
	MRP         string `json:"mrp" db:"mrp"`                 // Price as entered by the operator
	Category    string `json:"category" db:"category"`
}

// StateRecord is the persisted conversation position of one user
type StateRecord struct {
	UserID    string            `json:"user_id" db:"user_id"`
	State     ConversationState `json:"state" db:"state"`
	UpdatedAt time.Time         `json:"updated_at" db:"updated_at"`
}

// WebhookLog represents the audit trail for incoming webhook deliveries
type WebhookLog struct {
	ID          int64           `json:"id" db:"id"`
	TraceID     string          `json:"trace_id" db:"trace_id"`
	PayloadJSON json.RawMessage `json:"payload_json" db:"payload_json"`
	Status      string          `json:"status" db:"status"`
	ErrorLog    *string         `json:"error_log,omitempty" db:"error_log"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// WebhookStatus constants for lifecycle management
const (
	WebhookStatusProcessed    = "processed"
	WebhookStatusDuplicate    = "duplicate"
	WebhookStatusStatusUpdate = "status_update"
	WebhookStatusUnsupported  = "unsupported"
	WebhookStatusIgnored      = "ignored"
	WebhookStatusFailed       = "failed"
)
