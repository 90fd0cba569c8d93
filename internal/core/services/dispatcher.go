// Package services contains core business logic
// Following Hexagonal Architecture: Services orchestrate domain logic using ports
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"walkmate-bot/internal/adapters/dto"
	"walkmate-bot/internal/core/domain"
	"walkmate-bot/internal/core/ports"
)

// DefaultDedupRetention is how long processed message ids are remembered
const DefaultDedupRetention = 7 * 24 * time.Hour

const (
	unsupportedMessageText     = "❌ Unsupported message type."
	unsupportedInteractiveText = "❌ Unsupported interactive type."
)

var (
	// ErrMalformedPayload means the body is not a webhook envelope; retrying it will never help
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrPanic is returned when processing panicked and was recovered
	ErrPanic = errors.New("panic during webhook processing")
)

// DispatchResult reports what happened to one webhook delivery
type DispatchResult struct {
	Status    string // one of domain.WebhookStatus*
	MessageID string
	Outcome   *Outcome
	Detail    string // audit note for failures that are still acknowledged
}

// Dispatcher orchestrates webhook processing workflow
type Dispatcher struct {
	webhookRepo ports.WebhookRepository
	dedupRepo   ports.DedupRepository
	engine      *ConversationEngine
	messenger   *Messenger
	dedupTTL    time.Duration

	audits sync.WaitGroup
}

// NewDispatcher creates a new dispatcher instance with dependencies injected
func NewDispatcher(
	webhookRepo ports.WebhookRepository,
	dedupRepo ports.DedupRepository,
	engine *ConversationEngine,
	messenger *Messenger,
	dedupTTL time.Duration,
) *Dispatcher {
	if dedupTTL <= 0 {
		dedupTTL = DefaultDedupRetention
	}
	return &Dispatcher{
		webhookRepo: webhookRepo,
		dedupRepo:   dedupRepo,
		engine:      engine,
		messenger:   messenger,
		dedupTTL:    dedupTTL,
	}
}

// ProcessWebhook handles one POST delivery synchronously.
// Only the first message of the first change of the first entry is consumed.
func (d *Dispatcher) ProcessWebhook(ctx context.Context, traceID string, payload []byte) (result *DispatchResult, err error) {
	// ========================================================================
	// Panic recovery: one bad payload must not take the server down
	// ========================================================================
	defer func() {
		if r := recover(); r != nil {
			slog.Error("PANIC recovered in ProcessWebhook",
				"panic", r,
				"trace_id", traceID,
			)
			result = &DispatchResult{Status: domain.WebhookStatusFailed}
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		d.audit(traceID, payload, result, err)
	}()

	// ========================================================================
	// Step 1: Parse envelope
	// ========================================================================
	var req dto.WhatsAppWebhookRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		slog.Error("Failed to parse WhatsApp webhook JSON",
			"error", err,
			"trace_id", traceID,
		)
		return &DispatchResult{Status: domain.WebhookStatusFailed}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	value := req.FirstValue()
	if value == nil {
		slog.Warn("Webhook without entry/changes", "trace_id", traceID)
		return &DispatchResult{Status: domain.WebhookStatusIgnored}, nil
	}

	// ========================================================================
	// Step 2: Delivery statuses are logged only
	// ========================================================================
	if value.HasStatuses() {
		logStatuses(traceID, value.Statuses)
		return &DispatchResult{Status: domain.WebhookStatusStatusUpdate}, nil
	}

	msg := value.FirstMessage()
	if msg == nil || msg.ID == "" || msg.From == "" {
		slog.Info("Webhook without a usable message", "trace_id", traceID)
		return &DispatchResult{Status: domain.WebhookStatusIgnored}, nil
	}

	// ========================================================================
	// Step 3: Deduplicate (check, then insert-if-absent)
	// ========================================================================
	isDup, err := d.dedupRepo.IsDuplicate(ctx, msg.ID)
	if err != nil {
		return &DispatchResult{Status: domain.WebhookStatusFailed, MessageID: msg.ID}, fmt.Errorf("dedup check failed: %w", err)
	}
	if isDup {
		slog.Info("Duplicate message detected, skipping",
			"message_id", msg.ID,
			"trace_id", traceID,
		)
		return &DispatchResult{Status: domain.WebhookStatusDuplicate, MessageID: msg.ID}, nil
	}

	marked, err := d.dedupRepo.MarkProcessed(ctx, msg.ID, d.dedupTTL)
	if err != nil {
		return &DispatchResult{Status: domain.WebhookStatusFailed, MessageID: msg.ID}, fmt.Errorf("mark processed failed: %w", err)
	}
	if !marked {
		slog.Info("Message claimed by a concurrent delivery, skipping",
			"message_id", msg.ID,
			"trace_id", traceID,
		)
		return &DispatchResult{Status: domain.WebhookStatusDuplicate, MessageID: msg.ID}, nil
	}

	// ========================================================================
	// Step 4: Normalize; unsupported types get one reply and no state change
	// ========================================================================
	in, err := Normalize(msg)
	if err != nil {
		text := unsupportedMessageText
		if errors.Is(err, domain.ErrUnsupportedInteractive) {
			text = unsupportedInteractiveText
		}
		slog.Info("Unsupported inbound message",
			"message_id", msg.ID,
			"type", msg.Type,
			"trace_id", traceID,
		)
		d.messenger.Text(ctx, in.Sender, text)
		return &DispatchResult{Status: domain.WebhookStatusUnsupported, MessageID: msg.ID}, nil
	}

	// ========================================================================
	// Step 5: Conversation turn
	// ========================================================================
	outcome, err := d.engine.Handle(ctx, in)
	if errors.Is(err, ErrTurnAborted) {
		// Nothing reached the user: free the id so the provider's retry runs the turn
		if relErr := d.dedupRepo.Release(context.WithoutCancel(ctx), msg.ID); relErr != nil {
			slog.Error("Failed to release dedup marker, redelivery will be dropped",
				"error", relErr,
				"message_id", msg.ID,
				"trace_id", traceID,
			)
		}
		return &DispatchResult{Status: domain.WebhookStatusFailed, MessageID: msg.ID}, fmt.Errorf("conversation turn failed: %w", err)
	}
	if err != nil {
		// Replies are already out; a redelivery would repeat them, so acknowledge
		slog.Error("Conversation state not saved after replying",
			"error", err,
			"message_id", msg.ID,
			"trace_id", traceID,
		)
		return &DispatchResult{
			Status:    domain.WebhookStatusFailed,
			MessageID: msg.ID,
			Detail:    err.Error(),
		}, nil
	}

	return &DispatchResult{
		Status:    domain.WebhookStatusProcessed,
		MessageID: msg.ID,
		Outcome:   outcome,
	}, nil
}

// Wait blocks until pending audit writes finish (used on shutdown and in tests)
func (d *Dispatcher) Wait() {
	d.audits.Wait()
}

// audit saves the delivery to the webhook log without blocking the request
func (d *Dispatcher) audit(traceID string, payload []byte, result *DispatchResult, procErr error) {
	if d.webhookRepo == nil {
		return
	}

	status := domain.WebhookStatusFailed
	if result != nil {
		status = result.Status
	}

	entry := &domain.WebhookLog{
		TraceID:     traceID,
		PayloadJSON: auditPayload(payload),
		Status:      status,
		CreatedAt:   time.Now(),
	}
	if procErr != nil {
		msg := procErr.Error()
		entry.ErrorLog = &msg
	} else if result != nil && result.Detail != "" {
		msg := result.Detail
		entry.ErrorLog = &msg
	}

	d.audits.Add(1)
	go func() {
		defer d.audits.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("PANIC in webhook log save", "panic", r)
			}
		}()

		if err := d.webhookRepo.SaveLog(context.Background(), entry); err != nil {
			slog.Error("Failed to save webhook log (async)",
				"error", err,
				"trace_id", traceID,
			)
		}
	}()
}

// auditPayload keeps the column valid JSON even when the body was garbage
func auditPayload(payload []byte) json.RawMessage {
	if json.Valid(payload) {
		return json.RawMessage(payload)
	}
	quoted, _ := json.Marshal(string(payload))
	return json.RawMessage(quoted)
}

func logStatuses(traceID string, statuses []dto.WhatsAppStatus) {
	for _, st := range statuses {
		slog.Info("Message status update",
			"trace_id", traceID,
			"message_id", st.ID,
			"recipient", st.RecipientID,
			"status", st.Status,
			"timestamp", st.Timestamp,
			"origin", st.ConversationOrigin(),
		)
		for _, e := range st.Errors {
			slog.Warn("Message delivery error",
				"trace_id", traceID,
				"message_id", st.ID,
				"code", e.Code,
				"title", e.Title,
				"message", e.Message,
				"details", e.ErrorData.Details,
			)
		}
	}
}
