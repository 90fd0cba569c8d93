package services

import (
	"context"
	"errors"
	"log/slog"

	"walkmate-bot/internal/core/domain"
	"walkmate-bot/internal/core/ports"
)

const imageFailedPrefix = "❌ Failed to send image.\n"

// Messenger delivers conversation replies. Delivery failures never reach the
// conversation engine: they are logged, and a rejected image is followed by
// one plain-text notice carrying the provider's reason.
type Messenger struct {
	gateway ports.MessageGateway
}

// NewMessenger wraps a gateway
func NewMessenger(gateway ports.MessageGateway) *Messenger {
	return &Messenger{gateway: gateway}
}

// Text sends a plain text reply
func (m *Messenger) Text(ctx context.Context, to, body string) {
	_, err := m.gateway.SendText(ctx, to, body)
	logDeliveryFailure(err, to, "text")
}

// Buttons sends an interactive quick-reply message
func (m *Messenger) Buttons(ctx context.Context, to, body string, buttons []domain.Button) {
	_, err := m.gateway.SendButtons(ctx, to, body, buttons)
	logDeliveryFailure(err, to, "interactive")
}

// Image sends an image with caption, falling back to a text notice on rejection
func (m *Messenger) Image(ctx context.Context, to, imageRef, caption string) {
	_, err := m.gateway.SendImage(ctx, to, imageRef, caption)
	if err == nil {
		return
	}

	var perr *domain.ProviderError
	if !errors.As(err, &perr) {
		logDeliveryFailure(err, to, "image")
		return
	}

	slog.Warn("Image rejected by provider, sending text fallback",
		"to", to,
		"image", imageRef,
		"status_code", perr.StatusCode,
		"error_code", perr.Code,
	)

	// Exactly one compensating message; its own failure is only logged
	_, err = m.gateway.SendText(ctx, to, imageFailedPrefix+perr.Detail())
	logDeliveryFailure(err, to, "text")
}

func logDeliveryFailure(err error, to, kind string) {
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrNetwork) {
		slog.Error("Reply not delivered (network)",
			"error", err,
			"to", to,
			"type", kind,
		)
		return
	}
	slog.Error("Reply not delivered",
		"error", err,
		"to", to,
		"type", kind,
	)
}
