package ports

import (
	"context"

	"walkmate-bot/internal/core/domain"
)

// MessageGateway sends outbound messages through the provider.
// Non-2xx answers come back as *domain.ProviderError together with the result;
// transport failures wrap domain.ErrNetwork and carry no result.
type MessageGateway interface {
	SendText(ctx context.Context, to, body string) (*domain.SendResult, error)
	SendImage(ctx context.Context, to, imageRef, caption string) (*domain.SendResult, error)
	SendButtons(ctx context.Context, to, body string, buttons []domain.Button) (*domain.SendResult, error)
	SendTemplate(ctx context.Context, to string, tmpl domain.Template) (*domain.SendResult, error)
}
