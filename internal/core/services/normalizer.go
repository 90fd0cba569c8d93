package services

import (
	"strings"

	"walkmate-bot/internal/adapters/dto"
	"walkmate-bot/internal/core/domain"
)

// Normalize reduces a raw inbound message to sender, id and a lower-cased input string.
// Returns ErrUnsupportedMessage or ErrUnsupportedInteractive for anything the bot cannot read;
// the returned message still carries sender and id so the caller can reply.
func Normalize(msg *dto.WhatsAppMessage) (domain.InboundMessage, error) {
	in := domain.InboundMessage{
		Sender:    msg.From,
		MessageID: msg.ID,
		Type:      msg.Type,
	}

	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return in, domain.ErrUnsupportedMessage
		}
		in.Input = normalizeInput(msg.Text.Body)

	case "button":
		if msg.Button == nil {
			return in, domain.ErrUnsupportedMessage
		}
		in.Input = normalizeInput(msg.Button.Payload)

	case "interactive":
		if msg.Interactive == nil {
			return in, domain.ErrUnsupportedInteractive
		}
		switch {
		case msg.Interactive.Type == "button_reply" && msg.Interactive.ButtonReply != nil:
			in.Input = normalizeInput(msg.Interactive.ButtonReply.Title)
		case msg.Interactive.Type == "list_reply" && msg.Interactive.ListReply != nil:
			in.Input = normalizeInput(msg.Interactive.ListReply.Title)
		default:
			return in, domain.ErrUnsupportedInteractive
		}

	default:
		return in, domain.ErrUnsupportedMessage
	}

	return in, nil
}

func normalizeInput(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
