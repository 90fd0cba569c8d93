package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walkmate-bot/internal/adapters/dto"
	"walkmate-bot/internal/core/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		msg     dto.WhatsAppMessage
		want    string
		wantErr error
	}{
		{
			name: "text is trimmed and lower-cased",
			msg:  dto.WhatsAppMessage{Type: "text", Text: &dto.WhatsAppText{Body: "  HeLLo \n"}},
			want: "hello",
		},
		{
			name: "template button uses payload",
			msg:  dto.WhatsAppMessage{Type: "button", Button: &dto.WhatsAppButton{Payload: "Menu", Text: "ignored"}},
			want: "menu",
		},
		{
			name: "button reply uses title",
			msg: dto.WhatsAppMessage{Type: "interactive", Interactive: &dto.WhatsAppInteractive{
				Type: "button_reply", ButtonReply: &dto.WhatsAppReply{ID: "option_2", Title: "2"},
			}},
			want: "2",
		},
		{
			name: "list reply uses title",
			msg: dto.WhatsAppMessage{Type: "interactive", Interactive: &dto.WhatsAppInteractive{
				Type: "list_reply", ListReply: &dto.WhatsAppReply{ID: "row1", Title: " 2205 "},
			}},
			want: "2205",
		},
		{
			name:    "unknown interactive subtype",
			msg:     dto.WhatsAppMessage{Type: "interactive", Interactive: &dto.WhatsAppInteractive{Type: "nfm_reply"}},
			wantErr: domain.ErrUnsupportedInteractive,
		},
		{
			name:    "location is unsupported",
			msg:     dto.WhatsAppMessage{Type: "location"},
			wantErr: domain.ErrUnsupportedMessage,
		},
		{
			name:    "text type without body object",
			msg:     dto.WhatsAppMessage{Type: "text"},
			wantErr: domain.ErrUnsupportedMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.msg.From = "919999999999"
			tt.msg.ID = "wamid.X"

			in, err := Normalize(&tt.msg)

			assert.Equal(t, "919999999999", in.Sender)
			assert.Equal(t, "wamid.X", in.MessageID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, in.Input)
		})
	}
}
