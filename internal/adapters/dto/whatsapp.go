// Package dto contains data transfer objects for external APIs
// Separating DTOs from handlers prevents import cycles
package dto

// WhatsAppWebhookRequest is the top-level webhook payload from the WhatsApp Cloud API
// Ref: https://developers.facebook.com/docs/whatsapp/cloud-api/webhooks/components
type WhatsAppWebhookRequest struct {
	Object string          `json:"object"` // "whatsapp_business_account"
	Entry  []WhatsAppEntry `json:"entry"`
}

// WhatsAppEntry represents one business account's batch of changes
type WhatsAppEntry struct {
	ID      string           `json:"id"`
	Changes []WhatsAppChange `json:"changes"`
}

// WhatsAppChange wraps a single change notification
type WhatsAppChange struct {
	Field string        `json:"field"` // "messages"
	Value WhatsAppValue `json:"value"`
}

// WhatsAppValue carries either inbound messages or delivery statuses
type WhatsAppValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         WhatsAppMetadata  `json:"metadata"`
	Contacts         []WhatsAppContact `json:"contacts,omitempty"`
	Messages         []WhatsAppMessage `json:"messages,omitempty"`
	Statuses         []WhatsAppStatus  `json:"statuses,omitempty"`
}

// WhatsAppMetadata identifies the receiving business number
type WhatsAppMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// WhatsAppContact is the sender profile attached to inbound messages
type WhatsAppContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// WhatsAppMessage is a single inbound message
type WhatsAppMessage struct {
	From        string               `json:"from"`
	ID          string               `json:"id"`
	Timestamp   string               `json:"timestamp"`
	Type        string               `json:"type"` // text, button, interactive, image, location, ...
	Text        *WhatsAppText        `json:"text,omitempty"`
	Button      *WhatsAppButton      `json:"button,omitempty"`
	Interactive *WhatsAppInteractive `json:"interactive,omitempty"`
}

// WhatsAppText is the body of a text message
type WhatsAppText struct {
	Body string `json:"body"`
}

// WhatsAppButton is a template quick-reply button press
type WhatsAppButton struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

// WhatsAppInteractive is a reply to an interactive button or list message
type WhatsAppInteractive struct {
	Type        string         `json:"type"` // button_reply | list_reply
	ButtonReply *WhatsAppReply `json:"button_reply,omitempty"`
	ListReply   *WhatsAppReply `json:"list_reply,omitempty"`
}

// WhatsAppReply is the chosen button or list row
type WhatsAppReply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// WhatsAppStatus is a delivery receipt for a message we sent
type WhatsAppStatus struct {
	ID           string                `json:"id"`
	Status       string                `json:"status"` // sent, delivered, read, failed
	Timestamp    string                `json:"timestamp"`
	RecipientID  string                `json:"recipient_id"`
	Conversation *WhatsAppConversation `json:"conversation,omitempty"`
	Errors       []WhatsAppStatusError `json:"errors,omitempty"`
}

// WhatsAppConversation describes the billing conversation a status belongs to
type WhatsAppConversation struct {
	ID     string `json:"id"`
	Origin struct {
		Type string `json:"type"`
	} `json:"origin"`
}

// WhatsAppStatusError explains a failed delivery
type WhatsAppStatusError struct {
	Code      int    `json:"code"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	ErrorData struct {
		Details string `json:"details"`
	} `json:"error_data"`
}

// FirstValue returns the value of the first change of the first entry, or nil
func (r *WhatsAppWebhookRequest) FirstValue() *WhatsAppValue {
	if len(r.Entry) == 0 || len(r.Entry[0].Changes) == 0 {
		return nil
	}
	return &r.Entry[0].Changes[0].Value
}

// HasStatuses reports whether the change is a delivery-status callback
func (v *WhatsAppValue) HasStatuses() bool {
	return len(v.Statuses) > 0
}

// FirstMessage returns the first inbound message, or nil when there is none
func (v *WhatsAppValue) FirstMessage() *WhatsAppMessage {
	if len(v.Messages) == 0 {
		return nil
	}
	return &v.Messages[0]
}

// ConversationOrigin returns the origin type, empty when absent
func (s *WhatsAppStatus) ConversationOrigin() string {
	if s.Conversation == nil {
		return ""
	}
	return s.Conversation.Origin.Type
}
