package domain

// InboundMessage is a provider message reduced to what the conversation engine needs
type InboundMessage struct {
	Sender    string // E.164 number without '+'
	MessageID string
	Type      string // Raw provider type: text, button, interactive
	Input     string // Trimmed, lower-cased user input
}

// Button is one quick-reply button of an interactive message
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Template describes a pre-approved message template send
type Template struct {
	Name           string
	LanguageCode   string
	LanguagePolicy string   // Optional, e.g. "deterministic"
	BodyParams     []string // Positional {{1}}, {{2}}, ...
	HeaderParams   []string
}

// SendResult is the provider's answer to one outbound call
type SendResult struct {
	StatusCode int
	MessageID  string
	Body       []byte
}

// OK reports whether the provider accepted the message
func (r *SendResult) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}
