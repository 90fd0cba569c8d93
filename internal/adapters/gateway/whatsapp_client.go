// Package gateway implements external API adapters
// Following Hexagonal Architecture: Outbound adapters for external services
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"walkmate-bot/internal/core/domain"
	"walkmate-bot/internal/core/ports"
)

// Ensure WhatsAppClient implements MessageGateway
var _ ports.MessageGateway = (*WhatsAppClient)(nil)

const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v21.0"
	DefaultTimeout    = 20 * time.Second
)

// ClientConfig holds the credentials and endpoint of one business phone number
type ClientConfig struct {
	BaseURL     string
	APIVersion  string
	PhoneID     string
	AccessToken string
	Timeout     time.Duration
}

// WhatsAppClient sends messages through the WhatsApp Cloud API (Graph API).
// Every call is a single attempt: failures are reported, never retried.
type WhatsAppClient struct {
	httpClient  *http.Client
	endpoint    string
	accessToken string
}

// NewWhatsAppClient creates a new WhatsApp Cloud API client
func NewWhatsAppClient(cfg ClientConfig) *WhatsAppClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &WhatsAppClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		endpoint:    fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(cfg.BaseURL, "/"), cfg.APIVersion, cfg.PhoneID),
		accessToken: cfg.AccessToken,
	}
}

// ============================================================================
// Outbound payloads
// ============================================================================

type sendRequest struct {
	MessagingProduct string              `json:"messaging_product"`
	RecipientType    string              `json:"recipient_type,omitempty"`
	To               string              `json:"to"`
	Type             string              `json:"type"`
	Text             *textPayload        `json:"text,omitempty"`
	Image            *imagePayload       `json:"image,omitempty"`
	Interactive      *interactivePayload `json:"interactive,omitempty"`
	Template         *templatePayload    `json:"template,omitempty"`
}

type textPayload struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type imagePayload struct {
	Link    string `json:"link,omitempty"`
	ID      string `json:"id,omitempty"`
	Caption string `json:"caption,omitempty"`
}

type interactivePayload struct {
	Type   string            `json:"type"`
	Body   interactiveBody   `json:"body"`
	Action interactiveAction `json:"action"`
}

type interactiveBody struct {
	Text string `json:"text"`
}

type interactiveAction struct {
	Buttons []replyButton `json:"buttons"`
}

type replyButton struct {
	Type  string        `json:"type"`
	Reply domain.Button `json:"reply"`
}

type templatePayload struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []templateComponent `json:"components,omitempty"`
}

type templateLanguage struct {
	Code   string `json:"code"`
	Policy string `json:"policy,omitempty"`
}

type templateComponent struct {
	Type       string              `json:"type"`
	Parameters []templateParameter `json:"parameters"`
}

type templateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// sendResponse represents the provider's success answer
type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// graphError represents an error from the Graph API
type graphError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	ErrorData    struct {
		Details string `json:"details"`
	} `json:"error_data"`
	FBTraceID string `json:"fbtrace_id"`
}

// ============================================================================
// MessageGateway Implementation
// ============================================================================

// SendText sends a free-form text message (valid inside the 24h service window)
func (c *WhatsAppClient) SendText(ctx context.Context, to, body string) (*domain.SendResult, error) {
	return c.send(ctx, &sendRequest{
		To:   to,
		Type: "text",
		Text: &textPayload{Body: body},
	})
}

// SendImage sends an image with caption. URLs are sent as link, anything else as media id.
func (c *WhatsAppClient) SendImage(ctx context.Context, to, imageRef, caption string) (*domain.SendResult, error) {
	img := &imagePayload{Caption: caption}
	if IsMediaURL(imageRef) {
		img.Link = imageRef
	} else {
		img.ID = imageRef
	}
	return c.send(ctx, &sendRequest{
		To:    to,
		Type:  "image",
		Image: img,
	})
}

// SendButtons sends an interactive message with up to three quick-reply buttons
func (c *WhatsAppClient) SendButtons(ctx context.Context, to, body string, buttons []domain.Button) (*domain.SendResult, error) {
	if len(buttons) == 0 || len(buttons) > 3 {
		return nil, fmt.Errorf("interactive message needs 1-3 buttons, got %d", len(buttons))
	}

	interactive := &interactivePayload{Type: "button"}
	interactive.Body.Text = body
	for _, b := range buttons {
		interactive.Action.Buttons = append(interactive.Action.Buttons, replyButton{Type: "reply", Reply: b})
	}

	return c.send(ctx, &sendRequest{
		To:          to,
		Type:        "interactive",
		Interactive: interactive,
	})
}

// SendTemplate sends a pre-approved template. Parameter counts are not checked
// locally; the provider rejects mismatches with a ProviderError.
func (c *WhatsAppClient) SendTemplate(ctx context.Context, to string, tmpl domain.Template) (*domain.SendResult, error) {
	payload := &templatePayload{
		Name: tmpl.Name,
		Language: templateLanguage{
			Code:   tmpl.LanguageCode,
			Policy: tmpl.LanguagePolicy,
		},
	}
	if len(tmpl.HeaderParams) > 0 {
		payload.Components = append(payload.Components, templateComponent{
			Type:       "header",
			Parameters: textParameters(tmpl.HeaderParams),
		})
	}
	if len(tmpl.BodyParams) > 0 {
		payload.Components = append(payload.Components, templateComponent{
			Type:       "body",
			Parameters: textParameters(tmpl.BodyParams),
		})
	}

	return c.send(ctx, &sendRequest{
		To:       to,
		Type:     "template",
		Template: payload,
	})
}

// send performs a single POST to the messages endpoint
func (c *WhatsAppClient) send(ctx context.Context, payload *sendRequest) (*domain.SendResult, error) {
	payload.MessagingProduct = "whatsapp"
	if payload.Type != "template" {
		payload.RecipientType = "individual"
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	// Log outgoing request (without token for security)
	slog.Info("Sending message to WhatsApp",
		"to", payload.To,
		"type", payload.Type,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Failed to send request to WhatsApp",
			"error", err,
			"to", payload.To,
			"type", payload.Type,
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrNetwork, err)
	}

	result := &domain.SendResult{
		StatusCode: resp.StatusCode,
		Body:       body,
	}

	if !result.OK() {
		perr := parseProviderError(resp.StatusCode, body)
		slog.Error("WhatsApp API error",
			"status_code", perr.StatusCode,
			"error_code", perr.Code,
			"error_subcode", perr.Subcode,
			"error_message", perr.Message,
			"details", perr.Details,
			"fbtrace_id", perr.TraceID,
			"to", payload.To,
			"type", payload.Type,
		)
		return result, perr
	}

	var sendResp sendResponse
	if err := json.Unmarshal(body, &sendResp); err != nil {
		// 2xx means it was accepted even if the body is odd
		slog.Warn("Failed to parse success response",
			"error", err,
			"body", string(body),
		)
	} else if len(sendResp.Messages) > 0 {
		result.MessageID = sendResp.Messages[0].ID
	}

	slog.Info("Message sent successfully",
		"to", payload.To,
		"type", payload.Type,
		"message_id", result.MessageID,
	)

	return result, nil
}

// parseProviderError builds a ProviderError from a non-2xx body
func parseProviderError(status int, body []byte) *domain.ProviderError {
	perr := &domain.ProviderError{
		StatusCode: status,
		Body:       body,
	}

	var envelope struct {
		Error graphError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return perr
	}

	perr.Code = envelope.Error.Code
	perr.Subcode = envelope.Error.ErrorSubcode
	perr.Message = envelope.Error.Message
	perr.Details = envelope.Error.ErrorData.Details
	perr.TraceID = envelope.Error.FBTraceID
	return perr
}

// IsMediaURL reports whether an image reference is a public link rather than a media id
func IsMediaURL(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func textParameters(values []string) []templateParameter {
	params := make([]templateParameter, 0, len(values))
	for _, v := range values {
		params = append(params, templateParameter{Type: "text", Text: v})
	}
	return params
}
