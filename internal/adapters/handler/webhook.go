package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"walkmate-bot/internal/core/services"
	"walkmate-bot/internal/idgen"
)

// maxWebhookBody bounds the size of a single delivery
const maxWebhookBody = 1 << 20

// WebhookProcessor runs one webhook delivery to completion
type WebhookProcessor interface {
	ProcessWebhook(ctx context.Context, traceID string, payload []byte) (*services.DispatchResult, error)
}

// WebhookHandler handles WhatsApp webhook verification and events
type WebhookHandler struct {
	dispatcher  WebhookProcessor
	appSecret   string // For HMAC signature validation; empty disables the check
	verifyToken string // For webhook verification
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(dispatcher WebhookProcessor, appSecret, verifyToken string) *WebhookHandler {
	if appSecret == "" {
		slog.Warn("WHATSAPP_APP_SECRET not set, webhook signatures will not be validated")
	}
	return &WebhookHandler{
		dispatcher:  dispatcher,
		appSecret:   appSecret,
		verifyToken: verifyToken,
	}
}

// ============================================================================
// GET /webhook - Webhook Verification
// ============================================================================

// HandleVerify answers the subscription handshake
// Ref: https://developers.facebook.com/docs/graph-api/webhooks/getting-started#verification-requests
func (h *WebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && h.verifyToken != "" && token == h.verifyToken {
		slog.Info("Webhook verification successful")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}

	slog.Warn("Webhook verification failed",
		"mode", mode,
		"token_matches", token == h.verifyToken,
	)
	http.Error(w, "Invalid verification token", http.StatusForbidden)
}

// ============================================================================
// POST /webhook - Webhook Events
// ============================================================================

// HandleEvent processes one delivery synchronously and acknowledges it.
// Malformed bodies are acknowledged with 200 so the provider stops retrying;
// store failures answer 500 so it retries later.
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	traceID := idgen.TraceID()

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("PANIC in webhook handler",
				"panic", rec,
				"trace_id", traceID,
			)
			writeEnvelope(w, withTrace(InternalErrorResponse("Error"), traceID))
		}
	}()

	// ========================================================================
	// Step 1: Read request body
	// ========================================================================
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		slog.Error("Failed to read webhook body", "error", err, "trace_id", traceID)
		writeEnvelope(w, withTrace(BadRequestResponse("Bad Request"), traceID))
		return
	}
	defer r.Body.Close()

	// ========================================================================
	// Step 2: Validate HMAC signature when an app secret is configured
	// ========================================================================
	if h.appSecret != "" {
		signature := r.Header.Get("X-Hub-Signature-256")
		if signature == "" || !h.validateSignature(body, signature) {
			slog.Warn("Webhook signature validation failed",
				"trace_id", traceID,
				"has_signature", signature != "",
			)
			http.Error(w, "Forbidden - Invalid signature", http.StatusForbidden)
			return
		}
	}

	// ========================================================================
	// Step 3: Process within the request; a dropped connection must not
	// abort a conversation turn halfway
	// ========================================================================
	result, err := h.dispatcher.ProcessWebhook(context.WithoutCancel(r.Context()), traceID, body)
	if err != nil {
		if errors.Is(err, services.ErrMalformedPayload) {
			writeEnvelope200(w, withTrace(BadRequestResponse("Malformed payload"), traceID))
			return
		}
		slog.Error("Webhook processing failed",
			"error", err,
			"trace_id", traceID,
		)
		writeEnvelope(w, withTrace(InternalErrorResponse("Error"), traceID))
		return
	}

	slog.Debug("Webhook acknowledged",
		"trace_id", traceID,
		"status", result.Status,
		"message_id", result.MessageID,
	)
	writeEnvelope(w, withTrace(APIResponse{
		Code:    http.StatusOK,
		Message: "EVENT_RECEIVED",
		Data:    map[string]string{"status": result.Status},
	}, traceID))
}

// validateSignature validates the HMAC SHA256 signature sent by Meta
func (h *WebhookHandler) validateSignature(payload []byte, signatureHeader string) bool {
	// Signature format: "sha256=<hex_signature>"
	const prefix = "sha256="
	if !strings.HasPrefix(signatureHeader, prefix) {
		return false
	}
	expected := strings.TrimPrefix(signatureHeader, prefix)

	mac := hmac.New(sha256.New, []byte(h.appSecret))
	mac.Write(payload)
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(computed), []byte(expected))
}

func withTrace(resp APIResponse, traceID string) APIResponse {
	resp.TraceID = traceID
	return resp
}

// writeEnvelope200 acknowledges at the HTTP level while reporting an error in the body
func writeEnvelope200(w http.ResponseWriter, resp APIResponse) {
	writeJSON(w, http.StatusOK, resp)
}
