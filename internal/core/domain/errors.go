package domain

import (
	"errors"
	"fmt"
)

// Custom errors for specific WhatsApp Cloud API failures
var (
	// ErrNetwork indicates the request never produced an HTTP response (DNS, connect, timeout)
	ErrNetwork = errors.New("whatsapp api unreachable")

	// ErrTokenExpired indicates the access token is expired or invalid (code 190)
	ErrTokenExpired = errors.New("whatsapp access token expired or invalid")

	// ErrRateLimited indicates a throughput or spam limit was hit (codes 4, 80007, 130429, 131048, 131056)
	ErrRateLimited = errors.New("whatsapp rate limit exceeded")

	// ErrPermissionDenied indicates missing permissions (codes 10, 200, 299)
	ErrPermissionDenied = errors.New("whatsapp permission denied")

	// ErrRecipientInvalid indicates the number is not a WhatsApp user (code 131026)
	ErrRecipientInvalid = errors.New("whatsapp recipient cannot receive messages")

	// ErrWindowClosed indicates free-form messaging outside the 24h window (code 131047)
	ErrWindowClosed = errors.New("whatsapp customer service window closed")

	// ErrTemplateMismatch indicates template parameters do not match the approved template (codes 132000, 132001, 132012)
	ErrTemplateMismatch = errors.New("whatsapp template parameter mismatch")

	// ErrUnsupportedMessage is returned by the normalizer for message types the bot cannot read
	ErrUnsupportedMessage = errors.New("unsupported message type")

	// ErrUnsupportedInteractive is returned for interactive replies other than button or list replies
	ErrUnsupportedInteractive = errors.New("unsupported interactive type")

	// ErrCorruptState marks a stored conversation state that cannot be decoded
	ErrCorruptState = errors.New("corrupt conversation state")
)

// ProviderError is a non-2xx answer from the Graph API
type ProviderError struct {
	StatusCode int
	Code       int
	Subcode    int
	Message    string
	Details    string
	TraceID    string
	Body       []byte
}

func (e *ProviderError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("whatsapp api error %d: %s", e.StatusCode, string(e.Body))
	}
	if e.Details != "" {
		return fmt.Sprintf("whatsapp api error (code %d): %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("whatsapp api error (code %d): %s", e.Code, e.Message)
}

// Unwrap maps the Graph error code to a sentinel so callers can use errors.Is
func (e *ProviderError) Unwrap() error {
	switch e.Code {
	case 190:
		return ErrTokenExpired
	case 4, 80007, 130429, 131048, 131056:
		return ErrRateLimited
	case 10, 200, 299:
		return ErrPermissionDenied
	case 131026:
		return ErrRecipientInvalid
	case 131047:
		return ErrWindowClosed
	case 132000, 132001, 132012:
		return ErrTemplateMismatch
	}
	return nil
}

// Detail returns the most specific human-readable reason the provider gave
func (e *ProviderError) Detail() string {
	if e.Details != "" {
		return e.Details
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Body)
}
