// Package handler implements HTTP request handlers
// Following Hexagonal Architecture: Adapters translate HTTP to domain logic
package handler

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
)

// APIResponse represents the standard response envelope
type APIResponse struct {
	Code    int         `json:"code"`    // HTTP-style status code (200, 400, 500, etc.)
	Message string      `json:"message"` // Human-readable message ("Success", error description)
	Data    interface{} `json:"data"`    // Actual payload (can be null)
	TraceID string      `json:"trace_id,omitempty"`
}

// NewSuccessResponse creates a successful response (code 200)
func NewSuccessResponse(data interface{}) APIResponse {
	return APIResponse{
		Code:    200,
		Message: "Success",
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code int, message string) APIResponse {
	return APIResponse{
		Code:    code,
		Message: message,
		Data:    nil,
	}
}

// Common error responses
func BadRequestResponse(message string) APIResponse {
	return NewErrorResponse(400, message)
}

func UnauthorizedResponse(message string) APIResponse {
	return NewErrorResponse(401, message)
}

func NotFoundResponse(message string) APIResponse {
	return NewErrorResponse(404, message)
}

func InternalErrorResponse(message string) APIResponse {
	return NewErrorResponse(500, message)
}

// writeJSON writes any value as a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeEnvelope writes an APIResponse using its code as the HTTP status
func writeEnvelope(w http.ResponseWriter, resp APIResponse) {
	writeJSON(w, resp.Code, resp)
}

func roundTo2Decimals(val float64) float64 {
	return math.Round(val*100) / 100
}
