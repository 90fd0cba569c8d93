// Package idgen generates short trace ids for webhook deliveries and API requests.
package idgen

import (
	"fmt"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// TracePrefix marks ids generated for inbound webhook deliveries
	TracePrefix = "wh-"

	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	length   = 12
)

// Generate returns a new random id with the given prefix
func Generate(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// TraceID returns a webhook trace id. If the random source fails it falls
// back to a timestamp so requests are never rejected for lack of an id.
func TraceID() string {
	id, err := Generate(TracePrefix)
	if err != nil {
		return fmt.Sprintf("%s%d", TracePrefix, time.Now().UnixNano())
	}
	return id
}
