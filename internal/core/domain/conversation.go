package domain

import (
	"fmt"
	"strings"
)

// ConversationState is the closed set of menu positions a user can be in
type ConversationState int

const (
	StateNone ConversationState = iota
	StateAwaitingOption
	StateAwaitingArticle
)

// String returns the storage form of the state
func (s ConversationState) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateAwaitingOption:
		return "awaiting_option"
	case StateAwaitingArticle:
		return "awaiting_article"
	default:
		return fmt.Sprintf("ConversationState(%d)", int(s))
	}
}

// ParseConversationState converts a stored value back into a state.
// Unknown values are rejected with ErrCorruptState rather than mapped to StateNone.
func ParseConversationState(v string) (ConversationState, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "none":
		return StateNone, nil
	case "awaiting_option":
		return StateAwaitingOption, nil
	case "awaiting_article":
		return StateAwaitingArticle, nil
	default:
		return StateNone, fmt.Errorf("%w: unknown value %q", ErrCorruptState, v)
	}
}
