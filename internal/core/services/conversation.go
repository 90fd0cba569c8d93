package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"walkmate-bot/internal/core/domain"
	"walkmate-bot/internal/core/ports"
)

// Reply texts
const (
	menuText         = "Hi 👋, welcome to Walkmate!\nReply \"1\" to view our catalogue or \"2\" to get product images."
	articlePrompt    = "Please enter the article number (e.g., 2205)"
	notFoundText     = "❌ No product found with that article number."
	noCatalogueText  = "❌ Our catalogue is not available right now. Please type 'hi' to see the menu."
	afterProductText = "✅ Reply with 1 to go back to the main menu or enter another article number to view another product."
	fallbackText     = "Unrecognized input. Please type 'hi' or 'menu' to start."
)

var (
	menuButtons = []domain.Button{
		{ID: "option_1", Title: "1"},
		{ID: "option_2", Title: "2"},
	}
	backToMenuButtons = []domain.Button{
		{ID: "go_main", Title: "1"},
	}
	greetings = map[string]struct{}{
		"hi":    {},
		"hello": {},
		"menu":  {},
		"start": {},
	}
)

// ErrTurnAborted wraps store failures hit before any reply went out
var ErrTurnAborted = errors.New("conversation turn aborted before replying")

// Action names the branch the engine took, for logs and audit status
type Action string

const (
	ActionMenu          Action = "menu"
	ActionArticlePrompt Action = "article_prompt"
	ActionCatalogue     Action = "catalogue"
	ActionNoCatalogue   Action = "catalogue_missing"
	ActionProducts      Action = "products"
	ActionNotFound      Action = "not_found"
	ActionFallback      Action = "fallback"
)

// Outcome describes what one turn of the conversation did
type Outcome struct {
	Action   Action
	Previous domain.ConversationState
	Next     domain.ConversationState
	Replies  int
}

type replyKind int

const (
	replyText replyKind = iota
	replyImage
	replyButtons
)

type reply struct {
	kind     replyKind
	body     string
	imageRef string
	buttons  []domain.Button
}

// decision is computed before anything is sent or stored
type decision struct {
	action  Action
	replies []reply
	next    domain.ConversationState
	persist bool
}

// ConversationEngine maps (input, state) to replies and the next state
type ConversationEngine struct {
	catalog   ports.CatalogRepository
	states    *StateTracker
	messenger *Messenger
}

// NewConversationEngine wires the engine's collaborators
func NewConversationEngine(catalog ports.CatalogRepository, states *StateTracker, messenger *Messenger) *ConversationEngine {
	return &ConversationEngine{
		catalog:   catalog,
		states:    states,
		messenger: messenger,
	}
}

// Handle runs one turn: read state, decide, deliver replies, then persist the new state.
// Store errors while reading abort the turn before anything is sent and wrap ErrTurnAborted;
// a failed state write comes after the replies and does not.
func (e *ConversationEngine) Handle(ctx context.Context, in domain.InboundMessage) (*Outcome, error) {
	current, err := e.states.Current(ctx, in.Sender)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTurnAborted, err)
	}

	d, err := e.decide(ctx, in.Input, current)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTurnAborted, err)
	}

	for _, r := range d.replies {
		switch r.kind {
		case replyText:
			e.messenger.Text(ctx, in.Sender, r.body)
		case replyImage:
			e.messenger.Image(ctx, in.Sender, r.imageRef, r.body)
		case replyButtons:
			e.messenger.Buttons(ctx, in.Sender, r.body, r.buttons)
		}
	}

	next := current
	if d.persist {
		if err := e.states.Apply(ctx, in.Sender, d.next); err != nil {
			return nil, err
		}
		next = d.next
	}

	slog.Info("Conversation turn handled",
		"user_id", in.Sender,
		"message_id", in.MessageID,
		"action", string(d.action),
		"from_state", current.String(),
		"to_state", next.String(),
		"replies", len(d.replies),
	)

	return &Outcome{
		Action:   d.action,
		Previous: current,
		Next:     next,
		Replies:  len(d.replies),
	}, nil
}

// decide evaluates the transition table; the first matching rule wins
func (e *ConversationEngine) decide(ctx context.Context, input string, state domain.ConversationState) (*decision, error) {
	if _, ok := greetings[input]; ok {
		return menuDecision(), nil
	}

	if state == domain.StateAwaitingOption {
		switch input {
		case "2":
			return &decision{
				action:  ActionArticlePrompt,
				replies: []reply{{kind: replyText, body: articlePrompt}},
				next:    domain.StateAwaitingArticle,
				persist: true,
			}, nil
		case "1":
			return e.catalogueDecision(ctx)
		}
	}

	if state == domain.StateAwaitingArticle {
		if input == "1" {
			return menuDecision(), nil
		}
		return e.articleDecision(ctx, input)
	}

	// "1" outside the menu always leads back to it
	if input == "1" && state == domain.StateNone {
		return menuDecision(), nil
	}

	return &decision{
		action:  ActionFallback,
		replies: []reply{{kind: replyText, body: fallbackText}},
	}, nil
}

func menuDecision() *decision {
	return &decision{
		action:  ActionMenu,
		replies: []reply{{kind: replyButtons, body: menuText, buttons: menuButtons}},
		next:    domain.StateAwaitingOption,
		persist: true,
	}
}

func (e *ConversationEngine) catalogueDecision(ctx context.Context) (*decision, error) {
	product, err := e.catalog.FindByCategory(ctx, domain.CatalogueCategory)
	if err != nil {
		return nil, fmt.Errorf("find catalogue: %w", err)
	}

	d := &decision{
		action:  ActionCatalogue,
		next:    domain.StateNone,
		persist: true,
	}
	if product == nil {
		d.action = ActionNoCatalogue
		d.replies = []reply{{kind: replyText, body: noCatalogueText}}
		return d, nil
	}
	d.replies = []reply{{kind: replyImage, imageRef: product.ImageRef, body: product.Description}}
	return d, nil
}

func (e *ConversationEngine) articleDecision(ctx context.Context, key string) (*decision, error) {
	products, err := e.catalog.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}

	d := &decision{
		next:    domain.StateAwaitingArticle,
		persist: true,
	}
	if len(products) == 0 {
		d.action = ActionNotFound
		d.replies = []reply{{kind: replyText, body: notFoundText}}
		return d, nil
	}

	d.action = ActionProducts
	for _, p := range products {
		d.replies = append(d.replies, reply{kind: replyImage, imageRef: p.ImageRef, body: p.Description})
	}
	d.replies = append(d.replies, reply{kind: replyButtons, body: afterProductText, buttons: backToMenuButtons})
	return d, nil
}
