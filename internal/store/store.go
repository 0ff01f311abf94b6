package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrBotNotFound indicates the bot id does not exist.
	ErrBotNotFound = errors.New("store: bot not found")
	// ErrBusinessNotFound indicates the business id does not exist.
	ErrBusinessNotFound = errors.New("store: business not found")
	// ErrClientNotFound indicates no client matched the lookup key.
	ErrClientNotFound = errors.New("store: client not found")
	// ErrConversationNotFound indicates the conversation id does not exist.
	ErrConversationNotFound = errors.New("store: conversation not found")
	// ErrDuplicateRecord indicates an insert hit an existing dedup key.
	ErrDuplicateRecord = errors.New("store: duplicate record")
)

// BusinessContext is the read-through accessor for bot configuration,
// business profile, catalog and delivery settings. The pipeline core never
// embeds store-specific query logic; it goes through this interface.
type BusinessContext interface {
	GetBot(ctx context.Context, botID uuid.UUID) (*Bot, error)
	GetBusinessProfile(ctx context.Context, businessID uuid.UUID) (*BusinessProfile, error)
	GetCatalog(ctx context.Context, businessID uuid.UUID) ([]Product, error)
	// GetOrCreateDeliverySettings lazily provisions defaults (pickup enabled,
	// delivery disabled) the first time a business needs them.
	GetOrCreateDeliverySettings(ctx context.Context, businessID uuid.UUID) (*DeliverySettings, error)
}

// ClientStore persists customer records. Lookups are keyed only by phone or
// platform id, never by name.
type ClientStore interface {
	GetClientByPhone(ctx context.Context, businessID uuid.UUID, phone string) (*Client, error)
	GetClientByInstagramID(ctx context.Context, businessID uuid.UUID, instagramID string) (*Client, error)
	CreateClient(ctx context.Context, client *Client) error
	UpdateClient(ctx context.Context, client *Client) error
}

// ConversationStore persists conversations and their append-only messages.
type ConversationStore interface {
	// EnsureConversation returns the conversation for an external thread id,
	// creating it on first contact.
	EnsureConversation(ctx context.Context, bot *Bot, externalID string, platform Platform) (*Conversation, error)
	AppendMessage(ctx context.Context, msg *Message) error
	// RecentMessages returns up to limit messages in chronological order.
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error)
	LinkClient(ctx context.Context, conversationID, clientID uuid.UUID) error
	SetConversationStatus(ctx context.Context, conversationID uuid.UUID, status ConversationStatus, pausedUntil *time.Time) error
}

// OrderStore persists extracted orders. CreateOrder returns
// ErrDuplicateRecord when the dedup key already exists.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *Order) error
}

// ReservationStore persists extracted reservations. CreateReservation returns
// ErrDuplicateRecord when the dedup key already exists.
type ReservationStore interface {
	CreateReservation(ctx context.Context, res *Reservation) error
}

// Store is the full persistence surface the pipeline consumes.
type Store interface {
	BusinessContext
	ClientStore
	ConversationStore
	OrderStore
	ReservationStore
}
