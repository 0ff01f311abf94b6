package store

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform identifies which messaging channel a conversation lives on.
type Platform string

const (
	PlatformWhatsApp  Platform = "whatsapp"
	PlatformInstagram Platform = "instagram"
	PlatformTest      Platform = "test"
)

// ConversationStatus gates whether the pipeline should run for a conversation.
type ConversationStatus string

const (
	ConversationActive ConversationStatus = "active"
	ConversationPaused ConversationStatus = "paused"
)

// SenderKind distinguishes customer messages from bot replies.
type SenderKind string

const (
	SenderClient SenderKind = "client"
	SenderBot    SenderKind = "bot"
)

// MessageType classifies the payload of a message.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageAudio    MessageType = "audio"
	MessageLocation MessageType = "location"
)

// FulfillmentType is how an order reaches the customer.
type FulfillmentType string

const (
	FulfillmentPickup   FulfillmentType = "pickup"
	FulfillmentDelivery FulfillmentType = "delivery"
)

const (
	OrderPending       = "pending"
	ReservationPending = "pending"
)

// Bot is the per-channel chatbot configuration owned by a business.
type Bot struct {
	ID                  uuid.UUID
	BusinessID          uuid.UUID
	Name                string
	Persona             string
	Platform            Platform
	GenerationKey       string
	Model               string
	CanTakeOrders       bool
	CanTakeReservations bool
	CanRegisterClients  bool
}

// BusinessProfile is the public-facing description of the business.
type BusinessProfile struct {
	ID          uuid.UUID
	Name        string
	Description string
	Hours       string
	CatalogURL  string
	// NotifyEmail receives order and reservation notifications. Empty
	// disables them for the business.
	NotifyEmail string
}

// Product is one catalog entry. Price is in minor currency units.
type Product struct {
	ID          uuid.UUID
	BusinessID  uuid.UUID
	Name        string
	Category    string
	Price       int64
	Available   bool
	Description string
}

// DeliverySettings describes the fulfillment modalities a business offers.
type DeliverySettings struct {
	BusinessID           uuid.UUID
	PickupEnabled        bool
	DeliveryEnabled      bool
	DeliveryFee          int64
	PickupEstimateMins   int
	DeliveryEstimateMins int
}

// Conversation is one external message thread between a customer and a bot.
type Conversation struct {
	ID             uuid.UUID
	BusinessID     uuid.UUID
	BotID          uuid.UUID
	ExternalID     string
	Platform       Platform
	Status         ConversationStatus
	PausedUntil    *time.Time
	ClientID       *uuid.UUID
	LastActivityAt time.Time
}

// Paused reports whether the conversation is paused at the given instant.
// A paused_until in the past means the pause has lapsed.
func (c *Conversation) Paused(now time.Time) bool {
	if c.Status != ConversationPaused {
		return false
	}
	if c.PausedUntil != nil && now.After(*c.PausedUntil) {
		return false
	}
	return true
}

// Message is one append-only transcript entry.
type Message struct {
	ID             uuid.UUID         `json:"id"`
	ConversationID uuid.UUID         `json:"conversation_id"`
	Sender         SenderKind        `json:"sender"`
	Body           string            `json:"body"`
	Type           MessageType       `json:"type"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Client is a customer record. Phone and InstagramID are the only dedup keys;
// Name is display-only and frequently a placeholder.
type Client struct {
	ID              uuid.UUID
	BusinessID      uuid.UUID
	Name            string
	Phone           string
	InstagramID     string
	InstagramHandle string
	Email           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem is one extracted line item. UnitPrice is in minor currency units.
type OrderItem struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Note      string `json:"note,omitempty"`
}

// Order is a create-once output of the extraction step.
type Order struct {
	ID              uuid.UUID
	BusinessID      uuid.UUID
	ClientID        *uuid.UUID
	ConversationID  uuid.UUID
	Items           []OrderItem
	Total           int64
	Fulfillment     FulfillmentType
	DeliveryAddress string
	ContactPhone    string
	Status          string
	Notes           string
	DedupKey        string
	CreatedAt       time.Time
}

// Reservation is a create-once output of the extraction step.
type Reservation struct {
	ID              uuid.UUID
	BusinessID      uuid.UUID
	ClientID        *uuid.UUID
	ConversationID  uuid.UUID
	CustomerName    string
	CustomerPhone   string
	Date            time.Time // calendar date, time-of-day zeroed
	Time            string    // "HH:MM"
	PartySize       int
	SpecialRequests string
	Status          string
	DedupKey        string
	CreatedAt       time.Time
}

// placeholderNames are display names that carry no identifying value. They
// never win a merge against a real name.
var placeholderNames = []string{
	"cliente sin nombre",
	"sin nombre",
	"no name",
	"unknown",
	"usuario",
	"instagram user",
	"whatsapp user",
	"cliente",
	"customer",
	"user",
}

// IsPlaceholderName reports whether a display name is a non-informative
// sentinel: empty, a bare @handle, or a generic "no name" value.
func IsPlaceholderName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return true
	}
	if strings.HasPrefix(name, "@") {
		return true
	}
	lower := strings.ToLower(name)
	for _, p := range placeholderNames {
		if lower == p {
			return true
		}
	}
	return false
}

// NormalizePhone strips separators and keeps a leading plus plus digits.
// Returns empty for values that don't look like a phone (7-15 digits).
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			continue
		}
	}
	digits := b.String()
	if len(digits) < 7 || len(digits) > 15 {
		return ""
	}
	if strings.HasPrefix(raw, "+") {
		return "+" + digits
	}
	return digits
}
