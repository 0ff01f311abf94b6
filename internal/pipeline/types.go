// Package pipeline implements the inbound-message processing flow: resolve
// the sender's identity, assemble a generation prompt, call the generation
// backend, detect commitments in the exchange, extract structured orders and
// reservations, and persist them idempotently.
package pipeline

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/clientela-ai/clientela/internal/store"
)

var (
	// ErrConversationPaused indicates the conversation's status gate is
	// closed; callers should not send a reply.
	ErrConversationPaused = errors.New("pipeline: conversation is paused")
	// ErrInvalidRequest indicates a missing required field on the inbound
	// request.
	ErrInvalidRequest = errors.New("pipeline: invalid request")
)

const (
	// FallbackReply is returned when every generation attempt fails. It is
	// business-safe and never exposes the underlying error.
	FallbackReply = "Disculpa, estamos teniendo dificultades técnicas en este momento. Por favor intenta de nuevo en unos minutos."
	// NotConfiguredReply is returned when the bot has no generation
	// credential. No backend call is made.
	NotConfiguredReply = "Este asistente aún no está configurado. Por favor contacta al negocio directamente."
)

// InboundRequest is the boundary the pipeline consumes: one customer message
// addressed to a bot on an external thread.
type InboundRequest struct {
	BotID             uuid.UUID `json:"bot_id"`
	Message           string    `json:"message"`
	ConversationID    string    `json:"conversation_id"`
	SenderPhone       string    `json:"sender_phone,omitempty"`
	SenderName        string    `json:"sender_name,omitempty"`
	SenderInstagramID string    `json:"sender_instagram_id,omitempty"`
	Platform          string    `json:"platform,omitempty"`
}

// Validate checks the required fields. ConversationID is the external thread
// id supplied by the channel, not a store row id.
func (r *InboundRequest) Validate() error {
	if r.BotID == uuid.Nil {
		return errors.New("pipeline: bot_id is required")
	}
	if strings.TrimSpace(r.Message) == "" {
		return errors.New("pipeline: message is required")
	}
	if strings.TrimSpace(r.ConversationID) == "" {
		return errors.New("pipeline: conversation_id is required")
	}
	return nil
}

// ResolvedPlatform maps the request's platform string to a known channel,
// defaulting to the bot's own channel when absent.
func (r *InboundRequest) ResolvedPlatform(bot *store.Bot) store.Platform {
	switch strings.ToLower(strings.TrimSpace(r.Platform)) {
	case string(store.PlatformWhatsApp):
		return store.PlatformWhatsApp
	case string(store.PlatformInstagram):
		return store.PlatformInstagram
	case string(store.PlatformTest):
		return store.PlatformTest
	default:
		if bot != nil && bot.Platform != "" {
			return bot.Platform
		}
		return store.PlatformTest
	}
}

// Result is what the pipeline hands back to the channel adapter. The side
// effect fields are for callers that need to act on persistence outcomes
// (notifications, logging); they are not part of the wire response.
type Result struct {
	Response       string    `json:"response"`
	ConversationID uuid.UUID `json:"conversation_id"`
	BotID          uuid.UUID `json:"bot_id"`

	Client      *store.Client      `json:"-"`
	Order       *store.Order       `json:"-"`
	Reservation *store.Reservation `json:"-"`
}

// Identity is the resolver's output: a best-effort fragment of who the
// sender is, plus the authoritative client record when one was matched.
type Identity struct {
	Name            string
	Phone           string
	InstagramID     string
	InstagramHandle string

	// Client is the matched store record, nil when nothing durable was
	// found.
	Client *store.Client
}

// HasDurableKey reports whether the identity carries a dedup-capable key.
func (id *Identity) HasDurableKey() bool {
	return id.Phone != "" || id.InstagramID != ""
}

// Complete reports whether both a real name and a durable key are known.
func (id *Identity) Complete() bool {
	return !store.IsPlaceholderName(id.Name) && id.HasDurableKey()
}
