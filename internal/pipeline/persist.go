package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clientela-ai/clientela/internal/store"
	"github.com/clientela-ai/clientela/pkg/logging"
)

// dedupWindow buckets commitment events so a repeated trigger inside the
// window maps to the same idempotency key.
const dedupWindow = 10 * time.Minute

// Coordinator performs create-or-update of clients and create-once of orders
// and reservations. Store failures are logged and swallowed so the reply
// path is never affected.
type Coordinator struct {
	store  store.Store
	logger *logging.Logger
	now    func() time.Time
}

// NewCoordinator builds a coordinator over the full store surface.
func NewCoordinator(s store.Store, logger *logging.Logger) *Coordinator {
	if s == nil {
		panic("pipeline: store is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{store: s, logger: logger, now: time.Now}
}

// ResolveClient creates or merges the client record for a resolved identity
// and links it to the conversation. Returns nil when the identity carries no
// durable key. Merge rules: a discovered name replaces a stored placeholder
// only; a discovered phone or platform id fills an empty field but never
// overwrites; nothing is deleted.
func (c *Coordinator) ResolveClient(ctx context.Context, businessID uuid.UUID, conv *store.Conversation, identity *Identity) *store.Client {
	if identity == nil || !identity.HasDurableKey() {
		return nil
	}

	existing := identity.Client
	if existing == nil {
		existing = c.lookup(ctx, businessID, identity)
	}

	if existing == nil {
		client := &store.Client{
			ID:              uuid.New(),
			BusinessID:      businessID,
			Name:            identity.Name,
			Phone:           identity.Phone,
			InstagramID:     identity.InstagramID,
			InstagramHandle: identity.InstagramHandle,
		}
		if err := c.store.CreateClient(ctx, client); err != nil {
			c.logger.Error("client create failed", "error", err)
			return nil
		}
		c.link(ctx, conv, client.ID)
		return client
	}

	changed := false
	if store.IsPlaceholderName(existing.Name) && !store.IsPlaceholderName(identity.Name) {
		existing.Name = identity.Name
		changed = true
	}
	if existing.Phone == "" && identity.Phone != "" {
		existing.Phone = identity.Phone
		changed = true
	}
	if existing.InstagramID == "" && identity.InstagramID != "" {
		existing.InstagramID = identity.InstagramID
		changed = true
	}
	if existing.InstagramHandle == "" && identity.InstagramHandle != "" {
		existing.InstagramHandle = identity.InstagramHandle
		changed = true
	}
	if changed {
		if err := c.store.UpdateClient(ctx, existing); err != nil {
			c.logger.Error("client merge failed", "error", err)
		}
	}
	c.link(ctx, conv, existing.ID)
	return existing
}

func (c *Coordinator) lookup(ctx context.Context, businessID uuid.UUID, identity *Identity) *store.Client {
	if identity.Phone != "" {
		client, err := c.store.GetClientByPhone(ctx, businessID, identity.Phone)
		if err == nil {
			return client
		}
		if !errors.Is(err, store.ErrClientNotFound) {
			c.logger.Warn("client lookup by phone failed", "error", err)
		}
	}
	if identity.InstagramID != "" {
		client, err := c.store.GetClientByInstagramID(ctx, businessID, identity.InstagramID)
		if err == nil {
			return client
		}
		if !errors.Is(err, store.ErrClientNotFound) {
			c.logger.Warn("client lookup by instagram id failed", "error", err)
		}
	}
	return nil
}

func (c *Coordinator) link(ctx context.Context, conv *store.Conversation, clientID uuid.UUID) {
	if conv.ClientID != nil && *conv.ClientID == clientID {
		return
	}
	if err := c.store.LinkClient(ctx, conv.ID, clientID); err != nil {
		c.logger.Error("conversation client link failed", "error", err)
		return
	}
	conv.ClientID = &clientID
}

// SaveOrder persists an extracted order. A repeated commitment trigger for
// the same payload inside the dedup window hits the same idempotency key and
// is silently dropped. Returns nil on duplicate or failure.
func (c *Coordinator) SaveOrder(ctx context.Context, conv *store.Conversation, client *store.Client, draft *OrderDraft) *store.Order {
	order := &store.Order{
		ID:              uuid.New(),
		BusinessID:      conv.BusinessID,
		ConversationID:  conv.ID,
		Items:           draft.Items,
		Total:           draft.Total,
		Fulfillment:     draft.Fulfillment,
		DeliveryAddress: draft.DeliveryAddress,
		Status:          store.OrderPending,
		Notes:           draft.Notes,
	}
	var payload strings.Builder
	for _, item := range draft.Items {
		fmt.Fprintf(&payload, "%s|%d|%d;", strings.ToLower(item.Name), item.Quantity, item.UnitPrice)
	}
	fmt.Fprintf(&payload, "%s|%s", draft.Fulfillment, strings.ToLower(draft.DeliveryAddress))
	order.DedupKey = c.dedupKey(conv.ID, payload.String())

	if client != nil {
		order.ClientID = &client.ID
		order.ContactPhone = client.Phone
	}

	if err := c.store.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, store.ErrDuplicateRecord) {
			c.logger.Info("duplicate order suppressed", "conversation_id", conv.ID)
		} else {
			c.logger.Error("order create failed", "error", err, "conversation_id", conv.ID)
		}
		return nil
	}
	return order
}

// SaveReservation persists an extracted reservation with the same dedup
// discipline as SaveOrder.
func (c *Coordinator) SaveReservation(ctx context.Context, conv *store.Conversation, client *store.Client, draft *ReservationDraft) *store.Reservation {
	res := &store.Reservation{
		ID:              uuid.New(),
		BusinessID:      conv.BusinessID,
		ConversationID:  conv.ID,
		CustomerName:    draft.CustomerName,
		CustomerPhone:   draft.CustomerPhone,
		Date:            draft.Date,
		Time:            draft.Time,
		PartySize:       draft.PartySize,
		SpecialRequests: draft.SpecialRequests,
		Status:          store.ReservationPending,
	}
	payload := fmt.Sprintf("%s|%s|%d", draft.Date.Format("2006-01-02"), draft.Time, draft.PartySize)
	res.DedupKey = c.dedupKey(conv.ID, payload)

	if client != nil {
		res.ClientID = &client.ID
		if res.CustomerPhone == "" {
			res.CustomerPhone = client.Phone
		}
		if res.CustomerName == "" || store.IsPlaceholderName(res.CustomerName) {
			if !store.IsPlaceholderName(client.Name) {
				res.CustomerName = client.Name
			}
		}
	}

	if err := c.store.CreateReservation(ctx, res); err != nil {
		if errors.Is(err, store.ErrDuplicateRecord) {
			c.logger.Info("duplicate reservation suppressed", "conversation_id", conv.ID)
		} else {
			c.logger.Error("reservation create failed", "error", err, "conversation_id", conv.ID)
		}
		return nil
	}
	return res
}

// dedupKey hashes the conversation id, the normalized payload and the
// current time bucket.
func (c *Coordinator) dedupKey(conversationID uuid.UUID, payload string) string {
	bucket := c.now().UTC().Truncate(dedupWindow).Unix()
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", conversationID, payload, bucket)))
	return hex.EncodeToString(sum[:])
}
