package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory Store used by tests and local development.
type Memory struct {
	mu sync.RWMutex

	bots          map[uuid.UUID]*Bot
	businesses    map[uuid.UUID]*BusinessProfile
	products      map[uuid.UUID][]Product
	delivery      map[uuid.UUID]*DeliverySettings
	conversations map[uuid.UUID]*Conversation
	convByThread  map[string]uuid.UUID // botID:externalID -> conversation id
	messages      map[uuid.UUID][]Message
	clients       map[uuid.UUID]*Client
	orders        []*Order
	reservations  []*Reservation
	orderKeys     map[string]struct{}
	resKeys       map[string]struct{}
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		bots:          make(map[uuid.UUID]*Bot),
		businesses:    make(map[uuid.UUID]*BusinessProfile),
		products:      make(map[uuid.UUID][]Product),
		delivery:      make(map[uuid.UUID]*DeliverySettings),
		conversations: make(map[uuid.UUID]*Conversation),
		convByThread:  make(map[string]uuid.UUID),
		messages:      make(map[uuid.UUID][]Message),
		clients:       make(map[uuid.UUID]*Client),
		orderKeys:     make(map[string]struct{}),
		resKeys:       make(map[string]struct{}),
	}
}

// SeedBot registers a bot and its business profile for tests.
func (m *Memory) SeedBot(bot *Bot, profile *BusinessProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := *bot
	m.bots[bot.ID] = &b
	if profile != nil {
		p := *profile
		m.businesses[profile.ID] = &p
	}
}

// SeedCatalog registers products for a business.
func (m *Memory) SeedCatalog(businessID uuid.UUID, products ...Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[businessID] = append(m.products[businessID], products...)
}

func (m *Memory) GetBot(ctx context.Context, botID uuid.UUID) (*Bot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bot, ok := m.bots[botID]
	if !ok {
		return nil, ErrBotNotFound
	}
	b := *bot
	return &b, nil
}

func (m *Memory) GetBusinessProfile(ctx context.Context, businessID uuid.UUID) (*BusinessProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	profile, ok := m.businesses[businessID]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	p := *profile
	return &p, nil
}

func (m *Memory) GetCatalog(ctx context.Context, businessID uuid.UUID) ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Product(nil), m.products[businessID]...), nil
}

func (m *Memory) GetOrCreateDeliverySettings(ctx context.Context, businessID uuid.UUID) (*DeliverySettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.delivery[businessID]; ok {
		s := *existing
		return &s, nil
	}
	created := DefaultDeliverySettings(businessID)
	m.delivery[businessID] = created
	s := *created
	return &s, nil
}

// DefaultDeliverySettings is the one-time lazy default: pickup on, delivery off.
func DefaultDeliverySettings(businessID uuid.UUID) *DeliverySettings {
	return &DeliverySettings{
		BusinessID:           businessID,
		PickupEnabled:        true,
		DeliveryEnabled:      false,
		PickupEstimateMins:   20,
		DeliveryEstimateMins: 45,
	}
}

func (m *Memory) GetClientByPhone(ctx context.Context, businessID uuid.UUID, phone string) (*Client, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, ErrClientNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.clients {
		if c.BusinessID == businessID && NormalizePhone(c.Phone) == phone {
			cc := *c
			return &cc, nil
		}
	}
	return nil, ErrClientNotFound
}

func (m *Memory) GetClientByInstagramID(ctx context.Context, businessID uuid.UUID, instagramID string) (*Client, error) {
	if instagramID == "" {
		return nil, ErrClientNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.clients {
		if c.BusinessID == businessID && c.InstagramID == instagramID {
			cc := *c
			return &cc, nil
		}
	}
	return nil, ErrClientNotFound
}

func (m *Memory) CreateClient(ctx context.Context, client *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if client.ID == uuid.Nil {
		client.ID = uuid.New()
	}
	now := time.Now().UTC()
	client.CreatedAt = now
	client.UpdatedAt = now
	c := *client
	m.clients[client.ID] = &c
	return nil
}

func (m *Memory) UpdateClient(ctx context.Context, client *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[client.ID]; !ok {
		return ErrClientNotFound
	}
	client.UpdatedAt = time.Now().UTC()
	c := *client
	m.clients[client.ID] = &c
	return nil
}

func (m *Memory) EnsureConversation(ctx context.Context, bot *Bot, externalID string, platform Platform) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := bot.ID.String() + ":" + externalID
	if id, ok := m.convByThread[key]; ok {
		conv := *m.conversations[id]
		return &conv, nil
	}
	conv := &Conversation{
		ID:             uuid.New(),
		BusinessID:     bot.BusinessID,
		BotID:          bot.ID,
		ExternalID:     externalID,
		Platform:       platform,
		Status:         ConversationActive,
		LastActivityAt: time.Now().UTC(),
	}
	m.conversations[conv.ID] = conv
	m.convByThread[key] = conv.ID
	out := *conv
	return &out, nil
}

func (m *Memory) AppendMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[msg.ConversationID]
	if !ok {
		return ErrConversationNotFound
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Type == "" {
		msg.Type = MessageText
	}
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], *msg)
	conv.LastActivityAt = msg.CreatedAt
	return nil
}

func (m *Memory) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[conversationID]
	sorted := append([]Message(nil), msgs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[len(sorted)-limit:]
	}
	return sorted, nil
}

func (m *Memory) LinkClient(ctx context.Context, conversationID, clientID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	id := clientID
	conv.ClientID = &id
	return nil
}

func (m *Memory) SetConversationStatus(ctx context.Context, conversationID uuid.UUID, status ConversationStatus, pausedUntil *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	conv.Status = status
	conv.PausedUntil = pausedUntil
	return nil
}

func (m *Memory) CreateOrder(ctx context.Context, order *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order.DedupKey != "" {
		if _, dup := m.orderKeys[order.DedupKey]; dup {
			return ErrDuplicateRecord
		}
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Status == "" {
		order.Status = OrderPending
	}
	order.CreatedAt = time.Now().UTC()
	o := *order
	o.Items = append([]OrderItem(nil), order.Items...)
	m.orders = append(m.orders, &o)
	if order.DedupKey != "" {
		m.orderKeys[order.DedupKey] = struct{}{}
	}
	return nil
}

func (m *Memory) CreateReservation(ctx context.Context, res *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if res.DedupKey != "" {
		if _, dup := m.resKeys[res.DedupKey]; dup {
			return ErrDuplicateRecord
		}
	}
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if res.Status == "" {
		res.Status = ReservationPending
	}
	res.CreatedAt = time.Now().UTC()
	r := *res
	m.reservations = append(m.reservations, &r)
	if res.DedupKey != "" {
		m.resKeys[res.DedupKey] = struct{}{}
	}
	return nil
}

// Orders returns a snapshot of created orders (test helper).
func (m *Memory) Orders() []Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out
}

// Reservations returns a snapshot of created reservations (test helper).
func (m *Memory) Reservations() []Reservation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Reservation, 0, len(m.reservations))
	for _, r := range m.reservations {
		out = append(out, *r)
	}
	return out
}

// Clients returns a snapshot of client records (test helper).
func (m *Memory) Clients() []Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Client, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, *c)
	}
	return out
}

// Conversation returns a conversation by id (test helper).
func (m *Memory) Conversation(id uuid.UUID) (*Conversation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[id]
	if !ok {
		return nil, false
	}
	c := *conv
	return &c, true
}
