package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool is the subset of pgxpool.Pool the repositories use. It matches
// pgxmock so repository tests can run without a database.
type PgxPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ PgxPool = (*pgxpool.Pool)(nil)

// Postgres implements Store against a relational database. Business context,
// clients, orders and reservations go through pgx; the conversation/message
// transcript store uses database/sql.
type Postgres struct {
	pool PgxPool
	db   *sql.DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres wires a Postgres-backed store.
func NewPostgres(pool PgxPool, db *sql.DB) *Postgres {
	if pool == nil {
		panic("store: pgx pool required")
	}
	if db == nil {
		panic("store: sql db required")
	}
	return &Postgres{pool: pool, db: db}
}

func (s *Postgres) GetBot(ctx context.Context, botID uuid.UUID) (*Bot, error) {
	query := `
		SELECT id, business_id, name, persona, platform, generation_key, model,
		       can_take_orders, can_take_reservations, can_register_clients
		FROM bots
		WHERE id = $1
	`
	var bot Bot
	err := s.pool.QueryRow(ctx, query, botID).Scan(
		&bot.ID,
		&bot.BusinessID,
		&bot.Name,
		&bot.Persona,
		&bot.Platform,
		&bot.GenerationKey,
		&bot.Model,
		&bot.CanTakeOrders,
		&bot.CanTakeReservations,
		&bot.CanRegisterClients,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBotNotFound
		}
		return nil, fmt.Errorf("store: select bot failed: %w", err)
	}
	return &bot, nil
}

func (s *Postgres) GetBusinessProfile(ctx context.Context, businessID uuid.UUID) (*BusinessProfile, error) {
	query := `
		SELECT id, name, description, hours, catalog_url, notify_email
		FROM businesses
		WHERE id = $1
	`
	var profile BusinessProfile
	err := s.pool.QueryRow(ctx, query, businessID).Scan(
		&profile.ID,
		&profile.Name,
		&profile.Description,
		&profile.Hours,
		&profile.CatalogURL,
		&profile.NotifyEmail,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBusinessNotFound
		}
		return nil, fmt.Errorf("store: select business failed: %w", err)
	}
	return &profile, nil
}

func (s *Postgres) GetCatalog(ctx context.Context, businessID uuid.UUID) ([]Product, error) {
	query := `
		SELECT id, business_id, name, category, price, available, description
		FROM products
		WHERE business_id = $1
		ORDER BY category, name
	`
	rows, err := s.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("store: select catalog failed: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.BusinessID, &p.Name, &p.Category, &p.Price, &p.Available, &p.Description); err != nil {
			return nil, fmt.Errorf("store: scan product failed: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Postgres) GetOrCreateDeliverySettings(ctx context.Context, businessID uuid.UUID) (*DeliverySettings, error) {
	query := `
		SELECT business_id, pickup_enabled, delivery_enabled, delivery_fee,
		       pickup_estimate_mins, delivery_estimate_mins
		FROM delivery_settings
		WHERE business_id = $1
	`
	var ds DeliverySettings
	err := s.pool.QueryRow(ctx, query, businessID).Scan(
		&ds.BusinessID,
		&ds.PickupEnabled,
		&ds.DeliveryEnabled,
		&ds.DeliveryFee,
		&ds.PickupEstimateMins,
		&ds.DeliveryEstimateMins,
	)
	if err == nil {
		return &ds, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("store: select delivery settings failed: %w", err)
	}

	defaults := DefaultDeliverySettings(businessID)
	insert := `
		INSERT INTO delivery_settings (business_id, pickup_enabled, delivery_enabled, delivery_fee,
		                               pickup_estimate_mins, delivery_estimate_mins)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (business_id) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, insert,
		defaults.BusinessID,
		defaults.PickupEnabled,
		defaults.DeliveryEnabled,
		defaults.DeliveryFee,
		defaults.PickupEstimateMins,
		defaults.DeliveryEstimateMins,
	); err != nil {
		return nil, fmt.Errorf("store: provision delivery settings failed: %w", err)
	}
	return defaults, nil
}

func (s *Postgres) GetClientByPhone(ctx context.Context, businessID uuid.UUID, phone string) (*Client, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, ErrClientNotFound
	}
	return s.getClient(ctx, `
		SELECT id, business_id, name, phone, instagram_id, instagram_handle, email, created_at, updated_at
		FROM clients
		WHERE business_id = $1 AND phone = $2
	`, businessID, phone)
}

func (s *Postgres) GetClientByInstagramID(ctx context.Context, businessID uuid.UUID, instagramID string) (*Client, error) {
	if instagramID == "" {
		return nil, ErrClientNotFound
	}
	return s.getClient(ctx, `
		SELECT id, business_id, name, phone, instagram_id, instagram_handle, email, created_at, updated_at
		FROM clients
		WHERE business_id = $1 AND instagram_id = $2
	`, businessID, instagramID)
}

func (s *Postgres) getClient(ctx context.Context, query string, args ...any) (*Client, error) {
	var c Client
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&c.ID,
		&c.BusinessID,
		&c.Name,
		&c.Phone,
		&c.InstagramID,
		&c.InstagramHandle,
		&c.Email,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("store: select client failed: %w", err)
	}
	return &c, nil
}

func (s *Postgres) CreateClient(ctx context.Context, client *Client) error {
	if client.ID == uuid.Nil {
		client.ID = uuid.New()
	}
	client.Phone = NormalizePhone(client.Phone)
	query := `
		INSERT INTO clients (id, business_id, name, phone, instagram_id, instagram_handle, email)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := s.pool.QueryRow(ctx, query,
		client.ID,
		client.BusinessID,
		client.Name,
		client.Phone,
		client.InstagramID,
		client.InstagramHandle,
		client.Email,
	).Scan(&client.CreatedAt, &client.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: insert client failed: %w", err)
	}
	return nil
}

func (s *Postgres) UpdateClient(ctx context.Context, client *Client) error {
	query := `
		UPDATE clients
		SET name = $2, phone = $3, instagram_id = $4, instagram_handle = $5, email = $6, updated_at = now()
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		client.ID,
		client.Name,
		NormalizePhone(client.Phone),
		client.InstagramID,
		client.InstagramHandle,
		client.Email,
	)
	if err != nil {
		return fmt.Errorf("store: update client failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}

func (s *Postgres) EnsureConversation(ctx context.Context, bot *Bot, externalID string, platform Platform) (*Conversation, error) {
	selectQ := `
		SELECT id, business_id, bot_id, external_id, platform, status, paused_until, client_id, last_activity_at
		FROM conversations
		WHERE bot_id = $1 AND external_id = $2
	`
	conv, err := s.scanConversation(s.db.QueryRowContext(ctx, selectQ, bot.ID, externalID))
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: select conversation failed: %w", err)
	}

	newID := uuid.New()
	now := time.Now().UTC()
	insertQ := `
		INSERT INTO conversations (id, business_id, bot_id, external_id, platform, status, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (bot_id, external_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, insertQ, newID, bot.BusinessID, bot.ID, externalID, platform, ConversationActive, now); err != nil {
		return nil, fmt.Errorf("store: insert conversation failed: %w", err)
	}

	// Re-select to cover the concurrent-create race.
	conv, err = s.scanConversation(s.db.QueryRowContext(ctx, selectQ, bot.ID, externalID))
	if err != nil {
		return nil, fmt.Errorf("store: reselect conversation failed: %w", err)
	}
	return conv, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Postgres) scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var pausedUntil sql.NullTime
	var clientID uuid.NullUUID
	if err := row.Scan(
		&conv.ID,
		&conv.BusinessID,
		&conv.BotID,
		&conv.ExternalID,
		&conv.Platform,
		&conv.Status,
		&pausedUntil,
		&clientID,
		&conv.LastActivityAt,
	); err != nil {
		return nil, err
	}
	if pausedUntil.Valid {
		t := pausedUntil.Time
		conv.PausedUntil = &t
	}
	if clientID.Valid {
		id := clientID.UUID
		conv.ClientID = &id
	}
	return &conv, nil
}

func (s *Postgres) AppendMessage(ctx context.Context, msg *Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Type == "" {
		msg.Type = MessageText
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal message metadata failed: %w", err)
	}
	query := `
		INSERT INTO messages (id, conversation_id, sender, body, type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := s.db.ExecContext(ctx, query, msg.ID, msg.ConversationID, msg.Sender, msg.Body, msg.Type, metadata, msg.CreatedAt); err != nil {
		return fmt.Errorf("store: insert message failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET last_activity_at = $2 WHERE id = $1`,
		msg.ConversationID, msg.CreatedAt,
	); err != nil {
		return fmt.Errorf("store: touch conversation failed: %w", err)
	}
	return nil
}

func (s *Postgres) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT id, conversation_id, sender, body, type, metadata, created_at
		FROM (
			SELECT id, conversation_id, sender, body, type, metadata, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: select messages failed: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var metadata []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Body, &m.Type, &metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message failed: %w", err)
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &m.Metadata)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *Postgres) LinkClient(ctx context.Context, conversationID, clientID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET client_id = $2 WHERE id = $1`,
		conversationID, clientID,
	)
	if err != nil {
		return fmt.Errorf("store: link client failed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *Postgres) SetConversationStatus(ctx context.Context, conversationID uuid.UUID, status ConversationStatus, pausedUntil *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = $2, paused_until = $3 WHERE id = $1`,
		conversationID, status, pausedUntil,
	)
	if err != nil {
		return fmt.Errorf("store: set conversation status failed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *Postgres) CreateOrder(ctx context.Context, order *Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Status == "" {
		order.Status = OrderPending
	}
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("store: marshal order items failed: %w", err)
	}
	query := `
		INSERT INTO orders (id, business_id, client_id, conversation_id, items, total,
		                    fulfillment, delivery_address, contact_phone, status, notes, dedup_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`
	err = s.pool.QueryRow(ctx, query,
		order.ID,
		order.BusinessID,
		order.ClientID,
		order.ConversationID,
		items,
		order.Total,
		order.Fulfillment,
		order.DeliveryAddress,
		order.ContactPhone,
		order.Status,
		order.Notes,
		order.DedupKey,
	).Scan(&order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRecord
		}
		return fmt.Errorf("store: insert order failed: %w", err)
	}
	return nil
}

func (s *Postgres) CreateReservation(ctx context.Context, res *Reservation) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if res.Status == "" {
		res.Status = ReservationPending
	}
	query := `
		INSERT INTO reservations (id, business_id, client_id, conversation_id, customer_name,
		                          customer_phone, date, time, party_size, special_requests, status, dedup_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`
	err := s.pool.QueryRow(ctx, query,
		res.ID,
		res.BusinessID,
		res.ClientID,
		res.ConversationID,
		res.CustomerName,
		res.CustomerPhone,
		res.Date,
		res.Time,
		res.PartySize,
		res.SpecialRequests,
		res.Status,
		res.DedupKey,
	).Scan(&res.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRecord
		}
		return fmt.Errorf("store: insert reservation failed: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
