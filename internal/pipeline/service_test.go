package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clientela-ai/clientela/internal/genai"
	"github.com/clientela-ai/clientela/internal/store"
	"github.com/clientela-ai/clientela/pkg/logging"
)

// fakeFactory hands every bot the same client.
type fakeFactory struct {
	client genai.Client
	err    error
}

func (f *fakeFactory) ClientFor(ctx context.Context, apiKey, model string) (genai.Client, error) {
	return f.client, f.err
}

func seedTestBot(mem *store.Memory) *store.Bot {
	bot := &store.Bot{
		ID:                  uuid.New(),
		BusinessID:          uuid.New(),
		Name:                "Resto Bot",
		Persona:             "Sos el asistente de La Esquina.",
		Platform:            store.PlatformTest,
		GenerationKey:       "test-key",
		CanTakeOrders:       true,
		CanTakeReservations: true,
		CanRegisterClients:  true,
	}
	mem.SeedBot(bot, &store.BusinessProfile{
		ID:    bot.BusinessID,
		Name:  "La Esquina",
		Hours: "12:00-23:00",
	})
	mem.SeedCatalog(bot.BusinessID, burgerCatalog()...)
	return bot
}

func newTestService(mem *store.Memory, gen genai.Client) *Service {
	svc := NewService(mem, &fakeFactory{client: gen}, DetectorConfig{}, nil, logging.Default())
	svc.extractor.now = func() time.Time { return refNow }
	svc.coord.now = func() time.Time { return refNow }
	return svc
}

func TestProcessValidation(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(mem, &fakeGen{responses: []genai.Response{{Text: "hola"}}})

	_, err := svc.Process(context.Background(), &InboundRequest{Message: "hola"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Process(context.Background(), &InboundRequest{
		BotID: uuid.New(), Message: " ", ConversationID: "t1",
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestProcessUnknownBot(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(mem, &fakeGen{responses: []genai.Response{{Text: "hola"}}})

	_, err := svc.Process(context.Background(), &InboundRequest{
		BotID: uuid.New(), Message: "hola", ConversationID: "t1",
	})
	assert.ErrorIs(t, err, store.ErrBotNotFound)
}

func TestProcessPlainExchange(t *testing.T) {
	mem := store.NewMemory()
	bot := seedTestBot(mem)
	gen := &fakeGen{responses: []genai.Response{{Text: "¡Hola! ¿En qué te puedo ayudar?"}}}
	svc := newTestService(mem, gen)

	result, err := svc.Process(context.Background(), &InboundRequest{
		BotID: bot.ID, Message: "hola", ConversationID: "thread-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "¡Hola! ¿En qué te puedo ayudar?", result.Response)
	assert.Equal(t, bot.ID, result.BotID)

	msgs, err := mem.RecentMessages(context.Background(), result.ConversationID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.SenderClient, msgs[0].Sender)
	assert.Equal(t, store.SenderBot, msgs[1].Sender)
}

func TestProcessOverloadedBackendFallsBack(t *testing.T) {
	mem := store.NewMemory()
	bot := seedTestBot(mem)
	inner := &fakeGen{
		responses: []genai.Response{{}},
		errs:      []error{genai.ErrOverloaded},
	}
	retrying := genai.NewRetryClient(inner, logging.Default(), genai.WithBaseDelay(time.Millisecond))
	svc := newTestService(mem, retrying)

	result, err := svc.Process(context.Background(), &InboundRequest{
		BotID:          bot.ID,
		Message:        "hola",
		ConversationID: "thread-1",
		SenderName:     "Ana",
		SenderPhone:    "5551234",
		Platform:       "whatsapp",
	})
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, result.Response)
	assert.Equal(t, 3, inner.calls, "exactly three attempts against an overloaded backend")
}

func TestProcessNotConfiguredBot(t *testing.T) {
	mem := store.NewMemory()
	bot := seedTestBot(mem)
	svc := NewService(mem, &fakeFactory{err: genai.ErrNotConfigured}, DetectorConfig{}, nil, logging.Default())

	result, err := svc.Process(context.Background(), &InboundRequest{
		BotID: bot.ID, Message: "hola", ConversationID: "thread-1",
	})
	require.NoError(t, err)
	assert.Equal(t, NotConfiguredReply, result.Response)
}

func TestProcessPausedConversation(t *testing.T) {
	mem := store.NewMemory()
	bot := seedTestBot(mem)
	svc := newTestService(mem, &fakeGen{responses: []genai.Response{{Text: "hola"}}})

	conv, err := mem.EnsureConversation(context.Background(), bot, "thread-1", store.PlatformTest)
	require.NoError(t, err)
	require.NoError(t, mem.SetConversationStatus(context.Background(), conv.ID, store.ConversationPaused, nil))

	_, err = svc.Process(context.Background(), &InboundRequest{
		BotID: bot.ID, Message: "hola?", ConversationID: "thread-1",
	})
	assert.ErrorIs(t, err, ErrConversationPaused)

	// The inbound message is still recorded for the human agent.
	msgs, err := mem.RecentMessages(context.Background(), conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hola?", msgs[0].Body)
}

func TestProcessPickupOrderEndToEnd(t *testing.T) {
	mem := store.NewMemory()
	bot := seedTestBot(mem)
	gen := &fakeGen{
		responses: []genai.Response{
			{Text: "perfect, noted. Your cheeseburger will be ready for pickup."},
			{Text: `{"items":[{"name":"Cheeseburger","quantity":1}],"fulfillment":"pickup"}`},
		},
	}
	svc := newTestService(mem, gen)

	result, err := svc.Process(context.Background(), &InboundRequest{
		BotID:          bot.ID,
		Message:        "I'll take the cheeseburger for pickup",
		ConversationID: "thread-1",
		SenderName:     "Ana",
		SenderPhone:    "5551234",
		Platform:       "whatsapp",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Order)

	orders := mem.Orders()
	require.Len(t, orders, 1)
	order := orders[0]
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Cheeseburger", order.Items[0].Name)
	assert.Equal(t, 1, order.Items[0].Quantity)
	assert.Equal(t, int64(11000), order.Items[0].UnitPrice)
	assert.Equal(t, int64(11000), order.Total)
	assert.Equal(t, store.FulfillmentPickup, order.Fulfillment)
	assert.Equal(t, store.OrderPending, order.Status)
	assert.Equal(t, "5551234", order.ContactPhone)
}

func TestProcessDuplicateCommitmentSuppressed(t *testing.T) {
	mem := store.NewMemory()
	bot := seedTestBot(mem)
	gen := &fakeGen{
		responses: []genai.Response{
			{Text: "perfecto, anotado. Pedido confirmado para retiro."},
			{Text: `{"items":[{"name":"Cheeseburger","quantity":1}],"fulfillment":"pickup"}`},
			{Text: "pedido confirmado, te esperamos"},
			{Text: `{"items":[{"name":"Cheeseburger","quantity":1}],"fulfillment":"pickup"}`},
		},
	}
	svc := newTestService(mem, gen)

	req := &InboundRequest{
		BotID:          bot.ID,
		Message:        "una cheeseburger para retirar",
		ConversationID: "thread-1",
		SenderName:     "Ana",
		SenderPhone:    "5551234",
		Platform:       "whatsapp",
	}
	_, err := svc.Process(context.Background(), req)
	require.NoError(t, err)

	req.Message = "si, confirmo la cheeseburger para retirar"
	_, err = svc.Process(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, mem.Orders(), 1, "same payload in the dedup window creates one order")
}

func TestProcessReservationMergesPlaceholderClient(t *testing.T) {
	mem := store.NewMemory()
	bot := seedTestBot(mem)
	require.NoError(t, mem.CreateClient(context.Background(), &store.Client{
		ID:         uuid.New(),
		BusinessID: bot.BusinessID,
		Name:       "Cliente sin nombre",
		Phone:      "5551234",
	}))

	gen := &fakeGen{
		responses: []genai.Response{
			{Text: `{"name":"Ana","phone":"5551234"}`},
			{Text: "¡Reserva confirmada! Te esperamos el sábado a las 20:00."},
			{Text: "NO_RESERVATION"},
		},
	}
	svc := newTestService(mem, gen)

	result, err := svc.Process(context.Background(), &InboundRequest{
		BotID:          bot.ID,
		Message:        "Saturday at 8pm for 4 people, my name is Ana, my phone is 5551234",
		ConversationID: "thread-1",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Reservation)

	clients := mem.Clients()
	require.Len(t, clients, 1, "merge must not create a duplicate client")
	assert.Equal(t, "Ana", clients[0].Name)

	reservations := mem.Reservations()
	require.Len(t, reservations, 1)
	res := reservations[0]
	assert.Equal(t, "Ana", res.CustomerName)
	assert.Equal(t, "5551234", res.CustomerPhone)
	assert.Equal(t, "20:00", res.Time)
	assert.Equal(t, 4, res.PartySize)
	assert.Equal(t, time.Saturday, res.Date.Weekday())
	assert.True(t, res.Date.After(refNow.Truncate(24*time.Hour)))

	conv, ok := mem.Conversation(result.ConversationID)
	require.True(t, ok)
	require.NotNil(t, conv.ClientID)
	assert.Equal(t, clients[0].ID, *conv.ClientID)
}

func TestProcessDeliveryOrderWaitsForAddress(t *testing.T) {
	mem := store.NewMemory()
	bot := seedTestBot(mem)
	gen := &fakeGen{
		responses: []genai.Response{
			{Text: "perfecto, anotado. ¿A dónde te lo enviamos?"},
			{Text: "NO_ORDER"},
			{Text: "pedido confirmado, sale para tu casa"},
			{Text: "NO_ORDER"},
		},
	}
	svc := newTestService(mem, gen)

	req := &InboundRequest{
		BotID:          bot.ID,
		Message:        "una cheeseburger por delivery",
		ConversationID: "thread-1",
		SenderName:     "Ana",
		SenderPhone:    "5551234",
		Platform:       "whatsapp",
	}
	_, err := svc.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, mem.Orders(), "no delivery order before an address is given")

	req.Message = "vivo en Calle Falsa 123"
	_, err = svc.Process(context.Background(), req)
	require.NoError(t, err)

	orders := mem.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, store.FulfillmentDelivery, orders[0].Fulfillment)
}

func TestProcessSameNameDifferentPhonesTwoClients(t *testing.T) {
	mem := store.NewMemory()
	bot := seedTestBot(mem)
	gen := &fakeGen{responses: []genai.Response{{Text: "¡Hola Ana!"}}}
	svc := newTestService(mem, gen)

	for i, phone := range []string{"5551111", "5552222"} {
		_, err := svc.Process(context.Background(), &InboundRequest{
			BotID:          bot.ID,
			Message:        "hola",
			ConversationID: "thread-" + string(rune('a'+i)),
			SenderName:     "Ana",
			SenderPhone:    phone,
			Platform:       "whatsapp",
		})
		require.NoError(t, err)
	}

	assert.Len(t, mem.Clients(), 2, "name alone never merges two clients")
}
