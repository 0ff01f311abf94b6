package pipeline

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clientela-ai/clientela/internal/genai"
	"github.com/clientela-ai/clientela/internal/store"
	"github.com/clientela-ai/clientela/pkg/logging"
)

func TestResolveWhatsAppShortCircuit(t *testing.T) {
	mem := store.NewMemory()
	r := NewResolver(mem, logging.Default())
	gen := &fakeGen{responses: []genai.Response{{Text: `{"name":"","phone":""}`}}}

	id := r.Resolve(context.Background(), gen, &InboundRequest{
		Message:     "hola",
		SenderName:  "Ana García",
		SenderPhone: "+54 11 5551-1234",
	}, store.PlatformWhatsApp, uuid.New(), nil)

	assert.Equal(t, "Ana García", id.Name)
	assert.Equal(t, "+541155511234", id.Phone)
	assert.Zero(t, gen.calls, "no inference expected when the channel supplies both")
}

func TestResolveInstagramHandleIsNotAName(t *testing.T) {
	mem := store.NewMemory()
	r := NewResolver(mem, logging.Default())
	gen := &fakeGen{responses: []genai.Response{{Text: `{"name":"","phone":""}`}}}

	id := r.Resolve(context.Background(), gen, &InboundRequest{
		Message:           "hola, tienen mesas?",
		SenderName:        "@ana.garcia",
		SenderInstagramID: "17841400000001",
	}, store.PlatformInstagram, uuid.New(), nil)

	assert.Empty(t, id.Name)
	assert.Equal(t, "@ana.garcia", id.InstagramHandle)
	assert.Equal(t, "17841400000001", id.InstagramID)
}

func TestResolveGreetingEcho(t *testing.T) {
	mem := store.NewMemory()
	r := NewResolver(mem, logging.Default())
	history := []store.Message{
		{Sender: store.SenderClient, Body: "hola!"},
		{Sender: store.SenderBot, Body: "¡Hola, Martina! ¿En qué te puedo ayudar?"},
	}

	id := r.Resolve(context.Background(), nil, &InboundRequest{Message: "quiero pedir algo"},
		store.PlatformInstagram, uuid.New(), history)

	assert.Equal(t, "Martina", id.Name)
}

func TestResolveGreetingEchoRejectsDiscourseWords(t *testing.T) {
	mem := store.NewMemory()
	r := NewResolver(mem, logging.Default())
	history := []store.Message{
		{Sender: store.SenderBot, Body: "Hola, gracias! ¿En qué te puedo ayudar?"},
	}

	id := r.Resolve(context.Background(), nil, &InboundRequest{Message: "hola"},
		store.PlatformInstagram, uuid.New(), history)

	assert.Empty(t, id.Name)
}

func TestResolveAIExtraction(t *testing.T) {
	mem := store.NewMemory()
	r := NewResolver(mem, logging.Default())
	gen := &fakeGen{responses: []genai.Response{{Text: `{"name":"Ana","phone":"5551234"}`}}}

	id := r.Resolve(context.Background(), gen, &InboundRequest{
		Message: "my name is Ana, my phone is 5551234",
	}, store.PlatformTest, uuid.New(), nil)

	assert.Equal(t, "Ana", id.Name)
	assert.Equal(t, "5551234", id.Phone)
}

func TestResolveRejectsHallucinatedName(t *testing.T) {
	mem := store.NewMemory()
	r := NewResolver(mem, logging.Default())
	gen := &fakeGen{responses: []genai.Response{{Text: `{"name":"Roberto","phone":""}`}}}

	id := r.Resolve(context.Background(), gen, &InboundRequest{
		Message: "quiero una mesa para dos",
	}, store.PlatformTest, uuid.New(), nil)

	assert.Empty(t, id.Name, "a name absent from the text must be discarded")
}

func TestResolveRegexFallback(t *testing.T) {
	mem := store.NewMemory()
	r := NewResolver(mem, logging.Default())
	gen := &fakeGen{responses: []genai.Response{{Text: "no puedo ayudarte con eso"}}}

	id := r.Resolve(context.Background(), gen, &InboundRequest{
		Message: "me llamo Federico y mi número es 11-5551-2345",
	}, store.PlatformTest, uuid.New(), nil)

	assert.Equal(t, "Federico", id.Name)
	assert.Equal(t, "1155512345", id.Phone)
}

func TestResolveAdoptsStoredNameByPhone(t *testing.T) {
	mem := store.NewMemory()
	businessID := uuid.New()
	require.NoError(t, mem.CreateClient(context.Background(), &store.Client{
		ID:         uuid.New(),
		BusinessID: businessID,
		Name:       "Ana",
		Phone:      "5551234",
	}))
	r := NewResolver(mem, logging.Default())
	gen := &fakeGen{responses: []genai.Response{{Text: `{"name":"","phone":""}`}}}

	id := r.Resolve(context.Background(), gen, &InboundRequest{
		Message:     "hola de nuevo",
		SenderPhone: "5551234",
	}, store.PlatformTest, businessID, nil)

	assert.Equal(t, "5551234", id.Phone)
	assert.Equal(t, "Ana", id.Name, "stored name is adopted when the key matches")
	require.NotNil(t, id.Client)
}

func TestResolveFailedAIDegradesSilently(t *testing.T) {
	mem := store.NewMemory()
	r := NewResolver(mem, logging.Default())
	gen := &fakeGen{responses: []genai.Response{{}}, errs: []error{genai.ErrOverloaded}}

	id := r.Resolve(context.Background(), gen, &InboundRequest{
		Message: "soy Carla",
	}, store.PlatformTest, uuid.New(), nil)

	assert.Equal(t, "Carla", id.Name)
}
