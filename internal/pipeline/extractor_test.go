package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clientela-ai/clientela/internal/genai"
	"github.com/clientela-ai/clientela/pkg/logging"
)

// fakeGen replays scripted responses in order, repeating the last one.
type fakeGen struct {
	calls     int
	responses []genai.Response
	errs      []error
}

func (f *fakeGen) Generate(ctx context.Context, req genai.Request) (genai.Response, error) {
	idx := f.calls
	f.calls++
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	return f.responses[idx], err
}

func newTestExtractor() *Extractor {
	e := NewExtractor(NewDetector(DetectorConfig{}), logging.Default())
	e.now = func() time.Time { return refNow }
	return e
}

func TestExtractOrderFromAI(t *testing.T) {
	gen := &fakeGen{responses: []genai.Response{{
		Text: "```json\n{\"items\":[{\"name\":\"Cheeseburger\",\"quantity\":2}],\"fulfillment\":\"pickup\"}\n```",
	}}}
	e := newTestExtractor()

	draft := e.ExtractOrder(context.Background(), gen, "Cliente: dos cheeseburger para llevar\nAsistente: perfecto, anotado\n", burgerCatalog())
	require.NotNil(t, draft)
	require.Len(t, draft.Items, 1)
	assert.Equal(t, "Cheeseburger", draft.Items[0].Name)
	assert.Equal(t, 2, draft.Items[0].Quantity)
	assert.Equal(t, int64(11000), draft.Items[0].UnitPrice)
	assert.Equal(t, int64(22000), draft.Total)
	assert.Equal(t, "pickup", string(draft.Fulfillment))
}

func TestExtractOrderFallbackOnSentinel(t *testing.T) {
	gen := &fakeGen{responses: []genai.Response{{Text: "NO_ORDER"}}}
	e := newTestExtractor()

	draft := e.ExtractOrder(context.Background(), gen, "Cliente: I'll take the cheeseburger for pickup\nAsistente: perfect, noted\n", burgerCatalog())
	require.NotNil(t, draft)
	require.Len(t, draft.Items, 1)
	assert.Equal(t, "Cheeseburger", draft.Items[0].Name)
	assert.Equal(t, 1, draft.Items[0].Quantity)
	assert.Equal(t, int64(11000), draft.Total)
	assert.Equal(t, "pickup", string(draft.Fulfillment))
}

func TestExtractOrderFallbackQuantityPatterns(t *testing.T) {
	e := newTestExtractor()

	draft := e.extractOrderFallback("quiero 3 x cheeseburger y papas fritas", burgerCatalog())
	require.NotNil(t, draft)
	require.Len(t, draft.Items, 2)
	assert.Equal(t, 3, draft.Items[0].Quantity)
	assert.Equal(t, 1, draft.Items[1].Quantity)
}

func TestExtractOrderRepeatedMentionExtractedOnce(t *testing.T) {
	gen := &fakeGen{responses: []genai.Response{{Text: "NO_ORDER"}}}
	e := newTestExtractor()

	transcript := "Cliente: una cheeseburger para llevar\nAsistente: perfecto, una cheeseburger anotada\n"
	draft := e.ExtractOrder(context.Background(), gen, transcript, burgerCatalog())
	require.NotNil(t, draft)
	assert.Len(t, draft.Items, 1)
}

func TestExtractOrderTotalIsSumOfLines(t *testing.T) {
	gen := &fakeGen{responses: []genai.Response{{
		Text: `{"items":[{"name":"Cheeseburger","quantity":2},{"name":"Papas fritas","quantity":3}],"fulfillment":"pickup"}`,
	}}}
	e := newTestExtractor()

	draft := e.ExtractOrder(context.Background(), gen, "transcript", burgerCatalog())
	require.NotNil(t, draft)
	assert.Equal(t, int64(2*11000+3*4000), draft.Total)
}

func TestExtractOrderDeliveryHeldWithoutAddress(t *testing.T) {
	e := newTestExtractor()
	transcript := "Cliente: una cheeseburger por delivery\nAsistente: perfecto, anotado\n"

	draft := e.ExtractOrder(context.Background(), &fakeGen{responses: []genai.Response{{Text: "NO_ORDER"}}}, transcript, burgerCatalog())
	assert.Nil(t, draft)

	// Same exchange plus address text now yields the order.
	withAddress := transcript + "Cliente: vivo en Calle Falsa 123\n"
	draft = e.ExtractOrder(context.Background(), &fakeGen{responses: []genai.Response{{Text: "NO_ORDER"}}}, withAddress, burgerCatalog())
	require.NotNil(t, draft)
	assert.Equal(t, "delivery", string(draft.Fulfillment))
}

func TestExtractOrderIgnoresHallucinatedItems(t *testing.T) {
	gen := &fakeGen{responses: []genai.Response{{
		Text: `{"items":[{"name":"Pizza napolitana","quantity":1}],"fulfillment":"pickup"}`,
	}}}
	e := newTestExtractor()

	draft := e.ExtractOrder(context.Background(), gen, "una cheeseburger para llevar, perfecto", burgerCatalog())
	// The AI named an off-catalog item; fallback still finds the real one.
	require.NotNil(t, draft)
	assert.Equal(t, "Cheeseburger", draft.Items[0].Name)
}

func TestExtractReservationFromAI(t *testing.T) {
	gen := &fakeGen{responses: []genai.Response{{
		Text: `{"date":"2025-03-15","time":"20:00","party_size":4,"customer_name":"Ana","customer_phone":"5551234"}`,
	}}}
	e := newTestExtractor()

	draft := e.ExtractReservation(context.Background(), gen, "transcript", nil)
	require.NotNil(t, draft)
	assert.Equal(t, "Ana", draft.CustomerName)
	assert.Equal(t, "5551234", draft.CustomerPhone)
	assert.Equal(t, "20:00", draft.Time)
	assert.Equal(t, 4, draft.PartySize)
	assert.Equal(t, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC), draft.Date)
}

func TestExtractReservationFallbackOnSentinel(t *testing.T) {
	gen := &fakeGen{responses: []genai.Response{{Text: "NO_RESERVATION"}}}
	e := newTestExtractor()
	identity := &Identity{Name: "Ana", Phone: "5551234"}

	draft := e.ExtractReservation(context.Background(), gen, "Saturday at 8pm for 4 people", identity)
	require.NotNil(t, draft)
	assert.Equal(t, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC), draft.Date)
	assert.Equal(t, "20:00", draft.Time)
	assert.Equal(t, 4, draft.PartySize)
	assert.Equal(t, "Ana", draft.CustomerName)
	assert.Equal(t, "5551234", draft.CustomerPhone)
}

func TestExtractReservationTruncatedFallsBack(t *testing.T) {
	gen := &fakeGen{responses: []genai.Response{{Text: `{"date":"2025-03-`, Truncated: true}}}
	e := newTestExtractor()

	draft := e.ExtractReservation(context.Background(), gen, "el viernes a las 21:00 para 2 personas", nil)
	require.NotNil(t, draft)
	assert.Equal(t, time.Date(2025, time.March, 14, 0, 0, 0, 0, time.UTC), draft.Date)
	assert.Equal(t, "21:00", draft.Time)
	assert.Equal(t, 2, draft.PartySize)
}

func TestExtractReservationIncompleteYieldsNil(t *testing.T) {
	gen := &fakeGen{responses: []genai.Response{{Text: "NO_RESERVATION"}}}
	e := newTestExtractor()

	// Date but no time or party size.
	assert.Nil(t, e.ExtractReservation(context.Background(), gen, "el sábado seguro", nil))
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
}
