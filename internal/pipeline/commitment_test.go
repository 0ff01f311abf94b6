package pipeline

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/clientela-ai/clientela/internal/store"
)

func burgerCatalog() []store.Product {
	return []store.Product{
		{ID: uuid.New(), Name: "Cheeseburger", Category: "Burgers", Price: 11000, Available: true},
		{ID: uuid.New(), Name: "Papas fritas", Category: "Acompañamientos", Price: 4000, Available: true},
		{ID: uuid.New(), Name: "Milanesa", Category: "Platos", Price: 9500, Available: false},
	}
}

func TestDetectImplicitOrderCommitment(t *testing.T) {
	d := NewDetector(DetectorConfig{})
	c := d.Detect(
		"I'll take the cheeseburger for pickup",
		"perfect, noted",
		burgerCatalog(),
	)
	assert.True(t, c.OrderCommitted)
	assert.False(t, c.ReservationCommitted)
}

func TestDetectExplicitOrderConfirmation(t *testing.T) {
	d := NewDetector(DetectorConfig{})
	c := d.Detect(
		"si, dale",
		"¡Pedido confirmado! Te avisamos cuando esté listo.",
		nil,
	)
	assert.True(t, c.OrderCommitted)
}

func TestDetectProductMentionAloneDoesNotFire(t *testing.T) {
	d := NewDetector(DetectorConfig{})

	// Product named but no fulfillment modality.
	c := d.Detect("¿cuánto sale la cheeseburger?", "perfecto, la cheeseburger sale $11000", burgerCatalog())
	assert.False(t, c.OrderCommitted)

	// Product and modality but no affirmative tone in the reply.
	c = d.Detect("cheeseburger para llevar?", "¿querés agregar algo más?", burgerCatalog())
	assert.False(t, c.OrderCommitted)
}

func TestDetectUnavailableProductDoesNotFire(t *testing.T) {
	d := NewDetector(DetectorConfig{})
	c := d.Detect("una milanesa para llevar", "perfecto, anotado", burgerCatalog())
	assert.False(t, c.OrderCommitted)
}

func TestDetectReservationConfirmation(t *testing.T) {
	d := NewDetector(DetectorConfig{})
	c := d.Detect(
		"Saturday at 8pm for 4 people",
		"¡Reserva confirmada! Te esperamos el sábado a las 20:00.",
		nil,
	)
	assert.True(t, c.ReservationCommitted)
	assert.False(t, c.OrderCommitted)
}

func TestDetectBothCategoriesIndependently(t *testing.T) {
	d := NewDetector(DetectorConfig{})
	c := d.Detect(
		"una cheeseburger para llevar y mesa para el viernes",
		"Pedido confirmado y reserva confirmada, te esperamos el viernes.",
		burgerCatalog(),
	)
	assert.True(t, c.OrderCommitted)
	assert.True(t, c.ReservationCommitted)
}

func TestDetectorConfigOverrides(t *testing.T) {
	d := NewDetector(DetectorConfig{
		OrderConfirmations: []string{"bestellung bestätigt"},
	})
	c := d.Detect("ja", "Bestellung bestätigt!", nil)
	assert.True(t, c.OrderCommitted)

	// Default order phrases no longer apply once overridden.
	c = d.Detect("si", "pedido confirmado", nil)
	assert.False(t, c.OrderCommitted)
}

func TestFulfillmentInference(t *testing.T) {
	d := NewDetector(DetectorConfig{})
	assert.Equal(t, store.FulfillmentDelivery, d.Fulfillment("me lo mandan a casa por delivery"))
	assert.Equal(t, store.FulfillmentPickup, d.Fulfillment("paso a buscar en una hora"))
	assert.Equal(t, store.FulfillmentPickup, d.Fulfillment("sin modalidad"))
}

func TestHasAddress(t *testing.T) {
	d := NewDetector(DetectorConfig{})
	assert.True(t, d.HasAddress("vivo en Calle Falsa 123"))
	assert.True(t, d.HasAddress("my address is 5th Avenue 100"))
	assert.False(t, d.HasAddress("todavía no te pasé nada"))
}
