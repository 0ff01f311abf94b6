package pipeline

import (
	"strings"

	"github.com/clientela-ai/clientela/internal/store"
)

// DetectorConfig holds the heuristic keyword tables the detector matches
// against. Kept as data so businesses can extend or localize the phrase sets
// without touching control flow.
type DetectorConfig struct {
	// OrderConfirmations are phrases in the generated reply that explicitly
	// finalize an order.
	OrderConfirmations []string
	// ReservationConfirmations are phrases in the generated reply that
	// explicitly finalize a reservation.
	ReservationConfirmations []string
	// AffirmativeTones are short acknowledgement phrases; required by the
	// implicit-completeness signal so a bare product mention never fires.
	AffirmativeTones []string
	// PickupKeywords and DeliveryKeywords mark a fulfillment modality in the
	// exchange text.
	PickupKeywords   []string
	DeliveryKeywords []string
	// AddressIndicators mark that a delivery address has been supplied.
	AddressIndicators []string
}

// DefaultDetectorConfig returns the built-in Spanish and English phrase sets.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		OrderConfirmations: []string{
			"pedido confirmado",
			"tu pedido está confirmado",
			"tu pedido esta confirmado",
			"orden confirmada",
			"pedido registrado",
			"resumen de tu pedido",
			"resumen del pedido",
			"order confirmed",
			"your order is confirmed",
			"order summary",
			"total a pagar",
			"total:",
		},
		ReservationConfirmations: []string{
			"reserva confirmada",
			"reservación confirmada",
			"reservacion confirmada",
			"tu reserva está confirmada",
			"tu reserva esta confirmada",
			"te esperamos el",
			"los esperamos el",
			"reservation confirmed",
			"your reservation is confirmed",
			"we'll see you on",
			"see you on",
		},
		AffirmativeTones: []string{
			"perfecto",
			"excelente",
			"listo",
			"anotado",
			"de acuerdo",
			"genial",
			"perfect",
			"great",
			"noted",
			"got it",
			"sounds good",
		},
		PickupKeywords: []string{
			"retiro",
			"retirar",
			"para llevar",
			"paso a buscar",
			"lo busco",
			"pickup",
			"pick up",
			"take away",
			"takeaway",
		},
		DeliveryKeywords: []string{
			"delivery",
			"envío",
			"envio",
			"a domicilio",
			"me lo traen",
			"me lo mandan",
			"deliver",
		},
		AddressIndicators: []string{
			"calle",
			"avenida",
			"av.",
			"barrio",
			"dirección",
			"direccion",
			"mi casa es",
			"vivo en",
			"street",
			"avenue",
			"my address",
			"address is",
		},
	}
}

// Commitment is the detector's verdict for one exchange. Order and
// reservation detection are independent; both may fire.
type Commitment struct {
	OrderCommitted       bool
	ReservationCommitted bool
}

// Detector classifies whether the latest exchange finalizes an order or a
// reservation. It is a gate for the extractor and produces no fields itself.
type Detector struct {
	cfg DetectorConfig
}

// NewDetector builds a detector from a config. Zero-value phrase sets fall
// back to the defaults.
func NewDetector(cfg DetectorConfig) *Detector {
	def := DefaultDetectorConfig()
	if len(cfg.OrderConfirmations) == 0 {
		cfg.OrderConfirmations = def.OrderConfirmations
	}
	if len(cfg.ReservationConfirmations) == 0 {
		cfg.ReservationConfirmations = def.ReservationConfirmations
	}
	if len(cfg.AffirmativeTones) == 0 {
		cfg.AffirmativeTones = def.AffirmativeTones
	}
	if len(cfg.PickupKeywords) == 0 {
		cfg.PickupKeywords = def.PickupKeywords
	}
	if len(cfg.DeliveryKeywords) == 0 {
		cfg.DeliveryKeywords = def.DeliveryKeywords
	}
	if len(cfg.AddressIndicators) == 0 {
		cfg.AddressIndicators = def.AddressIndicators
	}
	return &Detector{cfg: cfg}
}

// Detect combines the customer message and the generated reply and applies
// two independent signals per category: an explicit-confirmation phrase in
// the reply, and (orders only) an implicit-completeness check requiring a
// catalog product, a fulfillment keyword and an affirmative reply tone.
func (d *Detector) Detect(userMessage, reply string, catalog []store.Product) Commitment {
	replyLower := strings.ToLower(reply)
	exchange := strings.ToLower(userMessage) + "\n" + replyLower

	var c Commitment
	if containsAny(replyLower, d.cfg.OrderConfirmations) {
		c.OrderCommitted = true
	}
	if containsAny(replyLower, d.cfg.ReservationConfirmations) {
		c.ReservationCommitted = true
	}

	if !c.OrderCommitted {
		hasProduct := false
		for _, p := range catalog {
			if p.Available && strings.Contains(exchange, strings.ToLower(p.Name)) {
				hasProduct = true
				break
			}
		}
		hasFulfillment := containsAny(exchange, d.cfg.PickupKeywords) || containsAny(exchange, d.cfg.DeliveryKeywords)
		affirmative := containsAny(replyLower, d.cfg.AffirmativeTones)
		if hasProduct && hasFulfillment && affirmative {
			c.OrderCommitted = true
		}
	}
	return c
}

// Fulfillment infers the fulfillment modality from the exchange text.
// Delivery keywords win over pickup when both appear.
func (d *Detector) Fulfillment(exchange string) store.FulfillmentType {
	lower := strings.ToLower(exchange)
	if containsAny(lower, d.cfg.DeliveryKeywords) {
		return store.FulfillmentDelivery
	}
	return store.FulfillmentPickup
}

// HasAddress reports whether address-indicating text is present in the
// exchange. A delivery order is held back until this returns true.
func (d *Detector) HasAddress(exchange string) bool {
	return containsAny(strings.ToLower(exchange), d.cfg.AddressIndicators)
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
