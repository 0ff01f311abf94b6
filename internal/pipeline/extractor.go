package pipeline

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/clientela-ai/clientela/internal/genai"
	"github.com/clientela-ai/clientela/internal/store"
	"github.com/clientela-ai/clientela/pkg/logging"
)

// Sentinels the extraction prompt instructs the backend to return when the
// exchange does not contain a complete record.
const (
	noOrderSentinel       = "NO_ORDER"
	noReservationSentinel = "NO_RESERVATION"
)

var (
	codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	// "2 x hamburguesa", "2 hamburguesas", "hamburguesa x2"
	qtyBeforeRe = regexp.MustCompile(`(?i)(\d{1,2})\s*(?:x\s*)?$`)
	qtyAfterRe  = regexp.MustCompile(`(?i)^\s*(?:x\s*)?(\d{1,2})`)
)

// OrderDraft is an extracted order before persistence fields are attached.
type OrderDraft struct {
	Items           []store.OrderItem
	Total           int64
	Fulfillment     store.FulfillmentType
	DeliveryAddress string
	Notes           string
}

// ReservationDraft is an extracted reservation before persistence fields are
// attached.
type ReservationDraft struct {
	CustomerName    string
	CustomerPhone   string
	Date            time.Time
	Time            string
	PartySize       int
	SpecialRequests string
}

// Extractor turns a committed exchange into a typed order or reservation
// payload. AI-assisted extraction runs first; a deterministic catalog and
// pattern matcher fills in when the backend yields nothing usable.
type Extractor struct {
	detector *Detector
	logger   *logging.Logger
	now      func() time.Time
}

// NewExtractor builds an extractor sharing the detector's keyword tables.
func NewExtractor(detector *Detector, logger *logging.Logger) *Extractor {
	if detector == nil {
		panic("pipeline: detector is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Extractor{detector: detector, logger: logger, now: time.Now}
}

type aiOrderPayload struct {
	Items []struct {
		Name     string `json:"name"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
	Fulfillment     string `json:"fulfillment"`
	DeliveryAddress string `json:"delivery_address"`
	Notes           string `json:"notes"`
}

type aiReservationPayload struct {
	Date            string `json:"date"`
	Time            string `json:"time"`
	PartySize       int    `json:"party_size"`
	CustomerName    string `json:"customer_name"`
	CustomerPhone   string `json:"customer_phone"`
	SpecialRequests string `json:"special_requests"`
}

// ExtractOrder produces an order draft from the exchange transcript, or nil
// when no complete order can be formed. A delivery order with no observed
// address yields nil; extraction is expected to fire again once the address
// arrives.
func (e *Extractor) ExtractOrder(ctx context.Context, client genai.Client, transcript string, catalog []store.Product) *OrderDraft {
	draft := e.extractOrderAI(ctx, client, transcript, catalog)
	if draft == nil {
		draft = e.extractOrderFallback(transcript, catalog)
	}
	if draft == nil || len(draft.Items) == 0 {
		return nil
	}

	if draft.Fulfillment == "" {
		draft.Fulfillment = e.detector.Fulfillment(transcript)
	}
	if draft.Fulfillment == store.FulfillmentDelivery {
		if draft.DeliveryAddress == "" && !e.detector.HasAddress(transcript) {
			e.logger.Info("holding delivery order until an address is supplied")
			return nil
		}
	}

	var total int64
	for _, item := range draft.Items {
		total += item.UnitPrice * int64(item.Quantity)
	}
	draft.Total = total
	return draft
}

func (e *Extractor) extractOrderAI(ctx context.Context, client genai.Client, transcript string, catalog []store.Product) *OrderDraft {
	if client == nil {
		return nil
	}
	var names []string
	for _, p := range catalog {
		if p.Available {
			names = append(names, p.Name)
		}
	}
	prompt := strings.Join([]string{
		"Extract the confirmed order from this conversation.",
		"Catalog items: " + strings.Join(names, ", "),
		"Respond with ONLY a JSON object, no prose:",
		`{"items":[{"name":"...","quantity":1}],"fulfillment":"pickup|delivery","delivery_address":"...","notes":"..."}`,
		"Use only catalog item names. If there is no complete confirmed order, respond with exactly " + noOrderSentinel + ".",
		"",
		"Conversation:",
		transcript,
	}, "\n")

	resp, err := client.Generate(ctx, genai.Request{Prompt: prompt, MaxTokens: 512, Temperature: 0})
	if err != nil {
		e.logger.Warn("order extraction call failed, using fallback", "error", err)
		return nil
	}
	text := stripCodeFence(resp.Text)
	if text == "" || strings.Contains(text, noOrderSentinel) || resp.Truncated {
		return nil
	}

	var payload aiOrderPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		e.logger.Warn("order extraction returned unparseable output", "error", err)
		return nil
	}

	draft := &OrderDraft{
		DeliveryAddress: strings.TrimSpace(payload.DeliveryAddress),
		Notes:           strings.TrimSpace(payload.Notes),
	}
	switch strings.ToLower(payload.Fulfillment) {
	case string(store.FulfillmentDelivery):
		draft.Fulfillment = store.FulfillmentDelivery
	case string(store.FulfillmentPickup):
		draft.Fulfillment = store.FulfillmentPickup
	}
	for _, item := range payload.Items {
		product := matchProduct(item.Name, catalog)
		if product == nil {
			continue
		}
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		if hasItem(draft.Items, product.Name) {
			continue
		}
		draft.Items = append(draft.Items, store.OrderItem{
			Name:      product.Name,
			Quantity:  qty,
			UnitPrice: product.Price,
		})
	}
	if len(draft.Items) == 0 {
		return nil
	}
	return draft
}

// extractOrderFallback is the deterministic catalog-keyword matcher. Each
// catalog item is extracted at most once; the first mention wins. Quantity
// defaults to 1 unless an adjacent "N x item" or "item N" pattern is found.
func (e *Extractor) extractOrderFallback(transcript string, catalog []store.Product) *OrderDraft {
	lower := strings.ToLower(transcript)
	draft := &OrderDraft{}
	for _, p := range catalog {
		if !p.Available {
			continue
		}
		name := strings.ToLower(p.Name)
		idx := strings.Index(lower, name)
		if idx < 0 {
			continue
		}
		if hasItem(draft.Items, p.Name) {
			continue
		}
		qty := 1
		if m := qtyBeforeRe.FindStringSubmatch(lower[:idx]); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				qty = n
			}
		} else if m := qtyAfterRe.FindStringSubmatch(lower[idx+len(name):]); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				qty = n
			}
		}
		draft.Items = append(draft.Items, store.OrderItem{
			Name:      p.Name,
			Quantity:  qty,
			UnitPrice: p.Price,
		})
	}
	if len(draft.Items) == 0 {
		return nil
	}
	return draft
}

// ExtractReservation produces a reservation draft, or nil when no complete
// reservation can be formed. The deterministic pass runs when the backend
// yields nothing or its answer was truncated at the output-length limit.
func (e *Extractor) ExtractReservation(ctx context.Context, client genai.Client, transcript string, identity *Identity) *ReservationDraft {
	draft, truncated := e.extractReservationAI(ctx, client, transcript)
	if draft == nil || truncated {
		draft = e.extractReservationFallback(transcript)
	}
	if draft == nil {
		return nil
	}
	if draft.Date.IsZero() || draft.Time == "" || draft.PartySize <= 0 {
		return nil
	}
	if identity != nil {
		if draft.CustomerName == "" || store.IsPlaceholderName(draft.CustomerName) {
			draft.CustomerName = identity.Name
		}
		if draft.CustomerPhone == "" {
			draft.CustomerPhone = identity.Phone
		}
	}
	return draft
}

func (e *Extractor) extractReservationAI(ctx context.Context, client genai.Client, transcript string) (*ReservationDraft, bool) {
	if client == nil {
		return nil, false
	}
	today := e.now().Format("2006-01-02")
	prompt := strings.Join([]string{
		"Extract the confirmed reservation from this conversation.",
		"Today is " + today + ".",
		"Respond with ONLY a JSON object, no prose:",
		`{"date":"YYYY-MM-DD","time":"HH:MM","party_size":2,"customer_name":"...","customer_phone":"...","special_requests":"..."}`,
		"If there is no complete confirmed reservation, respond with exactly " + noReservationSentinel + ".",
		"",
		"Conversation:",
		transcript,
	}, "\n")

	resp, err := client.Generate(ctx, genai.Request{Prompt: prompt, MaxTokens: 256, Temperature: 0})
	if err != nil {
		e.logger.Warn("reservation extraction call failed, using fallback", "error", err)
		return nil, false
	}
	text := stripCodeFence(resp.Text)
	if text == "" || strings.Contains(text, noReservationSentinel) {
		return nil, resp.Truncated
	}
	if resp.Truncated {
		return nil, true
	}

	var payload aiReservationPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		e.logger.Warn("reservation extraction returned unparseable output", "error", err)
		return nil, false
	}
	date, err := time.Parse("2006-01-02", payload.Date)
	if err != nil {
		return nil, false
	}
	clock := ParseTimeOfDay(payload.Time)
	if clock == "" {
		return nil, false
	}
	return &ReservationDraft{
		CustomerName:    strings.TrimSpace(payload.CustomerName),
		CustomerPhone:   store.NormalizePhone(payload.CustomerPhone),
		Date:            date,
		Time:            clock,
		PartySize:       payload.PartySize,
		SpecialRequests: strings.TrimSpace(payload.SpecialRequests),
	}, false
}

func (e *Extractor) extractReservationFallback(transcript string) *ReservationDraft {
	date := ResolveDate(transcript, e.now())
	clock := ParseTimeOfDay(transcript)
	size := ParsePartySize(transcript)
	if date.IsZero() || clock == "" || size <= 0 {
		return nil
	}
	return &ReservationDraft{
		Date:      date,
		Time:      clock,
		PartySize: size,
	}
}

// stripCodeFence removes a Markdown code fence wrapper, if any, and trims
// whitespace.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

func matchProduct(name string, catalog []store.Product) *store.Product {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return nil
	}
	for i := range catalog {
		p := &catalog[i]
		if !p.Available {
			continue
		}
		pn := strings.ToLower(p.Name)
		if pn == lower || strings.Contains(lower, pn) || strings.Contains(pn, lower) {
			return p
		}
	}
	return nil
}

func hasItem(items []store.OrderItem, name string) bool {
	for _, it := range items {
		if it.Name == name {
			return true
		}
	}
	return false
}
