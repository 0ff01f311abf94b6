package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/clientela-ai/clientela/internal/store"
)

// historyWindow is how many transcript messages make it into the prompt.
const historyWindow = 8

// Assembler builds the generation prompt from business context, bot
// capability flags, conversation history and the resolved identity. It is
// deterministic given the same inputs; its only write is the lazy creation
// of default delivery settings behind GetOrCreateDeliverySettings.
type Assembler struct {
	ctx store.BusinessContext
}

// NewAssembler builds an assembler over the business context accessor.
func NewAssembler(bc store.BusinessContext) *Assembler {
	if bc == nil {
		panic("pipeline: business context is required")
	}
	return &Assembler{ctx: bc}
}

// Prompt is the assembled generation input, split into the persona system
// text and the contextual prompt body.
type Prompt struct {
	System string
	Body   string
}

// Assemble produces the full prompt for one inbound message.
func (a *Assembler) Assemble(ctx context.Context, bot *store.Bot, identity *Identity, history []store.Message, userMessage string) (*Prompt, error) {
	profile, err := a.ctx.GetBusinessProfile(ctx, bot.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load business profile: %w", err)
	}

	var b strings.Builder

	b.WriteString("Negocio: ")
	b.WriteString(profile.Name)
	b.WriteString("\n")
	if profile.Description != "" {
		b.WriteString(profile.Description)
		b.WriteString("\n")
	}
	if profile.Hours != "" {
		b.WriteString("Horarios: ")
		b.WriteString(profile.Hours)
		b.WriteString("\n")
	}

	b.WriteString("\nCapacidades:\n")
	b.WriteString(capabilityLine("tomar pedidos", bot.CanTakeOrders))
	b.WriteString(capabilityLine("tomar reservas", bot.CanTakeReservations))
	b.WriteString(capabilityLine("registrar clientes", bot.CanRegisterClients))

	if bot.CanTakeOrders {
		catalog, err := a.ctx.GetCatalog(ctx, bot.BusinessID)
		if err != nil {
			return nil, fmt.Errorf("pipeline: load catalog: %w", err)
		}
		writeCatalog(&b, catalog)

		settings, err := a.ctx.GetOrCreateDeliverySettings(ctx, bot.BusinessID)
		if err != nil {
			return nil, fmt.Errorf("pipeline: load delivery settings: %w", err)
		}
		writeDelivery(&b, settings)
	}

	writeIdentity(&b, identity)
	writeTranscript(&b, history, userMessage)

	return &Prompt{System: bot.Persona, Body: b.String()}, nil
}

func capabilityLine(label string, enabled bool) string {
	if enabled {
		return "- Puede " + label + "\n"
	}
	return "- No puede " + label + "\n"
}

// writeCatalog renders available items grouped by category, categories and
// items in stable alphabetical order.
func writeCatalog(b *strings.Builder, catalog []store.Product) {
	groups := make(map[string][]store.Product)
	for _, p := range catalog {
		if !p.Available {
			continue
		}
		cat := p.Category
		if cat == "" {
			cat = "Otros"
		}
		groups[cat] = append(groups[cat], p)
	}
	if len(groups) == 0 {
		return
	}
	cats := make([]string, 0, len(groups))
	for cat := range groups {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	b.WriteString("\nCatálogo:\n")
	for _, cat := range cats {
		items := groups[cat]
		sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
		b.WriteString(cat)
		b.WriteString(":\n")
		for _, p := range items {
			fmt.Fprintf(b, "- %s: $%d", p.Name, p.Price)
			if p.Description != "" {
				b.WriteString(" (")
				b.WriteString(p.Description)
				b.WriteString(")")
			}
			b.WriteString("\n")
		}
	}
}

func writeDelivery(b *strings.Builder, s *store.DeliverySettings) {
	b.WriteString("\nModalidades de entrega:\n")
	if s.PickupEnabled {
		fmt.Fprintf(b, "- Retiro en local (aprox. %d min)\n", s.PickupEstimateMins)
	}
	if s.DeliveryEnabled {
		fmt.Fprintf(b, "- Delivery (aprox. %d min, costo $%d)\n", s.DeliveryEstimateMins, s.DeliveryFee)
	}
	if !s.PickupEnabled && !s.DeliveryEnabled {
		b.WriteString("- Sin modalidades configuradas\n")
	}
}

func writeIdentity(b *strings.Builder, identity *Identity) {
	if identity == nil {
		return
	}
	b.WriteString("\nCliente:\n")
	if !store.IsPlaceholderName(identity.Name) {
		b.WriteString("- Nombre: ")
		b.WriteString(identity.Name)
		b.WriteString("\n")
	} else {
		b.WriteString("- Nombre: desconocido\n")
	}
	if identity.Phone != "" {
		b.WriteString("- Teléfono: ")
		b.WriteString(identity.Phone)
		b.WriteString("\n")
	}
	if identity.Complete() {
		b.WriteString("- Datos completos: sí\n")
	} else {
		b.WriteString("- Datos completos: no (pedir amablemente lo que falte cuando sea natural)\n")
	}
}

func writeTranscript(b *strings.Builder, history []store.Message, userMessage string) {
	b.WriteString("\nConversación reciente:\n")
	start := 0
	if len(history) > historyWindow {
		start = len(history) - historyWindow
	}
	for _, msg := range history[start:] {
		if msg.Sender == store.SenderBot {
			b.WriteString("Asistente: ")
		} else {
			b.WriteString("Cliente: ")
		}
		b.WriteString(msg.Body)
		b.WriteString("\n")
	}
	b.WriteString("Cliente: ")
	b.WriteString(userMessage)
	b.WriteString("\n\nResponde al último mensaje del cliente.")
}
