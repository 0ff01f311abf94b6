package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/clientela-ai/clientela/internal/store"
	"github.com/clientela-ai/clientela/pkg/logging"
)

// Service emails business owners about records the pipeline created. All
// failures are logged and swallowed; notifications are best-effort and never
// affect message processing.
type Service struct {
	email    EmailSender
	profiles store.BusinessContext
	logger   *logging.Logger
}

// NewService creates the notification service.
func NewService(email EmailSender, profiles store.BusinessContext, logger *logging.Logger) *Service {
	if email == nil {
		panic("notify: email sender is required")
	}
	if profiles == nil {
		panic("notify: business context is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, profiles: profiles, logger: logger}
}

// NotifyOrder emails the business owner a summary of a new order.
func (s *Service) NotifyOrder(ctx context.Context, order *store.Order, client *store.Client) {
	profile, ok := s.recipient(ctx, order.BusinessID)
	if !ok {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Nuevo pedido para %s\n\n", profile.Name)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "- %d x %s ($%d c/u)\n", item.Quantity, item.Name, item.UnitPrice)
	}
	fmt.Fprintf(&b, "\nTotal: $%d\n", order.Total)
	if order.Fulfillment == store.FulfillmentDelivery {
		fmt.Fprintf(&b, "Entrega: delivery a %s\n", order.DeliveryAddress)
	} else {
		b.WriteString("Entrega: retiro en local\n")
	}
	writeContact(&b, clientName(client), order.ContactPhone)
	if order.Notes != "" {
		fmt.Fprintf(&b, "Notas: %s\n", order.Notes)
	}

	s.send(ctx, EmailMessage{
		To:      profile.NotifyEmail,
		Subject: fmt.Sprintf("Nuevo pedido · $%d", order.Total),
		Body:    b.String(),
	})
}

// NotifyReservation emails the business owner a summary of a new reservation.
func (s *Service) NotifyReservation(ctx context.Context, res *store.Reservation) {
	profile, ok := s.recipient(ctx, res.BusinessID)
	if !ok {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Nueva reserva para %s\n\n", profile.Name)
	fmt.Fprintf(&b, "Fecha: %s\n", res.Date.Format("02/01/2006"))
	fmt.Fprintf(&b, "Hora: %s\n", res.Time)
	fmt.Fprintf(&b, "Personas: %d\n", res.PartySize)
	writeContact(&b, res.CustomerName, res.CustomerPhone)
	if res.SpecialRequests != "" {
		fmt.Fprintf(&b, "Pedidos especiales: %s\n", res.SpecialRequests)
	}

	s.send(ctx, EmailMessage{
		To:      profile.NotifyEmail,
		Subject: fmt.Sprintf("Nueva reserva · %s %s", res.Date.Format("02/01"), res.Time),
		Body:    b.String(),
	})
}

// recipient loads the profile and reports whether notifications are enabled
// for the business.
func (s *Service) recipient(ctx context.Context, businessID uuid.UUID) (*store.BusinessProfile, bool) {
	profile, err := s.profiles.GetBusinessProfile(ctx, businessID)
	if err != nil {
		s.logger.Warn("notification profile lookup failed", "business_id", businessID, "error", err)
		return nil, false
	}
	if profile.NotifyEmail == "" {
		return nil, false
	}
	return profile, true
}

func writeContact(b *strings.Builder, name, phone string) {
	if name != "" && !store.IsPlaceholderName(name) {
		fmt.Fprintf(b, "Cliente: %s\n", name)
	}
	if phone != "" {
		fmt.Fprintf(b, "Teléfono: %s\n", phone)
	}
}

func clientName(client *store.Client) string {
	if client == nil {
		return ""
	}
	return client.Name
}

func (s *Service) send(ctx context.Context, msg EmailMessage) {
	if err := s.email.Send(ctx, msg); err != nil {
		s.logger.Error("notification send failed", "to", msg.To, "error", err)
	}
}
