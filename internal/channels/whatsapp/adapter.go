package whatsapp

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clientela-ai/clientela/internal/observability/metrics"
	"github.com/clientela-ai/clientela/internal/pipeline"
	"github.com/clientela-ai/clientela/internal/store"
	"github.com/clientela-ai/clientela/pkg/logging"
)

// Processor runs the message pipeline for one inbound request.
type Processor interface {
	Process(ctx context.Context, req *pipeline.InboundRequest) (*pipeline.Result, error)
}

// Adapter answers Twilio WhatsApp webhooks. The reply travels back in the
// webhook response as TwiML, so no outbound API call is needed. Each Twilio
// WhatsApp number maps to one bot.
type Adapter struct {
	processor  Processor
	authToken  string
	webhookURL string
	botMap     map[string]uuid.UUID
	logger     *logging.Logger
	metrics    *metrics.ChannelMetrics
}

// NewAdapter creates the WhatsApp adapter. botMap keys are the business's
// WhatsApp numbers in Twilio's "whatsapp:+NNN" form. webhookURL is the
// public URL Twilio posts to, needed for signature validation; leave
// authToken empty to skip validation in local setups.
func NewAdapter(processor Processor, authToken, webhookURL string, botMap map[string]uuid.UUID, logger *logging.Logger) *Adapter {
	if processor == nil {
		panic("whatsapp: processor is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Adapter{
		processor:  processor,
		authToken:  authToken,
		webhookURL: webhookURL,
		botMap:     botMap,
		logger:     logger,
	}
}

// WithMetrics attaches channel metrics. Safe to skip; observations on a
// nil set are no-ops.
func (a *Adapter) WithMetrics(m *metrics.ChannelMetrics) *Adapter {
	a.metrics = m
	return a
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// HandleWebhook handles POST /webhooks/whatsapp.
func (a *Adapter) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		a.metrics.ObserveWebhookLatency("whatsapp", time.Since(start).Seconds())
	}()

	if a.authToken != "" && !ValidateSignature(r, a.authToken, a.webhookURL) {
		a.metrics.ObserveInbound("whatsapp", "unauthorized")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	msg, err := ParseWebhook(r)
	if err != nil || strings.TrimSpace(msg.Body) == "" || msg.From == "" {
		a.metrics.ObserveInbound("whatsapp", "invalid")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	botID, ok := a.botMap[msg.To]
	if !ok {
		a.metrics.ObserveInbound("whatsapp", "unmapped")
		a.logger.Warn("inbound message for unmapped whatsapp number", "to", msg.To)
		// An empty TwiML response keeps Twilio quiet.
		writeTwiML(w, "")
		return
	}
	a.metrics.ObserveInbound("whatsapp", "ok")

	result, err := a.processor.Process(r.Context(), &pipeline.InboundRequest{
		BotID:          botID,
		Message:        msg.Body,
		ConversationID: Phone(msg.From),
		SenderPhone:    Phone(msg.From),
		SenderName:     msg.ProfileName,
		Platform:       string(store.PlatformWhatsApp),
	})
	if errors.Is(err, pipeline.ErrConversationPaused) {
		writeTwiML(w, "")
		return
	}
	if err != nil {
		a.logger.Error("whatsapp message processing failed", "from", msg.From, "error", err)
		a.metrics.ObserveReply("whatsapp", "fallback")
		writeTwiML(w, pipeline.FallbackReply)
		return
	}

	a.metrics.ObserveReply("whatsapp", "sent")
	writeTwiML(w, result.Response)
}

func writeTwiML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(twimlResponse{Message: body})
}
