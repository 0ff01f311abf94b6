package instagram

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clientela-ai/clientela/internal/observability/metrics"
	"github.com/clientela-ai/clientela/internal/pipeline"
	"github.com/clientela-ai/clientela/internal/store"
	"github.com/clientela-ai/clientela/pkg/logging"
)

// processTimeout bounds one inbound message's pipeline run, Graph send
// included.
const processTimeout = 60 * time.Second

// Processor runs the message pipeline for one inbound request.
type Processor interface {
	Process(ctx context.Context, req *pipeline.InboundRequest) (*pipeline.Result, error)
}

// Sender sends a text DM back to an Instagram user.
type Sender interface {
	SendText(ctx context.Context, recipientID, text string) (*SendResponse, error)
}

// Adapter connects Meta webhooks to the pipeline. Each business account id
// (the webhook's recipient) maps to one bot.
type Adapter struct {
	processor Processor
	sender    Sender
	webhook   *WebhookHandler
	botMap    map[string]uuid.UUID
	logger    *logging.Logger
	metrics   *metrics.ChannelMetrics
}

// NewAdapter creates the Instagram adapter. botMap keys are Instagram
// business account ids, values the bot that owns them.
func NewAdapter(processor Processor, sender Sender, appSecret, verifyToken string, botMap map[string]uuid.UUID, logger *logging.Logger) *Adapter {
	if processor == nil {
		panic("instagram: processor is required")
	}
	if sender == nil {
		panic("instagram: sender is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	a := &Adapter{
		processor: processor,
		sender:    sender,
		botMap:    botMap,
		logger:    logger,
	}
	a.webhook = NewWebhookHandler(verifyToken, appSecret, a.handleInbound)
	return a
}

// WithMetrics attaches channel metrics. Safe to skip; observations on a
// nil set are no-ops.
func (a *Adapter) WithMetrics(m *metrics.ChannelMetrics) *Adapter {
	a.metrics = m
	return a
}

// HandleVerification handles GET /webhooks/instagram.
func (a *Adapter) HandleVerification(w http.ResponseWriter, r *http.Request) {
	a.webhook.HandleVerification(w, r)
}

// HandleWebhook handles POST /webhooks/instagram.
func (a *Adapter) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	a.webhook.HandleInbound(w, r)
}

// handleInbound runs after the webhook already answered 200, so it carries
// its own deadline instead of the request's.
func (a *Adapter) handleInbound(msg InboundMessage) {
	start := time.Now()
	defer func() {
		a.metrics.ObserveWebhookLatency("instagram", time.Since(start).Seconds())
	}()

	botID, ok := a.botMap[msg.RecipientID]
	if !ok {
		a.metrics.ObserveInbound("instagram", "unmapped")
		a.logger.Warn("inbound message for unmapped instagram account", "recipient_id", msg.RecipientID)
		return
	}
	a.metrics.ObserveInbound("instagram", "ok")

	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	// Usernames are handles, not display names; mark them so identity
	// resolution never mistakes one for a real name.
	senderName := msg.SenderUsername
	if senderName != "" {
		senderName = "@" + senderName
	}

	result, err := a.processor.Process(ctx, &pipeline.InboundRequest{
		BotID:             botID,
		Message:           msg.Text,
		ConversationID:    msg.SenderID,
		SenderName:        senderName,
		SenderInstagramID: msg.SenderID,
		Platform:          string(store.PlatformInstagram),
	})
	if errors.Is(err, pipeline.ErrConversationPaused) {
		a.logger.Info("conversation paused, not replying", "sender_id", msg.SenderID)
		return
	}
	if err != nil {
		a.logger.Error("instagram message processing failed", "sender_id", msg.SenderID, "error", err)
		return
	}

	if _, err := a.sender.SendText(ctx, msg.SenderID, result.Response); err != nil {
		a.metrics.ObserveReply("instagram", "error")
		a.logger.Error("instagram reply send failed", "sender_id", msg.SenderID, "error", err)
		return
	}
	a.metrics.ObserveReply("instagram", "sent")
}
