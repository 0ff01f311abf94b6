package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clientela-ai/clientela/internal/genai"
	"github.com/clientela-ai/clientela/internal/store"
	"github.com/clientela-ai/clientela/pkg/logging"
)

var tracer = otel.Tracer("clientela/pipeline")

// Notifier is told about records the pipeline persisted. Implementations
// must be non-blocking best-effort; the reply is already on its way.
type Notifier interface {
	NotifyOrder(ctx context.Context, order *store.Order, client *store.Client)
	NotifyReservation(ctx context.Context, res *store.Reservation)
}

// Service runs the full inbound-message flow. One call to Process handles
// one customer message end to end and always produces a reply or a typed
// error the channel adapter can act on.
type Service struct {
	store     store.Store
	factory   genai.Factory
	resolver  *Resolver
	assembler *Assembler
	detector  *Detector
	extractor *Extractor
	coord     *Coordinator
	cache     *TranscriptCache
	notifier  Notifier
	logger    *logging.Logger
	now       func() time.Time

	// convLocks serializes processing per conversation thread so rapid-fire
	// messages on the same thread cannot interleave their side effects.
	convLocks *threadLocks
}

// NewService wires the pipeline. cache may be nil.
func NewService(s store.Store, factory genai.Factory, detectorCfg DetectorConfig, cache *TranscriptCache, logger *logging.Logger) *Service {
	if s == nil {
		panic("pipeline: store is required")
	}
	if factory == nil {
		panic("pipeline: generation factory is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	detector := NewDetector(detectorCfg)
	return &Service{
		store:     s,
		factory:   factory,
		resolver:  NewResolver(s, logger),
		assembler: NewAssembler(s),
		detector:  detector,
		extractor: NewExtractor(detector, logger),
		coord:     NewCoordinator(s, logger),
		cache:     cache,
		logger:    logger,
		now:       time.Now,
		convLocks: newThreadLocks(),
	}
}

// WithNotifier attaches a notifier for persisted records.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// Process handles one inbound message: ensure the conversation, resolve
// identity, assemble the prompt, generate a reply, detect commitments,
// extract and persist records. The customer always receives some reply
// unless the conversation is paused or the request is invalid.
func (s *Service) Process(ctx context.Context, req *InboundRequest) (*Result, error) {
	start := s.now()
	ctx, span := tracer.Start(ctx, "pipeline.Process")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}

	bot, err := s.store.GetBot(ctx, req.BotID)
	if err != nil {
		return nil, err
	}
	platform := req.ResolvedPlatform(bot)
	span.SetAttributes(
		attribute.String("bot.id", bot.ID.String()),
		attribute.String("platform", string(platform)),
	)

	unlock := s.lockThread(bot.ID, req.ConversationID)
	defer unlock()

	conv, err := s.store.EnsureConversation(ctx, bot, req.ConversationID, platform)
	if err != nil {
		return nil, err
	}
	log := s.logger.With("conversation_id", conv.ID, "bot_id", bot.ID)

	inbound := &store.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Sender:         store.SenderClient,
		Body:           req.Message,
		Type:           store.MessageText,
		CreatedAt:      s.now(),
	}

	if conv.Paused(s.now()) {
		// The inbound message is still recorded so a human agent sees it.
		if err := s.store.AppendMessage(ctx, inbound); err != nil {
			log.Error("inbound message append failed", "error", err)
		}
		s.cache.Append(ctx, inbound)
		messagesProcessed.WithLabelValues(string(platform), "paused").Inc()
		return nil, ErrConversationPaused
	}

	history := s.history(ctx, conv.ID)

	if err := s.store.AppendMessage(ctx, inbound); err != nil {
		log.Error("inbound message append failed", "error", err)
	}
	s.cache.Append(ctx, inbound)

	gen, err := s.factory.ClientFor(ctx, bot.GenerationKey, bot.Model)
	if errors.Is(err, genai.ErrNotConfigured) {
		return s.finish(ctx, conv, bot, platform, NotConfiguredReply, "not_configured", start), nil
	}
	if err != nil {
		log.Error("generation client init failed", "error", err)
		return s.finish(ctx, conv, bot, platform, FallbackReply, "fallback", start), nil
	}

	identity := s.resolver.Resolve(ctx, gen, req, platform, bot.BusinessID, history)

	prompt, err := s.assembler.Assemble(ctx, bot, identity, history, req.Message)
	if err != nil {
		log.Error("prompt assembly failed", "error", err)
		return s.finish(ctx, conv, bot, platform, FallbackReply, "fallback", start), nil
	}

	resp, err := gen.Generate(ctx, genai.Request{
		System:      prompt.System,
		Prompt:      prompt.Body,
		MaxTokens:   1024,
		Temperature: 0.7,
	})
	reply := strings.TrimSpace(resp.Text)
	if err != nil || reply == "" {
		if err != nil {
			log.Warn("generation exhausted, sending fallback reply", "error", err)
		}
		return s.finish(ctx, conv, bot, platform, FallbackReply, "fallback", start), nil
	}

	result := s.finish(ctx, conv, bot, platform, reply, "ok", start)

	var client *store.Client
	if bot.CanRegisterClients || identity.Client != nil {
		client = s.coord.ResolveClient(ctx, bot.BusinessID, conv, identity)
	}
	result.Client = client

	s.detectAndPersist(ctx, conv, bot, client, identity, history, req.Message, reply, result, log)
	return result, nil
}

// finish appends the bot reply and builds the result shell.
func (s *Service) finish(ctx context.Context, conv *store.Conversation, bot *store.Bot, platform store.Platform, reply, outcome string, start time.Time) *Result {
	outbound := &store.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Sender:         store.SenderBot,
		Body:           reply,
		Type:           store.MessageText,
		CreatedAt:      s.now(),
	}
	if err := s.store.AppendMessage(ctx, outbound); err != nil {
		s.logger.Error("reply append failed", "error", err, "conversation_id", conv.ID)
	}
	s.cache.Append(ctx, outbound)

	messagesProcessed.WithLabelValues(string(platform), outcome).Inc()
	processDuration.Observe(s.now().Sub(start).Seconds())

	return &Result{
		Response:       reply,
		ConversationID: conv.ID,
		BotID:          bot.ID,
	}
}

// detectAndPersist runs the commitment gate and, per fired category, the
// extractor and coordinator. Everything here is best-effort; failures never
// alter the already-generated reply.
func (s *Service) detectAndPersist(ctx context.Context, conv *store.Conversation, bot *store.Bot, client *store.Client, identity *Identity, history []store.Message, userMessage, reply string, result *Result, log *logging.Logger) {
	if !bot.CanTakeOrders && !bot.CanTakeReservations {
		return
	}
	ctx, span := tracer.Start(ctx, "pipeline.detectAndPersist")
	defer span.End()

	var catalog []store.Product
	if bot.CanTakeOrders {
		var err error
		catalog, err = s.store.GetCatalog(ctx, bot.BusinessID)
		if err != nil {
			log.Warn("catalog load for detection failed", "error", err)
		}
	}

	commitment := s.detector.Detect(userMessage, reply, catalog)
	commitment.OrderCommitted = commitment.OrderCommitted && bot.CanTakeOrders
	commitment.ReservationCommitted = commitment.ReservationCommitted && bot.CanTakeReservations
	if !commitment.OrderCommitted && !commitment.ReservationCommitted {
		return
	}

	transcript := transcriptText(history, userMessage) + "Asistente: " + reply + "\n"
	gen, err := s.factory.ClientFor(ctx, bot.GenerationKey, bot.Model)
	if err != nil {
		gen = nil
	}

	if commitment.OrderCommitted {
		commitmentsDetected.WithLabelValues("order").Inc()
		if draft := s.extractor.ExtractOrder(ctx, gen, transcript, catalog); draft != nil {
			if order := s.coord.SaveOrder(ctx, conv, client, draft); order != nil {
				recordsPersisted.WithLabelValues("order").Inc()
				result.Order = order
				log.Info("order persisted", "order_id", order.ID, "total", order.Total)
				if s.notifier != nil {
					s.notifier.NotifyOrder(ctx, order, client)
				}
			}
		}
	}
	if commitment.ReservationCommitted {
		commitmentsDetected.WithLabelValues("reservation").Inc()
		if draft := s.extractor.ExtractReservation(ctx, gen, transcript, identity); draft != nil {
			if res := s.coord.SaveReservation(ctx, conv, client, draft); res != nil {
				recordsPersisted.WithLabelValues("reservation").Inc()
				result.Reservation = res
				log.Info("reservation persisted", "reservation_id", res.ID, "date", res.Date.Format("2006-01-02"))
				if s.notifier != nil {
					s.notifier.NotifyReservation(ctx, res)
				}
			}
		}
	}
}

// history returns the recent transcript window, preferring the cache.
func (s *Service) history(ctx context.Context, conversationID uuid.UUID) []store.Message {
	if msgs, ok := s.cache.Window(ctx, conversationID); ok {
		return msgs
	}
	msgs, err := s.store.RecentMessages(ctx, conversationID, transcriptMax)
	if err != nil {
		s.logger.Warn("history load failed", "error", err, "conversation_id", conversationID)
		return nil
	}
	s.cache.Prime(ctx, conversationID, msgs)
	return msgs
}

// lockThread serializes processing for one external thread.
func (s *Service) lockThread(botID uuid.UUID, externalID string) func() {
	return s.convLocks.acquire(botID.String() + ":" + externalID)
}
