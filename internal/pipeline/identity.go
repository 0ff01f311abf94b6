package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/clientela-ai/clientela/internal/genai"
	"github.com/clientela-ai/clientela/internal/store"
	"github.com/clientela-ai/clientela/pkg/logging"
)

var (
	// Greeting patterns a bot uses when echoing a confirmed customer name,
	// e.g. "¡Hola, Ana!" or "Hello Ana!".
	greetingEchoRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:hola|hello|hi|buenas)[,!]?\s+([\p{L}]{2,25})\s*[!.,]`),
		regexp.MustCompile(`(?i)gracias[,]?\s+([\p{L}]{2,25})\s*[!.,]`),
	}

	// Self-introduction phrasings for the deterministic fallback.
	selfIntroRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:me llamo|mi nombre es|soy|i am|i'm|my name is|i'm called)\s+([\p{L}]{2,25})\b`),
		regexp.MustCompile(`(?i)(?:de parte de|on behalf of)\s+([\p{L}]{2,25})\b`),
	}

	phoneIntroRe = regexp.MustCompile(`(?i)(?:mi n[uú]mero es|mi tel[eé]fono es|my number is|my phone is)\s*[:.]?\s*(\+?[\d\s().-]{7,20})`)
	phoneShapeRe = regexp.MustCompile(`\+?\d[\d\s().-]{5,18}\d`)

	// Discourse words a greeting echo can capture by mistake.
	nameStopwords = map[string]bool{
		"gracias": true, "hola": true, "buenas": true, "bueno": true,
		"como": true, "cómo": true, "que": true, "qué": true,
		"thanks": true, "hello": true, "there": true, "again": true,
		"amigo": true, "amiga": true, "señor": true, "señora": true,
	}
)

// Resolver derives a best-effort sender identity from the inbound event and
// conversation history, then reconciles it against the client store.
type Resolver struct {
	clients store.ClientStore
	logger  *logging.Logger
}

// NewResolver builds a resolver over the client store.
func NewResolver(clients store.ClientStore, logger *logging.Logger) *Resolver {
	if clients == nil {
		panic("pipeline: client store is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{clients: clients, logger: logger}
}

type aiIdentityPayload struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Resolve produces the identity fragment for the sender. The generation
// client is optional; when the AI step fails or yields nothing the resolver
// degrades silently to regex fallbacks and never blocks reply generation.
func (r *Resolver) Resolve(ctx context.Context, gen genai.Client, req *InboundRequest, platform store.Platform, businessID uuid.UUID, history []store.Message) *Identity {
	id := &Identity{
		Phone:       store.NormalizePhone(req.SenderPhone),
		InstagramID: strings.TrimSpace(req.SenderInstagramID),
	}

	suppliedName := strings.TrimSpace(req.SenderName)
	switch platform {
	case store.PlatformWhatsApp:
		// The channel already verified the phone; a real profile name needs
		// no inference.
		if id.Phone != "" && !store.IsPlaceholderName(suppliedName) {
			id.Name = suppliedName
			r.attachClient(ctx, id, businessID)
			return id
		}
	case store.PlatformInstagram:
		if strings.HasPrefix(suppliedName, "@") {
			id.InstagramHandle = suppliedName
		} else if !store.IsPlaceholderName(suppliedName) {
			id.Name = suppliedName
		}
	default:
		if !store.IsPlaceholderName(suppliedName) {
			id.Name = suppliedName
		}
	}

	transcript := transcriptText(history, req.Message)

	if id.Name == "" {
		id.Name = scanGreetingEchoes(history)
	}
	if id.Name == "" || id.Phone == "" {
		r.resolveWithAI(ctx, gen, transcript, id)
	}
	if id.Name == "" {
		id.Name = scanSelfIntro(transcript)
	}
	if id.Phone == "" {
		id.Phone = scanPhone(transcript)
	}

	r.attachClient(ctx, id, businessID)

	// A durable key with no usable name adopts the stored client's name.
	// A name never triggers a lookup in the other direction.
	if id.Client != nil && store.IsPlaceholderName(id.Name) && !store.IsPlaceholderName(id.Client.Name) {
		id.Name = id.Client.Name
	}
	return id
}

// attachClient looks up an existing client by the durable keys only.
func (r *Resolver) attachClient(ctx context.Context, id *Identity, businessID uuid.UUID) {
	if id.Client != nil {
		return
	}
	if id.Phone != "" {
		client, err := r.clients.GetClientByPhone(ctx, businessID, id.Phone)
		if err == nil {
			id.Client = client
			return
		}
		if !errors.Is(err, store.ErrClientNotFound) {
			r.logger.Warn("client lookup by phone failed", "error", err)
		}
	}
	if id.InstagramID != "" {
		client, err := r.clients.GetClientByInstagramID(ctx, businessID, id.InstagramID)
		if err == nil {
			id.Client = client
			return
		}
		if !errors.Is(err, store.ErrClientNotFound) {
			r.logger.Warn("client lookup by instagram id failed", "error", err)
		}
	}
}

// resolveWithAI asks the generation backend for explicitly stated name and
// phone as strict JSON. Anything not literally present in the text is
// discarded; failures degrade silently.
func (r *Resolver) resolveWithAI(ctx context.Context, gen genai.Client, transcript string, id *Identity) {
	if gen == nil || strings.TrimSpace(transcript) == "" {
		return
	}
	prompt := strings.Join([]string{
		"Read this conversation and extract the customer's name and phone number,",
		"but ONLY if they stated them explicitly. Never infer a name from",
		"nicknames, affectionate terms or greetings.",
		`Respond with ONLY this JSON, using "" for anything not stated:`,
		`{"name":"","phone":""}`,
		"",
		"Conversation:",
		transcript,
	}, "\n")

	resp, err := gen.Generate(ctx, genai.Request{Prompt: prompt, MaxTokens: 128, Temperature: 0})
	if err != nil {
		r.logger.Info("identity extraction call failed, using regex fallback", "error", err)
		return
	}
	var payload aiIdentityPayload
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Text)), &payload); err != nil {
		return
	}
	if id.Name == "" && plausibleName(payload.Name) {
		// Guard against hallucinated names not present in the text.
		if strings.Contains(strings.ToLower(transcript), strings.ToLower(payload.Name)) {
			id.Name = strings.TrimSpace(payload.Name)
		}
	}
	if id.Phone == "" {
		id.Phone = store.NormalizePhone(payload.Phone)
	}
}

// scanGreetingEchoes walks prior bot messages newest-first looking for a
// greeting that echoes the customer's name back.
func scanGreetingEchoes(history []store.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg.Sender != store.SenderBot {
			continue
		}
		for _, re := range greetingEchoRes {
			m := re.FindStringSubmatch(msg.Body)
			if m == nil {
				continue
			}
			if plausibleName(m[1]) {
				return m[1]
			}
		}
	}
	return ""
}

func scanSelfIntro(transcript string) string {
	for _, re := range selfIntroRes {
		m := re.FindStringSubmatch(transcript)
		if m == nil {
			continue
		}
		if plausibleName(m[1]) {
			return m[1]
		}
	}
	return ""
}

func scanPhone(transcript string) string {
	if m := phoneIntroRe.FindStringSubmatch(transcript); m != nil {
		if phone := store.NormalizePhone(m[1]); phone != "" {
			return phone
		}
	}
	if m := phoneShapeRe.FindString(transcript); m != "" {
		return store.NormalizePhone(m)
	}
	return ""
}

// plausibleName applies the sanity checks for an inferred name: 2 to 25
// characters, no digits, not a discourse word, not a placeholder.
func plausibleName(name string) bool {
	name = strings.TrimSpace(name)
	if len([]rune(name)) < 2 || len([]rune(name)) > 25 {
		return false
	}
	if strings.ContainsAny(name, "0123456789") {
		return false
	}
	if nameStopwords[strings.ToLower(name)] {
		return false
	}
	return !store.IsPlaceholderName(name)
}

// transcriptText flattens the history window plus the current message into
// plain text for the scanners and extraction prompts.
func transcriptText(history []store.Message, current string) string {
	var b strings.Builder
	for _, msg := range history {
		if msg.Sender == store.SenderBot {
			b.WriteString("Asistente: ")
		} else {
			b.WriteString("Cliente: ")
		}
		b.WriteString(msg.Body)
		b.WriteString("\n")
	}
	if current != "" {
		b.WriteString("Cliente: ")
		b.WriteString(current)
		b.WriteString("\n")
	}
	return b.String()
}
