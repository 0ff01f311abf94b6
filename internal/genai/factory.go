package genai

import (
	"context"
	"strings"
	"sync"

	"github.com/clientela-ai/clientela/pkg/logging"
)

// Factory hands out a ready-to-use generation client for a bot's credential.
// Each business supplies its own key, so clients are built per credential and
// cached.
type Factory interface {
	ClientFor(ctx context.Context, apiKey, model string) (Client, error)
}

// GeminiFactory builds Gemini-backed clients, optionally failing over to a
// shared secondary backend, with the retry budget applied on top.
type GeminiFactory struct {
	defaultKey   string
	defaultModel string
	secondary    Client
	logger       *logging.Logger
	retryOpts    []RetryOption

	mu    sync.Mutex
	cache map[string]Client
}

// NewGeminiFactory creates a factory. defaultKey is the platform-wide
// credential used when a bot carries none; it may be empty, in which case
// bots without their own key get ErrNotConfigured.
func NewGeminiFactory(defaultKey, defaultModel string, secondary Client, logger *logging.Logger, retryOpts ...RetryOption) *GeminiFactory {
	if logger == nil {
		logger = logging.Default()
	}
	return &GeminiFactory{
		defaultKey:   defaultKey,
		defaultModel: defaultModel,
		secondary:    secondary,
		logger:       logger,
		retryOpts:    retryOpts,
		cache:        make(map[string]Client),
	}
}

// ClientFor returns the cached client for a credential, building it on first use.
func (f *GeminiFactory) ClientFor(ctx context.Context, apiKey, model string) (Client, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		key = f.defaultKey
	}
	if key == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(model) == "" {
		model = f.defaultModel
	}

	cacheKey := key + "|" + model
	f.mu.Lock()
	defer f.mu.Unlock()
	if client, ok := f.cache[cacheKey]; ok {
		return client, nil
	}

	gemini, err := NewGeminiClient(ctx, key, model)
	if err != nil {
		return nil, err
	}
	var client Client = gemini
	if f.secondary != nil {
		client = NewFailoverClient(client, f.secondary, f.logger)
	}
	client = NewRetryClient(client, f.logger, f.retryOpts...)

	f.cache[cacheKey] = client
	return client, nil
}
