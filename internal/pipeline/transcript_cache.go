package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clientela-ai/clientela/internal/store"
	"github.com/clientela-ai/clientela/pkg/logging"
)

const (
	transcriptKeyPrefix = "clientela:transcript:"
	transcriptMax       = 10
	transcriptTTL       = 24 * time.Hour
)

// TranscriptCache keeps the hot window of each conversation's transcript in
// Redis so the pipeline avoids a history query per inbound message. The
// store remains the source of truth; a cache miss falls back to it.
type TranscriptCache struct {
	rdb    *redis.Client
	logger *logging.Logger
}

// NewTranscriptCache builds the cache. A nil client disables caching; every
// read misses and every write is a no-op.
func NewTranscriptCache(rdb *redis.Client, logger *logging.Logger) *TranscriptCache {
	if logger == nil {
		logger = logging.Default()
	}
	return &TranscriptCache{rdb: rdb, logger: logger}
}

func transcriptKey(conversationID uuid.UUID) string {
	return transcriptKeyPrefix + conversationID.String()
}

// Window returns the cached hot window in chronological order. ok is false
// on a miss or any Redis error.
func (c *TranscriptCache) Window(ctx context.Context, conversationID uuid.UUID) ([]store.Message, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.LRange(ctx, transcriptKey(conversationID), 0, transcriptMax-1).Result()
	if err != nil || len(raw) == 0 {
		if err != nil && err != redis.Nil {
			c.logger.Warn("transcript cache read failed", "error", err)
		}
		return nil, false
	}
	// Stored newest-first; reverse into chronological order.
	msgs := make([]store.Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var msg store.Message
		if err := json.Unmarshal([]byte(raw[i]), &msg); err != nil {
			c.logger.Warn("transcript cache entry corrupt, invalidating", "error", err)
			c.rdb.Del(ctx, transcriptKey(conversationID))
			return nil, false
		}
		msgs = append(msgs, msg)
	}
	return msgs, true
}

// Append pushes a message onto the hot window and trims it to size. Failures
// are logged and swallowed; the next read degrades to the store.
func (c *TranscriptCache) Append(ctx context.Context, msg *store.Message) {
	if c == nil || c.rdb == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	key := transcriptKey(msg.ConversationID)
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, transcriptMax-1)
	pipe.Expire(ctx, key, transcriptTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("transcript cache write failed", "error", err)
	}
}

// Prime replaces the cached window with messages loaded from the store.
func (c *TranscriptCache) Prime(ctx context.Context, conversationID uuid.UUID, msgs []store.Message) {
	if c == nil || c.rdb == nil || len(msgs) == 0 {
		return
	}
	key := transcriptKey(conversationID)
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	// LPush newest-first: push chronological order so the head is newest.
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return
		}
		pipe.LPush(ctx, key, data)
	}
	pipe.LTrim(ctx, key, 0, transcriptMax-1)
	pipe.Expire(ctx, key, transcriptTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("transcript cache prime failed", "error", err)
	}
}
