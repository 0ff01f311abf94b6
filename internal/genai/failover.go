package genai

import (
	"context"

	"github.com/clientela-ai/clientela/pkg/logging"
)

// FailoverClient wraps a primary generation client with a secondary provider.
// If the primary fails, the same request is retried on the secondary.
type FailoverClient struct {
	primary   Client
	secondary Client
	logger    *logging.Logger
}

// NewFailoverClient creates a failover-enabled client. A nil secondary means
// only the primary is used.
func NewFailoverClient(primary, secondary Client, logger *logging.Logger) *FailoverClient {
	if primary == nil {
		panic("genai: primary client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverClient{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

// Generate tries the primary, then the secondary on failure.
func (c *FailoverClient) Generate(ctx context.Context, req Request) (Response, error) {
	resp, err := c.primary.Generate(ctx, req)
	if err == nil {
		return resp, nil
	}

	if c.secondary == nil || ctx.Err() != nil {
		return Response{}, err
	}

	c.logger.Warn("primary generation backend failed, trying secondary", "error", err)
	resp, secondaryErr := c.secondary.Generate(ctx, req)
	if secondaryErr != nil {
		c.logger.Error("secondary generation backend also failed",
			"primary_error", err,
			"secondary_error", secondaryErr,
		)
		return Response{}, secondaryErr
	}
	c.logger.Info("secondary generation backend succeeded after primary failure")
	return resp, nil
}
