package genai

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clientela-ai/clientela/pkg/logging"
)

var tracer = otel.Tracer("clientela/genai")

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
)

var generateLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "clientela",
		Subsystem: "genai",
		Name:      "generate_latency_seconds",
		Help:      "Latency of generation-backend calls",
		Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 8, 10, 15, 20, 30},
	},
	[]string{"status"},
)

var generateAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "clientela",
		Subsystem: "genai",
		Name:      "generate_attempts_total",
		Help:      "Generation attempts by outcome",
	},
	[]string{"outcome"}, // ok, retryable, terminal
)

func init() {
	prometheus.MustRegister(generateLatency)
	prometheus.MustRegister(generateAttemptsTotal)
}

// RetryOption configures a RetryClient.
type RetryOption func(*RetryClient)

// WithMaxAttempts overrides the attempt budget.
func WithMaxAttempts(n int) RetryOption {
	return func(c *RetryClient) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBaseDelay overrides the first backoff delay (doubled per attempt).
func WithBaseDelay(d time.Duration) RetryOption {
	return func(c *RetryClient) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// RetryClient wraps a Client with a bounded retry loop: up to maxAttempts
// calls with exponential backoff between them. Only the overloaded class and
// transport failures are retried; other errors abort after the first
// occurrence.
type RetryClient struct {
	inner       Client
	maxAttempts int
	baseDelay   time.Duration
	logger      *logging.Logger
}

// NewRetryClient wraps inner with the default 3-attempt, 500ms/1000ms budget.
func NewRetryClient(inner Client, logger *logging.Logger, opts ...RetryOption) *RetryClient {
	if inner == nil {
		panic("genai: inner client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &RetryClient{
		inner:       inner,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate runs the retry loop. The returned error is the last attempt's.
func (c *RetryClient) Generate(ctx context.Context, req Request) (Response, error) {
	ctx, span := tracer.Start(ctx, "genai.Generate")
	defer span.End()

	var lastErr error
	delay := c.baseDelay

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		start := time.Now()
		resp, err := c.inner.Generate(ctx, req)
		latency := time.Since(start)

		if err == nil {
			generateLatency.WithLabelValues("ok").Observe(latency.Seconds())
			generateAttemptsTotal.WithLabelValues("ok").Inc()
			span.SetAttributes(
				attribute.Int("genai.attempts", attempt),
				attribute.Bool("genai.truncated", resp.Truncated),
			)
			return resp, nil
		}
		generateLatency.WithLabelValues("error").Observe(latency.Seconds())
		lastErr = err

		if !IsRetryable(err) {
			generateAttemptsTotal.WithLabelValues("terminal").Inc()
			c.logger.Warn("generation failed with terminal error", "attempt", attempt, "error", err)
			return Response{}, err
		}
		generateAttemptsTotal.WithLabelValues("retryable").Inc()

		if attempt == c.maxAttempts {
			break
		}
		c.logger.Warn("generation overloaded, backing off",
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	span.SetAttributes(attribute.Int("genai.attempts", c.maxAttempts))
	return Response{}, lastErr
}

// classifyStatusText maps provider error text to the overloaded class when it
// carries a known overload marker. Used by provider clients that only expose
// string errors.
func classifyStatusText(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{"overloaded", "resource has been exhausted", "rate limit", "too many requests", "unavailable", "429", "503"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
