package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/atikulmunna/sagrag/internal/metrics"
	"github.com/atikulmunna/sagrag/internal/model"
	"github.com/atikulmunna/sagrag/internal/telemetry"
	"github.com/atikulmunna/sagrag/internal/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// retrySleep waits between attempts; replaced in tests
var retrySleep = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryJitter returns the random part of the backoff; replaced in tests
var retryJitter = func() time.Duration {
	return time.Duration(rand.Int64N(int64(250 * time.Millisecond)))
}

// Client wraps a Provider with admission control, pacing and retries. One
// Client is shared by every request of the process.
type Client struct {
	provider   Provider
	sem        *semaphore.Weighted
	limiter    *worker.Limiter
	maxRetries int
	retryBase  time.Duration
	logger     *zap.Logger
	metrics    *metrics.Collector
}

// NewClient creates a client around provider. A nil provider yields a
// disabled client whose calls return ErrDisabled.
func NewClient(provider Provider, cfg model.LLMConfig, logger *zap.Logger, m *metrics.Collector) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	c := &Client{
		provider:   provider,
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
		maxRetries: maxRetries,
		retryBase:  cfg.RetryBase,
		logger:     logger.With(zap.String("component", "llm")),
		metrics:    m,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = worker.NewLimiter(cfg.RequestsPerSecond, maxConcurrent)
	}
	return c
}

// Enabled reports whether a provider is configured
func (c *Client) Enabled() bool {
	return c != nil && c.provider != nil
}

// Complete sends prompt and returns the completion text
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return c.CompleteRequest(ctx, CompletionRequest{Prompt: prompt, MaxTokens: maxTokens})
}

// CompleteRequest runs req through the admission semaphore, the rate limiter
// and up to maxRetries attempts with exponential backoff plus jitter.
func (c *Client) CompleteRequest(ctx context.Context, req CompletionRequest) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	name := c.provider.Name()
	ctx, span := telemetry.Tracer().Start(ctx, "llm.complete")
	span.SetAttributes(
		attribute.String("llm.provider", name),
		attribute.Int("llm.max_tokens", req.MaxTokens),
	)
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			c.metrics.RecordRetry(name)
			delay := c.backoff(attempt - 1)
			c.logger.Debug("retrying completion",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := retrySleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		text, err := c.attempt(ctx, req)
		if err == nil {
			c.metrics.RecordCompletion(name, "ok")
			span.SetAttributes(attribute.Int("llm.attempts", attempt))
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	c.metrics.RecordCompletion(name, "error")
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "completion failed")
	return "", fmt.Errorf("complete with %s: %w", name, lastErr)
}

func (c *Client) attempt(ctx context.Context, req CompletionRequest) (string, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.sem.Release(1)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.provider.Name()); err != nil {
			return "", err
		}
	}

	resp, err := c.provider.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errors.New("empty completion")
	}
	return resp.Text, nil
}

// backoff returns base*2^(n-1) plus jitter for the n-th retry
func (c *Client) backoff(n int) time.Duration {
	base := c.retryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	return base*time.Duration(1<<(n-1)) + retryJitter()
}
