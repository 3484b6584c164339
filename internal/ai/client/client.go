package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/robalyx/neurobot/internal/setup/config"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrContentBlocked is returned when the provider filtered the response.
	ErrContentBlocked = errors.New("content blocked by provider")
	// ErrNoModerationResult is returned when a moderation call returns no results.
	ErrNoModerationResult = errors.New("moderation returned no results")
	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("language model temporarily unavailable")
)

// Client makes chat completion and moderation requests with bounded
// concurrency behind a circuit breaker.
type Client struct {
	client    *openai.Client
	breaker   *gobreaker.CircuitBreaker
	semaphore *semaphore.Weighted
	model     string
	logger    *zap.Logger
}

// NewClient creates a new Client.
func NewClient(cfg *config.OpenAI, logger *zap.Logger) *Client {
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(90*time.Second),
		option.WithMaxRetries(0),
	)

	logger = logger.Named("ai_client")

	settings := gobreaker.Settings{
		Name:        "openai",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &Client{
		client:    &client,
		breaker:   gobreaker.NewCircuitBreaker(settings),
		semaphore: semaphore.NewWeighted(maxConcurrent),
		model:     cfg.Model,
		logger:    logger,
	}
}

// Model returns the configured chat model.
func (c *Client) Model() string {
	return c.model
}

// Chat makes a chat completion request. The configured model is used when
// params does not name one.
func (c *Client) Chat(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	if params.Model == "" {
		params.Model = c.model
	}

	if err := c.semaphore.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire semaphore: %w", err)
	}
	defer c.semaphore.Release(1)

	result, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, err
		}
		if err := c.checkFinishReason(resp, params.Model); err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		c.logger.Warn("Failed to make chat request", zap.String("model", params.Model), zap.Error(err))
		return nil, err
	}

	return result.(*openai.ChatCompletion), nil
}

// Moderate reports whether text is flagged by the moderation endpoint.
func (c *Client) Moderate(ctx context.Context, text string) (bool, error) {
	if err := c.semaphore.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("failed to acquire semaphore: %w", err)
	}
	defer c.semaphore.Release(1)

	resp, err := c.client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.ModerationModelOmniModerationLatest,
	})
	if err != nil {
		return false, fmt.Errorf("failed to moderate text: %w", err)
	}
	if len(resp.Results) == 0 {
		return false, ErrNoModerationResult
	}

	for _, result := range resp.Results {
		if result.Flagged {
			return true, nil
		}
	}
	return false, nil
}

// checkFinishReason rejects responses that were filtered or cut off.
func (c *Client) checkFinishReason(resp *openai.ChatCompletion, model string) error {
	if resp == nil || len(resp.Choices) == 0 {
		c.logger.Warn("Received empty choices", zap.String("model", model))
		return fmt.Errorf("%w: received empty choices", ErrContentBlocked)
	}

	switch reason := resp.Choices[0].FinishReason; reason {
	case "stop", "":
		return nil
	case "content_filter":
		return fmt.Errorf("%w: content filter", ErrContentBlocked)
	default:
		c.logger.Warn("Unexpected finish reason",
			zap.String("model", model),
			zap.String("finishReason", reason))
		return fmt.Errorf("%w: finish reason %s", ErrContentBlocked, reason)
	}
}
