package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/openai/openai-go"
	"github.com/robalyx/neurobot/internal/ai/client"
	"go.uber.org/zap"
)

// ErrEmptySummary is returned when the model produced no summary.
var ErrEmptySummary = errors.New("model returned an empty summary")

// SummarySystemPrompt instructs the model to summarize a conversation.
const SummarySystemPrompt = `You are a Discord chat bot whose purpose is to provide a TL;DR of the given conversation. ` +
	`Provide exact details. Give the TL;DR in a single paragraph. ` +
	`Do not add additional commentary, only provide a TL;DR.`

var summarySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"text": map[string]any{"type": "string"},
	},
	"required":             []string{"text"},
	"additionalProperties": false,
}

// Summarizer condenses a conversation and checks text against moderation.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
	Flagged(ctx context.Context, text string) (bool, error)
}

// ChatSummarizer implements Summarizer with the chat and moderation endpoints.
type ChatSummarizer struct {
	chat   *client.Client
	logger *zap.Logger
}

// NewChatSummarizer creates a new ChatSummarizer.
func NewChatSummarizer(chat *client.Client, logger *zap.Logger) *ChatSummarizer {
	return &ChatSummarizer{
		chat:   chat,
		logger: logger.Named("summarizer"),
	}
}

// Summarize returns a single paragraph summary of transcript.
func (s *ChatSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	resp, err := s.chat.Chat(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SummarySystemPrompt),
			openai.UserMessage(transcript),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "tldr",
					Description: openai.String("Conversation summary"),
					Schema:      summarySchema,
					Strict:      openai.Bool(true),
				},
			},
		},
		Temperature: openai.Float(0.4),
	})
	if err != nil {
		return "", fmt.Errorf("failed to summarize conversation: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := sonic.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil {
		return "", fmt.Errorf("failed to decode summary: %w", err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return "", ErrEmptySummary
	}

	s.logger.Debug("Summarized conversation",
		zap.Int("transcriptLength", len(transcript)),
		zap.Int("summaryLength", len(result.Text)))
	return result.Text, nil
}

// Flagged reports whether text is flagged by moderation.
func (s *ChatSummarizer) Flagged(ctx context.Context, text string) (bool, error) {
	return s.chat.Moderate(ctx, text)
}
