// Package analyze turns a finished transcript into versioned analysis
// artifacts. The language model is an external collaborator behind the Client
// interface; this package owns sequence numbering and persistence.
package analyze

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const analystSystemPrompt = "You are an expert content analyzer. Provide thoughtful, detailed analysis of the given transcription."

// ServiceError is a failed call to the analysis service. Nothing is persisted
// when it occurs.
type ServiceError struct {
	Err error
}

func (e *ServiceError) Error() string { return "analysis: " + e.Err.Error() }

func (e *ServiceError) Unwrap() error { return e.Err }

// Client is the language-model collaborator: one stateless call per analysis.
type Client interface {
	Analyze(ctx context.Context, prompt, transcript string) (string, error)
}

// AnthropicClient analyzes transcripts with the Anthropic Messages API.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicClient creates the Claude analysis client.
func NewAnthropicClient(apiKey, model string, maxTokens int) *AnthropicClient {
	return &AnthropicClient{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

// Analyze sends the prompt and full transcript to the model and returns the
// analysis text.
func (c *AnthropicClient) Analyze(ctx context.Context, prompt, transcript string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0.7),
		System: []anthropic.TextBlockParam{
			{Text: analystSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(
				prompt + "\n\nTranscription to analyze:\n\n" + transcript,
			)),
		},
	})
	if err != nil {
		return "", &ServiceError{Err: err}
	}
	if len(message.Content) == 0 {
		return "", &ServiceError{Err: fmt.Errorf("model returned no content blocks")}
	}
	return message.Content[0].Text, nil
}
