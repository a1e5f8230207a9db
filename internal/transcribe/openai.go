package transcribe

import (
	"context"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIEngine transcribes chunks through OpenAI's audio transcription API.
// This is the primary engine.
type OpenAIEngine struct {
	client *openai.Client
	model  string
}

// NewOpenAIEngine creates the OpenAI speech-to-text engine.
func NewOpenAIEngine(apiKey, model string, timeout time.Duration) *OpenAIEngine {
	return newOpenAIEngine(apiKey, model, timeout, "")
}

// newOpenAIEngine allows tests to point the client at a local server.
func newOpenAIEngine(apiKey, model string, timeout time.Duration, baseURL string) *OpenAIEngine {
	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEngine{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Name returns the engine name.
func (e *OpenAIEngine) Name() string { return "openai" }

// Transcribe sends one chunk file to the transcription API. Single attempt.
func (e *OpenAIEngine) Transcribe(ctx context.Context, chunkPath string) (string, error) {
	resp, err := e.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    e.model,
		FilePath: chunkPath,
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", &ServiceError{Engine: e.Name(), Err: err}
	}
	return resp.Text, nil
}
