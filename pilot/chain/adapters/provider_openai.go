package adapters

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	ports "github.com/policypilot/policypilot/pilot/chain/ports"
	"github.com/policypilot/policypilot/pilot/config"
)

// OpenAIProvider implements Provider against any OpenAI-compatible endpoint
// (llama.cpp server, vLLM, Ollama, or the hosted API).
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a provider from LLM config.
func NewOpenAIProvider(cfg config.LLMConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

// Complete sends a chat completion request and returns the first choice.
func (p *OpenAIProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxNewTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: in.System},
			{Role: openai.ChatMessageRoleUser, Content: in.User},
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ports.Completion{}, fmt.Errorf("chat completion: empty choices")
	}

	return ports.Completion{
		Text: resp.Choices[0].Message.Content,
		Raw:  resp,
	}, nil
}

// Ensure OpenAIProvider implements the Provider interface.
var _ ports.Provider = (*OpenAIProvider)(nil)
