package ai

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/Vovarama1992/chatra-widget-engine/internal/logging"
)

type OpenAIClient struct {
	client *openai.Client
	model  string
	log    *logging.Logger
}

func NewOpenAIClient(apiKey, model string, log *logging.Logger) *OpenAIClient {
	return newOpenAIClient(openai.DefaultConfig(apiKey), model, log)
}

// NewOpenAIClientWithBaseURL points the client at an OpenAI-compatible endpoint.
func NewOpenAIClientWithBaseURL(apiKey, baseURL, model string, log *logging.Logger) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return newOpenAIClient(cfg, model, log)
}

func newOpenAIClient(cfg openai.ClientConfig, model string, log *logging.Logger) *OpenAIClient {
	if model == "" {
		model = openai.GPT4oMini
	}
	if log == nil {
		log = logging.Nop()
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		log:    log.Named("ai"),
	}
}

var ErrEmptyReply = errors.New("ai: empty reply")

func (c *OpenAIClient) GetReply(ctx context.Context, systemPrompt string, input string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: input},
			// format guard goes last
			{Role: openai.ChatMessageRoleSystem, Content: jsonGuard},
		},
	})
	if err != nil {
		c.log.Warn(ctx, "openai request failed", zap.Error(err))
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}

	raw := resp.Choices[0].Message.Content
	c.log.Debug(ctx, "openai raw reply", zap.String("model", c.model), zap.Int("bytes", len(raw)))
	return raw, nil
}
