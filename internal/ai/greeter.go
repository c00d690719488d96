package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Greeter generates first-contact greetings through the model.
type Greeter struct {
	ai AI
}

func NewGreeter(ai AI) *Greeter {
	return &Greeter{ai: ai}
}

func (g *Greeter) Greeting(ctx context.Context, agentID, locale string) (string, error) {
	input, err := json.Marshal(map[string]string{
		"agent_id": agentID,
		"locale":   locale,
	})
	if err != nil {
		return "", fmt.Errorf("greeting input: %w", err)
	}

	raw, err := g.ai.GetReply(ctx, GreetingPrompt, string(input))
	if err != nil {
		return "", fmt.Errorf("greeting reply: %w", err)
	}

	var resp struct {
		Greeting string `json:"greeting"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil {
		return "", fmt.Errorf("greeting json: %w", err)
	}
	if strings.TrimSpace(resp.Greeting) == "" {
		return "", ErrEmptyReply
	}
	return resp.Greeting, nil
}
