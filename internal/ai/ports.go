package ai

import "context"

// AI is the external model. It knows nothing about widgets or storage.
type AI interface {
	GetReply(ctx context.Context, systemPrompt string, input string) (string, error)
}
