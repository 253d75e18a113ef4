package ports

import (
	"context"

	"github.com/alejandrodnm/gauntlet/internal/domain"
)

// AgentReply is the raw outcome of one agent transport call.
type AgentReply struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// AgentClient produces a text reply for a system prompt plus user payload.
// The core depends on this capability, not on any specific vendor; hosted
// APIs and self-hosted HTTP endpoints implement it alike.
type AgentClient interface {
	Invoke(ctx context.Context, system, user string, cfg domain.AgentConfig) (AgentReply, error)
}
