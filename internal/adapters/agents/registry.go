package agents

import (
	"fmt"
	"sync"

	"github.com/alejandrodnm/gauntlet/internal/domain"
	"github.com/alejandrodnm/gauntlet/internal/ports"
)

// Keys holds the provider API keys the registry hands out clients for.
// Empty keys are allowed; the call fails at the provider instead.
type Keys struct {
	Anthropic string
	OpenAI    string
	DeepSeek  string
	Qwen      string
	Custom    string // bearer token for self-hosted endpoints, optional
}

// Registry resolves a participant's provider tag to a transport client.
// Clients are stateless aside from their HTTP client, so they are built
// once per provider (and once per custom endpoint) and reused.
type Registry struct {
	keys Keys

	mu      sync.Mutex
	clients map[string]ports.AgentClient
}

// NewRegistry creates a Registry with the given provider keys.
func NewRegistry(keys Keys) *Registry {
	return &Registry{
		keys:    keys,
		clients: make(map[string]ports.AgentClient),
	}
}

// ClientFor returns the transport client for a participant. Custom agents
// need a per-participant endpoint URL.
func (r *Registry) ClientFor(p domain.Participant) (ports.AgentClient, error) {
	key := p.AgentProvider
	if p.AgentProvider == "custom" {
		if p.EndpointURL == "" {
			return nil, fmt.Errorf("agents.Registry: participant %s: custom provider without endpoint_url", p.Name)
		}
		key = "custom:" + p.EndpointURL
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[key]; ok {
		return c, nil
	}

	var c ports.AgentClient
	switch p.AgentProvider {
	case "anthropic":
		c = NewAnthropicClient(r.keys.Anthropic, "")
	case "openai":
		c = NewOpenAIClient(r.keys.OpenAI)
	case "deepseek":
		c = NewDeepSeekClient(r.keys.DeepSeek)
	case "qwen":
		c = NewQwenClient(r.keys.Qwen)
	case "custom":
		c = NewCompatibleClient("Custom", p.EndpointURL, r.keys.Custom)
	default:
		return nil, fmt.Errorf("agents.Registry: unknown provider %q", p.AgentProvider)
	}
	r.clients[key] = c
	return c, nil
}
