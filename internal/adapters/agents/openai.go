package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/alejandrodnm/gauntlet/internal/domain"
	"github.com/alejandrodnm/gauntlet/internal/ports"
)

const (
	defaultOpenAIBase   = "https://api.openai.com/v1"
	defaultDeepSeekBase = "https://api.deepseek.com"
	defaultQwenBase     = "https://dashscope.aliyuncs.com/compatible-mode/v1"
)

// OpenAIClient calls any chat-completions endpoint that speaks the OpenAI
// wire format: OpenAI itself, DeepSeek, Qwen and self-hosted gateways.
type OpenAIClient struct {
	http    *http.Client
	name    string // for error messages
	baseURL string
	apiKey  string
}

// NewOpenAIClient creates a client for api.openai.com.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return NewCompatibleClient("OpenAI", defaultOpenAIBase, apiKey)
}

// NewDeepSeekClient creates a client for the DeepSeek API.
func NewDeepSeekClient(apiKey string) *OpenAIClient {
	return NewCompatibleClient("DeepSeek", defaultDeepSeekBase, apiKey)
}

// NewQwenClient creates a client for the Qwen (DashScope) compatible API.
func NewQwenClient(apiKey string) *OpenAIClient {
	return NewCompatibleClient("Qwen", defaultQwenBase, apiKey)
}

// NewCompatibleClient creates a client for any OpenAI-compatible base URL,
// e.g. a participant's self-hosted endpoint.
func NewCompatibleClient(name, baseURL, apiKey string) *OpenAIClient {
	return &OpenAIClient{
		http:    &http.Client{},
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			// Reasoner-style models return their thinking separately.
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Invoke sends one chat-completions call.
func (c *OpenAIClient) Invoke(ctx context.Context, system, user string, cfg domain.AgentConfig) (ports.AgentReply, error) {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	messages := []chatMessage{}
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	body, err := json.Marshal(chatRequest{
		Model:       cfg.Model,
		MaxTokens:   maxTokens,
		Temperature: cfg.Temperature,
		Messages:    messages,
	})
	if err != nil {
		return ports.AgentReply{}, fmt.Errorf("agents.%s: marshal request: %w", c.name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return ports.AgentReply{}, fmt.Errorf("agents.%s: build request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ports.AgentReply{}, fmt.Errorf("agents.%s: %w", c.name, err)
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&out); err != nil {
		return ports.AgentReply{}, fmt.Errorf("agents.%s: decode response: %w", c.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if out.Error != nil {
			msg = out.Error.Message
		}
		return ports.AgentReply{}, fmt.Errorf("agents.%s: api error (%d): %s", c.name, resp.StatusCode, msg)
	}
	if len(out.Choices) == 0 {
		return ports.AgentReply{}, fmt.Errorf("agents.%s: empty choices", c.name)
	}

	msg := out.Choices[0].Message
	text := msg.Content
	// Keep reasoner thinking visible: the reply parser knows how to pick
	// the [Response] section back out.
	if msg.ReasoningContent != "" {
		if text != "" {
			text = "[Reasoning]\n" + msg.ReasoningContent + "\n\n[Response]\n" + text
		} else {
			text = msg.ReasoningContent
		}
	}

	return ports.AgentReply{
		Text:             text,
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
	}, nil
}

var _ ports.AgentClient = (*OpenAIClient)(nil)
