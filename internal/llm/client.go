package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

const defaultMaxTokens = 8192

// Client wraps one provider chat model behind the Generator interface.
type Client struct {
	chatModel einomodel.BaseChatModel
	provider  string
	model     string
}

type ClaudeModelOptions struct {
	Model     string
	MaxTokens int
}

func NewClaudeClient(ctx context.Context, apiKey string, opts ClaudeModelOptions) (*Client, error) {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	model, err := claude.NewChatModel(ctx, &claude.Config{
		APIKey:    apiKey,
		Model:     opts.Model,
		MaxTokens: opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("create claude chat model: %w", err)
	}
	return &Client{chatModel: model, provider: "anthropic", model: opts.Model}, nil
}

type OpenAIModelOptions struct {
	Model string
}

func NewOpenAIClient(ctx context.Context, apiKey string, opts OpenAIModelOptions) (*Client, error) {
	model, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey: apiKey,
		Model:  opts.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("create openai chat model: %w", err)
	}
	return &Client{chatModel: model, provider: "openai", model: opts.Model}, nil
}

type GeminiModelOptions struct {
	Model string
}

func NewGeminiClient(ctx context.Context, apiKey string, opts GeminiModelOptions) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	model, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client: genaiClient,
		Model:  opts.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini chat model: %w", err)
	}
	return &Client{chatModel: model, provider: "gemini", model: opts.Model}, nil
}

// Generate sends the request as a system+user message pair and returns the
// assistant content with any surrounding code fence stripped.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("prompt is required")
	}

	messages := make([]*schema.Message, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, schema.SystemMessage(req.System))
	}
	messages = append(messages, schema.UserMessage(req.Prompt))

	msg, err := c.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%s generate: %w", c.provider, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", fmt.Errorf("%s generate: no assistant content produced", c.provider)
	}

	return StripCodeFence(msg.Content), nil
}

// StripCodeFence removes a single wrapping markdown code fence, keeping the
// body untouched. Model responses frequently wrap file content in fences.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}
	// drop the opening fence line (which may carry a language tag)
	lines = lines[1:]
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			lines = append(lines[:i], lines[i+1:]...)
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
