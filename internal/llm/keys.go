package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const keyringService = "infraforge"

// envKeyFor maps a provider ID to the environment variable consulted when
// the OS keyring has no entry, so headless deployments work without one.
var envKeyFor = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// StoreAPIKey saves an API key for a provider in the OS keyring.
func StoreAPIKey(provider, apiKey string) error {
	if provider == "" {
		return errors.New("provider is required")
	}
	if apiKey == "" {
		return errors.New("API key is empty")
	}
	return keyring.Set(keyringService, provider, apiKey)
}

// GetAPIKey resolves the API key for a provider, preferring the OS keyring
// and falling back to the provider's environment variable.
func GetAPIKey(provider string) (string, error) {
	if provider == "" {
		return "", errors.New("provider is required")
	}
	if key, err := keyring.Get(keyringService, provider); err == nil && key != "" {
		return key, nil
	}
	if envVar, ok := envKeyFor[provider]; ok {
		if key := strings.TrimSpace(os.Getenv(envVar)); key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("API key for %s is not configured", provider)
}

// DeleteAPIKey removes a provider's key from the OS keyring.
func DeleteAPIKey(provider string) error {
	if provider == "" {
		return errors.New("provider is required")
	}
	return keyring.Delete(keyringService, provider)
}

// NewClientForProvider constructs the provider client named by providerID
// using the configured API key. An empty model resolves to the catalog's
// default for that provider.
func NewClientForProvider(ctx context.Context, providerID, model string) (*Client, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return nil, errors.New("provider is required")
	}
	if strings.TrimSpace(model) == "" {
		resolved, err := DefaultModelFor(providerID)
		if err != nil {
			return nil, err
		}
		model = resolved
	}
	apiKey, err := GetAPIKey(providerID)
	if err != nil {
		return nil, err
	}

	switch providerID {
	case "anthropic":
		return NewClaudeClient(ctx, apiKey, ClaudeModelOptions{Model: model})
	case "openai":
		return NewOpenAIClient(ctx, apiKey, OpenAIModelOptions{Model: model})
	case "gemini":
		return NewGeminiClient(ctx, apiKey, GeminiModelOptions{Model: model})
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerID)
	}
}
