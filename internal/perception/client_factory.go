package perception

import (
	"context"
	"fmt"
	"os"
	"time"

	"shopagent/internal/config"
	"shopagent/internal/logging"
)

// NewClientFromConfig builds an LLM client for the configured provider.
// With no provider or no API key it returns the NullClient: the dialog
// still works, it just never gets LLM-extracted slot candidates.
func NewClientFromConfig(ctx context.Context, cfg config.LLMConfig) (LLMClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	switch cfg.Provider {
	case "", "null":
		logging.Perception("LLM oracle disabled (null provider)")
		return NullClient{}, nil
	case "genai":
		if apiKey == "" {
			logging.PerceptionWarn("genai provider selected but no API key; falling back to null client")
			return NullClient{}, nil
		}
		return NewGenAIClient(ctx, apiKey, cfg.Model)
	case "gemini":
		if apiKey == "" {
			logging.PerceptionWarn("gemini provider selected but no API key; falling back to null client")
			return NullClient{}, nil
		}
		gc := DefaultGeminiConfig(apiKey)
		if cfg.Model != "" {
			gc.Model = cfg.Model
		}
		if cfg.BaseURL != "" {
			gc.BaseURL = cfg.BaseURL
		}
		if cfg.Timeout != "" {
			timeout, err := time.ParseDuration(cfg.Timeout)
			if err != nil {
				return nil, fmt.Errorf("invalid llm timeout: %w", err)
			}
			gc.Timeout = timeout
		}
		return NewGeminiClientWithConfig(gc), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
