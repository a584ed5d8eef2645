package app

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ent0n29/voicechat/internal/completion"
	"github.com/ent0n29/voicechat/internal/config"
)

func resolveCompleter(cfg config.Config, logger *slog.Logger) (completion.Completer, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.CompletionProvider))
	if mode == "" {
		mode = "auto"
	}

	openai := func() (completion.Completer, string, error) {
		c, err := completion.NewOpenAIClient(completion.Config{
			BaseURL:    cfg.OpenAIBaseURL,
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIModel,
			Timeout:    cfg.CompletionTimeout,
			MaxRetries: cfg.CompletionMaxRetries,
			Logger:     logger,
		})
		if err != nil {
			return nil, "", fmt.Errorf("openai completion init failed: %w", err)
		}
		return c, "openai", nil
	}
	azure := func() (completion.Completer, string, error) {
		c, err := completion.NewOpenAIClient(completion.Config{
			BaseURL:         cfg.AzureOpenAIEndpoint,
			APIKey:          cfg.AzureOpenAIKey,
			Model:           cfg.OpenAIModel,
			AzureDeployment: cfg.AzureOpenAIDeployment,
			AzureAPIVersion: cfg.AzureOpenAIAPIVersion,
			Timeout:         cfg.CompletionTimeout,
			MaxRetries:      cfg.CompletionMaxRetries,
			Logger:          logger,
		})
		if err != nil {
			return nil, "", fmt.Errorf("azure openai completion init failed: %w", err)
		}
		return c, "azure", nil
	}
	mock := func() (completion.Completer, string, error) {
		return &completion.MockCompleter{Reply: cfg.MockReply}, "mock", nil
	}

	switch mode {
	case "openai":
		return openai()
	case "azure":
		return azure()
	case "mock":
		return mock()
	case "auto":
		switch {
		case cfg.OpenAIAPIKey != "":
			return openai()
		case cfg.AzureOpenAIEndpoint != "" && cfg.AzureOpenAIKey != "" && cfg.AzureOpenAIDeployment != "":
			return azure()
		default:
			return mock()
		}
	default:
		return nil, "", fmt.Errorf("invalid COMPLETION_PROVIDER: %q (expected auto|openai|azure|mock)", cfg.CompletionProvider)
	}
}
