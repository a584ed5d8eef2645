package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ent0n29/voicechat/internal/chat"
	"github.com/ent0n29/voicechat/internal/config"
	"github.com/ent0n29/voicechat/internal/conversation"
	"github.com/ent0n29/voicechat/internal/httpapi"
	"github.com/ent0n29/voicechat/internal/logging"
	"github.com/ent0n29/voicechat/internal/observability"
	"github.com/ent0n29/voicechat/internal/speech"
	"github.com/ent0n29/voicechat/internal/voiceturn"
)

type SpeechInfo struct {
	Provider string
	Detail   string
	Language string
}

type BuildResult struct {
	Config  config.Config
	API     *httpapi.Server
	Gateway *speech.Gateway
	Chat    *chat.Orchestrator
	Turns   *voiceturn.Runner
	Metrics *observability.Metrics
	Speech  SpeechInfo

	// CompletionProvider is the resolved backend: openai, azure or mock.
	CompletionProvider string

	// Cleanup should be called on shutdown to release the archive connection.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	logger := logging.Component("app")
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	table, err := cfg.LanguageTable()
	if err != nil {
		return nil, fmt.Errorf("language table: %w", err)
	}

	setup, err := resolveSpeechProviders(cfg, logging.L())
	if err != nil {
		return nil, err
	}
	completer, completionProvider, err := resolveCompleter(cfg, logging.L())
	if err != nil {
		return nil, err
	}

	archive, err := conversation.NewArchive(ctx, conversation.ArchiveConfig{
		Kind:          cfg.ArchiveKind,
		DatabaseURL:   cfg.DatabaseURL,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		RedisKey:      cfg.RedisKeyPrefix,
		RedisMaxLen:   cfg.RedisMaxLen,
		RedisTTL:      cfg.RedisTTL,
		RedactPII:     cfg.ArchiveRedactPII,
	})
	if err != nil {
		return nil, fmt.Errorf("conversation archive init failed: %w", err)
	}

	gateway, err := speech.NewGateway(table, setup.recognizer, setup.synthesizer,
		speech.WithRecognitionTimeout(cfg.RecognitionTimeout),
		speech.WithLanguage(cfg.DefaultLanguage),
		speech.WithMicrophone(speech.CommandMicrophone{
			Command:  cfg.MicrophoneCommand,
			Args:     cfg.MicrophoneArgs,
			Duration: cfg.CaptureDuration,
		}),
		speech.WithMetrics(metrics),
	)
	if err != nil {
		_ = archive.Close()
		return nil, fmt.Errorf("speech gateway init failed: %w", err)
	}

	orchestrator, err := chat.New(conversation.NewStore(), completer, chat.Config{
		SystemPrompt:  cfg.SystemPrompt,
		Model:         cfg.OpenAIModel,
		MaxTokens:     cfg.MaxTokens,
		Temperature:   cfg.Temperature,
		ContextWindow: cfg.ContextWindow,
		Timeout:       cfg.CompletionTimeout,
	}, chat.WithArchive(archive), chat.WithMetrics(metrics))
	if err != nil {
		_ = archive.Close()
		return nil, fmt.Errorf("chat init failed: %w", err)
	}

	turns, err := voiceturn.New(gateway, orchestrator, voiceturn.WithMetrics(metrics))
	if err != nil {
		_ = archive.Close()
		return nil, fmt.Errorf("voice turn init failed: %w", err)
	}

	// Handlers report the backends that are actually active.
	cfg.SpeechProvider = setup.resolvedProvider
	cfg.CompletionProvider = completionProvider

	api := httpapi.New(cfg, orchestrator, gateway, turns, metrics)

	logger.Info("components ready",
		"speech_provider", setup.resolvedProvider,
		"speech_detail", setup.detail,
		"completion_provider", completionProvider,
		"archive", cfg.ArchiveKind,
		"language", gateway.CurrentLanguage(),
	)

	cleanup := func() error {
		var errs []error
		if err := archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close archive: %w", err))
		}
		return errors.Join(errs...)
	}

	return &BuildResult{
		Config:  cfg,
		API:     api,
		Gateway: gateway,
		Chat:    orchestrator,
		Turns:   turns,
		Metrics: metrics,
		Speech: SpeechInfo{
			Provider: setup.resolvedProvider,
			Detail:   setup.detail,
			Language: gateway.CurrentLanguage(),
		},
		CompletionProvider: completionProvider,
		Cleanup:            cleanup,
	}, nil
}
