package app

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ent0n29/voicechat/internal/config"
	"github.com/ent0n29/voicechat/internal/speech"
)

type speechSetup struct {
	recognizer       speech.Recognizer
	synthesizer      speech.Synthesizer
	resolvedProvider string
	detail           string
}

func resolveSpeechProviders(cfg config.Config, logger *slog.Logger) (speechSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.SpeechProvider))
	if mode == "" {
		mode = "auto"
	}

	newAzure := func() (*speech.AzureProvider, error) {
		return speech.NewAzureProvider(speech.AzureConfig{
			Key:          cfg.AzureSpeechKey,
			Region:       cfg.AzureSpeechRegion,
			STTBaseURL:   cfg.AzureSTTBaseURL,
			TTSBaseURL:   cfg.AzureTTSBaseURL,
			OutputFormat: cfg.AzureTTSOutputFormat,
			MaxRetries:   cfg.SpeechRequestMaxRetries,
			Logger:       logger,
		})
	}
	newElevenLabs := func() (*speech.ElevenLabsProvider, error) {
		return speech.NewElevenLabsProvider(speech.ElevenLabsConfig{
			APIKey:         cfg.ElevenLabsAPIKey,
			WSBaseURL:      cfg.ElevenLabsWSBaseURL,
			HTTPBaseURL:    cfg.ElevenLabsHTTPBaseURL,
			STTModelID:     cfg.ElevenLabsSTTModel,
			TTSModelID:     cfg.ElevenLabsTTSModel,
			OutputFormat:   cfg.ElevenLabsTTSOutputFormat,
			Voices:         cfg.ElevenLabsVoices,
			DefaultVoiceID: cfg.ElevenLabsTTSVoice,
			MaxRetries:     cfg.SpeechRequestMaxRetries,
			Logger:         logger,
		})
	}
	single := func(name string, rec speech.Recognizer, synth speech.Synthesizer, detail string) speechSetup {
		return speechSetup{recognizer: rec, synthesizer: synth, resolvedProvider: name, detail: detail}
	}
	mock := func(detail string) speechSetup {
		p := speech.NewMockProvider(cfg.MockPhrase)
		return single("mock", p, p, detail)
	}
	failover := func() (speechSetup, error) {
		azure, err := newAzure()
		if err != nil {
			return speechSetup{}, fmt.Errorf("azure speech init failed: %w", err)
		}
		eleven, err := newElevenLabs()
		if err != nil {
			return speechSetup{}, fmt.Errorf("elevenlabs init failed: %w", err)
		}
		rec, synth := speech.NewFailoverPair(azure, azure, eleven, eleven)
		return single("failover", rec, synth, "azure primary, elevenlabs fallback"), nil
	}

	switch mode {
	case "azure":
		p, err := newAzure()
		if err != nil {
			return speechSetup{}, fmt.Errorf("azure speech init failed: %w", err)
		}
		return single("azure", p, p, "azure speech rest"), nil
	case "elevenlabs":
		p, err := newElevenLabs()
		if err != nil {
			return speechSetup{}, fmt.Errorf("elevenlabs init failed: %w", err)
		}
		return single("elevenlabs", p, p, "elevenlabs realtime"), nil
	case "failover":
		return failover()
	case "mock":
		return mock("mock"), nil
	case "auto":
		hasAzure := cfg.AzureSpeechKey != "" &&
			(cfg.AzureSpeechRegion != "" || (cfg.AzureSTTBaseURL != "" && cfg.AzureTTSBaseURL != ""))
		hasEleven := cfg.ElevenLabsAPIKey != ""
		switch {
		case hasAzure && hasEleven:
			return failover()
		case hasAzure:
			p, err := newAzure()
			if err != nil {
				return speechSetup{}, fmt.Errorf("azure speech init failed: %w", err)
			}
			return single("azure", p, p, "azure speech rest"), nil
		case hasEleven:
			p, err := newElevenLabs()
			if err != nil {
				return speechSetup{}, fmt.Errorf("elevenlabs init failed: %w", err)
			}
			return single("elevenlabs", p, p, "elevenlabs realtime"), nil
		default:
			return mock("mock (no azure or elevenlabs credentials)"), nil
		}
	default:
		return speechSetup{}, fmt.Errorf("invalid SPEECH_PROVIDER: %q (expected auto|azure|elevenlabs|failover|mock)", cfg.SpeechProvider)
	}
}
