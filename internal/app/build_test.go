package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/voicechat/internal/config"
	"github.com/ent0n29/voicechat/internal/logging"
	"github.com/ent0n29/voicechat/internal/speech"
)

func TestBuildWithMockProviders(t *testing.T) {
	cfg := config.Defaults()
	cfg.MockReply = "Sure, where to?"
	cfg.DefaultLanguage = "de-DE"

	res, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, res.Cleanup()) })

	assert.Equal(t, "mock", res.Speech.Provider)
	assert.Equal(t, "mock", res.CompletionProvider)
	assert.Equal(t, "mock", res.Config.SpeechProvider)
	assert.Equal(t, "de-DE", res.Speech.Language)

	ts := httptest.NewServer(res.API.Router())
	t.Cleanup(ts.Close)

	body, _ := json.Marshal(map[string]string{"message": "book a flight"})
	httpRes, err := http.Post(ts.URL+"/api/chat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer httpRes.Body.Close()
	require.Equal(t, http.StatusOK, httpRes.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(httpRes.Body).Decode(&out))
	assert.Equal(t, "Sure, where to?", out["response"])
	assert.Len(t, res.Chat.History(), 2)
}

func TestBuildRejectsUnknownArchive(t *testing.T) {
	cfg := config.Defaults()
	cfg.ArchiveKind = "sqlite"
	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}

func TestResolveSpeechProvidersAuto(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{name: "no credentials", mutate: func(*config.Config) {}, want: "mock"},
		{name: "azure only", mutate: func(c *config.Config) {
			c.AzureSpeechKey = "k"
			c.AzureSpeechRegion = "westeurope"
		}, want: "azure"},
		{name: "elevenlabs only", mutate: func(c *config.Config) {
			c.ElevenLabsAPIKey = "k"
		}, want: "elevenlabs"},
		{name: "both", mutate: func(c *config.Config) {
			c.AzureSpeechKey = "k"
			c.AzureSpeechRegion = "westeurope"
			c.ElevenLabsAPIKey = "k"
		}, want: "failover"},
		{name: "azure key without region", mutate: func(c *config.Config) {
			c.AzureSpeechKey = "k"
		}, want: "mock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.mutate(&cfg)
			setup, err := resolveSpeechProviders(cfg, logging.Discard())
			require.NoError(t, err)
			assert.Equal(t, tt.want, setup.resolvedProvider)
			assert.NotNil(t, setup.recognizer)
			assert.NotNil(t, setup.synthesizer)
		})
	}
}

func TestResolveSpeechProvidersExplicit(t *testing.T) {
	cfg := config.Defaults()
	cfg.SpeechProvider = "azure"
	_, err := resolveSpeechProviders(cfg, logging.Discard())
	assert.Error(t, err)

	cfg.SpeechProvider = "elevenlabs"
	cfg.ElevenLabsAPIKey = "k"
	setup, err := resolveSpeechProviders(cfg, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &speech.ElevenLabsProvider{}, setup.recognizer)

	cfg.SpeechProvider = "whisper"
	_, err = resolveSpeechProviders(cfg, logging.Discard())
	assert.ErrorContains(t, err, "invalid SPEECH_PROVIDER")
}

func TestResolveCompleter(t *testing.T) {
	cfg := config.Defaults()
	_, provider, err := resolveCompleter(cfg, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, "mock", provider)

	cfg.AzureOpenAIEndpoint = "https://example.openai.azure.com"
	cfg.AzureOpenAIKey = "k"
	cfg.AzureOpenAIDeployment = "gpt-4o"
	_, provider, err = resolveCompleter(cfg, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, "azure", provider)

	cfg.OpenAIAPIKey = "sk-test"
	_, provider, err = resolveCompleter(cfg, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, "openai", provider)

	cfg.CompletionProvider = "openai"
	cfg.OpenAIAPIKey = ""
	_, _, err = resolveCompleter(cfg, logging.Discard())
	assert.Error(t, err)
}
