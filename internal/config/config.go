package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ent0n29/voicechat/internal/language"
)

// Config contains all runtime settings for the voice chat service.
type Config struct {
	BindAddr         string        `yaml:"bind_addr"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	MetricsNamespace string        `yaml:"metrics_namespace"`
	AllowAnyOrigin   bool          `yaml:"allow_any_origin"`
	LogLevel         string        `yaml:"log_level"`
	LogFormat        string        `yaml:"log_format"`

	// SpeechProvider is auto, azure, elevenlabs, failover or mock.
	SpeechProvider     string             `yaml:"speech_provider"`
	DefaultLanguage    string             `yaml:"default_language"`
	Languages          []language.Profile `yaml:"languages"`
	RecognitionTimeout time.Duration      `yaml:"recognition_timeout"`
	MockPhrase         string             `yaml:"mock_phrase"`

	MicrophoneCommand string        `yaml:"microphone_command"`
	MicrophoneArgs    []string      `yaml:"microphone_args"`
	CaptureDuration   time.Duration `yaml:"capture_duration"`

	AzureSpeechKey          string `yaml:"azure_speech_key"`
	AzureSpeechRegion       string `yaml:"azure_speech_region"`
	AzureSTTBaseURL         string `yaml:"azure_stt_base_url"`
	AzureTTSBaseURL         string `yaml:"azure_tts_base_url"`
	AzureTTSOutputFormat    string `yaml:"azure_tts_output_format"`
	SpeechRequestMaxRetries int    `yaml:"speech_request_max_retries"`

	ElevenLabsAPIKey          string            `yaml:"elevenlabs_api_key"`
	ElevenLabsWSBaseURL       string            `yaml:"elevenlabs_ws_base_url"`
	ElevenLabsHTTPBaseURL     string            `yaml:"elevenlabs_http_base_url"`
	ElevenLabsSTTModel        string            `yaml:"elevenlabs_stt_model_id"`
	ElevenLabsTTSModel        string            `yaml:"elevenlabs_tts_model_id"`
	ElevenLabsTTSOutputFormat string            `yaml:"elevenlabs_tts_output_format"`
	ElevenLabsTTSVoice        string            `yaml:"elevenlabs_tts_voice_id"`
	ElevenLabsVoices          map[string]string `yaml:"elevenlabs_voices"`

	// CompletionProvider is auto, openai, azure or mock.
	CompletionProvider    string        `yaml:"completion_provider"`
	OpenAIAPIKey          string        `yaml:"openai_api_key"`
	OpenAIBaseURL         string        `yaml:"openai_base_url"`
	OpenAIModel           string        `yaml:"openai_model"`
	AzureOpenAIEndpoint   string        `yaml:"azure_openai_endpoint"`
	AzureOpenAIKey        string        `yaml:"azure_openai_key"`
	AzureOpenAIDeployment string        `yaml:"azure_openai_deployment"`
	AzureOpenAIAPIVersion string        `yaml:"azure_openai_api_version"`
	SystemPrompt          string        `yaml:"system_prompt"`
	MaxTokens             int           `yaml:"max_tokens"`
	Temperature           float64       `yaml:"temperature"`
	ContextWindow         int           `yaml:"context_window"`
	CompletionTimeout     time.Duration `yaml:"completion_timeout"`
	CompletionMaxRetries  int           `yaml:"completion_max_retries"`
	MockReply             string        `yaml:"mock_reply"`

	// ArchiveKind is none, postgres or redis.
	ArchiveKind      string        `yaml:"archive"`
	ArchiveRedactPII bool          `yaml:"archive_redact_pii"`
	DatabaseURL      string        `yaml:"database_url"`
	RedisAddr        string        `yaml:"redis_addr"`
	RedisPassword    string        `yaml:"redis_password"`
	RedisDB          int           `yaml:"redis_db"`
	RedisKeyPrefix   string        `yaml:"redis_key_prefix"`
	RedisMaxLen      int64         `yaml:"redis_max_len"`
	RedisTTL         time.Duration `yaml:"redis_ttl"`
}

// Defaults returns the settings used when neither a config file nor the
// environment says otherwise.
func Defaults() Config {
	return Config{
		BindAddr:           ":8080",
		ShutdownTimeout:    15 * time.Second,
		MetricsNamespace:   "voicechat",
		LogLevel:           "info",
		LogFormat:          "text",
		SpeechProvider:     "auto",
		DefaultLanguage:    "en-US",
		RecognitionTimeout: 10 * time.Second,
		MockPhrase:         "Hello there",
		CaptureDuration:    8 * time.Second,

		AzureTTSOutputFormat:    "riff-24khz-16bit-mono-pcm",
		SpeechRequestMaxRetries: 1,

		ElevenLabsWSBaseURL:       "wss://api.elevenlabs.io",
		ElevenLabsHTTPBaseURL:     "https://api.elevenlabs.io",
		ElevenLabsSTTModel:        "scribe_v2_realtime",
		ElevenLabsTTSModel:        "eleven_multilingual_v2",
		ElevenLabsTTSOutputFormat: "mp3_44100_128",
		// Warm premade voice that speaks every multilingual_v2 language.
		ElevenLabsTTSVoice: "cgSgspJ2msm6clMCkdW9",

		CompletionProvider:    "auto",
		OpenAIBaseURL:         "https://api.openai.com/v1",
		OpenAIModel:           "gpt-4o-mini",
		AzureOpenAIAPIVersion: "2024-06-01",
		MaxTokens:             150,
		Temperature:           0.7,
		ContextWindow:         10,
		CompletionTimeout:     30 * time.Second,
		CompletionMaxRetries:  2,

		ArchiveKind:      "none",
		ArchiveRedactPII: true,
		RedisAddr:        "localhost:6379",
		RedisKeyPrefix:   "voicechat:conversation",
		RedisMaxLen:      1000,
		RedisTTL:         7 * 24 * time.Hour,
	}
}

// Load applies, in order, defaults, the YAML file named by
// VOICECHAT_CONFIG_FILE and environment variables, then validates.
func Load() (Config, error) {
	cfg := Defaults()
	if path := stringsTrimSpace("VOICECHAT_CONFIG_FILE"); path != "" {
		if err := mergeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func mergeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var p envParser

	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.ShutdownTimeout = p.duration("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.AllowAnyOrigin = p.bool("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	cfg.LogLevel = envOrDefault("APP_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOrDefault("APP_LOG_FORMAT", cfg.LogFormat)

	cfg.SpeechProvider = strings.ToLower(envOrDefault("SPEECH_PROVIDER", cfg.SpeechProvider))
	cfg.DefaultLanguage = envOrDefault("SPEECH_DEFAULT_LANGUAGE", cfg.DefaultLanguage)
	cfg.RecognitionTimeout = p.duration("SPEECH_RECOGNITION_TIMEOUT", cfg.RecognitionTimeout)
	cfg.MockPhrase = envOrDefault("SPEECH_MOCK_PHRASE", cfg.MockPhrase)
	cfg.MicrophoneCommand = envOrDefault("MICROPHONE_COMMAND", cfg.MicrophoneCommand)
	if args := stringsTrimSpace("MICROPHONE_ARGS"); args != "" {
		cfg.MicrophoneArgs = strings.Fields(args)
	}
	cfg.CaptureDuration = p.duration("MICROPHONE_CAPTURE_DURATION", cfg.CaptureDuration)

	cfg.AzureSpeechKey = envOrDefault("AZURE_SPEECH_KEY", cfg.AzureSpeechKey)
	cfg.AzureSpeechRegion = envOrDefault("AZURE_SPEECH_REGION", cfg.AzureSpeechRegion)
	cfg.AzureSTTBaseURL = envOrDefault("AZURE_SPEECH_STT_BASE_URL", cfg.AzureSTTBaseURL)
	cfg.AzureTTSBaseURL = envOrDefault("AZURE_SPEECH_TTS_BASE_URL", cfg.AzureTTSBaseURL)
	cfg.AzureTTSOutputFormat = envOrDefault("AZURE_SPEECH_OUTPUT_FORMAT", cfg.AzureTTSOutputFormat)
	cfg.SpeechRequestMaxRetries = p.int("SPEECH_REQUEST_MAX_RETRIES", cfg.SpeechRequestMaxRetries)

	cfg.ElevenLabsAPIKey = envOrDefault("ELEVENLABS_API_KEY", cfg.ElevenLabsAPIKey)
	cfg.ElevenLabsWSBaseURL = envOrDefault("ELEVENLABS_WS_BASE_URL", cfg.ElevenLabsWSBaseURL)
	cfg.ElevenLabsHTTPBaseURL = envOrDefault("ELEVENLABS_HTTP_BASE_URL", cfg.ElevenLabsHTTPBaseURL)
	cfg.ElevenLabsSTTModel = envOrDefault("ELEVENLABS_STT_MODEL_ID", cfg.ElevenLabsSTTModel)
	cfg.ElevenLabsTTSModel = envOrDefault("ELEVENLABS_TTS_MODEL_ID", cfg.ElevenLabsTTSModel)
	cfg.ElevenLabsTTSOutputFormat = envOrDefault("ELEVENLABS_TTS_OUTPUT_FORMAT", cfg.ElevenLabsTTSOutputFormat)
	cfg.ElevenLabsTTSVoice = envOrDefault("ELEVENLABS_TTS_VOICE_ID", cfg.ElevenLabsTTSVoice)
	if voices := stringsTrimSpace("ELEVENLABS_VOICES"); voices != "" {
		cfg.ElevenLabsVoices = p.pairs("ELEVENLABS_VOICES", voices)
	}

	cfg.CompletionProvider = strings.ToLower(envOrDefault("COMPLETION_PROVIDER", cfg.CompletionProvider))
	cfg.OpenAIAPIKey = envOrDefault("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = envOrDefault("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OpenAIModel = envOrDefault("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.AzureOpenAIEndpoint = envOrDefault("AZURE_OPENAI_ENDPOINT", cfg.AzureOpenAIEndpoint)
	cfg.AzureOpenAIKey = envOrDefault("AZURE_OPENAI_KEY", cfg.AzureOpenAIKey)
	cfg.AzureOpenAIDeployment = envOrDefault("AZURE_OPENAI_DEPLOYMENT", cfg.AzureOpenAIDeployment)
	cfg.AzureOpenAIAPIVersion = envOrDefault("AZURE_OPENAI_API_VERSION", cfg.AzureOpenAIAPIVersion)
	cfg.SystemPrompt = envOrDefault("CHAT_SYSTEM_PROMPT", cfg.SystemPrompt)
	cfg.MaxTokens = p.int("CHAT_MAX_TOKENS", cfg.MaxTokens)
	cfg.Temperature = p.float("CHAT_TEMPERATURE", cfg.Temperature)
	cfg.ContextWindow = p.int("CHAT_CONTEXT_WINDOW", cfg.ContextWindow)
	cfg.CompletionTimeout = p.duration("CHAT_COMPLETION_TIMEOUT", cfg.CompletionTimeout)
	cfg.CompletionMaxRetries = p.int("CHAT_COMPLETION_MAX_RETRIES", cfg.CompletionMaxRetries)
	cfg.MockReply = envOrDefault("CHAT_MOCK_REPLY", cfg.MockReply)

	cfg.ArchiveKind = strings.ToLower(envOrDefault("ARCHIVE_KIND", cfg.ArchiveKind))
	cfg.ArchiveRedactPII = p.bool("ARCHIVE_REDACT_PII", cfg.ArchiveRedactPII)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisAddr = envOrDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envOrDefault("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = p.int("REDIS_DB", cfg.RedisDB)
	cfg.RedisKeyPrefix = envOrDefault("REDIS_KEY_PREFIX", cfg.RedisKeyPrefix)
	cfg.RedisMaxLen = int64(p.int("REDIS_MAX_LEN", int(cfg.RedisMaxLen)))
	cfg.RedisTTL = p.duration("REDIS_TTL", cfg.RedisTTL)

	return p.err
}

// Validate checks ranges and the credentials the selected providers need.
func (c Config) Validate() error {
	var errs []error
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("APP_SHUTDOWN_TIMEOUT must be positive"))
	}
	if c.RecognitionTimeout < time.Second {
		errs = append(errs, errors.New("SPEECH_RECOGNITION_TIMEOUT must be at least 1s"))
	}
	if c.CaptureDuration <= 0 {
		errs = append(errs, errors.New("MICROPHONE_CAPTURE_DURATION must be positive"))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, errors.New("CHAT_MAX_TOKENS must be positive"))
	}
	if c.Temperature <= 0 || c.Temperature > 2 {
		errs = append(errs, errors.New("CHAT_TEMPERATURE must be within (0, 2]"))
	}
	if c.ContextWindow <= 0 {
		errs = append(errs, errors.New("CHAT_CONTEXT_WINDOW must be positive"))
	}
	if c.CompletionTimeout <= 0 {
		errs = append(errs, errors.New("CHAT_COMPLETION_TIMEOUT must be positive"))
	}
	if c.CompletionMaxRetries < 0 || c.SpeechRequestMaxRetries < 0 {
		errs = append(errs, errors.New("retry counts must be >= 0"))
	}

	switch c.SpeechProvider {
	case "auto", "mock":
	case "azure":
		errs = append(errs, c.requireAzureSpeech()...)
	case "elevenlabs":
		if c.ElevenLabsAPIKey == "" {
			errs = append(errs, errors.New("ELEVENLABS_API_KEY is required for SPEECH_PROVIDER=elevenlabs"))
		}
	case "failover":
		errs = append(errs, c.requireAzureSpeech()...)
		if c.ElevenLabsAPIKey == "" {
			errs = append(errs, errors.New("ELEVENLABS_API_KEY is required for SPEECH_PROVIDER=failover"))
		}
	default:
		errs = append(errs, fmt.Errorf("SPEECH_PROVIDER %q is not one of auto, azure, elevenlabs, failover, mock", c.SpeechProvider))
	}

	switch c.CompletionProvider {
	case "auto", "mock":
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for COMPLETION_PROVIDER=openai"))
		}
	case "azure":
		if c.AzureOpenAIEndpoint == "" || c.AzureOpenAIKey == "" || c.AzureOpenAIDeployment == "" {
			errs = append(errs, errors.New("AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_KEY and AZURE_OPENAI_DEPLOYMENT are required for COMPLETION_PROVIDER=azure"))
		}
	default:
		errs = append(errs, fmt.Errorf("COMPLETION_PROVIDER %q is not one of auto, openai, azure, mock", c.CompletionProvider))
	}

	switch c.ArchiveKind {
	case "none", "":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for ARCHIVE_KIND=postgres"))
		}
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for ARCHIVE_KIND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("ARCHIVE_KIND %q is not one of none, postgres, redis", c.ArchiveKind))
	}

	return errors.Join(errs...)
}

func (c Config) requireAzureSpeech() []error {
	var errs []error
	if c.AzureSpeechKey == "" {
		errs = append(errs, errors.New("AZURE_SPEECH_KEY is required"))
	}
	if c.AzureSpeechRegion == "" && (c.AzureSTTBaseURL == "" || c.AzureTTSBaseURL == "") {
		errs = append(errs, errors.New("AZURE_SPEECH_REGION is required"))
	}
	return errs
}

// LanguageTable builds the profile table, falling back to the built-in one
// when no languages are configured.
func (c Config) LanguageTable() (*language.Table, error) {
	if len(c.Languages) == 0 {
		return language.DefaultTable(), nil
	}
	return language.NewTable(c.Languages...)
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// envParser keeps parsing after a bad value so all errors surface at once.
type envParser struct {
	err error
}

func (p *envParser) fail(err error) {
	p.err = errors.Join(p.err, err)
}

func (p *envParser) duration(key string, fallback time.Duration) time.Duration {
	d, err := durationFromEnv(key, fallback)
	if err != nil {
		p.fail(err)
		return fallback
	}
	return d
}

func (p *envParser) int(key string, fallback int) int {
	n, err := intFromEnv(key, fallback)
	if err != nil {
		p.fail(err)
		return fallback
	}
	return n
}

func (p *envParser) float(key string, fallback float64) float64 {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(fmt.Errorf("%s parse error: %w", key, err))
		return fallback
	}
	return f
}

func (p *envParser) bool(key string, fallback bool) bool {
	b, err := boolFromEnv(key, fallback)
	if err != nil {
		p.fail(err)
		return fallback
	}
	return b
}

// pairs parses "fr=voiceA,de-DE=voiceB".
func (p *envParser) pairs(key, raw string) map[string]string {
	out := map[string]string{}
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		k, v, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			p.fail(fmt.Errorf("%s parse error: expected locale=voice, got %q", key, item))
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
