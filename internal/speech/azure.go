package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/voicechat/internal/audio"
	"github.com/ent0n29/voicechat/internal/logging"
	"github.com/ent0n29/voicechat/internal/reliability"
)

const defaultAzureOutputFormat = "riff-24khz-16bit-mono-pcm"

type AzureConfig struct {
	Key    string
	Region string
	// STTBaseURL and TTSBaseURL override the regional endpoints.
	STTBaseURL   string
	TTSBaseURL   string
	OutputFormat string
	Timeout      time.Duration
	MaxRetries   int
	Logger       *slog.Logger
}

// AzureProvider talks to the Azure Speech REST endpoints: short-audio
// recognition and SSML synthesis.
type AzureProvider struct {
	cfg    AzureConfig
	client *http.Client
	logger *slog.Logger
}

func NewAzureProvider(cfg AzureConfig) (*AzureProvider, error) {
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, errors.New("azure speech key is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" && (cfg.STTBaseURL == "" || cfg.TTSBaseURL == "") {
		return nil, errors.New("azure speech region is required")
	}
	if cfg.STTBaseURL == "" {
		cfg.STTBaseURL = fmt.Sprintf("https://%s.stt.speech.microsoft.com", region)
	}
	if cfg.TTSBaseURL == "" {
		cfg.TTSBaseURL = fmt.Sprintf("https://%s.tts.speech.microsoft.com", region)
	}
	cfg.STTBaseURL = strings.TrimRight(cfg.STTBaseURL, "/")
	cfg.TTSBaseURL = strings.TrimRight(cfg.TTSBaseURL, "/")
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = defaultAzureOutputFormat
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Component("speech.azure")
	}
	return &AzureProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

func (p *AzureProvider) Name() string { return "azure" }

func (p *AzureProvider) StartRecognition(ctx context.Context, cfg RecognitionConfig) (RecognitionSession, <-chan RecognitionEvent, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &azureRecognition{
		provider: p,
		cfg:      cfg,
		ctx:      sctx,
		cancel:   cancel,
		events:   make(chan RecognitionEvent, 1),
	}
	return s, s.events, nil
}

// azureRecognition buffers audio and posts it as one WAV upload at end of
// audio; the REST endpoint has no streaming mode.
type azureRecognition struct {
	provider *AzureProvider
	cfg      RecognitionConfig
	ctx      context.Context
	cancel   context.CancelFunc
	events   chan RecognitionEvent

	mu    sync.Mutex
	buf   bytes.Buffer
	ended bool
}

func (s *azureRecognition) SendAudio(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	s.buf.Write(pcm)
	return nil
}

func (s *azureRecognition) EndOfAudio(_ context.Context) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil
	}
	s.ended = true
	wav := audio.EncodeWAV(s.buf.Bytes(), s.cfg.SampleRate)
	s.mu.Unlock()

	go func() {
		ev := s.provider.recognizeShort(s.ctx, s.cfg, wav)
		select {
		case s.events <- ev:
		case <-s.ctx.Done():
		}
	}()
	return nil
}

func (s *azureRecognition) Stop() error {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.cancel()
	return nil
}

type azureRecognitionResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	Offset            int64  `json:"Offset"`
	Duration          int64  `json:"Duration"`
}

func (p *AzureProvider) recognizeShort(ctx context.Context, cfg RecognitionConfig, wav []byte) RecognitionEvent {
	u, err := url.Parse(p.cfg.STTBaseURL + "/speech/recognition/conversation/cognitiveservices/v1")
	if err != nil {
		return RecognitionEvent{Type: EventCanceled, Detail: err.Error()}
	}
	q := u.Query()
	q.Set("language", cfg.Locale)
	q.Set("format", "simple")
	u.RawQuery = q.Encode()

	var parsed azureRecognitionResponse
	err = reliability.Retry(ctx, p.retryPolicy(), func(int) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(wav))
		if err != nil {
			return false, err
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", p.cfg.Key)
		req.Header.Set("Content-Type", fmt.Sprintf("audio/wav; codecs=audio/pcm; samplerate=%d", cfg.SampleRate))
		req.Header.Set("Accept", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return ctx.Err() == nil, err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if resp.StatusCode/100 != 2 {
			return reliability.IsRetryableHTTPStatus(resp.StatusCode),
				fmt.Errorf("azure stt status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return false, fmt.Errorf("decode azure stt response: %w", err)
		}
		return false, nil
	})
	if err != nil {
		return RecognitionEvent{Type: EventCanceled, Detail: err.Error()}
	}

	switch parsed.RecognitionStatus {
	case "Success":
		return RecognitionEvent{Type: EventRecognized, Text: parsed.DisplayText}
	case "NoMatch", "InitialSilenceTimeout", "BabbleTimeout":
		return RecognitionEvent{Type: EventNoMatch, Detail: parsed.RecognitionStatus}
	default:
		return RecognitionEvent{Type: EventCanceled, Detail: "recognition status " + parsed.RecognitionStatus}
	}
}

func (p *AzureProvider) Synthesize(ctx context.Context, req SynthesisRequest) (SynthesisResult, error) {
	if strings.TrimSpace(req.Voice) == "" {
		return SynthesisResult{}, ErrNoVoice
	}
	ssml, err := buildSSML(req)
	if err != nil {
		return SynthesisResult{}, err
	}

	var result SynthesisResult
	err = reliability.Retry(ctx, p.retryPolicy(), func(int) (bool, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TTSBaseURL+"/cognitiveservices/v1", strings.NewReader(ssml))
		if err != nil {
			return false, err
		}
		httpReq.Header.Set("Ocp-Apim-Subscription-Key", p.cfg.Key)
		httpReq.Header.Set("Content-Type", "application/ssml+xml")
		httpReq.Header.Set("X-Microsoft-OutputFormat", p.cfg.OutputFormat)
		httpReq.Header.Set("User-Agent", "voicechat")

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return ctx.Err() == nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return true, fmt.Errorf("read azure tts audio: %w", err)
		}
		if resp.StatusCode/100 != 2 {
			if reliability.IsRetryableHTTPStatus(resp.StatusCode) {
				return true, fmt.Errorf("azure tts status %d", resp.StatusCode)
			}
			result = SynthesisResult{
				Reason: ReasonCanceled,
				Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			}
			return false, nil
		}
		result = SynthesisResult{
			Audio:  body,
			Format: formatFromOutput(p.cfg.OutputFormat),
			Reason: ReasonCompleted,
		}
		return false, nil
	})
	if err != nil {
		return SynthesisResult{}, err
	}
	if result.Reason == ReasonCompleted && len(result.Audio) == 0 {
		return SynthesisResult{Reason: ReasonCanceled, Detail: "empty audio"}, nil
	}
	return result, nil
}

func (p *AzureProvider) retryPolicy() reliability.Policy {
	return reliability.Policy{MaxRetries: p.cfg.MaxRetries, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}
}

func buildSSML(req SynthesisRequest) (string, error) {
	lang := req.Locale
	if lang == "" {
		lang = "en-US"
	}
	var text bytes.Buffer
	if err := xml.EscapeText(&text, []byte(req.Text)); err != nil {
		return "", fmt.Errorf("escape ssml text: %w", err)
	}
	var attr bytes.Buffer
	_ = xml.EscapeText(&attr, []byte(req.Voice))
	return fmt.Sprintf(
		`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="%s"><voice name="%s">%s</voice></speak>`,
		lang, attr.String(), text.String(),
	), nil
}
