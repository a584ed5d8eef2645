package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/voicechat/internal/audio"
	"github.com/ent0n29/voicechat/internal/logging"
	"github.com/ent0n29/voicechat/internal/reliability"
)

type ElevenLabsConfig struct {
	APIKey       string
	WSBaseURL    string
	HTTPBaseURL  string
	STTModelID   string
	TTSModelID   string
	OutputFormat string
	// Voices maps a locale ("fr-FR") or bare language ("fr") to a voice ID.
	Voices         map[string]string
	DefaultVoiceID string
	Timeout        time.Duration
	MaxRetries     int
	Logger         *slog.Logger
}

// ElevenLabsProvider uses the realtime speech-to-text websocket and the
// text-to-speech REST endpoint.
type ElevenLabsProvider struct {
	cfg    ElevenLabsConfig
	client *http.Client
	dialer *websocket.Dialer
	logger *slog.Logger
}

func NewElevenLabsProvider(cfg ElevenLabsConfig) (*ElevenLabsProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("elevenlabs api key is required")
	}
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.HTTPBaseURL) == "" {
		cfg.HTTPBaseURL = "https://api.elevenlabs.io"
	}
	cfg.WSBaseURL = strings.TrimRight(cfg.WSBaseURL, "/")
	cfg.HTTPBaseURL = strings.TrimRight(cfg.HTTPBaseURL, "/")
	if strings.TrimSpace(cfg.STTModelID) == "" {
		cfg.STTModelID = "scribe_v2_realtime"
	}
	if strings.TrimSpace(cfg.TTSModelID) == "" {
		cfg.TTSModelID = "eleven_multilingual_v2"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	voices := make(map[string]string, len(cfg.Voices))
	for k, v := range cfg.Voices {
		voices[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	cfg.Voices = voices

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Component("speech.elevenlabs")
	}
	return &ElevenLabsProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		logger: logger,
	}, nil
}

func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

func (p *ElevenLabsProvider) StartRecognition(ctx context.Context, cfg RecognitionConfig) (RecognitionSession, <-chan RecognitionEvent, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	u, err := url.Parse(p.cfg.WSBaseURL + "/v1/speech-to-text/realtime")
	if err != nil {
		return nil, nil, err
	}
	q := u.Query()
	q.Set("model_id", p.cfg.STTModelID)
	q.Set("commit_strategy", "manual")
	q.Set("audio_format", fmt.Sprintf("pcm_%d", cfg.SampleRate))
	if lang := baseLanguage(cfg.Locale); lang != "" {
		q.Set("language_code", lang)
	}
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", p.cfg.APIKey)

	conn, _, err := p.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, nil, fmt.Errorf("dial stt websocket: %w", err)
	}

	s := &elevenRecognition{
		conn:       conn,
		sampleRate: cfg.SampleRate,
		events:     make(chan RecognitionEvent, 8),
		done:       make(chan struct{}),
	}
	go s.readLoop()
	return s, s.events, nil
}

type elevenRecognition struct {
	conn       *websocket.Conn
	sampleRate int
	writeMu    sync.Mutex
	closeOnce  sync.Once
	events     chan RecognitionEvent
	done       chan struct{}
}

type realtimeMessage struct {
	MessageType string `json:"message_type"`
	Text        string `json:"text"`
	Error       string `json:"error"`
}

func (s *elevenRecognition) SendAudio(_ context.Context, pcm []byte) error {
	return s.sendChunk(base64.StdEncoding.EncodeToString(pcm), false)
}

func (s *elevenRecognition) EndOfAudio(_ context.Context) error {
	return s.sendChunk("", true)
}

func (s *elevenRecognition) sendChunk(audioBase64 string, commit bool) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	payload := map[string]any{
		"message_type":  "input_audio_chunk",
		"audio_base_64": audioBase64,
		"commit":        commit,
		"sample_rate":   s.sampleRate,
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

func (s *elevenRecognition) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg realtimeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		var ev RecognitionEvent
		switch msg.MessageType {
		case "committed_transcript", "committed_transcript_with_timestamps":
			if strings.TrimSpace(msg.Text) == "" {
				ev = RecognitionEvent{Type: EventNoMatch, Detail: "empty transcript"}
			} else {
				ev = RecognitionEvent{Type: EventRecognized, Text: msg.Text}
			}
		case "", "session_started", "partial_transcript", "input_audio_chunk":
			continue
		default:
			detail := msg.MessageType
			if msg.Error != "" {
				detail += ": " + msg.Error
			}
			if reliability.IsRetryableRealtimeMessageType(msg.MessageType) {
				detail += " (retryable)"
			}
			ev = RecognitionEvent{Type: EventCanceled, Detail: detail}
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *elevenRecognition) Stop() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req SynthesisRequest) (SynthesisResult, error) {
	voiceID := p.voiceFor(req.Locale)
	if voiceID == "" {
		return SynthesisResult{}, fmt.Errorf("%w: %s", ErrNoVoice, req.Locale)
	}

	u, err := url.Parse(p.cfg.HTTPBaseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID))
	if err != nil {
		return SynthesisResult{}, err
	}
	q := u.Query()
	q.Set("output_format", p.cfg.OutputFormat)
	u.RawQuery = q.Encode()

	payload := map[string]any{
		"text":     req.Text,
		"model_id": p.cfg.TTSModelID,
	}
	if lang := baseLanguage(req.Locale); lang != "" {
		payload["language_code"] = lang
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return SynthesisResult{}, err
	}

	var result SynthesisResult
	policy := reliability.Policy{MaxRetries: p.cfg.MaxRetries, BaseDelay: 250 * time.Millisecond, MaxDelay: 2 * time.Second}
	err = reliability.Retry(ctx, policy, func(int) (bool, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
		if err != nil {
			return false, err
		}
		httpReq.Header.Set("xi-api-key", p.cfg.APIKey)
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", ContentType(formatFromOutput(p.cfg.OutputFormat)))

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return ctx.Err() == nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return true, fmt.Errorf("read elevenlabs audio: %w", err)
		}
		if resp.StatusCode/100 != 2 {
			if reliability.IsRetryableHTTPStatus(resp.StatusCode) {
				return true, fmt.Errorf("elevenlabs tts status %d", resp.StatusCode)
			}
			result = SynthesisResult{
				Reason: ReasonCanceled,
				Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
			}
			return false, nil
		}
		result = SynthesisResult{Audio: data, Format: formatFromOutput(p.cfg.OutputFormat), Reason: ReasonCompleted}
		return false, nil
	})
	if err != nil {
		return SynthesisResult{}, err
	}
	return result, nil
}

func (p *ElevenLabsProvider) voiceFor(locale string) string {
	key := strings.ToLower(strings.TrimSpace(locale))
	if v := p.cfg.Voices[key]; v != "" {
		return v
	}
	if v := p.cfg.Voices[baseLanguage(key)]; v != "" {
		return v
	}
	return strings.TrimSpace(p.cfg.DefaultVoiceID)
}

// baseLanguage returns the lowercase language subtag: "fr-FR" -> "fr".
func baseLanguage(locale string) string {
	locale = strings.TrimSpace(locale)
	if i := strings.IndexAny(locale, "-_"); i >= 0 {
		locale = locale[:i]
	}
	return strings.ToLower(locale)
}
