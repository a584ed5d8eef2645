// Package speech wraps hosted speech-to-text and text-to-speech endpoints
// behind a Gateway that tracks the active language.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/voicechat/internal/language"
	"github.com/ent0n29/voicechat/internal/logging"
	"github.com/ent0n29/voicechat/internal/observability"
	"github.com/ent0n29/voicechat/internal/policy"
)

const (
	DefaultRecognitionTimeout = 10 * time.Second

	// 100ms of 16 kHz PCM16 mono.
	defaultChunkSize = 3200
	defaultStopWait  = 2 * time.Second
)

// Gateway owns the current language and fronts one recognizer and one
// synthesizer.
type Gateway struct {
	table       *language.Table
	recognizer  Recognizer
	synthesizer Synthesizer
	microphone  Microphone
	timeout     time.Duration
	chunkSize   int
	stopWait    time.Duration
	logger      *slog.Logger
	metrics     *observability.Metrics

	mu      sync.RWMutex
	current language.Profile
}

type Option func(*Gateway)

func WithRecognitionTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithMicrophone(m Microphone) Option {
	return func(g *Gateway) { g.microphone = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithChunkSize sets how many PCM bytes are sent per SendAudio call.
func WithChunkSize(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.chunkSize = n
		}
	}
}

// WithLanguage picks the starting language; unknown tags keep the table default.
func WithLanguage(tag string) Option {
	return func(g *Gateway) {
		if p, ok := g.table.Lookup(tag); ok {
			g.current = p
		}
	}
}

func NewGateway(table *language.Table, recognizer Recognizer, synthesizer Synthesizer, opts ...Option) (*Gateway, error) {
	if table == nil {
		return nil, errors.New("speech gateway requires a language table")
	}
	if recognizer == nil || synthesizer == nil {
		return nil, errors.New("speech gateway requires a recognizer and a synthesizer")
	}
	g := &Gateway{
		table:       table,
		recognizer:  recognizer,
		synthesizer: synthesizer,
		timeout:     DefaultRecognitionTimeout,
		chunkSize:   defaultChunkSize,
		stopWait:    defaultStopWait,
		logger:      logging.Component("speech.gateway"),
		current:     table.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// SetLanguage switches recognition and synthesis to tag. Unknown tags are
// logged and ignored.
func (g *Gateway) SetLanguage(tag string) bool {
	p, ok := g.table.Lookup(tag)
	if !ok {
		g.logger.Warn("unsupported language ignored", "language", tag, "current", g.CurrentLanguage())
		return false
	}
	g.mu.Lock()
	g.current = p
	g.mu.Unlock()
	g.logger.Info("language changed", "language", p.Tag, "voice", p.Voice)
	return true
}

func (g *Gateway) CurrentLanguage() string {
	return g.CurrentProfile().Tag
}

func (g *Gateway) CurrentProfile() language.Profile {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current
}

// Languages maps every supported tag to its display name.
func (g *Gateway) Languages() map[string]string {
	return g.table.List()
}

// Synthesis is the audio produced by TextToSpeech.
type Synthesis struct {
	Audio    []byte
	Format   string
	Language string
	Voice    string
}

// TextToSpeech synthesizes text with the voice of tag, or of the current
// language when tag is empty. A different tag applies to this call only.
// Any failure is returned as a *SynthesisError.
func (g *Gateway) TextToSpeech(ctx context.Context, text, tag string) (Synthesis, error) {
	profile := g.CurrentProfile()
	if tag = strings.TrimSpace(tag); tag != "" && !strings.EqualFold(tag, profile.Tag) {
		if p, ok := g.table.Lookup(tag); ok {
			profile = p
		} else {
			g.logger.Warn("unsupported synthesis language, using current", "language", tag, "current", profile.Tag)
		}
	}

	start := time.Now()
	res, err := g.synthesizer.Synthesize(ctx, SynthesisRequest{
		Text:   text,
		Locale: profile.RecognitionLocale,
		Voice:  profile.Voice,
	})
	g.metrics.ObserveStage(observability.StageSynthesis, time.Since(start))

	if err != nil {
		g.metrics.ObserveSynthesis(string(ReasonError))
		g.logger.Error("speech synthesis failed", "language", profile.Tag, "voice", profile.Voice, "error", err)
		return Synthesis{}, &SynthesisError{Reason: ReasonError, Err: err}
	}
	if res.Reason == "" {
		res.Reason = ReasonCompleted
	}
	if res.Reason != ReasonCompleted {
		g.metrics.ObserveSynthesis(string(res.Reason))
		g.logger.Error("speech synthesis not completed",
			"language", profile.Tag,
			"voice", profile.Voice,
			"reason", res.Reason,
			"detail", res.Detail,
		)
		return Synthesis{}, &SynthesisError{Reason: res.Reason, Detail: res.Detail}
	}

	g.metrics.ObserveSynthesis(string(ReasonCompleted))
	g.logger.Debug("speech synthesized",
		"language", profile.Tag,
		"voice", profile.Voice,
		"chars", len(text),
		"bytes", len(res.Audio),
		"text", policy.LogSafe(text, 80),
	)
	return Synthesis{
		Audio:    res.Audio,
		Format:   res.Format,
		Language: profile.Tag,
		Voice:    profile.Voice,
	}, nil
}
