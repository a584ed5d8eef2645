// Package voiceturn runs one spoken round trip: recognize, reply, speak.
package voiceturn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/voicechat/internal/logging"
	"github.com/ent0n29/voicechat/internal/observability"
	"github.com/ent0n29/voicechat/internal/speech"
)

var ErrRecognitionEmpty = errors.New("no speech recognized")

// SpeechGateway is the part of *speech.Gateway a turn needs.
type SpeechGateway interface {
	Recognize(ctx context.Context, src speech.AudioSource) speech.Recognition
	TextToSpeech(ctx context.Context, text, tag string) (speech.Synthesis, error)
}

// Responder produces the assistant reply for a recognized utterance.
type Responder interface {
	Reply(ctx context.Context, userMessage string) string
}

type Result struct {
	RecognizedText     string
	RecognitionOutcome speech.Outcome
	ChatResponse       string
	Audio              []byte
	AudioFormat        string
	Language           string
}

type Runner struct {
	gateway SpeechGateway
	chat    Responder
	logger  *slog.Logger
	metrics *observability.Metrics

	mu sync.Mutex
}

type Option func(*Runner)

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func New(gateway SpeechGateway, chat Responder, opts ...Option) (*Runner, error) {
	if gateway == nil || chat == nil {
		return nil, errors.New("voice turn requires a speech gateway and a chat responder")
	}
	r := &Runner{
		gateway: gateway,
		chat:    chat,
		logger:  logging.Component("voiceturn"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run captures one utterance from src (the default microphone when nil),
// replies to it and synthesizes the reply in the current language. Turns
// run one at a time.
func (r *Runner) Run(ctx context.Context, src *speech.AudioSource) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	source := speech.DefaultMicrophone()
	if src != nil {
		source = *src
	}

	start := time.Now()
	log := r.logger.With("turn_id", uuid.NewString())
	defer func() {
		r.metrics.ObserveStage(observability.StageVoiceTurn, time.Since(start))
	}()

	rec := r.gateway.Recognize(ctx, source)
	text := strings.TrimSpace(rec.Text)
	if text == "" {
		r.metrics.ObserveVoiceTurn("empty")
		log.Warn("voice turn aborted: empty recognition", "outcome", rec.Outcome)
		return Result{RecognitionOutcome: rec.Outcome}, ErrRecognitionEmpty
	}

	res := Result{RecognizedText: text, RecognitionOutcome: rec.Outcome}
	res.ChatResponse = r.chat.Reply(ctx, text)

	synth, err := r.gateway.TextToSpeech(ctx, res.ChatResponse, "")
	if err != nil {
		r.metrics.ObserveVoiceTurn("synthesis_error")
		log.Error("voice turn synthesis failed", "error", err)
		return res, fmt.Errorf("synthesize reply: %w", err)
	}
	res.Audio = synth.Audio
	res.AudioFormat = synth.Format
	res.Language = synth.Language

	r.metrics.ObserveVoiceTurn("ok")
	log.Info("voice turn complete",
		"recognition", rec.Outcome,
		"audio_bytes", len(res.Audio),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
