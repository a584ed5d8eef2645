package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ent0n29/voicechat/internal/audio"
	"github.com/ent0n29/voicechat/internal/language"
	"github.com/ent0n29/voicechat/internal/observability"
	"github.com/ent0n29/voicechat/internal/policy"
)

// Outcome is the terminal state of one recognition attempt.
type Outcome string

const (
	OutcomeRecognized Outcome = "recognized"
	OutcomeNoMatch    Outcome = "no_match"
	OutcomeTimedOut   Outcome = "timed_out"
	OutcomeErrored    Outcome = "errored"
)

// Recognition is the resolved result of SpeechToText. Text is never empty:
// failures resolve to one of the sentinel replies.
type Recognition struct {
	Text    string
	Outcome Outcome
	Locale  string
	Detail  string
}

func (r Recognition) Recognized() bool { return r.Outcome == OutcomeRecognized }

// SpeechToText transcribes one utterance in the current language.
func (g *Gateway) SpeechToText(ctx context.Context, src AudioSource) string {
	return g.Recognize(ctx, src).Text
}

// Recognize is SpeechToText with the resolved outcome attached. Caller
// cancellation does not abort a started recognition; only the recognition
// timeout does.
func (g *Gateway) Recognize(ctx context.Context, src AudioSource) Recognition {
	profile := g.CurrentProfile()
	start := time.Now()
	res := g.recognize(ctx, src, profile)
	res.Locale = profile.RecognitionLocale
	elapsed := time.Since(start)

	g.metrics.ObserveStage(observability.StageRecognition, elapsed)
	g.metrics.ObserveRecognition(string(res.Outcome))

	switch res.Outcome {
	case OutcomeRecognized:
		g.logger.Info("speech recognized",
			"locale", res.Locale,
			"latency_ms", elapsed.Milliseconds(),
			"text", policy.LogSafe(res.Text, 80),
		)
	case OutcomeErrored:
		g.logger.Error("speech recognition failed", "locale", res.Locale, "detail", res.Detail)
	default:
		g.logger.Warn("speech not recognized",
			"locale", res.Locale,
			"outcome", res.Outcome,
			"detail", res.Detail,
			"latency_ms", elapsed.Milliseconds(),
		)
	}
	return res
}

func (g *Gateway) recognize(parent context.Context, src AudioSource, profile language.Profile) Recognition {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), g.timeout+g.stopWait)
	defer cancel()

	feed, sampleRate, err := g.openSource(ctx, src)
	if err != nil {
		return errored(fmt.Errorf("open audio source: %w", err))
	}

	session, events, err := g.recognizer.StartRecognition(ctx, RecognitionConfig{
		Locale:     profile.RecognitionLocale,
		SampleRate: sampleRate,
	})
	if err != nil {
		_ = feed.Close()
		return errored(fmt.Errorf("start recognition: %w", err))
	}

	pumpCtx, stopPump := context.WithCancel(ctx)
	pumpErr := make(chan error, 1)
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		if err := g.pump(pumpCtx, session, feed); err != nil {
			pumpErr <- err
		}
	}()

	res := g.await(events, pumpErr)

	// Teardown runs for every outcome, and the session is stopped exactly once.
	stopPump()
	if err := session.Stop(); err != nil {
		g.logger.Debug("recognition stop failed", "error", err)
	}
	_ = feed.Close()
	select {
	case <-pumpDone:
	case <-time.After(g.stopWait):
		g.logger.Warn("audio pump did not exit after stop")
	}
	return res
}

func (g *Gateway) await(events <-chan RecognitionEvent, pumpErr <-chan error) Recognition {
	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return errored(errors.New("recognition stream closed without a result"))
			}
			switch ev.Type {
			case EventRecognized:
				text := strings.TrimSpace(ev.Text)
				if text == "" {
					return Recognition{Text: SentinelNotUnderstood, Outcome: OutcomeNoMatch, Detail: "empty transcript"}
				}
				return Recognition{Text: text, Outcome: OutcomeRecognized}
			case EventNoMatch:
				return Recognition{Text: SentinelNotUnderstood, Outcome: OutcomeNoMatch, Detail: ev.Detail}
			case EventCanceled:
				return Recognition{Text: SentinelTrouble, Outcome: OutcomeErrored, Detail: ev.Detail}
			}
		case err := <-pumpErr:
			return errored(err)
		case <-timer.C:
			return Recognition{
				Text:    SentinelTimedOut,
				Outcome: OutcomeTimedOut,
				Detail:  fmt.Sprintf("no result within %s", g.timeout),
			}
		}
	}
}

func errored(err error) Recognition {
	return Recognition{Text: SentinelTrouble, Outcome: OutcomeErrored, Detail: err.Error()}
}

func (g *Gateway) openSource(ctx context.Context, src AudioSource) (io.ReadCloser, int, error) {
	if src.IsMicrophone() {
		if g.microphone == nil {
			return nil, 0, ErrNoMicrophone
		}
		return g.microphone.Open(ctx)
	}
	pcm, rate := audio.PCM(src.Bytes())
	return io.NopCloser(bytes.NewReader(pcm)), rate, nil
}

// pump streams the source in fixed-size chunks and signals end of audio.
// Errors raised after the pump context is cancelled are not reported.
func (g *Gateway) pump(ctx context.Context, session RecognitionSession, feed io.Reader) error {
	buf := make([]byte, g.chunkSize)
	for {
		n, err := io.ReadFull(feed, buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if sendErr := session.SendAudio(ctx, chunk); sendErr != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("send audio: %w", sendErr)
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read audio: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := session.EndOfAudio(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("end of audio: %w", err)
	}
	return nil
}
