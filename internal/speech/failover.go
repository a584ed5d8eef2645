package speech

import (
	"context"
	"fmt"
	"sync/atomic"
)

// NewFailoverPair builds a recognizer and synthesizer that prefer the primary
// backend and switch to the fallback when the primary fails to start a
// recognition or to synthesize. Once the fallback is active it stays active
// until it fails; then the primary is retried.
func NewFailoverPair(
	primaryRec Recognizer,
	primarySynth Synthesizer,
	fallbackRec Recognizer,
	fallbackSynth Synthesizer,
) (Recognizer, Synthesizer) {
	state := &failoverState{}
	return &failoverRecognizer{state: state, primary: primaryRec, fallback: fallbackRec},
		&failoverSynthesizer{state: state, primary: primarySynth, fallback: fallbackSynth}
}

type failoverState struct {
	fallbackActive atomic.Bool
}

func (s *failoverState) activateFallback()      { s.fallbackActive.Store(true) }
func (s *failoverState) deactivateFallback()    { s.fallbackActive.Store(false) }
func (s *failoverState) isFallbackActive() bool { return s.fallbackActive.Load() }

type failoverRecognizer struct {
	state    *failoverState
	primary  Recognizer
	fallback Recognizer
}

func (p *failoverRecognizer) StartRecognition(ctx context.Context, cfg RecognitionConfig) (RecognitionSession, <-chan RecognitionEvent, error) {
	if p.state.isFallbackActive() {
		session, events, fbErr := p.fallback.StartRecognition(ctx, cfg)
		if fbErr == nil {
			return session, events, nil
		}
		session, events, prErr := p.primary.StartRecognition(ctx, cfg)
		if prErr == nil {
			p.state.deactivateFallback()
			return session, events, nil
		}
		return nil, nil, fmt.Errorf("stt fallback failed: %v; stt primary failed: %w", fbErr, prErr)
	}

	session, events, prErr := p.primary.StartRecognition(ctx, cfg)
	if prErr == nil {
		return session, events, nil
	}
	session, events, fbErr := p.fallback.StartRecognition(ctx, cfg)
	if fbErr != nil {
		return nil, nil, fmt.Errorf("stt primary failed: %v; stt fallback failed: %w", prErr, fbErr)
	}
	p.state.activateFallback()
	return session, events, nil
}

type failoverSynthesizer struct {
	state    *failoverState
	primary  Synthesizer
	fallback Synthesizer
}

func (p *failoverSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (SynthesisResult, error) {
	first, second := p.primary, p.fallback
	if p.state.isFallbackActive() {
		first, second = p.fallback, p.primary
	}

	res, firstErr := first.Synthesize(ctx, req)
	if firstErr == nil && completed(res) {
		return res, nil
	}
	if ctx.Err() != nil {
		return res, firstErr
	}

	res2, secondErr := second.Synthesize(ctx, req)
	if secondErr == nil && completed(res2) {
		if p.state.isFallbackActive() {
			p.state.deactivateFallback()
		} else {
			p.state.activateFallback()
		}
		return res2, nil
	}
	if firstErr != nil && secondErr != nil {
		return SynthesisResult{}, fmt.Errorf("tts failed on both backends: %v; %w", firstErr, secondErr)
	}
	// Report whichever backend produced a non-success reason.
	if secondErr == nil {
		return res2, nil
	}
	return res, nil
}

func completed(res SynthesisResult) bool {
	return res.Reason == "" || res.Reason == ReasonCompleted
}
