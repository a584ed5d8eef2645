package speech

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockProvider recognizes a fixed phrase and "synthesizes" text bytes. It
// backs local development when no speech credentials are configured.
type MockProvider struct {
	// Phrase is returned for any non-empty audio; empty audio is a no-match.
	Phrase string
	// Delay is applied before a recognition result is emitted.
	Delay time.Duration
}

func NewMockProvider(phrase string) *MockProvider {
	return &MockProvider{Phrase: phrase}
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) StartRecognition(ctx context.Context, _ RecognitionConfig) (RecognitionSession, <-chan RecognitionEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s := &mockRecognition{
		phrase: strings.TrimSpace(p.Phrase),
		delay:  p.Delay,
		events: make(chan RecognitionEvent, 1),
		done:   make(chan struct{}),
	}
	return s, s.events, nil
}

type mockRecognition struct {
	phrase string
	delay  time.Duration
	events chan RecognitionEvent
	done   chan struct{}

	mu       sync.Mutex
	received int
	ended    bool
	stopOnce sync.Once
}

func (s *mockRecognition) SendAudio(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSessionClosed
	}
	s.received += len(pcm)
	return nil
}

func (s *mockRecognition) EndOfAudio(_ context.Context) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil
	}
	s.ended = true
	ev := RecognitionEvent{Type: EventNoMatch, Detail: "no audio"}
	if s.received > 0 && s.phrase != "" {
		ev = RecognitionEvent{Type: EventRecognized, Text: s.phrase}
	}
	s.mu.Unlock()

	go func() {
		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-s.done:
				return
			}
		}
		select {
		case s.events <- ev:
		case <-s.done:
		}
	}()
	return nil
}

func (s *mockRecognition) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.ended = true
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

func (p *MockProvider) Synthesize(ctx context.Context, req SynthesisRequest) (SynthesisResult, error) {
	if err := ctx.Err(); err != nil {
		return SynthesisResult{}, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return SynthesisResult{Reason: ReasonCanceled, Detail: "empty text"}, nil
	}
	return SynthesisResult{
		Audio:  []byte(fmt.Sprintf("[%s] %s", req.Voice, req.Text)),
		Format: FormatMock,
		Reason: ReasonCompleted,
	}, nil
}
