package speech

import (
	"context"
	"io"
)

type RecognitionEventType string

const (
	EventRecognized RecognitionEventType = "recognized"
	EventNoMatch    RecognitionEventType = "no_match"
	EventCanceled   RecognitionEventType = "canceled"
)

// RecognitionEvent is emitted asynchronously by a recognition session.
type RecognitionEvent struct {
	Type   RecognitionEventType
	Text   string
	Detail string
}

type RecognitionConfig struct {
	Locale     string
	SampleRate int
}

// RecognitionSession accepts PCM16LE mono audio until EndOfAudio. Stop
// releases the session and must be safe to call in any state.
type RecognitionSession interface {
	SendAudio(ctx context.Context, pcm []byte) error
	EndOfAudio(ctx context.Context) error
	Stop() error
}

// Recognizer is a hosted speech-to-text endpoint.
type Recognizer interface {
	StartRecognition(ctx context.Context, cfg RecognitionConfig) (RecognitionSession, <-chan RecognitionEvent, error)
}

type SynthesisReason string

const (
	ReasonCompleted SynthesisReason = "completed"
	ReasonCanceled  SynthesisReason = "canceled"
	ReasonError     SynthesisReason = "error"
)

type SynthesisRequest struct {
	Text   string
	Locale string
	Voice  string
}

// SynthesisResult carries audio on ReasonCompleted, otherwise the reason the
// endpoint reported.
type SynthesisResult struct {
	Audio  []byte
	Format string
	Reason SynthesisReason
	Detail string
}

// Synthesizer is a hosted text-to-speech endpoint.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (SynthesisResult, error)
}

// Microphone opens a live PCM16LE mono capture stream.
type Microphone interface {
	Open(ctx context.Context) (stream io.ReadCloser, sampleRate int, err error)
}

// AudioSource is either a finite buffer of encoded audio or the default
// microphone.
type AudioSource struct {
	data       []byte
	microphone bool
}

// FromBuffer wraps WAV or raw PCM16LE 16 kHz mono bytes.
func FromBuffer(data []byte) AudioSource {
	return AudioSource{data: data}
}

func DefaultMicrophone() AudioSource {
	return AudioSource{microphone: true}
}

func (s AudioSource) IsMicrophone() bool { return s.microphone }

func (s AudioSource) Bytes() []byte { return s.data }
