package speech

import (
	"errors"
	"fmt"
	"strings"
)

// Fixed replies substituted when recognition cannot produce text.
const (
	SentinelNotUnderstood = "Sorry, I couldn't understand that. Could you say it again?"
	SentinelTimedOut      = "I didn't catch anything in time. Please try again."
	SentinelTrouble       = "Sorry, I'm having trouble understanding you right now."
)

var (
	ErrNoMicrophone  = errors.New("speech: no microphone configured")
	ErrSessionClosed = errors.New("speech: recognition session closed")
	ErrNoVoice       = errors.New("speech: no voice configured for locale")
)

// SynthesisError is returned by TextToSpeech whenever no audio was produced.
type SynthesisError struct {
	Reason SynthesisReason
	Detail string
	Err    error
}

func (e *SynthesisError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "speech synthesis failed (%s)", e.Reason)
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *SynthesisError) Unwrap() error { return e.Err }
