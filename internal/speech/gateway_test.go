package speech

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/voicechat/internal/audio"
	"github.com/ent0n29/voicechat/internal/language"
	"github.com/ent0n29/voicechat/internal/logging"
	"github.com/ent0n29/voicechat/internal/observability"
)

type fakeSession struct {
	events chan RecognitionEvent
	result *RecognitionEvent

	mu       sync.Mutex
	chunks   [][]byte
	ended    bool
	stops    atomic.Int32
	closeCh  bool
	received int
}

func (s *fakeSession) SendAudio(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, pcm)
	s.received += len(pcm)
	return nil
}

func (s *fakeSession) EndOfAudio(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
	if s.closeCh {
		close(s.events)
		return nil
	}
	if s.result != nil {
		s.events <- *s.result
	}
	return nil
}

func (s *fakeSession) Stop() error {
	s.stops.Add(1)
	return nil
}

type fakeRecognizer struct {
	result   *RecognitionEvent
	closeCh  bool
	startErr error

	mu       sync.Mutex
	configs  []RecognitionConfig
	sessions []*fakeSession
}

func (r *fakeRecognizer) StartRecognition(_ context.Context, cfg RecognitionConfig) (RecognitionSession, <-chan RecognitionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = append(r.configs, cfg)
	if r.startErr != nil {
		return nil, nil, r.startErr
	}
	s := &fakeSession{events: make(chan RecognitionEvent, 1), result: r.result, closeCh: r.closeCh}
	r.sessions = append(r.sessions, s)
	return s, s.events, nil
}

func (r *fakeRecognizer) lastSession(t *testing.T) *fakeSession {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.sessions)
	return r.sessions[len(r.sessions)-1]
}

type fakeSynthesizer struct {
	result SynthesisResult
	err    error

	mu       sync.Mutex
	requests []SynthesisRequest
}

func (s *fakeSynthesizer) Synthesize(_ context.Context, req SynthesisRequest) (SynthesisResult, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.err != nil {
		return SynthesisResult{}, s.err
	}
	if s.result.Reason == "" {
		return SynthesisResult{Audio: []byte("synth:" + req.Text), Format: FormatWAV, Reason: ReasonCompleted}, nil
	}
	return s.result, nil
}

type bufferMicrophone struct {
	pcm  []byte
	rate int
}

func (m bufferMicrophone) Open(context.Context) (io.ReadCloser, int, error) {
	return io.NopCloser(bytes.NewReader(m.pcm)), m.rate, nil
}

func newTestGateway(t *testing.T, rec Recognizer, synth Synthesizer, opts ...Option) *Gateway {
	t.Helper()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	g, err := NewGateway(language.DefaultTable(), rec, synth, opts...)
	require.NoError(t, err)
	return g
}

func recognized(text string) *RecognitionEvent {
	return &RecognitionEvent{Type: EventRecognized, Text: text}
}

func TestSpeechToTextReturnsRecognizedPhrase(t *testing.T) {
	rec := &fakeRecognizer{result: recognized("  book a flight ")}
	g := newTestGateway(t, rec, &fakeSynthesizer{}, WithChunkSize(4))

	pcm := []byte("0123456789")
	res := g.Recognize(context.Background(), FromBuffer(pcm))

	assert.Equal(t, "book a flight", res.Text)
	assert.Equal(t, OutcomeRecognized, res.Outcome)
	assert.Equal(t, "en-US", res.Locale)

	s := rec.lastSession(t)
	assert.Equal(t, int32(1), s.stops.Load())
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, len(pcm), s.received)
	assert.Len(t, s.chunks, 3)
	assert.True(t, s.ended)
}

func TestSpeechToTextTimesOut(t *testing.T) {
	rec := &fakeRecognizer{}
	g := newTestGateway(t, rec, &fakeSynthesizer{}, WithRecognitionTimeout(50*time.Millisecond))

	start := time.Now()
	res := g.Recognize(context.Background(), FromBuffer([]byte("audio")))

	assert.Equal(t, SentinelTimedOut, res.Text)
	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, int32(1), rec.lastSession(t).stops.Load())
}

func TestSpeechToTextSentinels(t *testing.T) {
	cases := []struct {
		name    string
		rec     *fakeRecognizer
		want    string
		outcome Outcome
		stops   int32
	}{
		{
			name:    "no match",
			rec:     &fakeRecognizer{result: &RecognitionEvent{Type: EventNoMatch, Detail: "InitialSilenceTimeout"}},
			want:    SentinelNotUnderstood,
			outcome: OutcomeNoMatch,
			stops:   1,
		},
		{
			name:    "empty transcript",
			rec:     &fakeRecognizer{result: recognized("   ")},
			want:    SentinelNotUnderstood,
			outcome: OutcomeNoMatch,
			stops:   1,
		},
		{
			name:    "canceled",
			rec:     &fakeRecognizer{result: &RecognitionEvent{Type: EventCanceled, Detail: "auth failed"}},
			want:    SentinelTrouble,
			outcome: OutcomeErrored,
			stops:   1,
		},
		{
			name:    "stream closed",
			rec:     &fakeRecognizer{closeCh: true},
			want:    SentinelTrouble,
			outcome: OutcomeErrored,
			stops:   1,
		},
		{
			name:    "start fails",
			rec:     &fakeRecognizer{startErr: errors.New("dial refused")},
			want:    SentinelTrouble,
			outcome: OutcomeErrored,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGateway(t, tc.rec, &fakeSynthesizer{}, WithRecognitionTimeout(time.Second))
			res := g.Recognize(context.Background(), FromBuffer([]byte("audio")))
			assert.Equal(t, tc.want, res.Text)
			assert.Equal(t, tc.outcome, res.Outcome)
			if tc.stops > 0 {
				assert.Equal(t, tc.stops, tc.rec.lastSession(t).stops.Load())
			} else {
				assert.Empty(t, tc.rec.sessions)
			}
		})
	}
}

func TestSpeechToTextIgnoresCallerCancellation(t *testing.T) {
	rec := &fakeRecognizer{result: recognized("still here")}
	g := newTestGateway(t, rec, &fakeSynthesizer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, "still here", g.SpeechToText(ctx, FromBuffer([]byte("audio"))))
}

func TestSpeechToTextUnwrapsWAV(t *testing.T) {
	rec := &fakeRecognizer{result: recognized("ok")}
	g := newTestGateway(t, rec, &fakeSynthesizer{})

	pcm := bytes.Repeat([]byte{1, 0}, 100)
	g.SpeechToText(context.Background(), FromBuffer(audio.EncodeWAV(pcm, 8000)))

	require.Len(t, rec.configs, 1)
	assert.Equal(t, 8000, rec.configs[0].SampleRate)
	assert.Equal(t, len(pcm), rec.lastSession(t).received)
}

func TestSpeechToTextMicrophone(t *testing.T) {
	rec := &fakeRecognizer{result: recognized("from the mic")}

	without := newTestGateway(t, rec, &fakeSynthesizer{})
	assert.Equal(t, SentinelTrouble, without.SpeechToText(context.Background(), DefaultMicrophone()))
	assert.Empty(t, rec.configs)

	with := newTestGateway(t, rec, &fakeSynthesizer{},
		WithMicrophone(bufferMicrophone{pcm: []byte("pcmpcm"), rate: 16000}))
	assert.Equal(t, "from the mic", with.SpeechToText(context.Background(), DefaultMicrophone()))
	assert.Equal(t, int32(1), rec.lastSession(t).stops.Load())
}

func TestSetLanguage(t *testing.T) {
	rec := &fakeRecognizer{result: recognized("bonjour")}
	g := newTestGateway(t, rec, &fakeSynthesizer{})
	assert.Equal(t, "en-US", g.CurrentLanguage())

	assert.False(t, g.SetLanguage("xx-XX"))
	assert.Equal(t, "en-US", g.CurrentLanguage())

	assert.True(t, g.SetLanguage("fr-fr"))
	assert.Equal(t, "fr-FR", g.CurrentLanguage())

	g.SpeechToText(context.Background(), FromBuffer([]byte("audio")))
	require.Len(t, rec.configs, 1)
	assert.Equal(t, "fr-FR", rec.configs[0].Locale)

	langs := g.Languages()
	assert.Equal(t, "French (France)", langs["fr-FR"])
	assert.Len(t, langs, len(language.DefaultTable().Tags()))
}

func TestTextToSpeechPerCallLanguage(t *testing.T) {
	synth := &fakeSynthesizer{}
	g := newTestGateway(t, &fakeRecognizer{}, synth)

	out, err := g.TextToSpeech(context.Background(), "Bonjour", "fr-FR")
	require.NoError(t, err)
	assert.Equal(t, []byte("synth:Bonjour"), out.Audio)
	assert.Equal(t, "fr-FR", out.Language)
	assert.Equal(t, "fr-FR-DeniseNeural", out.Voice)
	assert.Equal(t, "en-US", g.CurrentLanguage())

	_, err = g.TextToSpeech(context.Background(), "Hello", "")
	require.NoError(t, err)
	_, err = g.TextToSpeech(context.Background(), "Hello", "xx-XX")
	require.NoError(t, err)

	require.Len(t, synth.requests, 3)
	assert.Equal(t, "fr-FR", synth.requests[0].Locale)
	assert.Equal(t, "en-US-JennyNeural", synth.requests[1].Voice)
	assert.Equal(t, "en-US-JennyNeural", synth.requests[2].Voice)
}

func TestTextToSpeechFailures(t *testing.T) {
	g := newTestGateway(t, &fakeRecognizer{}, &fakeSynthesizer{
		result: SynthesisResult{Reason: ReasonCanceled, Detail: "status 401"},
	})
	_, err := g.TextToSpeech(context.Background(), "hi", "")
	var synthErr *SynthesisError
	require.True(t, errors.As(err, &synthErr))
	assert.Equal(t, ReasonCanceled, synthErr.Reason)
	assert.Equal(t, "status 401", synthErr.Detail)

	transport := errors.New("connection reset")
	g = newTestGateway(t, &fakeRecognizer{}, &fakeSynthesizer{err: transport})
	_, err = g.TextToSpeech(context.Background(), "hi", "")
	require.True(t, errors.As(err, &synthErr))
	assert.Equal(t, ReasonError, synthErr.Reason)
	assert.ErrorIs(t, err, transport)
}

func TestGatewayRecordsMetrics(t *testing.T) {
	metrics := observability.NewMetrics("test")
	g := newTestGateway(t, &fakeRecognizer{result: recognized("hi")}, &fakeSynthesizer{}, WithMetrics(metrics))

	g.SpeechToText(context.Background(), FromBuffer([]byte("audio")))
	_, err := g.TextToSpeech(context.Background(), "hello", "")
	require.NoError(t, err)

	snap := metrics.SnapshotLatency()
	counts := map[string]int{}
	for _, o := range snap.Outcomes {
		counts[o.Name] = o.Count
	}
	assert.Equal(t, 1, counts["recognition_recognized"])
	assert.Equal(t, 1, counts["synthesis_completed"])
}

func TestMockProviderThroughGateway(t *testing.T) {
	mock := NewMockProvider("book a flight")
	g := newTestGateway(t, mock, mock)

	assert.Equal(t, "book a flight", g.SpeechToText(context.Background(), FromBuffer([]byte("audio"))))
	assert.Equal(t, SentinelNotUnderstood, g.SpeechToText(context.Background(), FromBuffer(nil)))

	out, err := g.TextToSpeech(context.Background(), "Sure, where to?", "")
	require.NoError(t, err)
	assert.Equal(t, "[en-US-JennyNeural] Sure, where to?", string(out.Audio))
	assert.Equal(t, FormatMock, out.Format)
}

func TestNewGatewayRequiresEndpoints(t *testing.T) {
	_, err := NewGateway(nil, &fakeRecognizer{}, &fakeSynthesizer{})
	assert.Error(t, err)
	_, err = NewGateway(language.DefaultTable(), nil, &fakeSynthesizer{})
	assert.Error(t, err)
}
